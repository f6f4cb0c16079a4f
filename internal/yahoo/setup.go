package yahoo

import (
	"time"

	"github.com/rs/zerolog"

	"finfeed/internal/config"
	"finfeed/internal/httpx"
	"finfeed/internal/metrics"
	"finfeed/internal/session"
)

// NewFromConfig builds a Client and the Authenticator it draws crumbs from.
// Both share one httpx transport so cookies seeded during acquisition are
// sent with data requests.
func NewFromConfig(cfg config.Yahoo, log zerolog.Logger, m *metrics.Metrics) (*Client, *session.Authenticator, error) {
	httpClient, err := httpx.New(time.Duration(cfg.HTTPTimeoutSec) * time.Second)
	if err != nil {
		return nil, nil, err
	}
	if cfg.UserAgent != "" {
		httpClient.UserAgent = cfg.UserAgent
	}

	auth := session.New(httpClient,
		session.WithCookieURL(cfg.CookieURL),
		session.WithQuotePageURL(cfg.QuotePageURL),
		session.WithValidity(time.Duration(cfg.CrumbTTLSec)*time.Second),
		session.WithLogger(log.With().Str("component", "session").Logger()),
		session.WithMetrics(m),
	)
	client := NewClient(auth,
		WithHTTPClient(httpClient),
		WithQuery1URL(cfg.Query1URL),
		WithQuery2URL(cfg.Query2URL),
		WithCSVURL(cfg.CSVURL),
		WithDefaultTicker(cfg.DefaultTicker),
		WithLogger(log.With().Str("component", "yahoo").Logger()),
		WithMetrics(m),
	)
	return client, auth, nil
}
