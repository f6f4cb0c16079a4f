// Package session owns the provider crumb: acquiring it by scraping a quote
// page, tracking its expiry and dropping it when the provider rejects it.
//
// All reads and writes of the crumb go through a single mutex, so concurrent
// callers never race an acquisition or observe a crumb that another caller
// is in the middle of replacing.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"finfeed/internal/metrics"
)

const (
	DefaultCookieURL    = "https://fc.yahoo.com"
	DefaultQuotePageURL = "https://finance.yahoo.com/quote"
	DefaultValidity     = time.Hour

	maxPageBytes = 8 << 20
)

// ErrAuthenticationFailed is wrapped by every acquisition failure.
var ErrAuthenticationFailed = errors.New("authentication failed")

// AuthError carries the ticker whose quote page was used for the failed
// acquisition.
type AuthError struct {
	Ticker string
	Err    error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authenticate via %s: %v", e.Ticker, e.Err)
}

func (e *AuthError) Unwrap() []error { return []error{ErrAuthenticationFailed, e.Err} }

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=session_test -destination=mock_http_client_test.go -source=session.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// State is the lifecycle position of the crumb.
type State int32

const (
	Unauthenticated State = iota
	Authenticating
	Authenticated
)

func (s State) String() string {
	switch s {
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

// Authenticator guarantees a currently valid crumb for data requests.
type Authenticator struct {
	client       HTTPClient
	cookieURL    string
	quotePageURL string
	userAgent    string
	validity     time.Duration
	now          func() time.Time
	log          zerolog.Logger
	metrics      *metrics.Metrics

	mu     sync.Mutex
	token  string
	expiry time.Time

	// state and stateExpiry mirror the guarded fields for lock-free reads.
	state       atomic.Int32
	stateExpiry atomic.Int64
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithCookieURL sets the cookie-issuing endpoint hit before the quote page.
func WithCookieURL(u string) Option {
	return func(a *Authenticator) { a.cookieURL = u }
}

// WithQuotePageURL sets the base of the quote page; the ticker is appended
// as a path segment.
func WithQuotePageURL(u string) Option {
	return func(a *Authenticator) { a.quotePageURL = u }
}

// WithValidity sets how long an acquired crumb is trusted.
func WithValidity(d time.Duration) Option {
	return func(a *Authenticator) {
		if d > 0 {
			a.validity = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) { a.now = now }
}

func WithLogger(l zerolog.Logger) Option {
	return func(a *Authenticator) { a.log = l }
}

func WithUserAgent(ua string) Option {
	return func(a *Authenticator) { a.userAgent = ua }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Authenticator) { a.metrics = m }
}

// New creates an Authenticator holding no crumb.
func New(client HTTPClient, opts ...Option) *Authenticator {
	a := &Authenticator{
		client:       client,
		cookieURL:    DefaultCookieURL,
		quotePageURL: DefaultQuotePageURL,
		validity:     DefaultValidity,
		now:          time.Now,
		log:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// EnsureValid acquires a crumb unless a non-expired one is already held.
func (a *Authenticator) EnsureValid(ctx context.Context, ticker string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ensureLocked(ctx, ticker)
}

// Token is EnsureValid followed by a read of the crumb, both inside the same
// critical section.
func (a *Authenticator) Token(ctx context.Context, ticker string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.ensureLocked(ctx, ticker); err != nil {
		return "", err
	}
	return a.token, nil
}

// Invalidate drops the crumb so the next EnsureValid acquires a new one.
func (a *Authenticator) Invalidate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.token = ""
	a.expiry = time.Time{}
	a.state.Store(int32(Unauthenticated))
	a.log.Debug().Msg("crumb invalidated")
}

// CurrentToken returns the held crumb. It reports false when none is held
// or the held one has expired; it never triggers an acquisition.
func (a *Authenticator) CurrentToken() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.validLocked() {
		return "", false
	}
	return a.token, true
}

// State reports the lifecycle state without waiting on an in-flight
// acquisition.
func (a *Authenticator) State() State {
	s := State(a.state.Load())
	if s == Authenticated && !a.now().Before(time.Unix(0, a.stateExpiry.Load())) {
		return Unauthenticated
	}
	return s
}

func (a *Authenticator) validLocked() bool {
	return a.token != "" && a.now().Before(a.expiry)
}

func (a *Authenticator) ensureLocked(ctx context.Context, ticker string) error {
	if a.validLocked() {
		return nil
	}
	a.token = ""
	a.expiry = time.Time{}
	a.state.Store(int32(Authenticating))

	token, err := a.acquire(ctx, ticker)
	if err != nil {
		a.state.Store(int32(Unauthenticated))
		a.metrics.Acquisition("failure")
		a.log.Error().Err(err).Str("ticker", ticker).Msg("crumb acquisition failed")
		return &AuthError{Ticker: ticker, Err: err}
	}

	a.token = token
	a.expiry = a.now().Add(a.validity)
	a.stateExpiry.Store(a.expiry.UnixNano())
	a.state.Store(int32(Authenticated))
	a.metrics.Acquisition("success")
	a.log.Info().
		Str("ticker", ticker).
		Str("crumb", redact(token)).
		Time("expires_at", a.expiry).
		Msg("crumb acquired")
	return nil
}

func (a *Authenticator) acquire(ctx context.Context, ticker string) (string, error) {
	// Step 1: seed cookies. Failure is tolerated because the shared jar may
	// already hold them.
	if err := a.seedCookies(ctx); err != nil {
		a.log.Warn().Err(err).Str("url", a.cookieURL).Msg("cookie endpoint failed, continuing")
	}

	// Step 2: quote page.
	pageURL := a.quotePageURL + "/" + url.PathEscape(ticker)
	req, err := a.newRequest(ctx, pageURL)
	if err != nil {
		return "", fmt.Errorf("creating quote page request: %w", err)
	}
	res, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("performing quote page request: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", fmt.Errorf("quote page returned status %d", res.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(res.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("reading quote page: %w", err)
	}

	// Step 3: extract.
	m := ExtractCrumb(string(body))
	if !m.Found {
		return "", errors.New("no crumb pattern matched the quote page")
	}
	return m.Crumb, nil
}

func (a *Authenticator) seedCookies(ctx context.Context) error {
	req, err := a.newRequest(ctx, a.cookieURL)
	if err != nil {
		return err
	}
	res, err := a.client.Do(req)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 64<<10))
	_ = res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("status %d", res.StatusCode)
	}
	return nil
}

func (a *Authenticator) newRequest(ctx context.Context, u string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, err
	}
	if a.userAgent != "" {
		req.Header.Set("User-Agent", a.userAgent)
	}
	return req, nil
}

func redact(token string) string {
	if len(token) <= 4 {
		return "..."
	}
	return token[:4] + "..."
}
