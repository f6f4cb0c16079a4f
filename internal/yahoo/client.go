// Package yahoo fetches quote summaries, charts, option chains, screener
// results and legacy CSV quotes from Yahoo Finance.
//
// Every credentialed request carries the session crumb. When the provider
// rejects the crumb the client drops it, acquires a fresh one and retries the
// request exactly once.
package yahoo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"finfeed/internal/metrics"
)

const (
	DefaultQuery1URL     = "https://query1.finance.yahoo.com"
	DefaultQuery2URL     = "https://query2.finance.yahoo.com"
	DefaultCSVURL        = "https://finance.yahoo.com/d/quotes.csv"
	DefaultTicker        = "AAPL"
	maxResponseBytes     = 32 << 20
	maxErrorMessageBytes = 256
)

var (
	// ErrFetchFailed is wrapped by every FetchError.
	ErrFetchFailed = errors.New("fetch failed")
	// ErrNoData is returned when a successful response carries no result.
	ErrNoData = errors.New("no data in response")
)

// FetchError reports a non-success response after the re-authentication
// retry, or an error envelope in a success response.
type FetchError struct {
	Ticker     string
	Endpoint   string
	StatusCode int
	Message    string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s for %s: status %d: %s", e.Endpoint, e.Ticker, e.StatusCode, e.Message)
}

func (e *FetchError) Unwrap() error { return ErrFetchFailed }

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=yahoo_test -destination=mock_client_test.go -source=client.go HTTPClient,Authenticator
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Authenticator hands out the crumb. *session.Authenticator implements it.
type Authenticator interface {
	Token(ctx context.Context, ticker string) (string, error)
	Invalidate()
}

// Client talks to the Yahoo Finance endpoints.
type Client struct {
	httpClient    HTTPClient
	auth          Authenticator
	query1URL     string
	query2URL     string
	csvURL        string
	userAgent     string
	defaultTicker string
	now           func() time.Time
	log           zerolog.Logger
	metrics       *metrics.Metrics
}

// ClientOption is a configuration option for the Client.
type ClientOption func(*Client)

// WithHTTPClient sets the HTTP client. It should share its cookie jar with
// the one used by the Authenticator.
func WithHTTPClient(httpClient HTTPClient) ClientOption {
	return func(c *Client) { c.httpClient = httpClient }
}

func WithQuery1URL(u string) ClientOption {
	return func(c *Client) { c.query1URL = strings.TrimRight(u, "/") }
}

func WithQuery2URL(u string) ClientOption {
	return func(c *Client) { c.query2URL = strings.TrimRight(u, "/") }
}

func WithCSVURL(u string) ClientOption {
	return func(c *Client) { c.csvURL = u }
}

func WithUserAgent(ua string) ClientOption {
	return func(c *Client) { c.userAgent = ua }
}

// WithDefaultTicker sets the quote page used for crumb acquisition by
// requests that are not about a single ticker.
func WithDefaultTicker(ticker string) ClientOption {
	return func(c *Client) {
		if ticker != "" {
			c.defaultTicker = ticker
		}
	}
}

// WithClock replaces time.Now when computing default chart periods.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) { c.now = now }
}

func WithLogger(l zerolog.Logger) ClientOption {
	return func(c *Client) { c.log = l }
}

func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a Client that obtains crumbs from auth.
func NewClient(auth Authenticator, options ...ClientOption) *Client {
	c := &Client{
		httpClient:    http.DefaultClient,
		auth:          auth,
		query1URL:     DefaultQuery1URL,
		query2URL:     DefaultQuery2URL,
		csvURL:        DefaultCSVURL,
		defaultTicker: DefaultTicker,
		now:           time.Now,
		log:           zerolog.Nop(),
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// call describes one logical request. The crumb is added per attempt.
type call struct {
	endpoint string
	ticker   string
	method   string
	url      string
	query    url.Values
	body     []byte
	// anonymous calls carry no crumb and are never re-authenticated.
	anonymous bool
}

func (c *Client) fetch(ctx context.Context, cl call) ([]byte, error) {
	body, status, err := c.attempt(ctx, cl)
	if err != nil {
		c.metrics.Fetch(cl.endpoint, "error")
		return nil, err
	}

	if !cl.anonymous && credentialRejected(status, body) {
		c.metrics.Reauth(cl.endpoint)
		c.log.Warn().
			Str("endpoint", cl.endpoint).
			Str("ticker", cl.ticker).
			Int("status", status).
			Msg("crumb rejected, re-authenticating")
		c.auth.Invalidate()

		body, status, err = c.attempt(ctx, cl)
		if err != nil {
			c.metrics.Fetch(cl.endpoint, "error")
			return nil, err
		}
		if credentialRejected(status, body) {
			return nil, c.failed(cl, status, body)
		}
	}

	if status < 200 || status >= 300 {
		return nil, c.failed(cl, status, body)
	}
	if msg, ok := envelopeError(body); ok {
		c.metrics.Fetch(cl.endpoint, "failure")
		return nil, &FetchError{Ticker: cl.ticker, Endpoint: cl.endpoint, StatusCode: status, Message: msg}
	}
	c.metrics.Fetch(cl.endpoint, "success")
	return body, nil
}

func (c *Client) failed(cl call, status int, body []byte) error {
	c.metrics.Fetch(cl.endpoint, "failure")
	msg, ok := envelopeError(body)
	if !ok {
		msg = snippet(body)
	}
	err := &FetchError{Ticker: cl.ticker, Endpoint: cl.endpoint, StatusCode: status, Message: msg}
	c.log.Error().Err(err).Msg("fetch failed")
	return err
}

func (c *Client) attempt(ctx context.Context, cl call) ([]byte, int, error) {
	q := url.Values{}
	for k, v := range cl.query {
		q[k] = append([]string(nil), v...)
	}
	if !cl.anonymous {
		token, err := c.auth.Token(ctx, cl.ticker)
		if err != nil {
			return nil, 0, err
		}
		q.Set("crumb", token)
	}

	u := cl.url
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	var reqBody io.Reader = http.NoBody
	if cl.body != nil {
		reqBody = bytes.NewReader(cl.body)
	}
	req, err := http.NewRequestWithContext(ctx, cl.method, u, reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("creating %s request: %w", cl.endpoint, err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if cl.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("performing %s request: %w", cl.endpoint, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return nil, res.StatusCode, fmt.Errorf("reading %s response: %w", cl.endpoint, err)
	}
	return body, res.StatusCode, nil
}

var credentialMarkers = [][]byte{[]byte("invalid crumb"), []byte("invalid cookie")}

// credentialRejected reports whether the provider refused the crumb. On a
// success status only the error envelope is inspected, so payload text that
// happens to mention a crumb is not a rejection.
func credentialRejected(status int, body []byte) bool {
	if status == http.StatusUnauthorized {
		return true
	}
	text := body
	if status >= 200 && status < 300 {
		msg, ok := envelopeError(body)
		if !ok {
			return false
		}
		text = []byte(msg)
	}
	lower := bytes.ToLower(text)
	for _, m := range credentialMarkers {
		if bytes.Contains(lower, m) {
			return true
		}
	}
	return false
}

// envelopeError extracts {"<root>":{"error":{"code":..,"description":..}}}.
func envelopeError(body []byte) (string, bool) {
	if !gjson.ValidBytes(body) {
		return "", false
	}
	e := gjson.GetBytes(body, "*.error")
	if !e.IsObject() {
		return "", false
	}
	code := e.Get("code").String()
	desc := e.Get("description").String()
	switch {
	case code != "" && desc != "":
		return code + ": " + desc, true
	case desc != "":
		return desc, true
	case code != "":
		return code, true
	}
	return "", false
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorMessageBytes {
		s = s[:maxErrorMessageBytes] + "..."
	}
	if s == "" {
		s = "empty response"
	}
	return s
}

func decode(endpoint string, body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", endpoint, err)
	}
	return nil
}
