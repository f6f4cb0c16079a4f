package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"finfeed/internal/aggregate"
	"finfeed/internal/convert"
	"finfeed/internal/provider"
	"finfeed/internal/session"
	"finfeed/internal/yahoo"
)

const maxSymbols = 1000

// requestTimeout bounds the upstream work of one API request.
var requestTimeout = 15 * time.Second

// marketData is the part of *yahoo.Client the API serves directly.
type marketData interface {
	QuoteSummary(ctx context.Context, ticker string, modules ...string) (*yahoo.QuoteSummaryResult, error)
	HistoricalPrices(ctx context.Context, ticker string, opts yahoo.ChartOptions) ([]yahoo.HistoricalPrice, error)
	OptionsChain(ctx context.Context, ticker string, date *time.Time) (*yahoo.OptionsResult, error)
	Screen(ctx context.Context, req yahoo.ScreenerRequest) (*yahoo.ScreenerResult, error)
	RetrieveStock(ctx context.Context, ticker string) (*yahoo.Stock, error)
}

type sessionState interface {
	State() session.State
}

type api struct {
	providers []provider.Provider
	data      marketData
	session   sessionState
	log       zerolog.Logger
}

type quotesResponse struct {
	Quotes []provider.Quote `json:"quotes"`
}

type latestResponse struct {
	Latest []aggregate.Latest `json:"latest"`
}

func handleGetQuotes(w http.ResponseWriter, r *http.Request, providers []provider.Provider) {
	symbols, ok := symbolsParam(w, r)
	if !ok {
		return
	}
	writeQuotes(w, r.Context(), providers, symbols)
}

type postBody struct {
	Symbols []string `json:"symbols"`
}

func handlePostQuotes(w http.ResponseWriter, r *http.Request, providers []provider.Provider) {
	var b postBody
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&b); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if len(b.Symbols) == 0 {
		http.Error(w, "symbols cannot be empty", http.StatusBadRequest)
		return
	}
	if len(b.Symbols) > maxSymbols {
		http.Error(w, "too many symbols (max 1000)", http.StatusBadRequest)
		return
	}
	writeQuotes(w, r.Context(), providers, b.Symbols)
}

// handleLatest serves the newest quote per symbol, exchange and currency.
// session=all (default) keeps sessions apart; session=any collapses them.
func handleLatest(w http.ResponseWriter, r *http.Request, providers []provider.Provider) {
	symbols, ok := symbolsParam(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	sess := q.Get("session")
	if sess == "" {
		sess = "all"
	}
	writeLatest(w, r.Context(), providers, symbols, sess, q.Get("exchange"))
}

func symbolsParam(w http.ResponseWriter, r *http.Request) ([]string, bool) {
	q := r.URL.Query().Get("symbols")
	if strings.TrimSpace(q) == "" {
		http.Error(w, "missing symbols query param", http.StatusBadRequest)
		return nil, false
	}
	symbols := splitCSV(q)
	if len(symbols) > maxSymbols {
		http.Error(w, "too many symbols (max 1000)", http.StatusBadRequest)
		return nil, false
	}
	return symbols, true
}

func writeQuotes(w http.ResponseWriter, rctx context.Context, providers []provider.Provider, symbols []string) {
	all, err := fetchAll(rctx, providers, symbols)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, quotesResponse{Quotes: all})
}

func writeLatest(w http.ResponseWriter, rctx context.Context, providers []provider.Provider, symbols []string, sess, exchange string) {
	all, err := fetchAll(rctx, providers, symbols)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	sess = strings.ToLower(strings.TrimSpace(sess))
	rows := aggregate.LatestByMarket(all, sess != "any")
	if sess == "any" {
		sess = ""
	}
	writeJSON(w, http.StatusOK, latestResponse{Latest: aggregate.Filter(rows, sess, exchange)})
}

// fetchAll fans out to providers concurrently and collects partial results.
// It fails only when no provider returned anything and at least one errored.
func fetchAll(rctx context.Context, providers []provider.Provider, symbols []string) ([]provider.Quote, error) {
	ctx, cancel := context.WithTimeout(rctx, requestTimeout)
	defer cancel()

	type result struct {
		quotes []provider.Quote
		err    error
	}
	ch := make(chan result, len(providers))
	for _, p := range providers {
		go func() {
			qs, err := p.Fetch(ctx, symbols)
			ch <- result{qs, err}
		}()
	}
	var all []provider.Quote
	var errs []string
	for range providers {
		r := <-ch
		if r.err != nil {
			errs = append(errs, r.err.Error())
			continue
		}
		all = append(all, r.quotes...)
	}
	if len(all) == 0 && len(errs) > 0 {
		return nil, errors.New(strings.Join(errs, "; "))
	}
	return all, nil
}

func (a *api) handleSummary(w http.ResponseWriter, r *http.Request) {
	symbol, ok := symbolParam(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	res, err := a.data.QuoteSummary(ctx, symbol, splitCSV(r.URL.Query().Get("modules"))...)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *api) handleHistory(w http.ResponseWriter, r *http.Request) {
	symbol, ok := symbolParam(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	var opts yahoo.ChartOptions
	var err error
	if opts.Start, err = dateParam(q.Get("start")); err != nil {
		http.Error(w, "invalid start: "+err.Error(), http.StatusBadRequest)
		return
	}
	if opts.End, err = dateParam(q.Get("end")); err != nil {
		http.Error(w, "invalid end: "+err.Error(), http.StatusBadRequest)
		return
	}
	if v := q.Get("interval"); v != "" {
		if opts.Interval, err = yahoo.ParseInterval(v); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	if !opts.Start.IsZero() && !opts.End.IsZero() && opts.Start.After(opts.End) {
		http.Error(w, "start is after end", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	prices, err := a.data.HistoricalPrices(ctx, symbol, opts)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"symbol": symbol, "prices": prices})
}

func (a *api) handleOptions(w http.ResponseWriter, r *http.Request) {
	symbol, ok := symbolParam(w, r)
	if !ok {
		return
	}
	var date *time.Time
	if v := r.URL.Query().Get("expiration"); v != "" {
		d, err := dateParam(v)
		if err != nil {
			http.Error(w, "invalid expiration: "+err.Error(), http.StatusBadRequest)
			return
		}
		date = &d
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	res, err := a.data.OptionsChain(ctx, symbol, date)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *api) handleStock(w http.ResponseWriter, r *http.Request) {
	symbol, ok := symbolParam(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	stock, err := a.data.RetrieveStock(ctx, symbol)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stock)
}

// handleScreener decodes the body over the default request, so a body of
// only {"query":{...}} keeps the default paging and sort.
func (a *api) handleScreener(w http.ResponseWriter, r *http.Request) {
	req := yahoo.NewScreenerRequest()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.Size <= 0 || req.Size > 250 {
		http.Error(w, "size must be between 1 and 250", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	res, err := a.data.Screen(ctx, req)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *api) handleSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"state": a.session.State().String()})
}

// writeError maps upstream failures onto gateway statuses.
func (a *api) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, yahoo.ErrNoData):
		status = http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, yahoo.ErrFetchFailed),
		errors.Is(err, session.ErrAuthenticationFailed),
		errors.Is(err, convert.ErrFormat):
		status = http.StatusBadGateway
	}
	if status >= http.StatusInternalServerError {
		a.log.Error().Err(err).Int("status", status).Msg("upstream request failed")
	}
	http.Error(w, err.Error(), status)
}

func symbolParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	s := strings.TrimSpace(r.URL.Query().Get("symbol"))
	if s == "" {
		http.Error(w, "missing symbol query param", http.StatusBadRequest)
		return "", false
	}
	return s, true
}

// dateParam parses YYYY-MM-DD as UTC midnight; empty yields the zero time.
func dateParam(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.ParseInLocation(time.DateOnly, s, time.UTC)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
