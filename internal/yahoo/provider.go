package yahoo

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"finfeed/internal/provider"
)

const (
	ProviderName = "yahoo"

	SessionRegular = "regular"
	SessionPre     = "pre"
	SessionPost    = "post"

	defaultFetchConcurrency = 4
)

// Provider serves normalized quotes from the price module of QuoteSummary.
// Each symbol yields one quote per trading session that has a price.
type Provider struct {
	client      *Client
	concurrency int
	now         func() time.Time
}

type ProviderOption func(*Provider)

// WithConcurrency bounds the number of symbols fetched at once.
func WithConcurrency(n int) ProviderOption {
	return func(p *Provider) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

func NewProvider(client *Client, opts ...ProviderOption) *Provider {
	p := &Provider{client: client, concurrency: defaultFetchConcurrency, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string { return ProviderName }

// Fetch returns quotes for the symbols it could resolve. It fails only when
// every symbol failed.
func (p *Provider) Fetch(ctx context.Context, symbols []string) ([]provider.Quote, error) {
	var (
		mu   sync.Mutex
		out  []provider.Quote
		errs []error
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for _, sym := range symbols {
		sym = strings.TrimSpace(sym)
		if sym == "" {
			continue
		}
		g.Go(func() error {
			res, err := p.client.QuoteSummary(ctx, sym, "price")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				p.client.log.Warn().Err(err).Str("symbol", sym).Msg("quote fetch failed")
				errs = append(errs, err)
				return nil
			}
			out = append(out, p.quotes(sym, res.Price)...)
			return nil
		})
	}
	_ = g.Wait()

	if len(out) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

func (p *Provider) quotes(symbol string, price *Price) []provider.Quote {
	if price == nil {
		return nil
	}
	if price.Symbol != "" {
		symbol = price.Symbol
	}
	exchange := price.Exchange
	if exchange == "" {
		exchange = "UNKNOWN"
	}

	sessions := []struct {
		name  string
		value *Value
		ts    *Int
	}{
		{SessionRegular, price.RegularMarketPrice, price.RegularMarketTime},
		{SessionPre, price.PreMarketPrice, price.PreMarketTime},
		{SessionPost, price.PostMarketPrice, price.PostMarketTime},
	}
	var out []provider.Quote
	for _, s := range sessions {
		if s.value == nil || s.value.Raw == nil {
			continue
		}
		received := p.now().UTC()
		if s.ts != nil && *s.ts > 0 {
			received = s.ts.Time()
		}
		out = append(out, provider.Quote{
			Symbol:     symbol,
			Price:      s.value.Raw.String(),
			Currency:   price.Currency,
			Source:     ProviderName + ":" + exchange + ":" + s.name,
			ReceivedAt: received,
		})
	}
	return out
}
