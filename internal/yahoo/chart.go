package yahoo

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Interval is the bar size of a chart request.
type Interval string

const (
	OneMinute      Interval = "1m"
	TwoMinutes     Interval = "2m"
	FiveMinutes    Interval = "5m"
	FifteenMinutes Interval = "15m"
	ThirtyMinutes  Interval = "30m"
	SixtyMinutes   Interval = "60m"
	NinetyMinutes  Interval = "90m"
	OneHour        Interval = "1h"
	OneDay         Interval = "1d"
	FiveDays       Interval = "5d"
	OneWeek        Interval = "1wk"
	OneMonth       Interval = "1mo"
	ThreeMonths    Interval = "3mo"
)

var intervals = map[Interval]struct{}{
	OneMinute: {}, TwoMinutes: {}, FiveMinutes: {}, FifteenMinutes: {}, ThirtyMinutes: {},
	SixtyMinutes: {}, NinetyMinutes: {}, OneHour: {}, OneDay: {}, FiveDays: {},
	OneWeek: {}, OneMonth: {}, ThreeMonths: {},
}

// ParseInterval accepts the wire form, e.g. "1d" or "1wk".
func ParseInterval(s string) (Interval, error) {
	i := Interval(strings.TrimSpace(s))
	if _, ok := intervals[i]; !ok {
		return "", fmt.Errorf("unknown interval %q", s)
	}
	return i, nil
}

// ChartOptions selects the chart window. Zero Start means one year before
// End; zero End means now; empty Interval means OneDay.
type ChartOptions struct {
	Start         time.Time
	End           time.Time
	Interval      Interval
	SkipDividends bool
	SkipSplits    bool
}

type ChartResponse struct {
	Chart struct {
		Result []ChartResult `json:"result"`
	} `json:"chart"`
}

type ChartResult struct {
	Meta       ChartMeta   `json:"meta"`
	Timestamp  []Int       `json:"timestamp"`
	Indicators Indicators  `json:"indicators"`
	Events     ChartEvents `json:"events"`
}

type ChartMeta struct {
	Currency             string           `json:"currency"`
	Symbol               string           `json:"symbol"`
	ExchangeName         string           `json:"exchangeName"`
	FullExchangeName     string           `json:"fullExchangeName,omitempty"`
	InstrumentType       string           `json:"instrumentType"`
	FirstTradeDate       *Int             `json:"firstTradeDate,omitempty"`
	RegularMarketTime    *Int             `json:"regularMarketTime,omitempty"`
	GMTOffset            Int              `json:"gmtoffset"`
	Timezone             string           `json:"timezone"`
	ExchangeTimezoneName string           `json:"exchangeTimezoneName"`
	RegularMarketPrice   *decimal.Decimal `json:"regularMarketPrice,omitempty"`
	ChartPreviousClose   *decimal.Decimal `json:"chartPreviousClose,omitempty"`
	PreviousClose        *decimal.Decimal `json:"previousClose,omitempty"`
	Scale                Int              `json:"scale,omitempty"`
	PriceHint            Int              `json:"priceHint"`
	CurrentTradingPeriod *struct {
		Pre     TradingPeriod `json:"pre"`
		Regular TradingPeriod `json:"regular"`
		Post    TradingPeriod `json:"post"`
	} `json:"currentTradingPeriod,omitempty"`
	DataGranularity string   `json:"dataGranularity"`
	Range           string   `json:"range"`
	ValidRanges     []string `json:"validRanges,omitempty"`
}

type TradingPeriod struct {
	Timezone  string `json:"timezone"`
	Start     Int    `json:"start"`
	End       Int    `json:"end"`
	GMTOffset Int    `json:"gmtoffset"`
}

type Indicators struct {
	Quote []struct {
		Open   []*decimal.Decimal `json:"open"`
		High   []*decimal.Decimal `json:"high"`
		Low    []*decimal.Decimal `json:"low"`
		Close  []*decimal.Decimal `json:"close"`
		Volume []*Int             `json:"volume"`
	} `json:"quote"`
	AdjClose []struct {
		AdjClose []*decimal.Decimal `json:"adjclose"`
	} `json:"adjclose,omitempty"`
}

// ChartEvents are keyed by the event's unix timestamp as a string.
type ChartEvents struct {
	Dividends map[string]DividendEvent `json:"dividends,omitempty"`
	Splits    map[string]SplitEvent    `json:"splits,omitempty"`
}

type DividendEvent struct {
	Amount decimal.Decimal `json:"amount"`
	Date   Int             `json:"date"`
}

type SplitEvent struct {
	Date        Int             `json:"date"`
	Numerator   decimal.Decimal `json:"numerator"`
	Denominator decimal.Decimal `json:"denominator"`
	SplitRatio  string          `json:"splitRatio"`
}

// HistoricalPrice is one chart bar. Any value may be absent; Yahoo emits
// nulls for bars without trades.
type HistoricalPrice struct {
	Date          time.Time        `json:"date"`
	Open          *decimal.Decimal `json:"open,omitempty"`
	High          *decimal.Decimal `json:"high,omitempty"`
	Low           *decimal.Decimal `json:"low,omitempty"`
	Close         *decimal.Decimal `json:"close,omitempty"`
	AdjustedClose *decimal.Decimal `json:"adjustedClose,omitempty"`
	Volume        *Int             `json:"volume,omitempty"`
}

var hundred = decimal.NewFromInt(100)

// Change is Close minus Open.
func (p HistoricalPrice) Change() *decimal.Decimal {
	if p.Open == nil || p.Close == nil {
		return nil
	}
	d := p.Close.Sub(*p.Open)
	return &d
}

// ChangePercent is Change relative to Open, in percent.
func (p HistoricalPrice) ChangePercent() *decimal.Decimal {
	change := p.Change()
	if change == nil || p.Open.IsZero() {
		return nil
	}
	d := change.Div(*p.Open).Mul(hundred)
	return &d
}

type Dividend struct {
	Date   time.Time       `json:"date"`
	Amount decimal.Decimal `json:"amount"`
}

type Split struct {
	Date        time.Time       `json:"date"`
	Numerator   decimal.Decimal `json:"numerator"`
	Denominator decimal.Decimal `json:"denominator"`
	Ratio       string          `json:"ratio"`
}

// Factor is Numerator/Denominator, or 1 when the denominator is zero.
func (s Split) Factor() decimal.Decimal {
	if s.Denominator.IsZero() {
		return decimal.NewFromInt(1)
	}
	return s.Numerator.Div(s.Denominator)
}

// HistoricalPrices flattens the bars, sorted by date. Indicator arrays shorter
// than the timestamp list yield absent values.
func (r *ChartResult) HistoricalPrices() []HistoricalPrice {
	if r == nil || len(r.Timestamp) == 0 || len(r.Indicators.Quote) == 0 {
		return nil
	}
	q := r.Indicators.Quote[0]
	var adj []*decimal.Decimal
	if len(r.Indicators.AdjClose) > 0 {
		adj = r.Indicators.AdjClose[0].AdjClose
	}

	out := make([]HistoricalPrice, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		out = append(out, HistoricalPrice{
			Date:          ts.Time(),
			Open:          at(q.Open, i),
			High:          at(q.High, i),
			Low:           at(q.Low, i),
			Close:         at(q.Close, i),
			AdjustedClose: at(adj, i),
			Volume:        at(q.Volume, i),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func at[T any](s []*T, i int) *T {
	if i < len(s) {
		return s[i]
	}
	return nil
}

// Dividends returns the dividend events sorted by date.
func (r *ChartResult) Dividends() []Dividend {
	if r == nil {
		return nil
	}
	out := make([]Dividend, 0, len(r.Events.Dividends))
	for _, d := range r.Events.Dividends {
		out = append(out, Dividend{Date: d.Date.Time(), Amount: d.Amount})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// Splits returns the split events sorted by date.
func (r *ChartResult) Splits() []Split {
	if r == nil {
		return nil
	}
	out := make([]Split, 0, len(r.Events.Splits))
	for _, s := range r.Events.Splits {
		out = append(out, Split{
			Date:        s.Date.Time(),
			Numerator:   s.Numerator,
			Denominator: s.Denominator,
			Ratio:       s.SplitRatio,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func (r *ChartResult) Metadata() *ChartMeta {
	if r == nil {
		return nil
	}
	return &r.Meta
}

// Chart fetches the raw chart for ticker.
func (c *Client) Chart(ctx context.Context, ticker string, opts ChartOptions) (*ChartResult, error) {
	if strings.TrimSpace(ticker) == "" {
		return nil, fmt.Errorf("chart: empty ticker")
	}
	query, err := c.chartQuery(opts)
	if err != nil {
		return nil, err
	}
	body, err := c.fetch(ctx, call{
		endpoint: "chart",
		ticker:   ticker,
		method:   http.MethodGet,
		url:      c.query2URL + "/v8/finance/chart/" + url.PathEscape(ticker),
		query:    query,
	})
	if err != nil {
		return nil, err
	}

	var resp ChartResponse
	if err := decode("chart", body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Chart.Result) == 0 {
		return nil, fmt.Errorf("chart for %s: %w", ticker, ErrNoData)
	}
	return &resp.Chart.Result[0], nil
}

// HistoricalPrices is Chart followed by ChartResult.HistoricalPrices.
func (c *Client) HistoricalPrices(ctx context.Context, ticker string, opts ChartOptions) ([]HistoricalPrice, error) {
	res, err := c.Chart(ctx, ticker, opts)
	if err != nil {
		return nil, err
	}
	return res.HistoricalPrices(), nil
}

func (c *Client) chartQuery(opts ChartOptions) (url.Values, error) {
	end := opts.End
	if end.IsZero() {
		end = c.now()
	}
	start := opts.Start
	if start.IsZero() {
		start = end.AddDate(-1, 0, 0)
	}
	if start.After(end) {
		return nil, fmt.Errorf("chart: start %s is after end %s", start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	interval := opts.Interval
	if interval == "" {
		interval = OneDay
	}
	if _, ok := intervals[interval]; !ok {
		return nil, fmt.Errorf("chart: unknown interval %q", interval)
	}

	q := url.Values{
		"period1":           {strconv.FormatInt(start.Unix(), 10)},
		"period2":           {strconv.FormatInt(end.Unix(), 10)},
		"interval":          {string(interval)},
		"includePrePost":    {"true"},
		"includeTimestamps": {"true"},
	}
	var events []string
	if !opts.SkipDividends {
		events = append(events, "div")
	}
	if !opts.SkipSplits {
		events = append(events, "split")
	}
	if len(events) > 0 {
		q.Set("events", strings.Join(events, ","))
	}
	return q, nil
}
