package yahoo

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"finfeed/internal/convert"
)

// Field selectors for the legacy quotes.csv endpoint, one request per category.
const (
	PricingFields   = "abb2b3pokjj5k4j6k5w"
	VolumeFields    = "va5b6k3a2"
	AverageFields   = "ghl1m3m4t8"
	DividendFields  = "ydr1q"
	RatioFields     = "ee7e8e9b4j4p5p6rr2r5r6r7s7"
	stockCategories = 5
)

// Stock is the legacy CSV view of a ticker. Absent values are nil.
type Stock struct {
	Ticker    string    `json:"ticker"`
	Pricing   Pricing   `json:"pricing"`
	Volume    Volume    `json:"volume"`
	Averages  Averages  `json:"averages"`
	Dividends Dividends `json:"dividends"`
	Ratios    Ratios    `json:"ratios"`
}

type Pricing struct {
	Ask                           *decimal.Decimal `json:"ask,omitempty"`
	Bid                           *decimal.Decimal `json:"bid,omitempty"`
	AskRealtime                   *decimal.Decimal `json:"askRealtime,omitempty"`
	BidRealtime                   *decimal.Decimal `json:"bidRealtime,omitempty"`
	PreviousClose                 *decimal.Decimal `json:"previousClose,omitempty"`
	Open                          *decimal.Decimal `json:"open,omitempty"`
	FiftyTwoWeekHigh              *decimal.Decimal `json:"fiftyTwoWeekHigh,omitempty"`
	FiftyTwoWeekLow               *decimal.Decimal `json:"fiftyTwoWeekLow,omitempty"`
	FiftyTwoWeekLowChange         *decimal.Decimal `json:"fiftyTwoWeekLowChange,omitempty"`
	FiftyTwoWeekHighChange        *decimal.Decimal `json:"fiftyTwoWeekHighChange,omitempty"`
	FiftyTwoWeekLowChangePercent  *decimal.Decimal `json:"fiftyTwoWeekLowChangePercent,omitempty"`
	FiftyTwoWeekHighChangePercent *decimal.Decimal `json:"fiftyTwoWeekHighChangePercent,omitempty"`
	FiftyTwoWeekRange             *string          `json:"fiftyTwoWeekRange,omitempty"`
}

type Volume struct {
	CurrentVolume      *decimal.Decimal `json:"currentVolume,omitempty"`
	AskSize            *decimal.Decimal `json:"askSize,omitempty"`
	BidSize            *decimal.Decimal `json:"bidSize,omitempty"`
	LastTradeSize      *decimal.Decimal `json:"lastTradeSize,omitempty"`
	AverageDailyVolume *decimal.Decimal `json:"averageDailyVolume,omitempty"`
}

type Averages struct {
	DayHigh                    *decimal.Decimal `json:"dayHigh,omitempty"`
	DayLow                     *decimal.Decimal `json:"dayLow,omitempty"`
	LastTradePrice             *decimal.Decimal `json:"lastTradePrice,omitempty"`
	FiftyDayMovingAverage      *decimal.Decimal `json:"fiftyDayMovingAverage,omitempty"`
	TwoHundredDayMovingAverage *decimal.Decimal `json:"twoHundredDayMovingAverage,omitempty"`
	OneYearTargetPrice         *decimal.Decimal `json:"oneYearTargetPrice,omitempty"`
}

type Dividends struct {
	DividendYield    *decimal.Decimal `json:"dividendYield,omitempty"`
	DividendPerShare *decimal.Decimal `json:"dividendPerShare,omitempty"`
	DividendPayDate  *time.Time       `json:"dividendPayDate,omitempty"`
	ExDividendDate   *time.Time       `json:"exDividendDate,omitempty"`
}

type Ratios struct {
	EarningsPerShare              *decimal.Decimal `json:"earningsPerShare,omitempty"`
	EPSEstimateCurrentYear        *decimal.Decimal `json:"epsEstimateCurrentYear,omitempty"`
	EPSEstimateNextYear           *decimal.Decimal `json:"epsEstimateNextYear,omitempty"`
	EPSEstimateNextQuarter        *decimal.Decimal `json:"epsEstimateNextQuarter,omitempty"`
	BookValue                     *decimal.Decimal `json:"bookValue,omitempty"`
	EBITDA                        *string          `json:"ebitda,omitempty"`
	PriceToSales                  *decimal.Decimal `json:"priceToSales,omitempty"`
	PriceToBook                   *decimal.Decimal `json:"priceToBook,omitempty"`
	PERatio                       *decimal.Decimal `json:"peRatio,omitempty"`
	PERatioRealtime               *decimal.Decimal `json:"peRatioRealtime,omitempty"`
	PEGRatio                      *decimal.Decimal `json:"pegRatio,omitempty"`
	PriceToEPSEstimateCurrentYear *decimal.Decimal `json:"priceToEpsEstimateCurrentYear,omitempty"`
	PriceToEPSEstimateNextYear    *decimal.Decimal `json:"priceToEpsEstimateNextYear,omitempty"`
	ShortRatio                    *decimal.Decimal `json:"shortRatio,omitempty"`
}

// Raw CSV rows. Columns are positional; csv tags name them for the header
// row synthesized in decodeRow.
type pricingRow struct {
	Ask               string `csv:"ask"`
	Bid               string `csv:"bid"`
	AskRealtime       string `csv:"ask_rt"`
	BidRealtime       string `csv:"bid_rt"`
	PreviousClose     string `csv:"prev_close"`
	Open              string `csv:"open"`
	High52            string `csv:"high_52w"`
	Low52             string `csv:"low_52w"`
	ChangeFromLow52   string `csv:"chg_low_52w"`
	ChangeFromHigh52  string `csv:"chg_high_52w"`
	PercentFromLow52  string `csv:"pct_low_52w"`
	PercentFromHigh52 string `csv:"pct_high_52w"`
	Range52           string `csv:"range_52w"`
}

type volumeRow struct {
	Current   string `csv:"volume"`
	AskSize   string `csv:"ask_size"`
	BidSize   string `csv:"bid_size"`
	LastTrade string `csv:"last_trade_size"`
	AvgDaily  string `csv:"avg_daily_volume"`
}

type averagesRow struct {
	DayHigh   string `csv:"day_high"`
	DayLow    string `csv:"day_low"`
	LastTrade string `csv:"last_trade"`
	MA50      string `csv:"ma_50"`
	MA200     string `csv:"ma_200"`
	Target1Y  string `csv:"target_1y"`
}

type dividendsRow struct {
	Yield    string `csv:"yield"`
	PerShare string `csv:"per_share"`
	PayDate  string `csv:"pay_date"`
	ExDate   string `csv:"ex_date"`
}

type ratiosRow struct {
	EPS            string `csv:"eps"`
	EPSCurYear     string `csv:"eps_cur_year"`
	EPSNextYear    string `csv:"eps_next_year"`
	EPSNextQuarter string `csv:"eps_next_quarter"`
	BookValue      string `csv:"book_value"`
	EBITDA         string `csv:"ebitda"`
	PriceSales     string `csv:"price_sales"`
	PriceBook      string `csv:"price_book"`
	PE             string `csv:"pe"`
	PERealtime     string `csv:"pe_rt"`
	PEG            string `csv:"peg"`
	PriceEPSCur    string `csv:"price_eps_cur"`
	PriceEPSNext   string `csv:"price_eps_next"`
	ShortRatio     string `csv:"short_ratio"`
}

var (
	pricingHeader   = []string{"ask", "bid", "ask_rt", "bid_rt", "prev_close", "open", "high_52w", "low_52w", "chg_low_52w", "chg_high_52w", "pct_low_52w", "pct_high_52w", "range_52w"}
	volumeHeader    = []string{"volume", "ask_size", "bid_size", "last_trade_size", "avg_daily_volume"}
	averagesHeader  = []string{"day_high", "day_low", "last_trade", "ma_50", "ma_200", "target_1y"}
	dividendsHeader = []string{"yield", "per_share", "pay_date", "ex_date"}
	ratiosHeader    = []string{"eps", "eps_cur_year", "eps_next_year", "eps_next_quarter", "book_value", "ebitda", "price_sales", "price_book", "pe", "pe_rt", "peg", "price_eps_cur", "price_eps_next", "short_ratio"}
)

// RetrieveStock fetches the five CSV categories concurrently and converts
// every cell. A cell that is neither a sentinel nor parseable fails the whole
// call with a convert.FormatError.
func (c *Client) RetrieveStock(ctx context.Context, ticker string) (*Stock, error) {
	if strings.TrimSpace(ticker) == "" {
		return nil, fmt.Errorf("stock: empty ticker")
	}
	stock := &Stock{Ticker: ticker}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(stockCategories)
	g.Go(func() error {
		var row pricingRow
		if err := csvRow(ctx, c, ticker, PricingFields, pricingHeader, &row); err != nil {
			return err
		}
		return row.into(&stock.Pricing)
	})
	g.Go(func() error {
		var row volumeRow
		if err := csvRow(ctx, c, ticker, VolumeFields, volumeHeader, &row); err != nil {
			return err
		}
		return row.into(&stock.Volume)
	})
	g.Go(func() error {
		var row averagesRow
		if err := csvRow(ctx, c, ticker, AverageFields, averagesHeader, &row); err != nil {
			return err
		}
		return row.into(&stock.Averages)
	})
	g.Go(func() error {
		var row dividendsRow
		if err := csvRow(ctx, c, ticker, DividendFields, dividendsHeader, &row); err != nil {
			return err
		}
		return row.into(&stock.Dividends)
	})
	g.Go(func() error {
		var row ratiosRow
		if err := csvRow(ctx, c, ticker, RatioFields, ratiosHeader, &row); err != nil {
			return err
		}
		return row.into(&stock.Ratios)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return stock, nil
}

func csvRow[T any](ctx context.Context, c *Client, ticker, fields string, header []string, out *T) error {
	body, err := c.fetch(ctx, call{
		endpoint:  "csv",
		ticker:    ticker,
		method:    http.MethodGet,
		url:       c.csvURL,
		query:     url.Values{"s": {ticker}, "f": {fields}},
		anonymous: true,
	})
	if err != nil {
		return err
	}
	if err := decodeRow(body, header, out); err != nil {
		return fmt.Errorf("csv %s for %s: %w", fields, ticker, err)
	}
	return nil
}

// decodeRow decodes the first CSV record of body into out. Missing trailing columns decode as empty (absent) and surplus
// columns are ignored.
func decodeRow[T any](body []byte, header []string, out *T) error {
	r := csv.NewReader(io.MultiReader(
		strings.NewReader(strings.Join(header, ",")+"\n"),
		bytes.NewReader(body),
	))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	var rows []T
	if err := gocsv.UnmarshalCSV(r, &rows); err != nil {
		return err
	}
	if len(rows) == 0 {
		return ErrNoData
	}
	*out = rows[0]
	return nil
}

// cells converts raw cells, keeping the first error.
type cells struct{ err error }

func (c *cells) dec(name, raw string) *decimal.Decimal {
	if c.err != nil {
		return nil
	}
	d, err := convert.ToDecimal(raw)
	if err != nil {
		c.err = fmt.Errorf("%s: %w", name, err)
	}
	return d
}

func (c *cells) pct(name, raw string) *decimal.Decimal {
	if c.err != nil {
		return nil
	}
	d, err := convert.ToPercentDecimal(raw)
	if err != nil {
		c.err = fmt.Errorf("%s: %w", name, err)
	}
	return d
}

func (c *cells) date(name, raw string) *time.Time {
	if c.err != nil {
		return nil
	}
	t, err := convert.ToDate(raw)
	if err != nil {
		c.err = fmt.Errorf("%s: %w", name, err)
	}
	return t
}

func (r pricingRow) into(p *Pricing) error {
	var c cells
	*p = Pricing{
		Ask:                           c.dec("ask", r.Ask),
		Bid:                           c.dec("bid", r.Bid),
		AskRealtime:                   c.dec("ask_rt", r.AskRealtime),
		BidRealtime:                   c.dec("bid_rt", r.BidRealtime),
		PreviousClose:                 c.dec("prev_close", r.PreviousClose),
		Open:                          c.dec("open", r.Open),
		FiftyTwoWeekHigh:              c.dec("high_52w", r.High52),
		FiftyTwoWeekLow:               c.dec("low_52w", r.Low52),
		FiftyTwoWeekLowChange:         c.dec("chg_low_52w", r.ChangeFromLow52),
		FiftyTwoWeekHighChange:        c.dec("chg_high_52w", r.ChangeFromHigh52),
		FiftyTwoWeekLowChangePercent:  c.pct("pct_low_52w", r.PercentFromLow52),
		FiftyTwoWeekHighChangePercent: c.pct("pct_high_52w", r.PercentFromHigh52),
		FiftyTwoWeekRange:             convert.PassThrough(r.Range52),
	}
	return c.err
}

func (r volumeRow) into(v *Volume) error {
	var c cells
	*v = Volume{
		CurrentVolume:      c.dec("volume", r.Current),
		AskSize:            c.dec("ask_size", r.AskSize),
		BidSize:            c.dec("bid_size", r.BidSize),
		LastTradeSize:      c.dec("last_trade_size", r.LastTrade),
		AverageDailyVolume: c.dec("avg_daily_volume", r.AvgDaily),
	}
	return c.err
}

func (r averagesRow) into(a *Averages) error {
	var c cells
	*a = Averages{
		DayHigh:                    c.dec("day_high", r.DayHigh),
		DayLow:                     c.dec("day_low", r.DayLow),
		LastTradePrice:             c.dec("last_trade", r.LastTrade),
		FiftyDayMovingAverage:      c.dec("ma_50", r.MA50),
		TwoHundredDayMovingAverage: c.dec("ma_200", r.MA200),
		OneYearTargetPrice:         c.dec("target_1y", r.Target1Y),
	}
	return c.err
}

func (r dividendsRow) into(d *Dividends) error {
	var c cells
	*d = Dividends{
		DividendYield:    c.dec("yield", r.Yield),
		DividendPerShare: c.dec("per_share", r.PerShare),
		DividendPayDate:  c.date("pay_date", r.PayDate),
		ExDividendDate:   c.date("ex_date", r.ExDate),
	}
	return c.err
}

func (r ratiosRow) into(x *Ratios) error {
	var c cells
	*x = Ratios{
		EarningsPerShare:              c.dec("eps", r.EPS),
		EPSEstimateCurrentYear:        c.dec("eps_cur_year", r.EPSCurYear),
		EPSEstimateNextYear:           c.dec("eps_next_year", r.EPSNextYear),
		EPSEstimateNextQuarter:        c.dec("eps_next_quarter", r.EPSNextQuarter),
		BookValue:                     c.dec("book_value", r.BookValue),
		EBITDA:                        convert.PassThrough(r.EBITDA),
		PriceToSales:                  c.dec("price_sales", r.PriceSales),
		PriceToBook:                   c.dec("price_book", r.PriceBook),
		PERatio:                       c.dec("pe", r.PE),
		PERatioRealtime:               c.dec("pe_rt", r.PERealtime),
		PEGRatio:                      c.dec("peg", r.PEG),
		PriceToEPSEstimateCurrentYear: c.dec("price_eps_cur", r.PriceEPSCur),
		PriceToEPSEstimateNextYear:    c.dec("price_eps_next", r.PriceEPSNext),
		ShortRatio:                    c.dec("short_ratio", r.ShortRatio),
	}
	return c.err
}
