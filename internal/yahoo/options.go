package yahoo

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OptionChainResponse struct {
	OptionChain struct {
		Result []OptionsResult `json:"result"`
	} `json:"optionChain"`
}

type OptionsResult struct {
	UnderlyingSymbol string            `json:"underlyingSymbol"`
	ExpirationDates  []Int             `json:"expirationDates"`
	Strikes          []decimal.Decimal `json:"strikes"`
	HasMiniOptions   bool              `json:"hasMiniOptions"`
	Quote            OptionQuote       `json:"quote"`
	Options          []OptionChain     `json:"options"`
}

// OptionChain is the calls and puts for one expiration.
type OptionChain struct {
	ExpirationDate Int              `json:"expirationDate"`
	HasMiniOptions bool             `json:"hasMiniOptions"`
	Calls          []OptionContract `json:"calls"`
	Puts           []OptionContract `json:"puts"`
}

type OptionContract struct {
	ContractSymbol    string           `json:"contractSymbol"`
	Strike            decimal.Decimal  `json:"strike"`
	Currency          string           `json:"currency"`
	LastPrice         *decimal.Decimal `json:"lastPrice,omitempty"`
	Change            *decimal.Decimal `json:"change,omitempty"`
	PercentChange     *decimal.Decimal `json:"percentChange,omitempty"`
	Volume            *Int             `json:"volume,omitempty"`
	OpenInterest      *Int             `json:"openInterest,omitempty"`
	Bid               *decimal.Decimal `json:"bid,omitempty"`
	Ask               *decimal.Decimal `json:"ask,omitempty"`
	ContractSize      string           `json:"contractSize"`
	Expiration        Int              `json:"expiration"`
	LastTradeDate     Int              `json:"lastTradeDate"`
	ImpliedVolatility *decimal.Decimal `json:"impliedVolatility,omitempty"`
	InTheMoney        bool             `json:"inTheMoney"`
}

// OptionQuote is the underlying's quote embedded in an options response.
type OptionQuote struct {
	Symbol                     string           `json:"symbol"`
	ShortName                  string           `json:"shortName,omitempty"`
	LongName                   string           `json:"longName,omitempty"`
	QuoteType                  string           `json:"quoteType"`
	Currency                   string           `json:"currency"`
	Exchange                   string           `json:"exchange"`
	MarketState                string           `json:"marketState,omitempty"`
	RegularMarketPrice         *decimal.Decimal `json:"regularMarketPrice,omitempty"`
	RegularMarketChange        *decimal.Decimal `json:"regularMarketChange,omitempty"`
	RegularMarketChangePercent *decimal.Decimal `json:"regularMarketChangePercent,omitempty"`
	RegularMarketDayHigh       *decimal.Decimal `json:"regularMarketDayHigh,omitempty"`
	RegularMarketDayLow        *decimal.Decimal `json:"regularMarketDayLow,omitempty"`
	RegularMarketPreviousClose *decimal.Decimal `json:"regularMarketPreviousClose,omitempty"`
	RegularMarketVolume        *Int             `json:"regularMarketVolume,omitempty"`
	RegularMarketTime          *Int             `json:"regularMarketTime,omitempty"`
	Bid                        *decimal.Decimal `json:"bid,omitempty"`
	Ask                        *decimal.Decimal `json:"ask,omitempty"`
	FiftyTwoWeekLow            *decimal.Decimal `json:"fiftyTwoWeekLow,omitempty"`
	FiftyTwoWeekHigh           *decimal.Decimal `json:"fiftyTwoWeekHigh,omitempty"`
	MarketCap                  *Int             `json:"marketCap,omitempty"`
	ForwardPE                  *decimal.Decimal `json:"forwardPE,omitempty"`
	PriceToBook                *decimal.Decimal `json:"priceToBook,omitempty"`
	PostMarketPrice            *decimal.Decimal `json:"postMarketPrice,omitempty"`
	PostMarketChangePercent    *decimal.Decimal `json:"postMarketChangePercent,omitempty"`
	ExchangeDataDelayedBy      *Int             `json:"exchangeDataDelayedBy,omitempty"`
}

// OptionsChain fetches the option chain for ticker. A nil date selects the
// nearest expiration.
func (c *Client) OptionsChain(ctx context.Context, ticker string, date *time.Time) (*OptionsResult, error) {
	if strings.TrimSpace(ticker) == "" {
		return nil, fmt.Errorf("options: empty ticker")
	}
	query := url.Values{}
	if date != nil {
		query.Set("date", strconv.FormatInt(date.Unix(), 10))
	}
	body, err := c.fetch(ctx, call{
		endpoint: "options",
		ticker:   ticker,
		method:   http.MethodGet,
		url:      c.query1URL + "/v7/finance/options/" + url.PathEscape(ticker),
		query:    query,
	})
	if err != nil {
		return nil, err
	}

	var resp OptionChainResponse
	if err := decode("options", body, &resp); err != nil {
		return nil, err
	}
	if len(resp.OptionChain.Result) == 0 {
		return nil, fmt.Errorf("options for %s: %w", ticker, ErrNoData)
	}
	return &resp.OptionChain.Result[0], nil
}

// ExpirationDates lists the listed expirations for ticker.
func (c *Client) ExpirationDates(ctx context.Context, ticker string) ([]time.Time, error) {
	res, err := c.OptionsChain(ctx, ticker, nil)
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, 0, len(res.ExpirationDates))
	for _, ts := range res.ExpirationDates {
		out = append(out, ts.Time())
	}
	return out, nil
}

// OptionsForExpiration returns the calls and puts expiring at expiration.
func (c *Client) OptionsForExpiration(ctx context.Context, ticker string, expiration time.Time) (*OptionChain, error) {
	res, err := c.OptionsChain(ctx, ticker, &expiration)
	if err != nil {
		return nil, err
	}
	if len(res.Options) == 0 {
		return nil, fmt.Errorf("options for %s expiring %s: %w", ticker, expiration.Format(time.DateOnly), ErrNoData)
	}
	return &res.Options[0], nil
}
