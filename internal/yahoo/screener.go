package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
)

type ScreenerRequest struct {
	Size      int           `json:"size"`
	Offset    int           `json:"offset"`
	SortField string        `json:"sortField"`
	SortType  string        `json:"sortType"`
	QuoteType string        `json:"quoteType"`
	Query     ScreenerQuery `json:"query"`
}

type ScreenerQuery struct {
	Operator string            `json:"operator"`
	Operands []ScreenerOperand `json:"operands"`
}

// ScreenerOperand is one filter, e.g. {"operator":"GT","operands":["intradaymarketcap",2000000000]}.
type ScreenerOperand struct {
	Operator string `json:"operator"`
	Operands []any  `json:"operands"`
}

func NewScreenerOperand(field, operator string, value any) ScreenerOperand {
	return ScreenerOperand{Operator: operator, Operands: []any{field, value}}
}

// NewScreenerRequest returns the first 25 equities by market cap, descending,
// matching all operands.
func NewScreenerRequest(operands ...ScreenerOperand) ScreenerRequest {
	if operands == nil {
		operands = []ScreenerOperand{}
	}
	return ScreenerRequest{
		Size:      25,
		Offset:    0,
		SortField: "marketcap",
		SortType:  "DESC",
		QuoteType: "EQUITY",
		Query:     ScreenerQuery{Operator: "AND", Operands: operands},
	}
}

type ScreenerResponse struct {
	Finance struct {
		Result []ScreenerResult `json:"result"`
	} `json:"finance"`
}

type ScreenerResult struct {
	ID     string          `json:"id"`
	Title  string          `json:"title,omitempty"`
	Total  int             `json:"total"`
	Quotes []ScreenerQuote `json:"quotes"`
}

type ScreenerQuote struct {
	Symbol                     string           `json:"symbol"`
	LongName                   string           `json:"longName,omitempty"`
	ShortName                  string           `json:"shortName,omitempty"`
	QuoteType                  string           `json:"quoteType"`
	Exchange                   string           `json:"exchange"`
	Currency                   string           `json:"currency,omitempty"`
	MarketCap                  *Int             `json:"marketCap,omitempty"`
	RegularMarketPrice         *decimal.Decimal `json:"regularMarketPrice,omitempty"`
	RegularMarketChange        *decimal.Decimal `json:"regularMarketChange,omitempty"`
	RegularMarketChangePercent *decimal.Decimal `json:"regularMarketChangePercent,omitempty"`
	RegularMarketVolume        *Int             `json:"regularMarketVolume,omitempty"`
	TrailingPE                 *decimal.Decimal `json:"trailingPE,omitempty"`
}

// Screen runs a screener query. The crumb is acquired through the client's
// default ticker since the request is not about a single symbol.
func (c *Client) Screen(ctx context.Context, req ScreenerRequest) (*ScreenerResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding screener request: %w", err)
	}
	body, err := c.fetch(ctx, call{
		endpoint: "screener",
		ticker:   c.defaultTicker,
		method:   http.MethodPost,
		url:      c.query2URL + "/v1/finance/screener",
		body:     payload,
	})
	if err != nil {
		return nil, err
	}

	var resp ScreenerResponse
	if err := decode("screener", body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Finance.Result) == 0 {
		return nil, fmt.Errorf("screener: %w", ErrNoData)
	}
	return &resp.Finance.Result[0], nil
}
