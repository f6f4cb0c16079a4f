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

// DefaultModules are requested when QuoteSummary is called without modules.
var DefaultModules = []string{"price", "summaryDetail", "assetProfile", "financialData"}

// Value is Yahoo's formatted number: {"raw": 1.5, "fmt": "1.50", "longFmt": "1.50"}.
// An empty object decodes to a nil Raw.
type Value struct {
	Raw     *decimal.Decimal `json:"raw,omitempty"`
	Fmt     string           `json:"fmt,omitempty"`
	LongFmt string           `json:"longFmt,omitempty"`
}

// Int is an integer that Yahoo sends either as a JSON number or as a quoted
// string. Empty strings and null leave it untouched.
type Int int64

func (n *Int) UnmarshalJSON(b []byte) error {
	s := string(b)
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unquoted)
	}
	if s == "" || s == "null" {
		return nil
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		*n = Int(v)
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsInteger() {
		return fmt.Errorf("yahoo: %s is not an integer", b)
	}
	*n = Int(d.IntPart())
	return nil
}

// Time reads n as unix seconds.
func (n Int) Time() time.Time { return time.Unix(int64(n), 0).UTC() }

type QuoteSummaryResponse struct {
	QuoteSummary struct {
		Result []QuoteSummaryResult `json:"result"`
	} `json:"quoteSummary"`
}

// QuoteSummaryResult holds one entry per requested module; modules that were
// not requested stay nil.
type QuoteSummaryResult struct {
	AssetProfile         *AssetProfile     `json:"assetProfile,omitempty"`
	SummaryDetail        *SummaryDetail    `json:"summaryDetail,omitempty"`
	Price                *Price            `json:"price,omitempty"`
	FinancialData        *FinancialData    `json:"financialData,omitempty"`
	DefaultKeyStatistics *KeyStatistics    `json:"defaultKeyStatistics,omitempty"`
	CalendarEvents       *CalendarEvents   `json:"calendarEvents,omitempty"`
	Earnings             *Earnings         `json:"earnings,omitempty"`
	IncomeStatement      *StatementHistory `json:"incomeStatementHistory,omitempty"`
	BalanceSheet         *BalanceSheets    `json:"balanceSheetHistory,omitempty"`
	Cashflow             *CashflowHistory  `json:"cashflowStatementHistory,omitempty"`
}

type Price struct {
	MaxAge                     *Int   `json:"maxAge,omitempty"`
	PreMarketPrice             *Value `json:"preMarketPrice,omitempty"`
	PreMarketChange            *Value `json:"preMarketChange,omitempty"`
	PreMarketChangePercent     *Value `json:"preMarketChangePercent,omitempty"`
	PreMarketTime              *Int   `json:"preMarketTime,omitempty"`
	PostMarketPrice            *Value `json:"postMarketPrice,omitempty"`
	PostMarketChange           *Value `json:"postMarketChange,omitempty"`
	PostMarketChangePercent    *Value `json:"postMarketChangePercent,omitempty"`
	PostMarketTime             *Int   `json:"postMarketTime,omitempty"`
	RegularMarketPrice         *Value `json:"regularMarketPrice,omitempty"`
	RegularMarketChange        *Value `json:"regularMarketChange,omitempty"`
	RegularMarketChangePercent *Value `json:"regularMarketChangePercent,omitempty"`
	RegularMarketTime          *Int   `json:"regularMarketTime,omitempty"`
	RegularMarketPreviousClose *Value `json:"regularMarketPreviousClose,omitempty"`
	RegularMarketOpen          *Value `json:"regularMarketOpen,omitempty"`
	RegularMarketDayHigh       *Value `json:"regularMarketDayHigh,omitempty"`
	RegularMarketDayLow        *Value `json:"regularMarketDayLow,omitempty"`
	RegularMarketVolume        *Value `json:"regularMarketVolume,omitempty"`
	AverageDailyVolume10Day    *Value `json:"averageDailyVolume10Day,omitempty"`
	AverageDailyVolume3Month   *Value `json:"averageDailyVolume3Month,omitempty"`
	MarketCap                  *Value `json:"marketCap,omitempty"`
	PriceHint                  *Value `json:"priceHint,omitempty"`
	Exchange                   string `json:"exchange,omitempty"`
	ExchangeName               string `json:"exchangeName,omitempty"`
	ExchangeDataDelayedBy      *Int   `json:"exchangeDataDelayedBy,omitempty"`
	MarketState                string `json:"marketState,omitempty"`
	QuoteType                  string `json:"quoteType,omitempty"`
	Currency                   string `json:"currency,omitempty"`
	CurrencySymbol             string `json:"currencySymbol,omitempty"`
	Symbol                     string `json:"symbol,omitempty"`
	ShortName                  string `json:"shortName,omitempty"`
	LongName                   string `json:"longName,omitempty"`
	QuoteSourceName            string `json:"quoteSourceName,omitempty"`
}

type SummaryDetail struct {
	PreviousClose               *Value `json:"previousClose,omitempty"`
	Open                        *Value `json:"open,omitempty"`
	DayLow                      *Value `json:"dayLow,omitempty"`
	DayHigh                     *Value `json:"dayHigh,omitempty"`
	DividendRate                *Value `json:"dividendRate,omitempty"`
	DividendYield               *Value `json:"dividendYield,omitempty"`
	ExDividendDate              *Value `json:"exDividendDate,omitempty"`
	PayoutRatio                 *Value `json:"payoutRatio,omitempty"`
	FiveYearAvgDividendYield    *Value `json:"fiveYearAvgDividendYield,omitempty"`
	Beta                        *Value `json:"beta,omitempty"`
	TrailingPE                  *Value `json:"trailingPE,omitempty"`
	ForwardPE                   *Value `json:"forwardPE,omitempty"`
	Volume                      *Value `json:"volume,omitempty"`
	AverageVolume               *Value `json:"averageVolume,omitempty"`
	AverageVolume10Days         *Value `json:"averageVolume10days,omitempty"`
	Bid                         *Value `json:"bid,omitempty"`
	Ask                         *Value `json:"ask,omitempty"`
	BidSize                     *Value `json:"bidSize,omitempty"`
	AskSize                     *Value `json:"askSize,omitempty"`
	MarketCap                   *Value `json:"marketCap,omitempty"`
	FiftyTwoWeekLow             *Value `json:"fiftyTwoWeekLow,omitempty"`
	FiftyTwoWeekHigh            *Value `json:"fiftyTwoWeekHigh,omitempty"`
	PriceToSalesTrailing12M     *Value `json:"priceToSalesTrailing12Months,omitempty"`
	FiftyDayAverage             *Value `json:"fiftyDayAverage,omitempty"`
	TwoHundredDayAverage        *Value `json:"twoHundredDayAverage,omitempty"`
	TrailingAnnualDividendRate  *Value `json:"trailingAnnualDividendRate,omitempty"`
	TrailingAnnualDividendYield *Value `json:"trailingAnnualDividendYield,omitempty"`
	Currency                    string `json:"currency,omitempty"`
	Tradeable                   *bool  `json:"tradeable,omitempty"`
}

type AssetProfile struct {
	Address1            string           `json:"address1,omitempty"`
	City                string           `json:"city,omitempty"`
	State               string           `json:"state,omitempty"`
	Zip                 string           `json:"zip,omitempty"`
	Country             string           `json:"country,omitempty"`
	Phone               string           `json:"phone,omitempty"`
	Website             string           `json:"website,omitempty"`
	IRWebsite           string           `json:"irWebsite,omitempty"`
	Industry            string           `json:"industry,omitempty"`
	Sector              string           `json:"sector,omitempty"`
	LongBusinessSummary string           `json:"longBusinessSummary,omitempty"`
	FullTimeEmployees   *Int             `json:"fullTimeEmployees,omitempty"`
	CompanyOfficers     []CompanyOfficer `json:"companyOfficers,omitempty"`
	AuditRisk           *Int             `json:"auditRisk,omitempty"`
	BoardRisk           *Int             `json:"boardRisk,omitempty"`
	CompensationRisk    *Int             `json:"compensationRisk,omitempty"`
	ShareHolderRights   *Int             `json:"shareHolderRightsRisk,omitempty"`
	OverallRisk         *Int             `json:"overallRisk,omitempty"`
}

type CompanyOfficer struct {
	Name             string `json:"name,omitempty"`
	Age              *Int   `json:"age,omitempty"`
	Title            string `json:"title,omitempty"`
	YearBorn         *Int   `json:"yearBorn,omitempty"`
	FiscalYear       *Int   `json:"fiscalYear,omitempty"`
	TotalPay         *Value `json:"totalPay,omitempty"`
	ExercisedValue   *Value `json:"exercisedValue,omitempty"`
	UnexercisedValue *Value `json:"unexercisedValue,omitempty"`
}

type FinancialData struct {
	CurrentPrice            *Value `json:"currentPrice,omitempty"`
	TargetHighPrice         *Value `json:"targetHighPrice,omitempty"`
	TargetLowPrice          *Value `json:"targetLowPrice,omitempty"`
	TargetMeanPrice         *Value `json:"targetMeanPrice,omitempty"`
	TargetMedianPrice       *Value `json:"targetMedianPrice,omitempty"`
	RecommendationMean      *Value `json:"recommendationMean,omitempty"`
	RecommendationKey       string `json:"recommendationKey,omitempty"`
	NumberOfAnalystOpinions *Value `json:"numberOfAnalystOpinions,omitempty"`
	TotalCash               *Value `json:"totalCash,omitempty"`
	TotalCashPerShare       *Value `json:"totalCashPerShare,omitempty"`
	EBITDA                  *Value `json:"ebitda,omitempty"`
	TotalDebt               *Value `json:"totalDebt,omitempty"`
	QuickRatio              *Value `json:"quickRatio,omitempty"`
	CurrentRatio            *Value `json:"currentRatio,omitempty"`
	TotalRevenue            *Value `json:"totalRevenue,omitempty"`
	DebtToEquity            *Value `json:"debtToEquity,omitempty"`
	RevenuePerShare         *Value `json:"revenuePerShare,omitempty"`
	ReturnOnAssets          *Value `json:"returnOnAssets,omitempty"`
	ReturnOnEquity          *Value `json:"returnOnEquity,omitempty"`
	GrossProfits            *Value `json:"grossProfits,omitempty"`
	FreeCashflow            *Value `json:"freeCashflow,omitempty"`
	OperatingCashflow       *Value `json:"operatingCashflow,omitempty"`
	EarningsGrowth          *Value `json:"earningsGrowth,omitempty"`
	RevenueGrowth           *Value `json:"revenueGrowth,omitempty"`
	GrossMargins            *Value `json:"grossMargins,omitempty"`
	EBITDAMargins           *Value `json:"ebitdaMargins,omitempty"`
	OperatingMargins        *Value `json:"operatingMargins,omitempty"`
	ProfitMargins           *Value `json:"profitMargins,omitempty"`
	FinancialCurrency       string `json:"financialCurrency,omitempty"`
}

type KeyStatistics struct {
	EnterpriseToRevenue *Value `json:"enterpriseToRevenue,omitempty"`
	EnterpriseToEBITDA  *Value `json:"enterpriseToEbitda,omitempty"`
	FiftyTwoWeekChange  *Value `json:"52WeekChange,omitempty"`
	SharesOutstanding   *Value `json:"sharesOutstanding,omitempty"`
	BookValue           *Value `json:"bookValue,omitempty"`
	PriceToBook         *Value `json:"priceToBook,omitempty"`
	LastFiscalYearEnd   *Value `json:"lastFiscalYearEnd,omitempty"`
}

type CalendarEvents struct {
	Earnings *struct {
		EarningsDate    []Value `json:"earningsDate,omitempty"`
		EarningsAverage *Value  `json:"earningsAverage,omitempty"`
		EarningsLow     *Value  `json:"earningsLow,omitempty"`
		EarningsHigh    *Value  `json:"earningsHigh,omitempty"`
	} `json:"earnings,omitempty"`
	ExDividendDate *Value `json:"exDividendDate,omitempty"`
	DividendDate   *Value `json:"dividendDate,omitempty"`
}

type Earnings struct {
	EarningsChart struct {
		Quarterly []struct {
			Date     string `json:"date"`
			Actual   *Value `json:"actual,omitempty"`
			Estimate *Value `json:"estimate,omitempty"`
		} `json:"quarterly"`
	} `json:"earningsChart"`
}

type Statement struct {
	EndDate      *Value `json:"endDate,omitempty"`
	TotalRevenue *Value `json:"totalRevenue,omitempty"`
	NetIncome    *Value `json:"netIncome,omitempty"`
	TotalCash    *Value `json:"totalCash,omitempty"`
}

type StatementHistory struct {
	Statements []Statement `json:"incomeStatementHistory"`
}

type BalanceSheets struct {
	Statements []Statement `json:"balanceSheetStatements"`
}

type CashflowHistory struct {
	Statements []Statement `json:"cashflowStatements"`
}

// QuoteSummary fetches the given modules for ticker, defaulting to
// DefaultModules.
func (c *Client) QuoteSummary(ctx context.Context, ticker string, modules ...string) (*QuoteSummaryResult, error) {
	if strings.TrimSpace(ticker) == "" {
		return nil, fmt.Errorf("quoteSummary: empty ticker")
	}
	if len(modules) == 0 {
		modules = DefaultModules
	}
	body, err := c.fetch(ctx, call{
		endpoint: "quoteSummary",
		ticker:   ticker,
		method:   http.MethodGet,
		url:      c.query2URL + "/v10/finance/quoteSummary/" + url.PathEscape(ticker),
		query:    url.Values{"modules": {strings.Join(modules, ",")}},
	})
	if err != nil {
		return nil, err
	}

	var resp QuoteSummaryResponse
	if err := decode("quoteSummary", body, &resp); err != nil {
		return nil, err
	}
	if len(resp.QuoteSummary.Result) == 0 {
		return nil, fmt.Errorf("quoteSummary for %s: %w", ticker, ErrNoData)
	}
	return &resp.QuoteSummary.Result[0], nil
}
