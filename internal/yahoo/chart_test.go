package yahoo_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"finfeed/internal/yahoo"
)

const chartBody = `{"chart":{"result":[{
	"meta":{"currency":"USD","symbol":"AAPL","exchangeName":"NMS","instrumentType":"EQUITY",
		"firstTradeDate":345479400,"regularMarketTime":1717185600,"gmtoffset":-14400,
		"timezone":"EDT","exchangeTimezoneName":"America/New_York","regularMarketPrice":192.25,
		"chartPreviousClose":191.29,"priceHint":2,"dataGranularity":"1d","range":""},
	"timestamp":[1717171200,1716998400,1717084800],
	"indicators":{
		"quote":[{"open":[105,100,null],"high":[106,101.5,103],"low":[104,99,101],"close":[103,105,102],"volume":[1000,2000]}],
		"adjclose":[{"adjclose":[102.9,104.9,101.9]}]},
	"events":{
		"dividends":{"1717084800":{"amount":0.25,"date":1717084800},"1709251200":{"amount":0.24,"date":1709251200}},
		"splits":{"1598832000":{"date":1598832000,"numerator":4,"denominator":1,"splitRatio":"4:1"}}}
}],"error":null}}`

func TestChart_Query(t *testing.T) {
	t.Parallel()

	// Arrange
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	auth := NewMockAuthenticator(ctrl)
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	auth.EXPECT().Token(gomock.Any(), "AAPL").Return("crumb", nil)
	httpClient.EXPECT().
		Do(pathIs("/v8/finance/chart/AAPL")).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			q := req.URL.Query()
			require.Equal(t, "q2.test", req.URL.Host)
			require.Equal(t, "1685577600", q.Get("period1"))
			require.Equal(t, "1717200000", q.Get("period2"))
			require.Equal(t, "1d", q.Get("interval"))
			require.Equal(t, "div,split", q.Get("events"))
			require.Equal(t, "true", q.Get("includePrePost"))
			require.Equal(t, "true", q.Get("includeTimestamps"))
			require.Equal(t, "crumb", q.Get("crumb"))
			return respond(http.StatusOK, chartBody)(req)
		})

	client := newClient(httpClient, auth, yahoo.WithClock(func() time.Time { return now }))

	// Act
	res, err := client.Chart(t.Context(), "AAPL", yahoo.ChartOptions{})

	// Assert
	require.NoError(t, err)
	meta := res.Metadata()
	require.Equal(t, "AAPL", meta.Symbol)
	require.Equal(t, "America/New_York", meta.ExchangeTimezoneName)
	require.Equal(t, yahoo.Int(-14400), meta.GMTOffset)
	requireDecimal(t, "192.25", meta.RegularMarketPrice)
}

func TestChart_QueryOptions(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	auth := NewMockAuthenticator(ctrl)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	auth.EXPECT().Token(gomock.Any(), "MSFT").Return("crumb", nil)
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			q := req.URL.Query()
			require.Equal(t, "1704067200", q.Get("period1"))
			require.Equal(t, "1706745600", q.Get("period2"))
			require.Equal(t, "1wk", q.Get("interval"))
			require.Equal(t, "split", q.Get("events"))
			return respond(http.StatusOK, chartBody)(req)
		})

	_, err := newClient(httpClient, auth).Chart(t.Context(), "MSFT", yahoo.ChartOptions{
		Start:         start,
		End:           end,
		Interval:      yahoo.OneWeek,
		SkipDividends: true,
	})

	require.NoError(t, err)
}

func TestChart_InvalidOptions(t *testing.T) {
	t.Parallel()

	// Arrange: no expectations; invalid options never reach the network.
	ctrl := gomock.NewController(t)
	client := newClient(NewMockHTTPClient(ctrl), NewMockAuthenticator(ctrl))
	now := time.Now()

	_, err := client.Chart(t.Context(), "AAPL", yahoo.ChartOptions{Interval: "2h"})
	require.ErrorContains(t, err, "unknown interval")

	_, err = client.Chart(t.Context(), "AAPL", yahoo.ChartOptions{Start: now, End: now.Add(-time.Hour)})
	require.ErrorContains(t, err, "is after end")

	_, err = client.Chart(t.Context(), " ", yahoo.ChartOptions{})
	require.ErrorContains(t, err, "empty ticker")
}

func TestParseInterval(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"1m", "2m", "5m", "15m", "30m", "60m", "90m", "1h", "1d", "5d", "1wk", "1mo", "3mo"} {
		got, err := yahoo.ParseInterval(s)
		require.NoError(t, err)
		require.Equal(t, yahoo.Interval(s), got)
	}
	_, err := yahoo.ParseInterval("1y")
	require.Error(t, err)
}

func TestHistoricalPrices(t *testing.T) {
	t.Parallel()

	// Arrange
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	auth := NewMockAuthenticator(ctrl)
	auth.EXPECT().Token(gomock.Any(), "AAPL").Return("crumb", nil)
	httpClient.EXPECT().Do(gomock.Any()).DoAndReturn(respond(http.StatusOK, chartBody))

	// Act
	prices, err := newClient(httpClient, auth).HistoricalPrices(t.Context(), "AAPL", yahoo.ChartOptions{})

	// Assert: sorted by date, absent values stay nil.
	require.NoError(t, err)
	require.Len(t, prices, 3)
	require.Equal(t, time.Date(2024, 5, 29, 16, 0, 0, 0, time.UTC), prices[0].Date)
	require.True(t, prices[0].Date.Before(prices[1].Date))
	require.True(t, prices[1].Date.Before(prices[2].Date))

	first := prices[0]
	requireDecimal(t, "100", first.Open)
	requireDecimal(t, "105", first.Close)
	requireDecimal(t, "104.9", first.AdjustedClose)
	require.Equal(t, yahoo.Int(2000), *first.Volume)
	requireDecimal(t, "5", first.Change())
	requireDecimal(t, "5", first.ChangePercent())

	second := prices[1]
	require.Nil(t, second.Open)
	require.Nil(t, second.Volume)
	require.Nil(t, second.Change())
	require.Nil(t, second.ChangePercent())

	third := prices[2]
	requireDecimal(t, "-2", third.Change())
	require.Equal(t, yahoo.Int(1000), *third.Volume)
}

func TestChartResult_Events(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	auth := NewMockAuthenticator(ctrl)
	auth.EXPECT().Token(gomock.Any(), "AAPL").Return("crumb", nil)
	httpClient.EXPECT().Do(gomock.Any()).DoAndReturn(respond(http.StatusOK, chartBody))

	res, err := newClient(httpClient, auth).Chart(t.Context(), "AAPL", yahoo.ChartOptions{})
	require.NoError(t, err)

	dividends := res.Dividends()
	require.Len(t, dividends, 2)
	require.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), dividends[0].Date)
	require.True(t, decimal.RequireFromString("0.24").Equal(dividends[0].Amount))
	require.True(t, decimal.RequireFromString("0.25").Equal(dividends[1].Amount))

	splits := res.Splits()
	require.Len(t, splits, 1)
	require.Equal(t, "4:1", splits[0].Ratio)
	require.True(t, decimal.NewFromInt(4).Equal(splits[0].Factor()))
}

func TestChartResult_NilSafe(t *testing.T) {
	t.Parallel()

	var res *yahoo.ChartResult
	require.Nil(t, res.HistoricalPrices())
	require.Nil(t, res.Dividends())
	require.Nil(t, res.Splits())
	require.Nil(t, res.Metadata())

	require.True(t, decimal.NewFromInt(1).Equal(yahoo.Split{Numerator: decimal.NewFromInt(2)}.Factor()))
}
