package yahoo_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"finfeed/internal/convert"
	"finfeed/internal/yahoo"
)

// fieldsIs matches legacy CSV requests by their field selector.
type fieldsIs string

func (f fieldsIs) Matches(x any) bool {
	req, ok := x.(*http.Request)
	return ok && req.URL.Query().Get("f") == string(f)
}

func (f fieldsIs) String() string { return "csv request for fields " + string(f) }

func expectCSV(httpClient *MockHTTPClient, fields, row string) {
	httpClient.EXPECT().Do(fieldsIs(fields)).DoAndReturn(respond(http.StatusOK, row))
}

func TestRetrieveStock(t *testing.T) {
	t.Parallel()

	// Arrange: the authenticator is never consulted for CSV requests.
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	auth := NewMockAuthenticator(ctrl)

	expectCSV(httpClient, yahoo.PricingFields, "136.66,136.61,130.0,132.0,136.53,135.91,145.91,138.91,131.91,115.91,-66.7%,+45.5%,115.91-130.01\n")
	expectCSV(httpClient, yahoo.VolumeFields, "100000,120,130,130000,145000\n")
	expectCSV(httpClient, yahoo.AverageFields, "136.8,122.2,141.4,136.6,178.8,133.3\n")
	expectCSV(httpClient, yahoo.DividendFields, `12.1,10.4,"2/7/2017","2/16/2017"`+"\n")
	expectCSV(httpClient, yahoo.RatioFields, "8.33,8.94,10.15,1.62,25.19,69.75B,3.36,5.55,16.68,11.11,1.69,15.54,13.69,1.67\n")

	// Act
	stock, err := newClient(httpClient, auth).RetrieveStock(t.Context(), "AAPL")

	// Assert
	require.NoError(t, err)
	require.Equal(t, "AAPL", stock.Ticker)

	p := stock.Pricing
	requireDecimal(t, "136.66", p.Ask)
	requireDecimal(t, "136.61", p.Bid)
	requireDecimal(t, "136.53", p.PreviousClose)
	requireDecimal(t, "135.91", p.Open)
	requireDecimal(t, "145.91", p.FiftyTwoWeekHigh)
	requireDecimal(t, "138.91", p.FiftyTwoWeekLow)
	requireDecimal(t, "-66.7", p.FiftyTwoWeekLowChangePercent)
	requireDecimal(t, "45.5", p.FiftyTwoWeekHighChangePercent)
	require.Equal(t, "115.91-130.01", *p.FiftyTwoWeekRange)

	requireDecimal(t, "100000", stock.Volume.CurrentVolume)
	requireDecimal(t, "145000", stock.Volume.AverageDailyVolume)

	a := stock.Averages
	requireDecimal(t, "136.8", a.DayHigh)
	requireDecimal(t, "122.2", a.DayLow)
	requireDecimal(t, "136.6", a.FiftyDayMovingAverage)
	requireDecimal(t, "178.8", a.TwoHundredDayMovingAverage)

	d := stock.Dividends
	requireDecimal(t, "12.1", d.DividendYield)
	requireDecimal(t, "10.4", d.DividendPerShare)
	require.Equal(t, time.Date(2017, 2, 7, 0, 0, 0, 0, time.UTC), *d.DividendPayDate)
	require.Equal(t, time.Date(2017, 2, 16, 0, 0, 0, 0, time.UTC), *d.ExDividendDate)

	r := stock.Ratios
	requireDecimal(t, "8.33", r.EarningsPerShare)
	requireDecimal(t, "25.19", r.BookValue)
	require.Equal(t, "69.75B", *r.EBITDA)
	requireDecimal(t, "16.68", r.PERatio)
	requireDecimal(t, "1.69", r.PEGRatio)
	requireDecimal(t, "1.67", r.ShortRatio)
}

func TestRetrieveStock_NotAvailable(t *testing.T) {
	t.Parallel()

	// Arrange: every category answers with the same over-long N/A row.
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	auth := NewMockAuthenticator(ctrl)

	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "csv.test", req.URL.Host)
			require.Equal(t, "AAPL", req.URL.Query().Get("s"))
			require.False(t, req.URL.Query().Has("crumb"))
			return respond(http.StatusOK, "N/A,N/A,N/A,N/A,N/A,N/A,N/A,N/A,N/A,N/A,N/A,N/A,N/A,N/A\n")(req)
		}).
		Times(5)

	// Act
	stock, err := newClient(httpClient, auth).RetrieveStock(t.Context(), "AAPL")

	// Assert
	require.NoError(t, err)
	require.Equal(t, yahoo.Pricing{}, stock.Pricing)
	require.Equal(t, yahoo.Volume{}, stock.Volume)
	require.Equal(t, yahoo.Averages{}, stock.Averages)
	require.Equal(t, yahoo.Dividends{}, stock.Dividends)
	require.Equal(t, yahoo.Ratios{}, stock.Ratios)
}

func TestRetrieveStock_ShortRowIsAbsent(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	auth := NewMockAuthenticator(ctrl)

	httpClient.EXPECT().Do(gomock.Any()).DoAndReturn(respond(http.StatusOK, "1.5\n")).Times(5)

	stock, err := newClient(httpClient, auth).RetrieveStock(t.Context(), "AAPL")

	require.NoError(t, err)
	requireDecimal(t, "1.5", stock.Pricing.Ask)
	require.Nil(t, stock.Pricing.Bid)
	require.Nil(t, stock.Pricing.FiftyTwoWeekRange)
	requireDecimal(t, "1.5", stock.Ratios.EarningsPerShare)
	require.Nil(t, stock.Ratios.EBITDA)
}

func TestRetrieveStock_MalformedCell(t *testing.T) {
	t.Parallel()

	// Arrange
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	auth := NewMockAuthenticator(ctrl)

	expectCSV(httpClient, yahoo.PricingFields, "N/A\n")
	expectCSV(httpClient, yahoo.VolumeFields, "N/A\n")
	expectCSV(httpClient, yahoo.AverageFields, "N/A\n")
	expectCSV(httpClient, yahoo.DividendFields, "N/A\n")
	expectCSV(httpClient, yahoo.RatioFields, "8.33,8.94,10.15,1.62,25.19x\n")

	// Act
	stock, err := newClient(httpClient, auth).RetrieveStock(t.Context(), "AAPL")

	// Assert
	require.Nil(t, stock)
	require.ErrorIs(t, err, convert.ErrFormat)
	require.ErrorContains(t, err, "book_value")
}

func TestRetrieveStock_HTTPFailure(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	auth := NewMockAuthenticator(ctrl)

	// A 401 from the CSV endpoint is not a crumb rejection; no retry happens.
	httpClient.EXPECT().Do(gomock.Any()).DoAndReturn(respond(http.StatusUnauthorized, "denied")).MinTimes(1).MaxTimes(5)

	_, err := newClient(httpClient, auth).RetrieveStock(t.Context(), "AAPL")

	require.ErrorIs(t, err, yahoo.ErrFetchFailed)
}
