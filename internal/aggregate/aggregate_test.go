package aggregate_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"finfeed/internal/aggregate"
	"finfeed/internal/provider"
)

var t1 = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

func TestLatestByMarket_NewestWinsAcrossAliases(t *testing.T) {
	t.Parallel()

	// Arrange
	t2 := t1.Add(time.Hour)
	in := []provider.Quote{
		{Symbol: "AAPL", Price: "189.84", Currency: "USD", Source: "yahoo:NMS:regular", ReceivedAt: t1},
		{Symbol: "AAPL", Price: "190.10", Currency: "USD", Source: "yahoo:nasdaq:post", ReceivedAt: t2},
	}

	// Act
	out := aggregate.LatestByMarket(in, false)

	// Assert
	require.Len(t, out, 1)
	require.Equal(t, aggregate.Latest{
		Symbol:     "AAPL",
		Exchange:   "NASDAQ",
		Currency:   "USD",
		Price:      "190.10",
		Provider:   "yahoo",
		ReceivedAt: t2,
	}, out[0])
}

func TestLatestByMarket_SessionSeparation(t *testing.T) {
	t.Parallel()

	t2 := t1.Add(time.Minute)
	in := []provider.Quote{
		{Symbol: "MSFT", Price: "410", Currency: "USD", Source: "yahoo:NMS:regular", ReceivedAt: t1},
		{Symbol: "MSFT", Price: "411", Currency: "USD", Source: "yahoo:NMS:pre", ReceivedAt: t2},
	}

	withSessions := aggregate.LatestByMarket(in, true)
	require.Len(t, withSessions, 2)
	require.Equal(t, "pre", withSessions[0].Session)
	require.Equal(t, "411", withSessions[0].Price)
	require.Equal(t, "regular", withSessions[1].Session)
	require.Equal(t, "410", withSessions[1].Price)

	collapsed := aggregate.LatestByMarket(in, false)
	require.Len(t, collapsed, 1)
	require.Empty(t, collapsed[0].Session)
	require.Equal(t, "411", collapsed[0].Price)
}

func TestLatestByMarket_EqualTimestampsLaterInputWins(t *testing.T) {
	t.Parallel()

	in := []provider.Quote{
		{Symbol: "IBM", Price: "1", Currency: "USD", Source: "yahoo:NYQ:regular", ReceivedAt: t1},
		{Symbol: "IBM", Price: "2", Currency: "USD", Source: "yahoo:NYSE:regular", ReceivedAt: t1},
		{Symbol: "IBM", Price: "0", Currency: "USD", Source: "yahoo:NYSE:regular", ReceivedAt: t1.Add(-time.Second)},
	}

	out := aggregate.LatestByMarket(in, true)

	require.Len(t, out, 1)
	require.Equal(t, "2", out[0].Price)
	require.Equal(t, "NYSE", out[0].Exchange)
}

func TestLatestByMarket_MixedCurrenciesDoNotCollapse(t *testing.T) {
	t.Parallel()

	in := []provider.Quote{
		{Symbol: "SHEL", Price: "70", Currency: "USD", Source: "yahoo:NYQ:regular", ReceivedAt: t1},
		{Symbol: "SHEL", Price: "2700", Currency: "GBp", Source: "yahoo:NYQ:regular", ReceivedAt: t1.Add(time.Minute)},
	}

	out := aggregate.LatestByMarket(in, false)

	require.Len(t, out, 2)
	require.ElementsMatch(t, []string{"USD", "GBp"}, []string{out[0].Currency, out[1].Currency})
}

func TestLatestByMarket_ZeroTimestampIsNow(t *testing.T) {
	t.Parallel()

	before := time.Now().UTC()
	out := aggregate.LatestByMarket([]provider.Quote{{Symbol: "X", Price: "1", Currency: "USD", Source: "yahoo"}}, true)

	require.Len(t, out, 1)
	require.Empty(t, out[0].Exchange)
	require.Equal(t, "yahoo", out[0].Provider)
	require.False(t, out[0].ReceivedAt.Before(before))
}

func TestNormalizeSource(t *testing.T) {
	t.Parallel()

	tests := []struct {
		src      string
		exchange string
		session  string
	}{
		{"yahoo:NMS:regular", "NASDAQ", "regular"},
		{"yahoo:ngm:PRE", "NASDAQ", "pre"},
		{"yahoo:NYQ:postmarket", "NYSE", "post"},
		{"yahoo:pcx:regular", "NYSEArca", "regular"},
		{"yahoo:ase", "NYSEAmerican", ""},
		{" yahoo : lse : regular ", "LSE", "regular"},
		{"yahoo:CCC:overnight", "CCC", "overnight"},
		{"yahoo", "", ""},
		{"", "", ""},
	}
	for _, tt := range tests {
		exchange, session := aggregate.NormalizeSource(tt.src)
		require.Equalf(t, tt.exchange, exchange, "exchange of %q", tt.src)
		require.Equalf(t, tt.session, session, "session of %q", tt.src)
	}
}

func TestFilter(t *testing.T) {
	t.Parallel()

	rows := []aggregate.Latest{
		{Symbol: "AAPL", Exchange: "NASDAQ", Session: "post", Price: "190.1"},
		{Symbol: "AAPL", Exchange: "NASDAQ", Session: "regular", Price: "189.84"},
		{Symbol: "IBM", Exchange: "NYSE", Session: "regular", Price: "170"},
	}

	require.Equal(t, rows, aggregate.Filter(rows, "all", ""))
	require.Equal(t, rows, aggregate.Filter(rows, "", ""))

	regular := aggregate.Filter(rows, "Regular", "")
	require.Len(t, regular, 2)

	nasdaqRegular := aggregate.Filter(rows, "regular", "nms")
	require.Len(t, nasdaqRegular, 1)
	require.Equal(t, "189.84", nasdaqRegular[0].Price)

	require.Empty(t, aggregate.Filter(rows, "pre", ""))
	require.Len(t, aggregate.Filter(rows, "postmarket", "NASDAQ"), 1)
}
