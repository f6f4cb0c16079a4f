package yahoo_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"finfeed/internal/yahoo"
)

func TestInt_AcceptsNumbersAndStrings(t *testing.T) {
	t.Parallel()

	// Arrange
	body := `{"contractSymbol":"AAPL240621C00190000","strike":"190","volume":"100",
		"openInterest":4500,"expiration":"1718928000","lastTradeDate":1.7189e9}`

	// Act
	var c yahoo.OptionContract
	err := json.Unmarshal([]byte(body), &c)

	// Assert
	require.NoError(t, err)
	require.NotNil(t, c.Volume)
	require.Equal(t, yahoo.Int(100), *c.Volume)
	require.Equal(t, yahoo.Int(4500), *c.OpenInterest)
	require.Equal(t, yahoo.Int(1718928000), c.Expiration)
	require.Equal(t, yahoo.Int(1718900000), c.LastTradeDate)
	requireDecimal(t, "190", &c.Strike)
}

func TestInt_PriceTimesAsStrings(t *testing.T) {
	t.Parallel()

	body := `{"regularMarketPrice":{"raw":"189.84","fmt":"189.84"},"regularMarketTime":"1700000000",
		"maxAge":"1","exchangeDataDelayedBy":0}`

	var p yahoo.Price
	require.NoError(t, json.Unmarshal([]byte(body), &p))

	require.NotNil(t, p.RegularMarketTime)
	require.Equal(t, time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC), p.RegularMarketTime.Time())
	require.Equal(t, yahoo.Int(1), *p.MaxAge)
	requireDecimal(t, "189.84", p.RegularMarketPrice.Raw)
}

func TestInt_NullStaysAbsent(t *testing.T) {
	t.Parallel()

	var c yahoo.OptionContract
	require.NoError(t, json.Unmarshal([]byte(`{"volume":null,"openInterest":" 7 "}`), &c))

	require.Nil(t, c.Volume)
	require.Equal(t, yahoo.Int(7), *c.OpenInterest)
}

func TestInt_RejectsNonIntegers(t *testing.T) {
	t.Parallel()

	for _, body := range []string{`{"volume":"abc"}`, `{"volume":"1.5"}`, `{"volume":2.25}`, `{"volume":true}`} {
		var c yahoo.OptionContract
		require.Errorf(t, json.Unmarshal([]byte(body), &c), "decoding %s", body)
	}
}
