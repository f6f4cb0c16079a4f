package aggregate

import (
	"sort"
	"strings"
	"time"

	"finfeed/internal/provider"
)

// MarketKey identifies a normalized quote bucket.
type MarketKey struct {
	Symbol   string
	Exchange string
	Session  string
	Currency string
}

// Latest is the latest quote per MarketKey.
type Latest struct {
	Symbol     string    `json:"symbol"`
	Exchange   string    `json:"exchange"`
	Session    string    `json:"session,omitempty"`
	Currency   string    `json:"currency"`
	Price      string    `json:"price"`
	Provider   string    `json:"provider"`
	ReceivedAt time.Time `json:"received_at"`
}

// exchangeAliases maps Yahoo exchange codes and common spellings to one name.
var exchangeAliases = map[string]string{
	"nms":          "NASDAQ",
	"ngm":          "NASDAQ",
	"ncm":          "NASDAQ",
	"nasdaq":       "NASDAQ",
	"nyq":          "NYSE",
	"nyse":         "NYSE",
	"pcx":          "NYSEArca",
	"arca":         "NYSEArca",
	"nysearca":     "NYSEArca",
	"ase":          "NYSEAmerican",
	"nysemkt":      "NYSEAmerican",
	"nyseamerican": "NYSEAmerican",
	"bts":          "BATS",
	"bats":         "BATS",
	"ccc":          "CCC",
}

var sessionAliases = map[string]string{
	"regular":    "regular",
	"pre":        "pre",
	"premarket":  "pre",
	"post":       "post",
	"postmarket": "post",
	"after":      "post",
}

// NormalizeSource extracts exchange and session from a quote Source of the
// form "<provider>:<exchange>[:<session>]". Exchange codes are mapped through
// exchangeAliases; unknown codes are upper-cased. Sessions are lower-cased
// and unknown ones are kept as given.
func NormalizeSource(src string) (exchange string, session string) {
	parts := strings.Split(strings.TrimSpace(src), ":")
	if len(parts) >= 2 {
		e := strings.TrimSpace(parts[1])
		if norm, ok := exchangeAliases[strings.ToLower(e)]; ok {
			exchange = norm
		} else {
			exchange = strings.ToUpper(e)
		}
	}
	if len(parts) >= 3 {
		session = strings.ToLower(strings.TrimSpace(parts[2]))
		if norm, ok := sessionAliases[session]; ok {
			session = norm
		}
	}
	return exchange, session
}

// LatestByMarket collapses quotes by (Symbol, Exchange, Session?, Currency)
// keeping the newest. If includeSessions is false, session is forced to ""
// for grouping. For equal timestamps, later input wins. Zero timestamps are
// replaced with time.Now().UTC().
func LatestByMarket(quotes []provider.Quote, includeSessions bool) []Latest {
	now := time.Now().UTC()
	latest := make(map[MarketKey]Latest, len(quotes))

	for _, q := range quotes {
		exchange, session := NormalizeSource(q.Source)
		if !includeSessions {
			session = ""
		}
		ts := q.ReceivedAt
		if ts.IsZero() {
			ts = now
		}

		providerName, _, _ := strings.Cut(q.Source, ":")
		key := MarketKey{Symbol: q.Symbol, Exchange: exchange, Session: session, Currency: q.Currency}
		if cur, ok := latest[key]; ok && ts.Before(cur.ReceivedAt) {
			continue
		}
		latest[key] = Latest{
			Symbol:     q.Symbol,
			Exchange:   exchange,
			Session:    session,
			Currency:   q.Currency,
			Price:      q.Price,
			Provider:   providerName,
			ReceivedAt: ts,
		}
	}

	out := make([]Latest, 0, len(latest))
	for _, v := range latest {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		if out[i].Exchange != out[j].Exchange {
			return out[i].Exchange < out[j].Exchange
		}
		if out[i].Session != out[j].Session {
			return out[i].Session < out[j].Session
		}
		return out[i].Currency < out[j].Currency
	})
	return out
}

// Filter keeps rows matching session and exchange. An empty or "all" session
// and an empty exchange match everything; exchange is compared after alias
// normalization.
func Filter(rows []Latest, session, exchange string) []Latest {
	session = strings.ToLower(strings.TrimSpace(session))
	if norm, ok := sessionAliases[session]; ok {
		session = norm
	}
	if session == "all" {
		session = ""
	}
	if exchange != "" {
		exchange, _ = NormalizeSource("x:" + exchange)
	}
	if session == "" && exchange == "" {
		return rows
	}
	out := make([]Latest, 0, len(rows))
	for _, r := range rows {
		if session != "" && r.Session != session {
			continue
		}
		if exchange != "" && r.Exchange != exchange {
			continue
		}
		out = append(out, r)
	}
	return out
}
