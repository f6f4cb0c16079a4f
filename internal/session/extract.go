package session

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf16"
)

// crumbMatchers are tried in order; the page layout has changed over time
// and older layouts still turn up.
var crumbMatchers = []*regexp.Regexp{
	regexp.MustCompile(`(?i)"CrumbStore":\s*\{\s*"crumb":\s*"([^"]+)"`),
	regexp.MustCompile(`(?i)"crumb":\s*"([^"]+)"`),
	regexp.MustCompile(`(?i)CrumbStore":\{"crumb":"([^"]+)"`),
}

// unicodeEscapes matches a run of \uXXXX escapes so surrogate pairs are
// decoded together.
var unicodeEscapes = regexp.MustCompile(`(?:\\u[0-9A-Fa-f]{4})+`)

// Match is the outcome of ExtractCrumb. Pattern is the index of the matcher
// that produced Crumb and is only meaningful when Found is true.
type Match struct {
	Crumb   string
	Pattern int
	Found   bool
}

// ExtractCrumb scans a quote page for the crumb value.
func ExtractCrumb(html string) Match {
	for i, re := range crumbMatchers {
		sub := re.FindStringSubmatch(html)
		if len(sub) < 2 {
			continue
		}
		crumb := strings.TrimSpace(unescapeUnicode(sub[1]))
		if crumb == "" {
			continue
		}
		return Match{Crumb: crumb, Pattern: i, Found: true}
	}
	return Match{}
}

func unescapeUnicode(s string) string {
	return unicodeEscapes.ReplaceAllStringFunc(s, func(run string) string {
		units := make([]uint16, 0, len(run)/6)
		for i := 0; i+6 <= len(run); i += 6 {
			u, err := strconv.ParseUint(run[i+2:i+6], 16, 16)
			if err != nil {
				return run
			}
			units = append(units, uint16(u))
		}
		return string(utf16.Decode(units))
	})
}
