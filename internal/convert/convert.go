// Package convert turns the provider's loosely formatted text fields into
// typed optional values. A nil result means the field was not available.
package convert

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrFormat is wrapped by every FormatError.
var ErrFormat = errors.New("format error")

// FormatError reports an available field that could not be parsed into its
// target type.
type FormatError struct {
	Kind  string
	Input string
	Err   error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("convert %s %q: %v", e.Kind, e.Input, e.Err)
	}
	return fmt.Sprintf("convert %s %q", e.Kind, e.Input)
}

func (e *FormatError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrFormat}
	}
	return []error{ErrFormat, e.Err}
}

// groupedNumber is the only shape in which a comma is accepted: a thousands
// separator between 3-digit groups of the integer part.
var groupedNumber = regexp.MustCompile(`^[+-]?\d{1,3}(,\d{3})+(\.\d+)?$`)

// dateLayouts are tried in order. All are month-first.
var dateLayouts = []string{
	"1/2/2006",
	"1/2/2006 15:04:05",
	"1/2/2006 3:04:05 PM",
	"2006-01-02",
	time.RFC3339,
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
}

// IsAcceptableInput reports whether raw carries a value. Spaces are ignored
// and a trailing line terminator is dropped before comparing against the
// "N/A" sentinel.
func IsAcceptableInput(raw string) bool {
	s := strings.ReplaceAll(raw, " ", "")
	s = strings.TrimRight(s, "\r\n")
	return s != "" && !strings.EqualFold(s, "N/A")
}

// ToDecimal parses raw as a base-10 number using '.' as the decimal point.
func ToDecimal(raw string) (*decimal.Decimal, error) {
	if !IsAcceptableInput(raw) {
		return nil, nil
	}
	d, err := parseDecimal(raw)
	if err != nil {
		return nil, &FormatError{Kind: "decimal", Input: raw, Err: err}
	}
	return &d, nil
}

// ToDate parses raw as a calendar date. Embedded quotes are removed first.
// The result is midnight UTC and carries no zone meaning.
func ToDate(raw string) (*time.Time, error) {
	if !IsAcceptableInput(raw) {
		return nil, nil
	}
	s := strings.TrimSpace(strings.ReplaceAll(raw, `"`, ""))
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		return &d, nil
	}
	return nil, &FormatError{Kind: "date", Input: raw}
}

// ToPercentDecimal parses values such as "+2.5%" or "-66.7%". The sign is
// mandatory.
func ToPercentDecimal(raw string) (*decimal.Decimal, error) {
	if !IsAcceptableInput(raw) {
		return nil, nil
	}
	s := strings.TrimSpace(raw)
	if len(s) < 3 {
		return nil, &FormatError{Kind: "percent", Input: raw, Err: errors.New("too short")}
	}
	if s[len(s)-1] != '%' {
		return nil, &FormatError{Kind: "percent", Input: raw, Err: errors.New("missing trailing %")}
	}
	sign, body := s[0], s[1:len(s)-1]
	if sign != '+' && sign != '-' {
		return nil, &FormatError{Kind: "percent", Input: raw, Err: fmt.Errorf("invalid sign %q", sign)}
	}
	if c := body[0]; c == '+' || c == '-' || c == ' ' || c == '\t' {
		return nil, &FormatError{Kind: "percent", Input: raw, Err: errors.New("magnitude must follow the sign directly")}
	}
	d, err := parseDecimal(body)
	if err != nil {
		return nil, &FormatError{Kind: "percent", Input: raw, Err: err}
	}
	if sign == '-' {
		d = d.Neg()
	}
	return &d, nil
}

// PassThrough returns raw unchanged when it is available. It is used for
// abbreviated magnitudes such as "69.75B".
func PassThrough(raw string) *string {
	if !IsAcceptableInput(raw) {
		return nil
	}
	return &raw
}

func parseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if strings.ContainsAny(s, "eE") {
		return decimal.Decimal{}, errors.New("exponent notation not accepted")
	}
	if strings.Contains(s, ",") {
		if !groupedNumber.MatchString(s) {
			return decimal.Decimal{}, errors.New("misplaced thousands separator")
		}
		s = strings.ReplaceAll(s, ",", "")
	}
	return decimal.NewFromString(s)
}
