// Package coerce turns loosely typed Home Assistant values into the fixed
// document schema.
package coerce

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/strawgate/homeassistant-elasticsearch/internal/domain"
)

var (
	trueStates = map[string]struct{}{
		"true": {}, "on": {}, "locked": {}, "above_horizon": {}, "open": {}, "home": {},
	}
	falseStates = map[string]struct{}{
		"false": {}, "off": {}, "unlocked": {}, "unknown": {}, "below_horizon": {}, "closed": {}, "not_home": {},
	}
)

// datetimeLayouts are tried in order. Layouts without a zone parse as UTC.
var datetimeLayouts = []string{
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02T15:04:05-0700",
	"2006-01-02 15:04:05-0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04Z07:00",
	"2006-01-02 15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Value coerces a state value: boolean, then float, then datetime, then string.
func Value(raw string) domain.CoercedValue {
	if b, ok := AsBoolean(raw); ok {
		return domain.BooleanValue(b)
	}
	if f, ok := AsFloat(raw); ok {
		return domain.FloatValue(f)
	}
	if t, ok := AsDatetime(raw); ok {
		return domain.DatetimeValue(t)
	}
	return domain.StringValue(raw)
}

// AsBoolean matches the fixed on/off lexicon. Matching is case sensitive,
// like the host's own state constants.
func AsBoolean(raw string) (bool, bool) {
	if _, ok := trueStates[raw]; ok {
		return true, true
	}
	if _, ok := falseStates[raw]; ok {
		return false, true
	}
	return false, false
}

// AsFloat parses a decimal number. Infinity and NaN are not numbers here.
func AsFloat(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" || strings.ContainsAny(s, "xX") {
		return 0, false
	}
	s, ok := stripDigitSeparators(s)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// stripDigitSeparators removes underscores grouping digits, as in "1_000".
// An underscore not surrounded by digits makes the input invalid.
func stripDigitSeparators(s string) (string, bool) {
	if !strings.Contains(s, "_") {
		return s, true
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '_' {
			b.WriteByte(s[i])
			continue
		}
		if i == 0 || i == len(s)-1 || !isDigit(s[i-1]) || !isDigit(s[i+1]) {
			return "", false
		}
	}
	return b.String(), true
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// AsDatetime parses ISO-8601 style timestamps. A missing offset means UTC.
func AsDatetime(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if len(s) < len("2006-01-02") || s[4] != '-' {
		return time.Time{}, false
	}
	for _, layout := range datetimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
