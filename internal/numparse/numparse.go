// Package numparse converts locale-formatted abbreviated counters ("1.2K",
// "3만", "2.5M") into integers.
package numparse

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// multipliers maps a lower-cased unit suffix to its scale.
var multipliers = map[string]float64{
	"k": 1e3,
	"m": 1e6,
	"b": 1e9,
	"천": 1e3,
	"만": 1e4,
	"억": 1e8,
}

var (
	counterRe = regexp.MustCompile(`(\d[\d,]*(?:\.\d+)?)(\s*)(천|만|억|[kKmMbB])?`)
	// Digit groups separated by spaces ("1 234 567") or NBSP.
	groupedRe = regexp.MustCompile(`(\d)[ \x{00a0}\x{202f}](\d{3})\b`)
)

// Parse converts abbreviated counter text like "1.2K", "5.7M", "3만" or "1,234"
// to an integer. Anything it cannot read yields 0.
func Parse(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	for groupedRe.MatchString(s) {
		s = groupedRe.ReplaceAllString(s, "$1$2")
	}

	loc := counterRe.FindStringSubmatchIndex(s)
	if loc == nil {
		return 0
	}
	number := strings.ReplaceAll(s[loc[2]:loc[3]], ",", "")
	value, err := strconv.ParseFloat(number, 64)
	if err != nil || value < 0 {
		return 0
	}

	if loc[6] >= 0 {
		suffix := strings.ToLower(s[loc[6]:loc[7]])
		spaced := loc[5] > loc[4]
		// "12 million" or "3 books": a spaced Latin letter that starts a word
		// is not a unit.
		if !(spaced && isLatin(suffix) && letterAt(s, loc[7])) {
			value *= multipliers[suffix]
		}
	}

	if value > math.MaxInt64/2 {
		return 0
	}
	return int64(math.Round(value))
}

func isLatin(suffix string) bool {
	return len(suffix) == 1 && suffix[0] >= 'a' && suffix[0] <= 'z'
}

func letterAt(s string, i int) bool {
	if i >= len(s) {
		return false
	}
	c := s[i]
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// Abbreviate renders n the way the host site does ("1.2K", "3.4M"). Parse
// reads it back to within one decimal of precision.
func Abbreviate(n int64) string {
	switch {
	case n < 0:
		return "0"
	case n < 1_000:
		return strconv.FormatInt(n, 10)
	case n < 1_000_000:
		return trimDecimal(float64(n)/1e3) + "K"
	case n < 1_000_000_000:
		return trimDecimal(float64(n)/1e6) + "M"
	default:
		return trimDecimal(float64(n)/1e9) + "B"
	}
}

func trimDecimal(v float64) string {
	s := strconv.FormatFloat(math.Floor(v*10)/10, 'f', 1, 64)
	return strings.TrimSuffix(s, ".0")
}
