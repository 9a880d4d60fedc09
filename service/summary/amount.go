package summary

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ErrAmountUnparseable indicates that a monetary expression contained no
// recognizable shorthand or digit sequence.
var ErrAmountUnparseable = errors.New("amount is not parseable")

var (
	// shorthandRegex matches regional shorthand like "50rb", "2.5jt", "10 k".
	// The decimal separator inside the number may be "." or ",".
	shorthandRegex = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*(rb|k|jt|juta)\b`)

	whitespaceRegex = regexp.MustCompile(`\s+`)
	digitRunRegex   = regexp.MustCompile(`\d+`)
)

// ParseAmount converts a human-written monetary expression into an exact
// non-negative integer amount in the smallest currency unit.
//
// Two grammars are tried in order:
//
//  1. Shorthand: a decimal number followed by a unit token. "rb" and "k"
//     multiply by 1,000; "jt" and "juta" by 1,000,000. The result is rounded
//     to the nearest integer, e.g. "2.5jt" -> 2500000.
//  2. Plain number: the currency prefix, whitespace, and all "." and ","
//     separators are stripped, then the first contiguous run of digits is
//     taken as the value, e.g. "Rp 50.000" -> 50000.
//
// Separators are treated uniformly as thousands separators; a literal decimal
// fraction of the base unit is not representable. The smallest unit is
// indivisible, so this is not a loss.
func ParseAmount(text string) (int64, error) {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return 0, fmt.Errorf("empty input: %w", ErrAmountUnparseable)
	}

	if m := shorthandRegex.FindStringSubmatch(lower); m != nil {
		n, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, fmt.Errorf("invalid shorthand number %q: %w", m[1], ErrAmountUnparseable)
		}
		multiplier := 1_000.0
		if m[2] == "jt" || m[2] == "juta" {
			multiplier = 1_000_000.0
		}
		v := math.Round(n * multiplier)
		if v < 0 || v > float64(math.MaxInt64) {
			return 0, fmt.Errorf("shorthand amount %q out of range: %w", m[1], ErrAmountUnparseable)
		}
		return int64(v), nil
	}

	// Plain-number path: strip currency prefix, whitespace, and separators.
	cleaned := strings.ReplaceAll(lower, "rp", "")
	cleaned = whitespaceRegex.ReplaceAllString(cleaned, "")
	cleaned = strings.ReplaceAll(cleaned, ".", "")
	cleaned = strings.ReplaceAll(cleaned, ",", "")

	digits := digitRunRegex.FindString(cleaned)
	if digits == "" {
		return 0, fmt.Errorf("no digits in %q: %w", text, ErrAmountUnparseable)
	}

	v, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("digit run %q overflows int64: %w", digits, ErrAmountUnparseable)
	}
	return v, nil
}
