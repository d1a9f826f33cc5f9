package parser

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var (
	// currency symbols, group separators and whitespace
	priceNoise = regexp.MustCompile(`[\p{Sc},\s]`)
	// dashes, slashes and whitespace between housing tokens
	housingNoise = regexp.MustCompile(`[\s\-/]+`)
	// leading bedroom segment of a housing summary: "2br" or "studio"
	bedroomSegment = regexp.MustCompile(`^(?:(\d+)br|studio)`)
	// leading number of an area token, remainder is the unit
	areaToken = regexp.MustCompile(`^(\d[\d,]*(?:\.\d+)?)?(.*)$`)
)

// normaliseText strips leading/trailing whitespace and collapses internal whitespace.
func normaliseText(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

// parsePrice strips currency symbols and group separators from a displayed
// price and parses what remains. ok is false for anything but a finite,
// non-negative number.
func parsePrice(display string) (float64, bool) {
	cleaned := priceNoise.ReplaceAllString(display, "")
	if cleaned == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, false
	}
	return v, true
}
