package model

import (
	"math"
	"strconv"
	"strings"
)

// ParsePrice converts source price text into a number. It keeps only digits
// and the decimal point, which makes it indifferent to currency glyphs,
// thousands separators, and the mangled multi-byte sequences some sources
// emit in place of the pound sign. Unparsable input normalizes to 0.
func ParsePrice(text string) float64 {
	var b strings.Builder
	for _, r := range text {
		if r >= '0' && r <= '9' || r == '.' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0
	}
	v, err := strconv.ParseFloat(b.String(), 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0
	}
	return v
}

// ParseMileageMiles extracts a mileage reading from source text by stripping
// every non-digit rune. It returns (0, false) when no digits remain.
func ParseMileageMiles(text string) (int, bool) {
	var b strings.Builder
	for _, r := range text {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0, false
	}
	v, err := strconv.Atoi(b.String())
	if err != nil {
		return 0, false
	}
	return v, true
}

// MilesToKm converts miles to kilometers, rounding to the nearest whole
// kilometer.
func MilesToKm(miles int) int {
	return int(math.Round(float64(miles) * 1.60934))
}
