// Package utils provides shared utility functions.
package utils

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Round rounds value to the given number of decimal places, halves away from zero.
func Round(value float64, places int) float64 {
	return decimalAdjust(math.Round, value, places)
}

// RoundDown floors value to the given number of decimal places.
func RoundDown(value float64, places int) float64 {
	return decimalAdjust(math.Floor, value, places)
}

// RoundUp ceils value to the given number of decimal places.
func RoundUp(value float64, places int) float64 {
	return decimalAdjust(math.Ceil, value, places)
}

// decimalAdjust shifts the decimal exponent in text rather than multiplying,
// so 1.29 floored to one place is 1.2 and not 1.1 after binary drift.
func decimalAdjust(fn func(float64) float64, value float64, places int) float64 {
	if places == 0 || math.IsNaN(value) || math.IsInf(value, 0) {
		return fn(value)
	}
	return shift(fn(shift(value, places)), -places)
}

func shift(value float64, places int) float64 {
	s := strconv.FormatFloat(value, 'e', -1, 64)
	mantissa, exp, _ := strings.Cut(s, "e")
	e, err := strconv.Atoi(exp)
	if err != nil {
		return value * math.Pow10(places)
	}
	v, err := strconv.ParseFloat(fmt.Sprintf("%se%d", mantissa, e+places), 64)
	if err != nil {
		return value * math.Pow10(places)
	}
	return v
}

// FormatAmount renders a number in the shortest form that parses back exactly.
func FormatAmount(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
