// Package parser turns inbound message text into command blocks, actions and
// typed arguments.
package parser

import (
	"regexp"
	"strconv"
	"strings"

	"instabot-trader/internal/models"
	"instabot-trader/pkg/utils"
)

var (
	quantityRegex   = regexp.MustCompile(`^([0-9]+(\.[0-9]+)?)\s*([a-zA-Z]+|%{1,2})?$`)
	percentageRegex = regexp.MustCompile(`^([0-9]+(\.[0-9]+)?)\s*(%)?$`)
	durationRegex   = regexp.MustCompile(`([0-9]+)(s|m|h|d)?`)
	leadingNumber   = regexp.MustCompile(`^\s*[-+]?([0-9]+(\.[0-9]*)?|\.[0-9]+)`)
)

// ParseQuantity reads values like 12, 12btc, 12usd, 12% (of total funds) or
// 12%% (of available funds). Anything else is a zero quantity, never an error.
func ParseQuantity(text string) models.Quantity {
	m := quantityRegex.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return models.Quantity{}
	}

	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return models.Quantity{}
	}
	return models.Quantity{Value: value, Units: m[3]}
}

// FormatQuantity is the inverse of ParseQuantity.
func FormatQuantity(q models.Quantity) string {
	return FormatNumber(q.Value) + q.Units
}

// FormatNumber renders a float in the shortest form that parses back exactly.
func FormatNumber(v float64) string {
	return utils.FormatAmount(v)
}

// ParsePercentage returns 10% as 0.1 and a bare 10 as 10. No match is 0.
func ParsePercentage(text string) float64 {
	m := percentageRegex.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return 0
	}

	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	if m[3] == "%" {
		return value / 100
	}
	return value
}

// TimeToSeconds converts 12, 12s, 12m, 12h or 12d into seconds.
func TimeToSeconds(text string, def int) int {
	m := durationRegex.FindStringSubmatch(text)
	if m == nil {
		return def
	}

	n, err := strconv.Atoi(m[1])
	if err != nil {
		return def
	}

	switch m[2] {
	case "m":
		return n * 60
	case "h":
		return n * 60 * 60
	case "d":
		return n * 60 * 60 * 24
	}
	return n
}

// ParseFloat reads the leading number of text, ignoring trailing junk.
// Text without a leading number is 0.
func ParseFloat(text string) float64 {
	m := leadingNumber.FindString(text)
	if m == "" {
		return 0
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(m), 64)
	if err != nil {
		return 0
	}
	return v
}

// ParseInt reads the leading integer of text. Text without one is 0.
func ParseInt(text string) int {
	return int(ParseFloat(text))
}
