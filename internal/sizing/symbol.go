// Package sizing turns requested quantities into tradable order sizes
// against wallet balances.
package sizing

import (
	"regexp"
	"strings"

	"instabot-trader/internal/models"
)

var (
	compactSymbol = regexp.MustCompile(`^(.{3,4})(.{3})`)
	dashedSymbol  = regexp.MustCompile(`^([a-z]+)-([a-z]+)`)
)

// Splitter splits an exchange symbol into its asset and currency legs.
type Splitter func(symbol string) models.Pair

// DefaultPair is used when a symbol cannot be split.
var DefaultPair = models.Pair{Asset: "btc", Currency: "usd"}

// SplitSymbol handles compact symbols such as BTCUSD or DASHBTC.
func SplitSymbol(symbol string) models.Pair {
	return split(compactSymbol, symbol)
}

// SplitDashedSymbol handles symbols such as BTC-USD.
func SplitDashedSymbol(symbol string) models.Pair {
	return split(dashedSymbol, symbol)
}

func split(re *regexp.Regexp, symbol string) models.Pair {
	m := re.FindStringSubmatch(strings.ToLower(symbol))
	if m == nil {
		return DefaultPair
	}
	return models.Pair{Asset: m[1], Currency: m[2]}
}
