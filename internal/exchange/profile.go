package exchange

import (
	"sort"
	"strings"

	"instabot-trader/internal/sizing"
)

// Profile describes how one exchange sizes and names its orders.
type Profile struct {
	Name  string
	Split sizing.Splitter
	// MinOrderSize is the smallest order worth placing, in asset units
	// or contracts.
	MinOrderSize float64
	// Precision is the number of decimals scaled order amounts keep.
	Precision int
	// Contracts marks derivatives exchanges trading whole contracts
	// against a margin account.
	Contracts bool
	// Commands are enabled on top of the common set.
	Commands []string
}

var orderCommands = []string{cmdLimitOrder, cmdMarketOrder, cmdCancelOrders}

var profiles = map[string]Profile{
	"bitfinex": {
		Name:         "bitfinex",
		Split:        sizing.SplitSymbol,
		MinOrderSize: 0.001,
		Precision:    6,
		Commands:     orderCommands,
	},
	"coinbase": {
		Name:         "coinbase",
		Split:        sizing.SplitDashedSymbol,
		MinOrderSize: 0.001,
		Precision:    6,
		Commands:     orderCommands,
	},
	"deribit": {
		Name:         "deribit",
		Split:        sizing.SplitSymbol,
		MinOrderSize: 1,
		Precision:    0,
		Contracts:    true,
		Commands:     orderCommands,
	},
}

// LookupProfile finds the profile for an exchange name, ignoring case.
func LookupProfile(name string) (Profile, bool) {
	p, ok := profiles[strings.ToLower(name)]
	return p, ok
}

// Supported lists the exchange names that have a profile.
func Supported() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
