package cli

import (
	"github.com/spf13/cobra"
)

func newExamplesCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "examples",
		Short:       "Show example messages",
		Long:        "Display example messages for common trading workflows.",
		Annotations: map[string]string{annotationNoConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			output.Bold("Example Messages")
			output.Println()

			examples := []struct {
				title    string
				messages []string
			}{
				{
					title: "Check the wallet",
					messages: []string{
						"bitfinex(BTCUSD) { balance() }",
						"deribit(BTC-PERPETUAL) { balance(); notify(msg=Checked, who=slack) }",
					},
				},
				{
					title: "Enter a position",
					messages: []string{
						"bitfinex(BTCUSD) { cancelOrders(); limitOrder(side=buy, offset=0.5%, amount=50%) }",
						"deribit(BTC-PERPETUAL) { marketOrder(position=100) }",
						"coinbase(BTC-USD) { limitOrder(side=sell, offset=@7200, amount=0.25, tag=exit) }",
					},
				},
				{
					title: "Protect it",
					messages: []string{
						"deribit(BTC-PERPETUAL) { stopMarketOrder(side=sell, offset=2%, amount=100, trigger=mark) }",
					},
				},
				{
					title: "Spread an order",
					messages: []string{
						"bitfinex(BTCUSD) { scaledOrder(from=1%, to=5%, orderCount=10, amount=1, easing=ease-in) }",
						"bitfinex(BTCUSD) { twapOrder(side=buy, amount=2, orderCount=12, duration=1h) }",
						"bitfinex(BTCUSD) { icebergOrder(side=sell, totalAmount=5, averageAmount=0.25, timeLimit=30m) }",
						"bitfinex(BTCUSD) { pingPongOrder(from=1%, to=3%, orderCount=5, amount=1, pongDistance=50) }",
					},
				},
				{
					title: "Stop running algorithmic orders",
					messages: []string{
						"bitfinex(BTCUSD) { cancelOrders(which=tagged, tag=grid) }",
					},
				},
				{
					title: "Alert only",
					messages: []string{
						"{!} BTC broke out of the range",
					},
				},
			}

			for _, ex := range examples {
				output.Info("%s", ex.title)
				for _, msg := range ex.messages {
					output.Printf("  %s\n", msg)
				}
				output.Println()
			}

			output.Dim("Use 'instabot parse <message>' to check a message before sending it.")
			return nil
		},
	}
}
