package cli

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"instabot-trader/internal/exchange"
)

type exchangeInfo struct {
	Name         string   `json:"name"`
	Contracts    bool     `json:"contracts"`
	MinOrderSize float64  `json:"min_order_size"`
	Precision    int      `json:"precision"`
	Commands     []string `json:"commands"`
}

func newExchangesCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "exchanges",
		Short:       "List the supported exchanges",
		Annotations: map[string]string{annotationNoConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			var infos []exchangeInfo
			for _, name := range exchange.Supported() {
				p, _ := exchange.LookupProfile(name)
				infos = append(infos, exchangeInfo{
					Name:         p.Name,
					Contracts:    p.Contracts,
					MinOrderSize: p.MinOrderSize,
					Precision:    p.Precision,
					Commands:     p.Commands,
				})
			}

			if output.IsJSON() {
				return output.JSON(infos)
			}

			table := NewTable(output, "EXCHANGE", "TYPE", "MIN SIZE", "DECIMALS", "ORDER COMMANDS")
			for _, info := range infos {
				kind := "spot"
				if info.Contracts {
					kind = "contracts"
				}
				table.AddRow(info.Name, kind, FormatCrypto(info.MinOrderSize), strconv.Itoa(info.Precision), strings.Join(info.Commands, ", "))
			}
			table.Render()
			return nil
		},
	}
}
