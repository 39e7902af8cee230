package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"instabot-trader/internal/broker"
	"instabot-trader/internal/exchange"
	"instabot-trader/internal/parser"
)

type parsedArg struct {
	Name  string `json:"name,omitempty"`
	Value string `json:"value"`
}

type parsedAction struct {
	Name  string      `json:"name"`
	Known bool        `json:"known"`
	Args  []parsedArg `json:"args"`
}

type parsedBlock struct {
	Exchange  string         `json:"exchange"`
	Symbol    string         `json:"symbol"`
	Supported bool           `json:"supported"`
	Actions   []parsedAction `json:"actions"`
}

type parsedMessage struct {
	Blocks []parsedBlock `json:"blocks"`
	Alert  string        `json:"alert,omitempty"`
}

func newParseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse [message]",
		Short: "Show how a message is read without executing it",
		Long: `Split a message into command blocks and actions and report anything the
bot would skip: unsupported exchanges and unknown commands. Nothing is sent
to an exchange. Macros are not known to this command and show as unknown.`,
		Example:     `  instabot parse 'bitfinex(BTCUSD) { scaledOrder(from=1%, to=5%, orderCount=10, amount=1) } {!} Buying the dip'`,
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{annotationNoConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			msg, err := messageArg(cmd, args)
			if err != nil {
				return err
			}

			parsed := parseMessage(msg)
			if output.IsJSON() {
				return output.JSON(parsed)
			}
			printParsed(output, parsed)
			return nil
		},
	}
}

// parseMessage reads msg the way the exchange manager does.
func parseMessage(msg string) parsedMessage {
	var out parsedMessage
	for _, block := range parser.CommandBlocks(msg) {
		pb := parsedBlock{Exchange: block.Exchange, Symbol: block.Symbol}
		known := knownCommands(block.Exchange)
		pb.Supported = known != nil

		for _, action := range parser.ParseActions(block.Actions) {
			pa := parsedAction{Name: action.Name, Known: known[strings.ToLower(action.Name)]}
			for _, arg := range action.Args {
				pa.Args = append(pa.Args, parsedArg{Name: arg.Name, Value: arg.Value})
			}
			pb.Actions = append(pb.Actions, pa)
		}
		out.Blocks = append(out.Blocks, pb)
	}
	if text, ok := parser.AlertText(msg); ok {
		out.Alert = text
	}
	return out
}

// knownCommands returns the lower cased command names of an exchange, or
// nil when the exchange is not supported.
func knownCommands(name string) map[string]bool {
	ex, err := exchange.New(name, broker.NewPaper(name, broker.PaperOptions{}), exchange.Options{})
	if err != nil {
		return nil
	}
	known := make(map[string]bool)
	for _, c := range ex.Commands() {
		known[strings.ToLower(c)] = true
	}
	return known
}

func printParsed(output *Output, msg parsedMessage) {
	if len(msg.Blocks) == 0 {
		output.Warning("No command blocks found")
	}

	for _, b := range msg.Blocks {
		header := b.Exchange + "(" + b.Symbol + ")"
		if b.Supported {
			output.Bold("%s", header)
		} else {
			output.Printf("%s %s\n", header, output.Red("unsupported exchange, block will be skipped"))
		}

		table := NewTable(output, "ACTION", "ARGUMENTS", "STATUS")
		for _, a := range b.Actions {
			status, colored := "ok", output.Green("ok")
			if !a.Known {
				status, colored = "unknown", output.Yellow("unknown")
			}
			args := formatArgs(a.Args)
			table.AddColoredRow([]string{a.Name, args, status}, []string{a.Name, args, colored})
		}
		table.Render()
		output.Println()
	}

	if msg.Alert != "" {
		output.Info("Alert: %s", msg.Alert)
	}
}

func formatArgs(args []parsedArg) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		if a.Name == "" {
			parts = append(parts, a.Value)
			continue
		}
		parts = append(parts, a.Name+"="+a.Value)
	}
	return TruncateString(strings.Join(parts, ", "), 60)
}
