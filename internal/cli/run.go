package cli

import (
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

func newRunCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [message]",
		Short: "Execute one message and wait for it to finish",
		Long: `Execute a message from the command line, or from stdin when no argument
is given. The command returns once every block of the message, including
any algorithmic orders, has finished. Interrupt it to cancel them.`,
		Example: `  instabot run 'bitfinex(BTCUSD) { balance() }'
  echo 'deribit(BTC-PERPETUAL) { marketOrder(buy, 10) }' | instabot run`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			msg, err := messageArg(cmd, args)
			if err != nil {
				return err
			}
			if msg == "" {
				return cmd.Usage()
			}

			rt, err := app.newRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := rt.manager.ExecuteMessage(ctx, msg); err != nil {
				output.Error("✗ %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"message": msg, "ok": true})
			}
			output.Success("✓ Message executed")
			return nil
		},
	}
	return cmd
}

func messageArg(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		return strings.TrimSpace(args[0]), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
