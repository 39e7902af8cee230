// Command instabot runs the Instabot Trader bot.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"instabot-trader/internal/cli"
	"instabot-trader/internal/logging"
)

func main() {
	logger := logging.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCmd(logger).ExecuteContext(ctx); err != nil {
		logger.Error().Err(err).Msg("Command failed")
		stop()
		os.Exit(1)
	}
}
