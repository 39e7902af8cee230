package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"instabot-trader/internal/server"
)

func newServeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept trading messages over HTTP",
		Long: `Start the HTTP server. Messages are POSTed to the configured path in a
form field called subject, Body or message, as JSON or as a plain text body.
Each message is acknowledged straight away and executed in the background.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				app.Config.Server.Addr = addr
			}

			rt, err := app.newRuntime()
			if err != nil {
				return err
			}
			defer func() {
				if err := rt.Close(); err != nil {
					app.Logger.Warn().Err(err).Msg("Shutdown finished with errors")
				}
			}()

			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			started := time.Now().UTC().Format(time.RFC3339)
			if !output.IsJSON() {
				output.Bold("Instabot Trader bot starting")
				output.Dim("Started at %s", started)
				output.Info("Listening on %s%s for exchanges %s", app.Config.Server.Addr, app.Config.Server.Path, exchangeNames(app))
			}
			if app.Config.Notifications.AlertOnStartup {
				rt.alert(ctx, fmt.Sprintf("Instabot Trader starting up at %s.", started))
			}

			srv := server.New(server.Config{
				Addr:           app.Config.Server.Addr,
				Path:           app.Config.Server.Path,
				AllowedOrigins: app.Config.Server.AllowedOrigins,
				Events:         rt.events,
			}, rt.manager, rt.health, app.Logger)
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().String("addr", "", "listen address, overrides server.addr")
	return cmd
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func exchangeNames(app *App) string {
	names := make([]string, 0, len(app.Config.Credentials))
	for _, c := range app.Config.Credentials {
		names = append(names, c.Name)
	}
	if len(names) == 0 {
		return "(none configured)"
	}
	return strings.Join(names, ", ")
}
