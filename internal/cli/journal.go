package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	apperrors "instabot-trader/internal/errors"
	"instabot-trader/internal/models"
	"instabot-trader/internal/store"
)

// addJournalCommands adds the order journal commands.
func addJournalCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Review the order journal",
		Long:  "List and summarise every order the bot has placed.",
	}

	cmd.AddCommand(newJournalListCmd(app))
	cmd.AddCommand(newJournalStatsCmd(app))

	rootCmd.AddCommand(cmd)
}

func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().String("exchange", "", "only orders on this exchange")
	cmd.Flags().String("symbol", "", "only orders for this symbol")
	cmd.Flags().String("session", "", "only orders from this session")
	cmd.Flags().String("tag", "", "only orders with this tag")
	cmd.Flags().String("side", "", "only buy or sell orders")
	cmd.Flags().Duration("since", 0, "only orders placed within this long, e.g. 24h")
}

func filterFromFlags(cmd *cobra.Command) (store.OrderFilter, error) {
	var f store.OrderFilter
	f.Exchange, _ = cmd.Flags().GetString("exchange")
	f.Symbol, _ = cmd.Flags().GetString("symbol")
	f.Session, _ = cmd.Flags().GetString("session")
	f.Tag, _ = cmd.Flags().GetString("tag")

	side, _ := cmd.Flags().GetString("side")
	if side != "" {
		s, ok := models.ParseSide(side)
		if !ok {
			return f, fmt.Errorf("%s: %w", side, apperrors.ErrInvalidSide)
		}
		f.Side = s
	}
	if since, _ := cmd.Flags().GetDuration("since"); since > 0 {
		f.Since = time.Now().Add(-since)
	}
	return f, nil
}

// openJournal opens the configured journal, or returns nil when disabled.
func (a *App) openJournal(output *Output) (*store.SQLiteStore, error) {
	if !a.Config.Journal.Enabled {
		output.Warning("The order journal is disabled. Set journal.enabled = true to record orders.")
		return nil, nil
	}
	return store.NewSQLiteStore(a.Config.Journal.Path)
}

func newJournalListCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded orders, newest first",
		Example: `  instabot journal list --exchange bitfinex --since 24h
  instabot journal list --tag dca --limit 100`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(commandContext(cmd), 30*time.Second)
			defer cancel()

			filter, err := filterFromFlags(cmd)
			if err != nil {
				return err
			}
			filter.Limit, _ = cmd.Flags().GetInt("limit")

			journal, err := app.openJournal(output)
			if err != nil || journal == nil {
				return err
			}
			defer journal.Close()

			orders, err := journal.Orders(ctx, filter)
			if err != nil {
				output.Error("Failed to read orders: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(orders)
			}
			if len(orders) == 0 {
				output.Info("No orders recorded.")
				return nil
			}

			table := NewTable(output, "TIME", "EXCHANGE", "SYMBOL", "KIND", "SIDE", "AMOUNT", "PRICE", "TAG", "ORDER ID")
			for _, o := range orders {
				plain := []string{
					FormatDateTime(o.PlacedAt),
					o.Exchange,
					o.Symbol,
					string(o.Kind),
					string(o.Side),
					FormatCrypto(o.Amount),
					FormatPrice(o.Price),
					TruncateString(o.Tag, 16),
					TruncateString(o.OrderID, 20),
				}
				colored := append([]string(nil), plain...)
				colored[4] = output.SideText(plain[4])
				table.AddColoredRow(plain, colored)
			}
			table.Render()
			output.Println()
			output.Dim("%d orders", len(orders))
			return nil
		},
	}

	addFilterFlags(cmd)
	cmd.Flags().Int("limit", 50, "maximum number of orders to show")
	return cmd
}

func newJournalStatsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarise recorded orders per exchange and side",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(commandContext(cmd), 30*time.Second)
			defer cancel()

			filter, err := filterFromFlags(cmd)
			if err != nil {
				return err
			}

			journal, err := app.openJournal(output)
			if err != nil || journal == nil {
				return err
			}
			defer journal.Close()

			stats, err := journal.Stats(ctx, filter)
			if err != nil {
				output.Error("Failed to summarise orders: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(stats)
			}
			if len(stats) == 0 {
				output.Info("No orders recorded.")
				return nil
			}

			var total int
			table := NewTable(output, "EXCHANGE", "SIDE", "ORDERS", "TOTAL AMOUNT", "FIRST", "LAST")
			for _, s := range stats {
				total += s.Orders
				plain := []string{
					s.Exchange,
					string(s.Side),
					strconv.Itoa(s.Orders),
					FormatCrypto(s.TotalAmount),
					FormatDateTime(s.FirstAt),
					FormatDateTime(s.LastAt),
				}
				colored := append([]string(nil), plain...)
				colored[1] = output.SideText(plain[1])
				table.AddColoredRow(plain, colored)
			}
			table.Render()
			output.Println()
			output.Dim("%d orders in total", total)
			return nil
		},
	}

	addFilterFlags(cmd)
	return cmd
}
