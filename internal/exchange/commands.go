package exchange

import (
	"context"
	"fmt"
	"strings"
	"time"

	"instabot-trader/internal/broker"
	apperrors "instabot-trader/internal/errors"
	"instabot-trader/internal/models"
	"instabot-trader/internal/parser"
	"instabot-trader/internal/sizing"
	"instabot-trader/pkg/utils"
)

// maxMacroDepth stops macros that call themselves.
const maxMacroDepth = 8

type macroDepthKey struct{}

// wait(duration)
func (e *Exchange) wait(ctx context.Context, c Call) (Result, error) {
	p := c.Args.Assign(parser.Schema{{Name: "duration", Default: "10s"}})

	seconds := parser.TimeToSeconds(p.Get("duration"), 10)
	logger := e.commandLogger(c, cmdWait)
	logger.Info().Int("seconds", seconds).Msg("Waiting")

	if err := e.clock.Sleep(ctx, time.Duration(seconds)*time.Second); err != nil {
		return Result{}, err
	}
	return Result{}, nil
}

// notify(msg, title, color, text, footer, who)
func (e *Exchange) notify(ctx context.Context, c Call) (Result, error) {
	p := c.Args.Assign(parser.Schema{
		{Name: "msg", Default: "Message from Instabot Trader"},
		{Name: "title", Default: ""},
		{Name: "color", Default: "good"},
		{Name: "text", Default: ":moneybag:"},
		{Name: "footer", Default: "from instabot trader - not financial advice."},
		{Name: "who", Default: "default"},
	})
	logger := e.commandLogger(c, cmdNotify)
	logger.Info().Interface("params", p).Msg("Notification")

	opts := models.NotifyOptions{
		Title:  p.Get("title"),
		Color:  p.Get("color"),
		Text:   p.Get("text"),
		Footer: p.Get("footer"),
	}
	e.send(ctx, p.Get("msg"), opts, strings.ToLower(p.Get("who")))
	return Result{Message: p.Get("msg")}, nil
}

// send delivers a notification. Delivery failures are logged, never returned.
func (e *Exchange) send(ctx context.Context, msg string, opts models.NotifyOptions, who string) {
	if e.notifier == nil {
		e.logger.Warn().Str("msg", msg).Msg("No notifier configured")
		return
	}
	if err := e.notifier.Send(ctx, msg, opts, who); err != nil {
		e.logger.Error().Err(err).Str("who", who).Msg("Notification failed")
	}
}

// balance() reports the wallet, or the margin account on contract exchanges.
func (e *Exchange) balance(ctx context.Context, c Call) (Result, error) {
	logger := e.commandLogger(c, cmdBalance)

	var (
		msg string
		err error
	)
	if e.profile.Contracts {
		msg, err = e.accountMessage(ctx)
	} else {
		msg, err = e.walletMessage(ctx, c)
	}
	if err != nil {
		return Result{}, err
	}

	e.send(ctx, msg, models.NotifyOptions{}, "default")
	logger.Info().Msg(msg)
	return Result{Message: msg}, nil
}

func (e *Exchange) walletMessage(ctx context.Context, c Call) (string, error) {
	balances, err := e.WalletBalances(ctx, c.Symbol)
	if err != nil {
		return "", err
	}
	book, err := e.Ticker(ctx, c.Symbol, c.Session)
	if err != nil {
		return "", err
	}

	pair := e.profile.Split(c.Symbol)
	price := book.LastPrice
	totalFiat := utils.RoundDown(sizing.BalanceTotalFiat(pair, balances, price), 2)
	totalCoins := utils.RoundDown(sizing.BalanceTotalAsset(pair, balances, price), 4)
	coins := utils.RoundDown(sizing.LegAmount(balances, pair.Asset), 4)
	fiat := utils.RoundDown(sizing.LegAmount(balances, pair.Currency), 2)

	return fmt.Sprintf("%s: Balances - %s %s & %s %s. Total Value - %s %s (%s %s).",
		e.profile.Name,
		parser.FormatNumber(coins), pair.Asset,
		parser.FormatNumber(fiat), pair.Currency,
		parser.FormatNumber(totalCoins), pair.Asset,
		parser.FormatNumber(totalFiat), pair.Currency,
	), nil
}

func (e *Exchange) accountMessage(ctx context.Context) (string, error) {
	reader, ok := e.adapter.(broker.AccountReader)
	if !ok {
		return "", fmt.Errorf("%s account: %w", e.profile.Name, apperrors.ErrNotImplemented)
	}
	acct, err := reader.Account(ctx)
	if err != nil {
		return "", err
	}

	n := func(v float64) string { return parser.FormatNumber(utils.RoundDown(v, 4)) }
	return fmt.Sprintf("%s: Equity: %s btc, available: %s btc, balance: %s btc, pnl: %s btc.",
		displayName(e.profile.Name), n(acct.Equity), n(acct.AvailableFunds), n(acct.Balance), n(acct.PNL),
	), nil
}

func displayName(name string) string {
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

// macro(func, tag) runs a configured macro. The first failing action stops
// the rest.
func (e *Exchange) macro(ctx context.Context, c Call) (Result, error) {
	p := c.Args.Assign(parser.Schema{
		{Name: "func", Default: ""},
		{Name: "tag", Default: ""},
	})
	name := p.Get("func")
	logger := e.commandLogger(c, cmdMacro)

	cmd, ok := e.commands[strings.ToLower(name)]
	if !ok || cmd.kind != kindMacro {
		return Result{}, fmt.Errorf("no macro named %s found: %w", name, apperrors.ErrMacroNotFound)
	}

	depth, _ := ctx.Value(macroDepthKey{}).(int)
	if depth >= maxMacroDepth {
		return Result{}, fmt.Errorf("macro %s nested more than %d deep", name, maxMacroDepth)
	}
	ctx = context.WithValue(ctx, macroDepthKey{}, depth+1)

	logger.Info().Str("macro", cmd.name).Str("actions", parser.Summary(cmd.actions)).Msg("Running macro")

	var out Result
	for _, action := range parser.ParseActions(cmd.actions) {
		res, err := e.ExecuteCommand(ctx, c.Symbol, action.Name, action.Args, c.Session)
		if err != nil {
			return out, apperrors.Wrapf(err, "macro %s: %s", cmd.name, action.Name)
		}
		out.Orders = append(out.Orders, res.Orders...)
	}
	return out, nil
}
