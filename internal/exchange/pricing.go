package exchange

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"instabot-trader/internal/broker"
	apperrors "instabot-trader/internal/errors"
	"instabot-trader/internal/models"
	"instabot-trader/internal/parser"
	"instabot-trader/internal/sizing"
	"instabot-trader/pkg/utils"
)

var absolutePriceRegex = regexp.MustCompile(`@([0-9]+(\.[0-9]*)?)`)

// Ticker returns the top of the book for symbol, reusing the session's
// snapshot for up to 30 seconds.
func (e *Exchange) Ticker(ctx context.Context, symbol, sessionID string) (models.Ticker, error) {
	key := sessionID + "ticker"
	if t, ok := e.tickers.Get(key); ok {
		return t, nil
	}

	t, err := e.adapter.Ticker(ctx, symbol)
	if err != nil {
		return models.Ticker{}, err
	}
	e.tickers.Put(key, t, tickerTTL)
	return t, nil
}

// WalletBalances returns the exchange wallet entries for the legs of symbol.
func (e *Exchange) WalletBalances(ctx context.Context, symbol string) ([]models.Balance, error) {
	wallet, err := e.adapter.WalletBalances(ctx)
	if err != nil {
		return nil, err
	}
	return sizing.FilterWallet(e.profile.Split(symbol), wallet), nil
}

// OffsetToAbsolutePrice turns an offset into a price. @6250 is absolute;
// 150 or 1% is below the bid when buying and above the ask when selling.
func (e *Exchange) OffsetToAbsolutePrice(ctx context.Context, symbol, sessionID string, side models.Side, offset string) (float64, error) {
	if m := absolutePriceRegex.FindStringSubmatch(offset); m != nil {
		price, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, apperrors.NewValidationError("offset", offset, "bad absolute price")
		}
		return utils.RoundDown(price, 4), nil
	}

	book, err := e.Ticker(ctx, symbol, sessionID)
	if err != nil {
		return 0, err
	}

	qty := parser.ParseQuantity(offset)
	if side == models.SideBuy {
		return utils.RoundDown(book.Bid-offsetAmount(qty, book.Bid), 2), nil
	}
	return utils.RoundDown(book.Ask+offsetAmount(qty, book.Ask), 2), nil
}

func offsetAmount(qty models.Quantity, price float64) float64 {
	if qty.Units == models.UnitsPercent {
		return price * (qty.Value / 100)
	}
	return qty.Value
}

// PositionToAmount resolves a target position into the side and amount
// that reach it. An empty target leaves side and amount as given. A target
// equal to the current holding is buy 0.
func (e *Exchange) PositionToAmount(ctx context.Context, symbol, target string, side models.Side, amount string) (models.Side, models.Quantity, error) {
	if strings.TrimSpace(target) == "" {
		qty := parser.ParseQuantity(amount)
		if e.profile.Contracts {
			qty.Units = models.UnitsAbsolute
		}
		return side, qty, nil
	}

	var change float64
	if e.profile.Contracts {
		held, err := e.contractPosition(ctx, symbol)
		if err != nil {
			return side, models.Quantity{}, err
		}
		change = utils.RoundDown(float64(parser.ParseInt(target))-held, 0)
	} else {
		balances, err := e.WalletBalances(ctx, symbol)
		if err != nil {
			return side, models.Quantity{}, err
		}
		held := sizing.LegAmount(balances, e.profile.Split(symbol).Asset)
		change = utils.RoundDown(parser.ParseFloat(target)-held, 4)
	}

	resolved := models.SideBuy
	if change < 0 {
		resolved = models.SideSell
	}
	return resolved, models.Quantity{Value: math.Abs(change)}, nil
}

func (e *Exchange) contractPosition(ctx context.Context, symbol string) (float64, error) {
	reader, ok := e.adapter.(broker.PositionReader)
	if !ok {
		return 0, fmt.Errorf("%s positions: %w", e.profile.Name, apperrors.ErrNotImplemented)
	}
	positions, err := reader.Positions(ctx)
	if err != nil {
		return 0, err
	}

	size := 0.0
	for _, p := range positions {
		if strings.EqualFold(p.Instrument, symbol) {
			size = p.Size
		}
	}
	return size, nil
}

// OrderSizeFromAmount sizes an amount against the wallet at price. Contract
// exchanges only take plain contract counts.
func (e *Exchange) OrderSizeFromAmount(ctx context.Context, symbol string, side models.Side, price float64, amount string) (models.SizeResult, error) {
	qty := parser.ParseQuantity(amount)

	if e.profile.Contracts {
		size, ok := sizing.ContractOrderSize(qty)
		if !ok {
			return models.SizeResult{}, fmt.Errorf("%s amount %q, use a number of contracts: %w",
				e.profile.Name, amount, apperrors.ErrUnitsNotSupported)
		}
		return size, nil
	}

	balances, err := e.WalletBalances(ctx, symbol)
	if err != nil {
		return models.SizeResult{}, err
	}
	return sizing.CalcOrderSize(e.profile.Split(symbol), side, qty, balances, price, e.profile.MinOrderSize), nil
}

// scaledOrderSize fits the total of a scaled series to the funds available.
func (e *Exchange) scaledOrderSize(ctx context.Context, symbol string, req sizing.ScaledRequest) (float64, error) {
	if e.profile.Contracts {
		return sizing.ContractScaledOrderSize(req, e.profile.MinOrderSize), nil
	}
	if req.Amount.Units != models.UnitsAbsolute {
		return req.Amount.Value, nil
	}

	balances, err := e.WalletBalances(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return sizing.ScaledOrderSize(e.profile.Split(symbol), req, balances, e.profile.MinOrderSize), nil
}

// formatAmount renders an amount argument for a nested order command.
func formatAmount(value float64, units string) string {
	return parser.FormatQuantity(models.Quantity{Value: value, Units: units})
}

// formatPrice renders an absolute price offset for a nested order command.
func formatPrice(price float64) string {
	return "@" + parser.FormatNumber(price)
}
