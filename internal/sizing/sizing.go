package sizing

import (
	"math"

	"instabot-trader/internal/models"
	"instabot-trader/internal/scaling"
	"instabot-trader/pkg/utils"
)

// BalanceType is the only wallet type orders are sized against.
const BalanceType = "exchange"

// FilterWallet keeps the exchange wallet entries for the two legs of pair.
func FilterWallet(pair models.Pair, wallet []models.Balance) []models.Balance {
	var filtered []models.Balance
	for _, b := range wallet {
		if b.Type != BalanceType {
			continue
		}
		if b.Currency == pair.Asset || b.Currency == pair.Currency {
			filtered = append(filtered, b)
		}
	}
	return filtered
}

// BalanceTotalAsset values the whole wallet in the asset leg at price.
func BalanceTotalAsset(pair models.Pair, balances []models.Balance, price float64) float64 {
	total := 0.0
	for _, b := range balances {
		switch b.Currency {
		case pair.Currency:
			total += b.Amount / price
		case pair.Asset:
			total += b.Amount
		}
	}
	return utils.RoundDown(total, 4)
}

// BalanceTotalFiat values the whole wallet in the currency leg at price.
func BalanceTotalFiat(pair models.Pair, balances []models.Balance, price float64) float64 {
	total := 0.0
	for _, b := range balances {
		switch b.Currency {
		case pair.Currency:
			total += b.Amount
		case pair.Asset:
			total += b.Amount * price
		}
	}
	return utils.RoundDown(total, 4)
}

// BalanceAvailableAsset is what can be spent on side, in asset units.
// Buying spends the currency leg, selling spends the asset leg.
func BalanceAvailableAsset(pair models.Pair, balances []models.Balance, price float64, side models.Side) float64 {
	spendable := 0.0
	for _, b := range balances {
		if side == models.SideBuy {
			if b.Currency == pair.Currency {
				spendable += b.Available / price
			}
		} else if b.Currency == pair.Asset {
			spendable += b.Available
		}
	}
	return utils.RoundDown(spendable, 4)
}

// LegAmount sums the holdings of a single currency.
func LegAmount(balances []models.Balance, currency string) float64 {
	sum := 0.0
	for _, b := range balances {
		if b.Currency == currency {
			sum += b.Amount
		}
	}
	return sum
}

// LegAvailable sums what is free to trade in a single currency.
func LegAvailable(balances []models.Balance, currency string) float64 {
	sum := 0.0
	for _, b := range balances {
		if b.Currency == currency {
			sum += b.Available
		}
	}
	return sum
}

// CalcOrderSize resolves qty into an order size for side at price. The
// size never exceeds what is available and drops to zero below minOrderSize.
func CalcOrderSize(pair models.Pair, side models.Side, qty models.Quantity, balances []models.Balance, price, minOrderSize float64) models.SizeResult {
	total := BalanceTotalAsset(pair, balances, price)
	available := BalanceAvailableAsset(pair, balances, price, side)

	size := qty.Value
	switch {
	case qty.Units == models.UnitsPercent:
		size = total * (qty.Value / 100)
	case qty.Units == models.UnitsPercentAvailable:
		size = available * (qty.Value / 100)
	case pair.IsCurrency(qty.Units):
		size = qty.Value / price
	}

	if size > available {
		size = available
	}
	if size < minOrderSize {
		size = 0
	}

	return models.SizeResult{
		Total:          total,
		Available:      available,
		IsAllAvailable: size == available,
		OrderSize:      utils.RoundDown(size, 4),
	}
}

// ContractOrderSize sizes orders on exchanges that trade whole contracts.
// Only plain contract counts are accepted.
func ContractOrderSize(qty models.Quantity) (models.SizeResult, bool) {
	if qty.Units != models.UnitsAbsolute {
		return models.SizeResult{}, false
	}
	return models.SizeResult{OrderSize: utils.RoundDown(qty.Value, 0)}, true
}

// ScaledRequest describes a series of limit orders being sized as a whole.
type ScaledRequest struct {
	Side       models.Side
	Amount     models.Quantity
	OrderCount int
	From       float64
	To         float64
	Easing     scaling.Easing
}

// ScaledOrderSize scales the total amount of a series down to what the
// wallet can fund. Amounts with units are returned unchanged. Zero means
// each order would fall below minOrderSize.
func ScaledOrderSize(pair models.Pair, req ScaledRequest, wallet []models.Balance, minOrderSize float64) float64 {
	if req.Amount.Units != models.UnitsAbsolute {
		return req.Amount.Value
	}
	if req.OrderCount < 1 {
		return 0
	}

	desired := req.Amount.Value
	var toSpend float64

	if req.Side == models.SideSell {
		toSpend = math.Min(LegAvailable(wallet, pair.Asset), desired)
	} else {
		perOrder := desired / float64(req.OrderCount)
		needed := 0.0
		for i := 0; i < req.OrderCount; i++ {
			needed += priceAt(req, i) * perOrder
		}

		funds := LegAvailable(wallet, pair.Currency)
		toSpend = desired
		if funds < needed {
			toSpend = desired * (funds / needed)
		}
	}

	if toSpend/float64(req.OrderCount) < minOrderSize {
		return 0
	}
	return utils.RoundDown(toSpend, 6)
}

// ContractScaledOrderSize leaves contract amounts alone; leverage covers
// the funding. Zero means each order would be under minOrderSize contracts.
func ContractScaledOrderSize(req ScaledRequest, minOrderSize float64) float64 {
	if req.Amount.Units == models.UnitsAbsolute && req.OrderCount > 0 {
		if req.Amount.Value/float64(req.OrderCount) < minOrderSize {
			return 0
		}
	}
	return req.Amount.Value
}

func priceAt(req ScaledRequest, i int) float64 {
	if req.OrderCount == 1 {
		return utils.Round(req.From, 2)
	}
	t := float64(i) / float64(req.OrderCount-1)
	return utils.Round(scaling.Ease(req.From, req.To, t, req.Easing), 2)
}
