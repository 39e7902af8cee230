package scaling

import (
	"math"
	"math/rand"

	"instabot-trader/pkg/utils"
)

// ScaledAmounts splits total into count weights of roughly total/count.
// Each weight is perturbed by up to +/- randomDiff (clamped to [0,1]) before
// the set is rescaled to add up to total again. rng may be nil when
// randomDiff is zero.
func ScaledAmounts(count int, total, randomDiff float64, precision int, rng *rand.Rand) []float64 {
	if count < 1 {
		return []float64{}
	}

	diff := math.Max(0, math.Min(1, randomDiff))
	weights := make([]float64, count)
	sum := 0.0
	for i := range weights {
		weights[i] = 1
		if diff > 0 && rng != nil {
			weights[i] += RandomRange(rng, -diff, diff)
		}
		sum += weights[i]
	}

	scale := total / sum
	amounts := make([]float64, count)
	for i, w := range weights {
		amounts[i] = utils.Round(w*scale, precision)
	}
	return amounts
}

// ScaledPrices eases count prices between from and to, both ends included.
// randomDiff jitters each price by up to that fraction of the gap between
// neighbouring prices; jittered prices never leave the range.
func ScaledPrices(count int, from, to, randomDiff float64, easing Easing, rng *rand.Rand) []float64 {
	if count < 1 {
		return []float64{}
	}
	if count == 1 {
		return []float64{utils.Round(from, 2)}
	}

	low, high := math.Min(from, to), math.Max(from, to)
	step := (high - low) / float64(count-1)
	diff := math.Max(0, math.Min(1, randomDiff))

	prices := make([]float64, count)
	for i := range prices {
		price := Ease(from, to, float64(i)/float64(count-1), easing)
		if diff > 0 && rng != nil {
			price += RandomRange(rng, -diff, diff) * step
		}
		prices[i] = utils.Round(math.Max(low, math.Min(high, price)), 2)
	}
	return prices
}

// RandomRange returns a uniform float in [low, high).
func RandomRange(rng *rand.Rand, low, high float64) float64 {
	return low + rng.Float64()*(high-low)
}
