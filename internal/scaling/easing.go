// Package scaling spreads amounts and prices across a series of orders.
package scaling

// Easing names a curve used to interpolate between two prices.
type Easing string

const (
	Linear    Easing = "linear"
	EaseIn    Easing = "ease-in"
	EaseOut   Easing = "ease-out"
	EaseInOut Easing = "ease-in-out"
)

// Ease interpolates between from and to at progress t in [0,1].
// Unknown curves fall back to linear.
func Ease(from, to, t float64, kind Easing) float64 {
	return from + (to-from)*curve(t, kind)
}

func curve(t float64, kind Easing) float64 {
	switch kind {
	case EaseIn:
		return t * t
	case EaseOut:
		u := 1 - t
		return 1 - u*u
	case EaseInOut:
		if t < 0.5 {
			return 2 * t * t
		}
		u := 1 - t
		return 1 - 2*u*u
	default:
		return t
	}
}
