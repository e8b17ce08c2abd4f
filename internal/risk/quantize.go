package risk

import "github.com/shopspring/decimal"

// Step quantization runs on decimals so that an accepted quantity is an
// exact multiple of the venue's qty_step; float division here would leak
// 1e-16 residues into order placement.

func floorToStep(x, step float64) float64 {
	if step <= 0 {
		return x
	}
	dx := decimal.NewFromFloat(x)
	ds := decimal.NewFromFloat(step)
	f, _ := dx.Div(ds).Floor().Mul(ds).Float64()
	return f
}

func ceilToStep(x, step float64) float64 {
	if step <= 0 {
		return x
	}
	dx := decimal.NewFromFloat(x)
	ds := decimal.NewFromFloat(step)
	f, _ := dx.Div(ds).Ceil().Mul(ds).Float64()
	return f
}

// isStepMultiple reports whether qty sits exactly on the step grid.
func isStepMultiple(qty, step float64) bool {
	if step <= 0 {
		return true
	}
	dq := decimal.NewFromFloat(qty)
	ds := decimal.NewFromFloat(step)
	return dq.Mod(ds).IsZero()
}
