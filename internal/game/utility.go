package game

import "math"

// LogarithmicUtility scores good holdings: sum over goods of
// utilityParam * ln(quantity + 1). The +1 shift keeps empty holdings finite.
// This is the exact function used by both ledger scoring and profitability
// checks; the two must never diverge.
func LogarithmicUtility(utilityParams []float64, holdings []int) float64 {
	score := 0.0
	for i, u := range utilityParams {
		score += u * math.Log(float64(holdings[i])+1)
	}
	return score
}

// MarginalUtility is the utility delta of moving holdings by delta.
func MarginalUtility(utilityParams []float64, holdings, delta []int) float64 {
	after := make([]int, len(holdings))
	for i, h := range holdings {
		after[i] = h + delta[i]
	}
	return LogarithmicUtility(utilityParams, after) - LogarithmicUtility(utilityParams, holdings)
}
