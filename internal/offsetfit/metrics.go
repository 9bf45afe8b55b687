package offsetfit

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

func sumSquaredResiduals(observed, predicted []float64) float64 {
	var ss float64
	for i := range observed {
		d := observed[i] - predicted[i]
		ss += d * d
	}
	return ss
}

// calculateRSquared returns 1 - SSres/SStot, or 0 when the observations have
// no variance
func calculateRSquared(observed, predicted []float64) float64 {
	meanY := stat.Mean(observed, nil)

	var ssTot float64
	for _, y := range observed {
		ssTot += (y - meanY) * (y - meanY)
	}
	if ssTot == 0 {
		return 0
	}
	return 1 - sumSquaredResiduals(observed, predicted)/ssTot
}

func calculateAdjustedRSquared(r2, n, k float64) float64 {
	if n-k-1 <= 0 {
		return 0
	}
	return 1 - ((1-r2)*(n-1))/(n-k-1)
}

func calculateMAE(observed, predicted []float64) float64 {
	if len(observed) == 0 {
		return 0
	}
	var sumAbsError float64
	for i := range observed {
		sumAbsError += math.Abs(observed[i] - predicted[i])
	}
	return sumAbsError / float64(len(observed))
}

func calculateRMSE(observed, predicted []float64) float64 {
	if len(observed) == 0 {
		return 0
	}
	return math.Sqrt(sumSquaredResiduals(observed, predicted) / float64(len(observed)))
}

// minSSE keeps the information criteria finite for exact fits
const minSSE = 1e-300

func calculateAIC(n, rmse, k float64) float64 {
	// AIC = 2k + n*ln(SSE/n), SSE = n * rmse²
	sse := math.Max(n*rmse*rmse, minSSE)
	return 2*k + n*math.Log(sse/n)
}

func calculateBIC(n, rmse, k float64) float64 {
	// BIC = k*ln(n) + n*ln(SSE/n)
	sse := math.Max(n*rmse*rmse, minSSE)
	return k*math.Log(n) + n*math.Log(sse/n)
}
