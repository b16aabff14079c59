package correlation

import "math"

// Pearson computes the Pearson correlation coefficient between two
// equal-length vectors. If either vector has zero
// variance, it returns (0, true) rather than dividing by zero.
func Pearson(a, b []float64) (rho float64, zeroVariance bool) {
	n := len(a)
	if n == 0 || n != len(b) {
		return 0, true
	}

	meanA := mean(a)
	meanB := mean(b)

	var num, sumSqA, sumSqB float64
	for i := 0; i < n; i++ {
		da := a[i] - meanA
		db := b[i] - meanB
		num += da * db
		sumSqA += da * da
		sumSqB += db * db
	}

	if sumSqA == 0 || sumSqB == 0 {
		return 0, true
	}

	return num / math.Sqrt(sumSqA*sumSqB), false
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}

// stdDev returns the population standard deviation of v.
func stdDev(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	m := mean(v)
	var sumSq float64
	for _, x := range v {
		d := x - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(v)))
}
