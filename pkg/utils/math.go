package utils

import "math"

// NormalizeL2 scales x in place to unit L2 norm and returns the norm it had.
// A zero vector is left unchanged. Sums are taken in float64 so long vectors
// do not lose precision.
func NormalizeL2(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return 0
	}
	norm := math.Sqrt(sum)
	for i := range x {
		x[i] = float32(float64(x[i]) / norm)
	}
	return norm
}
