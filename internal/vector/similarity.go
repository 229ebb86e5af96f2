package vector

import (
	"math"

	"github.com/hyperjump/speechlab/pkg/utils"
)

// SquaredL2 returns the squared Euclidean distance between a and b, accumulated in float64.
// a and b must have the same length.
func SquaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

// SimilarityFromDistance maps a squared distance onto the 0-100 similarity scale.
// The mapping is linear and clamps at zero; it is not a calibrated probability.
func SimilarityFromDistance(distance float64) float64 {
	return utils.Round2(math.Max(0, 100-distance))
}

// L2Norm returns the L2 norm of a vector.
func L2Norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}
