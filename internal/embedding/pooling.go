package embedding

// MeanPool averages the token embeddings in hidden (seqLen x dims, row-major)
// whose attention mask is set. An all-zero mask yields a zero vector.
func MeanPool(hidden []float32, mask []int64, dims int) []float32 {
	out := make([]float32, dims)
	sums := make([]float64, dims)
	var count float64
	for tok, m := range mask {
		if m == 0 {
			continue
		}
		row := hidden[tok*dims : (tok+1)*dims]
		for j, v := range row {
			sums[j] += float64(v)
		}
		count++
	}
	if count == 0 {
		return out
	}
	for j := range sums {
		out[j] = float32(sums[j] / count)
	}
	return out
}
