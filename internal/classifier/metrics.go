package classifier

// Accuracy is the fraction of positions where yPred equals yTrue.
func Accuracy(yTrue, yPred []int) float64 {
	if len(yTrue) == 0 || len(yTrue) != len(yPred) {
		return 0
	}
	correct := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(yTrue))
}

// ConfusionMatrix counts m[true][pred] for k classes. Out-of-range labels are ignored.
func ConfusionMatrix(yTrue, yPred []int, k int) [][]int {
	m := make([][]int, k)
	for i := range m {
		m[i] = make([]int, k)
	}
	for i := range yTrue {
		if i >= len(yPred) {
			break
		}
		t, p := yTrue[i], yPred[i]
		if t >= 0 && t < k && p >= 0 && p < k {
			m[t][p]++
		}
	}
	return m
}
