package logic

import "golang.org/x/exp/constraints"

// Summary describes a set of raw samples.
type Summary struct {
	N    int
	Min  float64
	Max  float64
	Mean float64
}

// Summarize returns min, max and mean of samples. An empty slice yields a zero Summary.
func Summarize[T constraints.Integer](samples []T) Summary {
	if len(samples) == 0 {
		return Summary{}
	}
	lo, hi := samples[0], samples[0]
	var sum float64
	for _, v := range samples {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
		sum += float64(v)
	}
	return Summary{
		N:    len(samples),
		Min:  float64(lo),
		Max:  float64(hi),
		Mean: sum / float64(len(samples)),
	}
}
