package features

import (
	"math"
)

// HzToMel uses the HTK formula.
func HzToMel(hz float64) float64 {
	return 2595 * math.Log10(1+hz/700)
}

func MelToHz(mel float64) float64 {
	return 700 * (math.Pow(10, mel/2595) - 1)
}

// MelFilterbank builds nMels triangular filters over the nfft/2+1 STFT bins.
// fb[m][k] is the weight of bin k in mel band m.
func MelFilterbank(nMels, nfft, sampleRate int, fmin, fmax float64) [][]float64 {
	bins := nfft/2 + 1
	binHz := make([]float64, bins)
	for k := range binHz {
		binHz[k] = float64(k) * float64(sampleRate) / float64(nfft)
	}

	melMin, melMax := HzToMel(fmin), HzToMel(fmax)
	edges := make([]float64, nMels+2)
	for i := range edges {
		edges[i] = MelToHz(melMin + (melMax-melMin)*float64(i)/float64(nMels+1))
	}

	fb := make([][]float64, nMels)
	for m := 0; m < nMels; m++ {
		lower, center, upper := edges[m], edges[m+1], edges[m+2]
		row := make([]float64, bins)
		for k, f := range binHz {
			up := (f - lower) / (center - lower)
			down := (upper - f) / (upper - center)
			row[k] = math.Max(0, math.Min(up, down))
		}
		fb[m] = row
	}
	return fb
}

// ApplyFilterbank projects a time-major power spectrogram onto the mel bands,
// returning mel-major output: out[mel][frame].
func ApplyFilterbank(spec [][]float64, fb [][]float64) [][]float64 {
	out := make([][]float64, len(fb))
	for m, weights := range fb {
		row := make([]float64, len(spec))
		for t, frame := range spec {
			var sum float64
			for k, w := range weights {
				if w != 0 {
					sum += w * frame[k]
				}
			}
			row[t] = sum
		}
		out[m] = row
	}
	return out
}

const amin = 1e-10

// PowerToDB converts power values to decibels in place and clips everything
// more than topDB below the peak. topDB <= 0 disables clipping.
func PowerToDB(mel [][]float64, topDB float64) {
	peak := math.Inf(-1)
	for _, row := range mel {
		for i, v := range row {
			db := 10 * math.Log10(math.Max(v, amin))
			row[i] = db
			if db > peak {
				peak = db
			}
		}
	}
	if topDB <= 0 {
		return
	}
	floor := peak - topDB
	for _, row := range mel {
		for i, v := range row {
			if v < floor {
				row[i] = floor
			}
		}
	}
}
