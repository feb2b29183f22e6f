package fingerprint

import "math"

const (
	numFilters = 33
	barkWidth  = 1.06
)

// Centre frequencies (Hz) of the critical band filters.
var barkFreqs = [numFilters]float64{
	50, 75, 100, 125, 150, 200, 250, 300,
	350, 400, 450, 510, 570, 635, 700, 770,
	840, 920, 1000, 1085, 1170, 1270, 1370, 1485,
	1600, 1725, 1850, 2000, 2150, 2325, 2500, 2700,
	2900,
}

// hzToBark approximates bark = 6*asinh(f/600).
func hzToBark(f float64) float64 {
	return 6 * math.Asinh(f/600)
}

// barkWeights returns one row of spectral weights per filter for a
// half-spectrum of nfftHalf bins at sample rate sr.
func barkWeights(sr, nfftHalf int) [][]float64 {
	maxFreq := float64(sr / 2)

	binBarks := make([]float64, nfftHalf)
	for i := range binBarks {
		binBarks[i] = hzToBark(float64(i) * maxFreq / float64(nfftHalf))
	}

	wts := make([][]float64, numFilters)
	for i := range wts {
		mid := hzToBark(barkFreqs[i])
		row := make([]float64, nfftHalf)
		for j, b := range binBarks {
			diff := b - mid
			lof := -2.5 * (diff/barkWidth - 0.5)
			hif := diff/barkWidth + 0.5
			m := math.Min(math.Min(lof, hif), 0)
			row[j] = math.Pow(10, m)
		}
		wts[i] = row
	}
	return wts
}

// hamming returns a Hamming window of n points.
func hamming(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

// frameLength is the largest power of two not exceeding dur*sr samples.
func frameLength(sr int, dur float64) int {
	n := int(dur * float64(sr))
	if n <= 0 {
		return 0
	}
	length := 1
	for length*2 <= n {
		length *= 2
	}
	return length
}
