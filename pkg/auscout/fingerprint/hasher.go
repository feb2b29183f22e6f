package fingerprint

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"sort"

	"github.com/mjibson/go-dsp/fft"

	"github.com/himanishpuri/AudioScout/pkg/auscout/protocol"
)

const (
	// MinSampleRate is the lowest rate the filter bank is defined for.
	MinSampleRate = 6000
	// MaxToggles is the number of bits in a hash frame.
	MaxToggles = numFilters - 1

	frameDuration = 0.40
)

var (
	ErrSampleRate = errors.New("fingerprint: sample rate below 6000 Hz")
	ErrTooShort   = errors.New("fingerprint: audio too short for three analysis frames")
)

// Hasher computes perceptual hashes from mono samples at a fixed sample rate.
// Its window and filter bank are built once and reused across files.
type Hasher struct {
	sampleRate  int
	frameLength int
	advance     int
	window      []float64
	weights     [][]float64
}

func NewHasher(sampleRate int) (*Hasher, error) {
	if sampleRate < MinSampleRate {
		return nil, fmt.Errorf("%w: got %d", ErrSampleRate, sampleRate)
	}
	fl := frameLength(sampleRate, frameDuration)
	// 31/32 overlap between consecutive frames
	advance := fl - 31*fl/32
	return &Hasher{
		sampleRate:  sampleRate,
		frameLength: fl,
		advance:     advance,
		window:      hamming(fl),
		weights:     barkWeights(sampleRate, fl/2),
	}, nil
}

func (h *Hasher) SampleRate() int {
	return h.sampleRate
}

// FrameLength is the analysis window in samples.
func (h *Hasher) FrameLength() int {
	return h.frameLength
}

// Hash returns one 32-bit value per interior analysis frame and, when
// toggles > 0, that many variants of the whole sequence. Variant k flips, in
// every frame, the frame's k-th least reliable bit: the one whose band energy
// difference was closest to zero.
func (h *Hasher) Hash(samples []float64, toggles int) (protocol.HashSequence, []protocol.HashSequence, error) {
	if toggles < 0 || toggles > MaxToggles {
		return nil, nil, fmt.Errorf("fingerprint: toggle count %d outside 0..%d", toggles, MaxToggles)
	}

	coeffs := h.bandEnergies(samples)
	if len(coeffs) < 3 {
		return nil, nil, ErrTooShort
	}

	nbHashes := len(coeffs) - 2
	hashes := make(protocol.HashSequence, nbHashes)
	var order [][]int
	if toggles > 0 {
		order = make([][]int, nbHashes)
	}

	diffs := make([]float64, MaxToggles)
	for i := 1; i < len(coeffs)-1; i++ {
		var v uint32
		for m := 0; m < MaxToggles; m++ {
			d := (coeffs[i+1][m] - coeffs[i+1][m+1]) - (coeffs[i-1][m] - coeffs[i-1][m+1])
			v <<= 1
			if d > 0 {
				v |= 1
			}
			diffs[m] = math.Abs(d)
		}
		hashes[i-1] = v

		if toggles > 0 {
			order[i-1] = weakestBits(diffs, toggles)
		}
	}

	if toggles == 0 {
		return hashes, nil, nil
	}

	variants := make([]protocol.HashSequence, toggles)
	for k := range variants {
		v := make(protocol.HashSequence, nbHashes)
		for f, hv := range hashes {
			v[f] = toggleBit(hv, order[f][k])
		}
		variants[k] = v
	}
	return hashes, variants, nil
}

// bandEnergies returns the critical band energies of every full frame.
func (h *Hasher) bandEnergies(samples []float64) [][]float64 {
	if len(samples) < h.frameLength {
		return nil
	}
	nfftHalf := h.frameLength / 2
	frame := make([]float64, h.frameLength)
	mag := make([]float64, nfftHalf)

	var coeffs [][]float64
	for start := 0; start+h.frameLength <= len(samples); start += h.advance {
		for i := range frame {
			frame[i] = h.window[i] * samples[start+i]
		}
		spectrum := fft.FFTReal(frame)
		for i := range mag {
			mag[i] = cmplx.Abs(spectrum[i])
		}

		bands := make([]float64, numFilters)
		for b, row := range h.weights {
			var sum float64
			for j, w := range row {
				sum += w * mag[j]
			}
			bands[b] = sum
		}
		coeffs = append(coeffs, bands)
	}
	return coeffs
}

// weakestBits returns the indices of the n smallest diffs, ties broken by index.
func weakestBits(diffs []float64, n int) []int {
	idx := make([]int, len(diffs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return diffs[idx[a]] < diffs[idx[b]]
	})
	return idx[:n]
}

// toggleBit flips bit m counted from the most significant end, the order in
// which bits are produced.
func toggleBit(v uint32, m int) uint32 {
	return v ^ (0x80000000 >> uint(m))
}
