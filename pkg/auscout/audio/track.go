package audio

import (
	"time"

	"github.com/himanishpuri/AudioScout/pkg/auscout/protocol"
)

// Track is one decoded file: mono samples in [-1, 1] at SampleRate plus the
// tags found in the source.
type Track struct {
	Path       string
	Samples    []float64
	SampleRate int
	Metadata   protocol.TrackMetadata
}

// Duration of the decoded samples, which may be shorter than the source.
func (t *Track) Duration() time.Duration {
	if t.SampleRate == 0 {
		return 0
	}
	return time.Duration(len(t.Samples)) * time.Second / time.Duration(t.SampleRate)
}
