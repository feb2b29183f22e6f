package audio

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/wav"
)

var ErrInvalidWav = errors.New("audio: not a PCM WAV file")

// WavInfo is the header of a WAV file.
type WavInfo struct {
	SampleRate int
	Channels   int
	BitDepth   int
	PCM        bool
}

// ReadWavInfo reads only the header of path.
func ReadWavInfo(path string) (*WavInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidWav, path)
	}
	return &WavInfo{
		SampleRate: int(d.SampleRate),
		Channels:   int(d.NumChans),
		BitDepth:   int(d.BitDepth),
		PCM:        d.WavAudioFormat == 1,
	}, nil
}

// ReadWav decodes a PCM WAV file into mono float samples normalized to
// [-1, 1]. Multi-channel audio is averaged. When maxSeconds > 0 only the
// leading maxSeconds of audio are returned.
func ReadWav(path string, maxSeconds float64) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, 0, fmt.Errorf("%w: %s", ErrInvalidWav, path)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("reading samples from %s: %w", path, err)
	}

	channels := buf.Format.NumChannels
	sampleRate := buf.Format.SampleRate
	bitDepth := buf.SourceBitDepth
	if channels < 1 || bitDepth < 8 || sampleRate <= 0 {
		return nil, 0, fmt.Errorf("%w: %d channels, %d bits, %d Hz", ErrInvalidWav, channels, bitDepth, sampleRate)
	}

	frames := len(buf.Data) / channels
	if limit := int(maxSeconds * float64(sampleRate)); maxSeconds > 0 && frames > limit {
		frames = limit
	}

	// 8-bit PCM is unsigned and centred on 128.
	offset := 0
	if bitDepth == 8 {
		offset = 128
	}
	scale := 1.0 / float64(int(1)<<(uint(bitDepth)-1))
	samples := make([]float64, frames)
	for i := range samples {
		var sum int
		for c := 0; c < channels; c++ {
			sum += buf.Data[i*channels+c] - offset
		}
		samples[i] = float64(sum) * scale / float64(channels)
	}

	return samples, sampleRate, nil
}
