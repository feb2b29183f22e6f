package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Loader turns any file ffmpeg can read into a Track at a fixed sample rate.
// Mono PCM WAV files already at that rate are read directly.
type Loader struct {
	sampleRate int
	seconds    float64
	tempDir    string
	tags       bool
}

type LoaderOption func(*Loader)

// WithSeconds limits decoding to the leading n seconds. Zero decodes all.
func WithSeconds(n float64) LoaderOption {
	return func(l *Loader) {
		l.seconds = n
	}
}

// WithTempDir sets where converted WAV files are written.
func WithTempDir(dir string) LoaderOption {
	return func(l *Loader) {
		l.tempDir = dir
	}
}

// WithoutTags skips tag extraction.
func WithoutTags() LoaderOption {
	return func(l *Loader) {
		l.tags = false
	}
}

func NewLoader(sampleRate int, opts ...LoaderOption) *Loader {
	l := &Loader{
		sampleRate: sampleRate,
		tempDir:    os.TempDir(),
		tags:       true,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Loader) SampleRate() int {
	return l.sampleRate
}

func (l *Loader) Load(ctx context.Context, path string) (*Track, error) {
	samples, sr, err := l.decode(ctx, path)
	if err != nil {
		return nil, err
	}

	track := &Track{
		Path:       path,
		Samples:    samples,
		SampleRate: sr,
	}

	if l.tags {
		md, err := ReadMetadata(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("reading tags of %s: %w", path, err)
		}
		track.Metadata = md
	}

	return track, nil
}

func (l *Loader) decode(ctx context.Context, path string) ([]float64, int, error) {
	if l.native(path) {
		return ReadWav(path, l.seconds)
	}

	wavPath, err := ConvertToMonoWAV(ctx, path, l.tempDir, ConvertConfig{
		SampleRate: l.sampleRate,
		Seconds:    l.seconds,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("converting %s: %w", path, err)
	}
	defer os.Remove(wavPath)

	return ReadWav(wavPath, l.seconds)
}

// native reports whether path needs no conversion.
func (l *Loader) native(path string) bool {
	if !strings.EqualFold(filepath.Ext(path), ".wav") {
		return false
	}
	info, err := ReadWavInfo(path)
	if err != nil {
		return false
	}
	return info.PCM && info.Channels == 1 && info.SampleRate == l.sampleRate
}
