// Command spectrogram renders a PNG for every audio file in a directory,
// covering exactly the samples the client would hash: the same resample
// rate and the same seconds-per-file limit.
package main

import (
	"context"
	"flag"
	"image"
	"image/draw"
	"os"
	"path/filepath"
	"strings"

	"github.com/eligwz/spectrogram"

	"github.com/himanishpuri/AudioScout/pkg/auscout/audio"
	"github.com/himanishpuri/AudioScout/pkg/logger"
	"github.com/himanishpuri/AudioScout/pkg/utils"
)

var (
	inputDir   string
	outputDir  string
	sampleRate int
	seconds    float64
	width      int
	height     int
	logScale   bool
)

func init() {
	flag.StringVar(&inputDir, "in", ".", "Directory of audio files")
	flag.StringVar(&outputDir, "out", "spectrograms", "Directory PNGs are written to")
	flag.IntVar(&sampleRate, "rate", 6000, "Resample rate, as passed to the client")
	flag.Float64Var(&seconds, "seconds", 0, "Seconds per file, 0 for all")
	flag.IntVar(&width, "width", 2048, "Image width")
	flag.IntVar(&height, "height", 512, "Image height (frequency bins)")
	flag.BoolVar(&logScale, "log", false, "Log10 magnitude scale")
}

func main() {
	flag.Parse()
	log := logger.GetLogger()

	if err := utils.MakeDir(outputDir); err != nil {
		log.Fatalf("Failed to create %s: %v", outputDir, err)
	}

	files, err := utils.ListAudioFiles(inputDir)
	if err != nil {
		log.Fatalf("Failed to list %s: %v", inputDir, err)
	}

	loader := audio.NewLoader(sampleRate,
		audio.WithSeconds(seconds),
		audio.WithTempDir(os.TempDir()),
		audio.WithoutTags(),
	)

	ctx := context.Background()
	written := 0
	for _, path := range files {
		track, err := loader.Load(ctx, path)
		if err != nil {
			log.Warnf("Skipping %s: %v", path, err)
			continue
		}
		if len(track.Samples) == 0 {
			log.Warnf("No samples in %s", path)
			continue
		}

		out := filepath.Join(outputDir, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))+".png")
		if err := render(track, out); err != nil {
			log.Errorf("Rendering %s: %v", path, err)
			continue
		}
		log.Infof("%s: %d samples at %d Hz -> %s", path, len(track.Samples), track.SampleRate, out)
		written++
	}

	log.Infof("Wrote %d of %d spectrograms", written, len(files))
}

func render(track *audio.Track, out string) error {
	img := spectrogram.NewImage128(image.Rect(0, 0, width, height))

	black := spectrogram.ParseColor("000000")
	draw.Draw(img, img.Bounds(), image.NewUniform(black), image.Point{}, draw.Src)

	spectrogram.Drawfft(
		img,
		track.Samples,
		uint32(track.SampleRate),
		uint32(height), // bins
		false,          // Hamming window, as the hash uses
		false,          // FFT
		true,           // magnitude
		logScale,
	)

	return spectrogram.SavePng(img, out)
}
