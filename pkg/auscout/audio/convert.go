package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/himanishpuri/AudioScout/pkg/utils"
)

var ErrFFmpegMissing = errors.New("audio: ffmpeg not found in PATH")

type ConvertConfig struct {
	SampleRate int     // e.g. 6000, 8000, 11025
	Seconds    float64 // 0 converts the whole file
}

// ConvertToMonoWAV converts an audio file to mono 16-bit PCM WAV at the
// configured rate and writes it to outputDir under a unique name. The caller
// removes the returned file.
func ConvertToMonoWAV(
	ctx context.Context,
	inputPath string,
	outputDir string,
	cfg ConvertConfig,
) (string, error) {

	if cfg.SampleRate == 0 {
		cfg.SampleRate = 6000
	}

	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return "", ErrFFmpegMissing
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
	}

	if err := utils.MakeDir(outputDir); err != nil {
		return "", err
	}

	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	outputPath := filepath.Join(outputDir, base+"-"+uuid.NewString()+".wav")

	tmpPath := outputPath + ".tmp.wav"
	defer os.Remove(tmpPath)

	args := []string{
		"-y",
		"-v", "quiet",
		"-i", inputPath,
		"-vn",
		"-ac", "1", // mono
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-c:a", "pcm_s16le",
	}
	if cfg.Seconds > 0 {
		args = append(args, "-t", strconv.FormatFloat(cfg.Seconds, 'f', -1, 64))
	}
	args = append(args, tmpPath)

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("ffmpeg failed: %v (%s)", err, out)
	}

	if err := utils.MoveFile(tmpPath, outputPath); err != nil {
		return "", err
	}

	return outputPath, nil
}
