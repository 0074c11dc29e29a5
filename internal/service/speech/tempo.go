package speech

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrInvalidSpeed is returned for non-positive or non-finite playback speeds.
var ErrInvalidSpeed = errors.New("playback speed must be a positive number")

// AtempoChain 把任意倍速拆成若干个 0.5~2.0 之间的 atempo 滤镜。
func AtempoChain(speed float64) (string, error) {
	if speed <= 0 || math.IsNaN(speed) || math.IsInf(speed, 0) {
		return "", fmt.Errorf("%w: %v", ErrInvalidSpeed, speed)
	}

	var filters []string
	remaining := speed
	for remaining > 2.0 {
		filters = append(filters, "atempo=2.0")
		remaining /= 2.0
	}
	for remaining < 0.5 {
		filters = append(filters, "atempo=0.5")
		remaining *= 2.0
	}
	filters = append(filters, "atempo="+formatFactor(remaining))
	return strings.Join(filters, ","), nil
}

func formatFactor(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// Tempo changes playback speed with ffmpeg, preserving pitch.
type Tempo struct {
	lookPath func(string) (string, error)
	run      func(ctx context.Context, name string, args ...string) error
}

// NewTempo uses the ffmpeg found on PATH.
func NewTempo() *Tempo {
	return &Tempo{
		lookPath: exec.LookPath,
		run: func(ctx context.Context, name string, args ...string) error {
			return exec.CommandContext(ctx, name, args...).Run()
		},
	}
}

// Available reports whether ffmpeg can be found.
func (t *Tempo) Available() bool {
	_, err := t.lookPath("ffmpeg")
	return err == nil
}

// Apply returns audio at the requested speed. The bool is false when the audio
// was returned unchanged: speed 1, or no ffmpeg.
func (t *Tempo) Apply(ctx context.Context, audio []byte, format string, speed float64) ([]byte, bool, error) {
	if speed == 1 || len(audio) == 0 {
		return audio, false, nil
	}
	chain, err := AtempoChain(speed)
	if err != nil {
		return audio, false, err
	}
	ffmpeg, err := t.lookPath("ffmpeg")
	if err != nil {
		return audio, false, nil
	}

	dir, err := os.MkdirTemp("", "enrique-tts-")
	if err != nil {
		return audio, false, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	ext := "." + strings.TrimPrefix(strings.ToLower(format), ".")
	if ext == "." {
		ext = ".mp3"
	}
	in := filepath.Join(dir, "in"+ext)
	out := filepath.Join(dir, "out"+ext)
	if err := os.WriteFile(in, audio, 0o600); err != nil {
		return audio, false, fmt.Errorf("write ffmpeg input: %w", err)
	}

	if err := t.run(ctx, ffmpeg, "-y", "-i", in, "-filter:a", chain, "-vn", out); err != nil {
		return audio, false, fmt.Errorf("ffmpeg atempo: %w", err)
	}

	adjusted, err := os.ReadFile(out)
	if err != nil {
		return audio, false, fmt.Errorf("read ffmpeg output: %w", err)
	}
	return adjusted, true, nil
}
