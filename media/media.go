package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Store is the media-side collaborator: duration probing, clip slicing and
// frame sampling against a seekable source file.
type Store interface {
	Duration(ctx context.Context, path string) (float64, error)
	ExtractClip(ctx context.Context, path string, start, end float64, outPath string) error
	ExtractFrame(ctx context.Context, path string, timestamp float64, outPath string) error
	SampleFrames(ctx context.Context, path string, intervalSec float64, outDir string) error
}

// FFmpegStore shells out to ffmpeg/ffprobe.
type FFmpegStore struct{}

func NewFFmpegStore() *FFmpegStore { return &FFmpegStore{} }

func (s *FFmpegStore) Duration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path)
	var out, errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut
	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("ffprobe %s: %v: %s", path, err, strings.TrimSpace(errOut.String()))
	}
	return strconv.ParseFloat(strings.TrimSpace(out.String()), 64)
}

// ExtractClip stream-copies the [start, end] range into outPath. Stream copy
// keeps extraction fast and bit-exact; timestamps are reset so the clip
// starts at zero.
func (s *FFmpegStore) ExtractClip(ctx context.Context, path string, start, end float64, outPath string) error {
	args := []string{
		"-ss", formatSeconds(start),
		"-to", formatSeconds(end),
		"-i", path,
		"-c:v", "copy",
		"-c:a", "copy",
		"-avoid_negative_ts", "make_zero",
		"-y", outPath,
	}
	return runFFmpeg(ctx, args)
}

func (s *FFmpegStore) ExtractFrame(ctx context.Context, path string, timestamp float64, outPath string) error {
	args := []string{
		"-ss", formatSeconds(timestamp),
		"-i", path,
		"-frames:v", "1",
		"-q:v", "2",
		"-y", outPath,
	}
	return runFFmpeg(ctx, args)
}

// SampleFrames writes one JPEG every intervalSec into outDir, named
// 00001.jpg, 00002.jpg, ... so timestamps can be recovered from the index.
func (s *FFmpegStore) SampleFrames(ctx context.Context, path string, intervalSec float64, outDir string) error {
	pattern := outDir + "/%05d.jpg"
	args := []string{
		"-y", "-i", path,
		"-vf", fmt.Sprintf("fps=1/%g", intervalSec),
		pattern,
	}
	return runFFmpeg(ctx, args)
}

func runFFmpeg(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var errOut bytes.Buffer
	cmd.Stderr = &errOut
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg %v: %v: %s", args, err, lastLine(errOut.String()))
	}
	return nil
}

func formatSeconds(sec float64) string {
	return strconv.FormatFloat(sec, 'f', 3, 64)
}

// lastLine keeps error messages readable; ffmpeg puts the useful part last.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}
