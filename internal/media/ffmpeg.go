package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/MimeLyc/clipwave/pkg/log"
)

// Operator is the subset of ffmpeg/ffprobe the pipeline relies on.
type Operator interface {
	ProbeDuration(ctx context.Context, path string) (float64, error)
	ExtractAudio(ctx context.Context, src, outWav string) error
	TrimClip(ctx context.Context, src string, start, end float64, out string) error
	Concat(ctx context.Context, listFile, out string) error
}

type FFmpeg struct {
	ffmpegCmd  string
	ffprobeCmd string
}

func NewFFmpeg(ffmpegBin, ffprobeBin string) *FFmpeg {
	if ffmpegBin == "" {
		ffmpegBin = "ffmpeg"
	}
	if ffprobeBin == "" {
		ffprobeBin = "ffprobe"
	}
	return &FFmpeg{
		ffmpegCmd:  ffmpegBin,
		ffprobeCmd: ffprobeBin,
	}
}

// ProbeDuration returns the container duration in seconds.
func (ff *FFmpeg) ProbeDuration(ctx context.Context, path string) (float64, error) {
	cmdPath, err := exec.LookPath(ff.ffprobeCmd)
	if err != nil {
		return 0, err
	}
	output, err := exec.CommandContext(ctx, cmdPath, ff.probeArgs(path)...).Output()
	if err != nil {
		log.Error("Failed to run ffprobe on %s: %v", path, err)
		return 0, fmt.Errorf("ffprobe duration: %w", err)
	}

	var probeResult struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(output, &probeResult); err != nil {
		return 0, fmt.Errorf("parse ffprobe output: %w", err)
	}

	raw := strings.TrimSpace(probeResult.Format.Duration)
	if raw == "" || raw == "N/A" {
		return 0, fmt.Errorf("ffprobe reported no duration for %s", path)
	}
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", raw, err)
	}
	return seconds, nil
}

// ExtractAudio writes a mono 16 kHz wav, the input format whisper.cpp expects.
func (ff *FFmpeg) ExtractAudio(ctx context.Context, src, outWav string) error {
	return ff.run(ctx, "extract audio", []string{
		"-y",
		"-i", src,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-f", "wav",
		outWav,
	})
}

// TrimClip copies [start, end) of src into out without re-encoding.
func (ff *FFmpeg) TrimClip(ctx context.Context, src string, start, end float64, out string) error {
	return ff.run(ctx, "trim clip", ff.trimArgs(src, start, end, out))
}

// Concat joins the clips named in an ffmpeg concat list file.
func (ff *FFmpeg) Concat(ctx context.Context, listFile, out string) error {
	return ff.run(ctx, "concat", []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
		"-c", "copy",
		out,
	})
}

// WriteConcatList writes clips in order as an ffmpeg concat demuxer list.
func WriteConcatList(path string, clips []string) error {
	var b strings.Builder
	for _, clip := range clips {
		// single quotes inside a quoted path are closed, escaped and reopened
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(clip, "'", `'\''`))
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

func (ff *FFmpeg) run(ctx context.Context, what string, args []string) error {
	cmdPath, err := exec.LookPath(ff.ffmpegCmd)
	if err != nil {
		return err
	}
	b, err := exec.CommandContext(ctx, cmdPath, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg %s: %w\n%s", what, err, tail(b, 2048))
	}
	return nil
}

func (*FFmpeg) probeArgs(path string) []string {
	return []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "json",
		path,
	}
}

func (*FFmpeg) trimArgs(src string, start, end float64, out string) []string {
	return []string{
		"-y",
		"-i", src,
		"-ss", formatSeconds(start),
		"-to", formatSeconds(end),
		"-c", "copy",
		"-avoid_negative_ts", "make_zero",
		out,
	}
}

func formatSeconds(sec float64) string {
	return strconv.FormatFloat(sec, 'f', 3, 64)
}

func tail(b []byte, n int) string {
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return string(b)
}
