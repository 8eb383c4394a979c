package acquire

import (
	"context"
	"fmt"
	"os/exec"
)

// YtDlp fetches media by shelling out to yt-dlp.
type YtDlp struct {
	bin string
}

func NewYtDlp(bin string) *YtDlp {
	if bin == "" {
		bin = "yt-dlp"
	}
	return &YtDlp{bin: bin}
}

func (y *YtDlp) Fetch(ctx context.Context, ref, dest string, attempt Attempt) error {
	cmdPath, err := exec.LookPath(y.bin)
	if err != nil {
		return err
	}
	out, err := exec.CommandContext(ctx, cmdPath, y.args(ref, dest, attempt)...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("yt-dlp: %w\n%s", err, tail(out, 1024))
	}
	return nil
}

// args always passes --no-mtime: the download's mtime must be its local
// write time, or the retention sweep sees it as stale.
func (*YtDlp) args(ref, dest string, attempt Attempt) []string {
	if attempt.Kind == KindMinimal {
		return []string{"--no-mtime", "-o", dest, ref}
	}

	args := []string{
		"--no-mtime",
		"--no-playlist",
		"--no-progress",
		"--no-warnings",
		"--merge-output-format", "mp4",
		"-o", dest,
	}
	if attempt.CookieFile != "" {
		args = append(args, "--cookies", attempt.CookieFile)
	}
	if attempt.UserAgent != "" {
		args = append(args, "--user-agent", attempt.UserAgent)
	}
	if attempt.Format != "" {
		args = append(args, "-f", attempt.Format)
	}
	if attempt.ExtractorArgs != "" {
		args = append(args, "--extractor-args", attempt.ExtractorArgs)
	}
	return append(args, ref)
}

func tail(b []byte, n int) string {
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return string(b)
}
