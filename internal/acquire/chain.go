package acquire

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MimeLyc/clipwave/internal/cliperr"
	"github.com/MimeLyc/clipwave/pkg/file"
	"github.com/MimeLyc/clipwave/pkg/log"
)

// Fetcher performs a single download attempt into dest.
type Fetcher interface {
	Fetch(ctx context.Context, ref, dest string, attempt Attempt) error
}

// Chain walks a fixed list of attempts until one leaves a non-empty file at
// the destination.
type Chain struct {
	fetcher  Fetcher
	attempts []Attempt
	timeout  time.Duration
}

func NewChain(fetcher Fetcher, attempts []Attempt, timeout time.Duration) *Chain {
	return &Chain{
		fetcher:  fetcher,
		attempts: attempts,
		timeout:  timeout,
	}
}

// Acquire downloads ref to dest. On failure dest does not exist and the
// returned error is an ErrAcquisitionFailed summarising every attempt.
func (c *Chain) Acquire(ctx context.Context, ref, dest string) error {
	failures := make([]string, 0, len(c.attempts))
	tried := 0

	for i, attempt := range c.attempts {
		if err := ctx.Err(); err != nil {
			failures = append(failures, fmt.Sprintf("stopped before attempt %d: %v", i+1, err))
			break
		}

		c.clear(dest)
		tried++
		log.Info("Acquire attempt %d/%d: %s", i+1, len(c.attempts), attempt)

		err := c.try(ctx, ref, dest, attempt)
		if err == nil && file.NonEmpty(dest) {
			log.Info("Acquired %s with %s", ref, attempt)
			return nil
		}
		if err == nil {
			err = fmt.Errorf("no usable file at destination")
		}
		log.Warn("Acquire attempt %d failed: %v", i+1, err)
		failures = append(failures, fmt.Sprintf("%s: %s", attempt, firstLine(err.Error())))
	}

	c.clear(dest)
	return cliperr.NewError(cliperr.ErrAcquisitionFailed,
		fmt.Sprintf("could not download %s: %d of %d attempts failed", ref, tried, len(c.attempts))).
		WithContext("tried", strings.Join(failures, "; "))
}

func (c *Chain) try(ctx context.Context, ref, dest string, attempt Attempt) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return c.fetcher.Fetch(ctx, ref, dest, attempt)
}

func (c *Chain) clear(dest string) {
	for _, p := range []string{dest, dest + ".part", dest + ".ytdl"} {
		if err := file.RemoveIfExists(p); err != nil {
			log.Warn("Failed to remove %s: %v", p, err)
		}
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
