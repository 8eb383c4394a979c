package acquire

import (
	"context"
	"path/filepath"
	"time"

	"github.com/MimeLyc/clipwave/pkg/log"
)

type Options struct {
	Credentials    Credentials
	UserAgents     []string
	Formats        []string
	ExtractorHints []string
	AttemptTimeout time.Duration
}

// Downloader builds a fresh attempt chain for every call. Credentials are
// written next to dest, inside the caller's per-job directory.
type Downloader struct {
	fetcher Fetcher
	opts    Options
}

func NewDownloader(fetcher Fetcher, opts Options) *Downloader {
	return &Downloader{fetcher: fetcher, opts: opts}
}

func (d *Downloader) Acquire(ctx context.Context, ref, dest string) error {
	cookieFile, err := d.opts.Credentials.Materialize(filepath.Dir(dest))
	if err != nil {
		log.Warn("Skipping credentialed attempts: %v", err)
		cookieFile = ""
	}

	attempts := BuildAttempts(AttemptConfig{
		CookieFile:     cookieFile,
		UserAgents:     d.opts.UserAgents,
		Formats:        d.opts.Formats,
		ExtractorHints: d.opts.ExtractorHints,
	})
	return NewChain(d.fetcher, attempts, d.opts.AttemptTimeout).Acquire(ctx, ref, dest)
}
