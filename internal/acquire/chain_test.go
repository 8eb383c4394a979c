package acquire

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MimeLyc/clipwave/internal/cliperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedFetcher plays back one behaviour per call.
type scriptedFetcher struct {
	mu    sync.Mutex
	steps []func(ctx context.Context, dest string) error
	seen  []Attempt
}

func (f *scriptedFetcher) Fetch(ctx context.Context, _ string, dest string, attempt Attempt) error {
	f.mu.Lock()
	i := len(f.seen)
	f.seen = append(f.seen, attempt)
	f.mu.Unlock()
	if i >= len(f.steps) {
		return errors.New("HTTP Error 403: Forbidden")
	}
	return f.steps[i](ctx, dest)
}

func fail(msg string) func(context.Context, string) error {
	return func(context.Context, string) error { return errors.New(msg) }
}

func writeBytes(b []byte) func(context.Context, string) error {
	return func(_ context.Context, dest string) error { return os.WriteFile(dest, b, 0o644) }
}

func attemptsN(n int) []Attempt {
	out := make([]Attempt, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Attempt{Kind: KindClient, Format: "f"})
	}
	return out
}

func TestChain_EmptyFileIsNotSuccess(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "input.mp4")
	fetcher := &scriptedFetcher{steps: []func(context.Context, string) error{
		fail("Sign in to confirm you're not a bot"),
		writeBytes(nil),
		writeBytes([]byte("video bytes")),
	}}

	err := NewChain(fetcher, attemptsN(4), time.Second).Acquire(context.Background(), "https://example.test/v", dest)
	require.NoError(t, err)
	assert.Len(t, fetcher.seen, 3)

	raw, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "video bytes", string(raw))
}

func TestChain_AllAttemptsFail(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "input.mp4")
	fetcher := &scriptedFetcher{steps: []func(context.Context, string) error{
		fail("geo blocked"),
		writeBytes(nil),
		func(_ context.Context, dest string) error {
			_ = os.WriteFile(dest, []byte("partial"), 0o644)
			return errors.New("connection reset\nmore detail")
		},
	}}

	err := NewChain(fetcher, attemptsN(3), time.Second).Acquire(context.Background(), "https://example.test/v", dest)
	require.Error(t, err)
	assert.True(t, cliperr.IsErrorType(err, cliperr.ErrAcquisitionFailed))
	assert.Contains(t, err.Error(), "3 of 3 attempts failed")
	assert.Contains(t, err.Error(), "geo blocked")
	assert.Contains(t, err.Error(), "no usable file at destination")
	assert.Contains(t, err.Error(), "connection reset")
	assert.NotContains(t, err.Error(), "more detail")
	assert.NoFileExists(t, dest)
}

func TestChain_AttemptTimeoutMovesOn(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "input.mp4")
	fetcher := &scriptedFetcher{steps: []func(context.Context, string) error{
		func(ctx context.Context, _ string) error {
			<-ctx.Done()
			return ctx.Err()
		},
		writeBytes([]byte("ok")),
	}}

	start := time.Now()
	err := NewChain(fetcher, attemptsN(2), 50*time.Millisecond).Acquire(context.Background(), "ref", dest)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Len(t, fetcher.seen, 2)
}

func TestChain_StopsWhenContextCancelled(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "input.mp4")
	ctx, cancel := context.WithCancel(context.Background())
	fetcher := &scriptedFetcher{steps: []func(context.Context, string) error{
		func(context.Context, string) error {
			cancel()
			return errors.New("interrupted")
		},
	}}

	err := NewChain(fetcher, attemptsN(5), time.Second).Acquire(ctx, "ref", dest)
	require.Error(t, err)
	assert.True(t, cliperr.IsErrorType(err, cliperr.ErrAcquisitionFailed))
	assert.Len(t, fetcher.seen, 1)
}

func TestCredentials_Materialize(t *testing.T) {
	dir := t.TempDir()
	bundle := "# Netscape HTTP Cookie File\n.example.test\tTRUE\t/\tTRUE\t0\tSID\tabc\n"

	path, err := Credentials{CookiesB64: base64.StdEncoding.EncodeToString([]byte(bundle))}.Materialize(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "cookies.txt"), path)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, bundle, string(raw))

	src := filepath.Join(t.TempDir(), "cookies-src.txt")
	require.NoError(t, os.WriteFile(src, []byte(bundle), 0o644))
	other := t.TempDir()
	path, err = Credentials{CookiesFile: src}.Materialize(other)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(other, "cookies.txt"), path)

	path, err = Credentials{}.Materialize(dir)
	require.NoError(t, err)
	assert.Empty(t, path)

	_, err = Credentials{CookiesB64: "%%%not-base64"}.Materialize(dir)
	require.Error(t, err)
}

func TestDownloader_CredentialedAttemptsFirst(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "input.mp4")
	fetcher := &scriptedFetcher{steps: []func(context.Context, string) error{
		writeBytes([]byte("video")),
	}}

	d := NewDownloader(fetcher, Options{
		Credentials:    Credentials{CookiesB64: base64.StdEncoding.EncodeToString([]byte("cookie"))},
		UserAgents:     []string{"ua"},
		Formats:        []string{"best"},
		AttemptTimeout: time.Second,
	})
	require.NoError(t, d.Acquire(context.Background(), "ref", dest))

	require.Len(t, fetcher.seen, 1)
	assert.Equal(t, KindCredentialed, fetcher.seen[0].Kind)
	assert.Equal(t, filepath.Join(dir, "cookies.txt"), fetcher.seen[0].CookieFile)
}

func TestDownloader_BadCredentialsFallBackToClients(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "input.mp4")
	fetcher := &scriptedFetcher{steps: []func(context.Context, string) error{
		writeBytes([]byte("video")),
	}}

	d := NewDownloader(fetcher, Options{
		Credentials: Credentials{CookiesFile: filepath.Join(t.TempDir(), "missing.txt")},
		UserAgents:  []string{"ua"},
		Formats:     []string{"best"},
	})
	require.NoError(t, d.Acquire(context.Background(), "ref", dest))
	assert.Equal(t, KindClient, fetcher.seen[0].Kind)
}
