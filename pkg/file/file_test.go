package file

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplaceExt(t *testing.T) {
	assert.Equal(t, filepath.Join("a", "b.wav"), ReplaceExt(filepath.Join("a", "b.mp4"), "wav"))
	assert.Equal(t, filepath.Join("a", "b.wav"), ReplaceExt(filepath.Join("a", "b"), ".wav"))
	assert.Equal(t, filepath.Join("a", ".hidden.json"), ReplaceExt(filepath.Join("a", ".hidden"), "json"))
	assert.Equal(t, "", ReplaceExt("", "wav"))
}

func TestJoinUnder(t *testing.T) {
	base := t.TempDir()

	p, ok := JoinUnder(base, "job.mp4")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(base, "job.mp4"), p)

	_, ok = JoinUnder(base, "../escape.mp4")
	assert.False(t, ok)
}

func TestNonEmptyAndRemoveIfExists(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty")
	full := filepath.Join(dir, "full")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	require.NoError(t, os.WriteFile(full, []byte("x"), 0o644))

	assert.False(t, NonEmpty(empty))
	assert.True(t, NonEmpty(full))
	assert.False(t, NonEmpty(dir))
	assert.False(t, NonEmpty(filepath.Join(dir, "missing")))

	require.NoError(t, RemoveIfExists(full))
	require.NoError(t, RemoveIfExists(full))
	require.NoError(t, RemoveIfExists(""))
	assert.NoFileExists(t, full)
}

func TestFindOlderThan(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "old.mp4")
	fresh := filepath.Join(dir, "fresh.mp4")
	require.NoError(t, os.WriteFile(old, []byte("o"), 0o644))
	require.NoError(t, os.WriteFile(fresh, []byte("f"), 0o644))

	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	stale, err := FindOlderThan(dir, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{old}, stale)

	stale, err = FindOlderThan(filepath.Join(dir, "missing"), time.Now())
	require.NoError(t, err)
	assert.Empty(t, stale)
}
