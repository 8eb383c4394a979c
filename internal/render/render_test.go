package render

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/MimeLyc/clipwave/internal/cliperr"
	"github.com/MimeLyc/clipwave/internal/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMedia struct {
	mu        sync.Mutex
	duration  float64
	probeErr  error
	failTrim  map[float64]bool
	trims     []Candidate
	concatErr error
	listBody  string
}

func (f *fakeMedia) ProbeDuration(context.Context, string) (float64, error) {
	return f.duration, f.probeErr
}

func (f *fakeMedia) ExtractAudio(context.Context, string, string) error {
	return nil
}

func (f *fakeMedia) TrimClip(_ context.Context, _ string, start, end float64, out string) error {
	f.mu.Lock()
	f.trims = append(f.trims, Candidate{Start: start, End: end})
	f.mu.Unlock()
	if f.failTrim[start] {
		return errors.New("exit status 1")
	}
	return os.WriteFile(out, []byte("clip"), 0644)
}

func (f *fakeMedia) Concat(_ context.Context, listFile, out string) error {
	body, err := os.ReadFile(listFile)
	if err != nil {
		return err
	}
	f.listBody = string(body)
	if f.concatErr != nil {
		return f.concatErr
	}
	return os.WriteFile(out, []byte("joined"), 0644)
}

func TestClamp(t *testing.T) {
	ranges := []jobs.TimeRange{{Start: 10, End: 5}, {Start: 0, End: 20}, {Start: -3, End: 4}, {Start: 15, End: 18}}

	assert.Equal(t, []Candidate{{Start: 0, End: 15}, {Start: 0, End: 4}}, Clamp(ranges, 15, true))
	assert.Equal(t, []Candidate{{Start: 0, End: 20}, {Start: 0, End: 4}, {Start: 15, End: 18}}, Clamp(ranges, 0, false))
	assert.Empty(t, Clamp(nil, 15, true))
}

func TestRender_ClampsAndDescribes(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.mp4")
	fm := &fakeMedia{duration: 15}
	r := NewRenderer(fm, 0, false)

	res, err := r.Render(context.Background(), "src.mp4", []jobs.TimeRange{{Start: 10, End: 5}, {Start: 0, End: 20}}, dir, out)
	require.NoError(t, err)

	assert.Equal(t, out, res.OutputPath)
	require.Len(t, res.Segments, 1)
	seg := res.Segments[0]
	assert.Equal(t, 1, seg.Index)
	assert.Equal(t, "Clip 1", seg.Label)
	assert.Equal(t, 0.0, seg.Start)
	assert.Equal(t, 15.0, seg.End)
	assert.Equal(t, "15.0s", seg.Duration)
	assert.Equal(t, "0.0s - 15.0s", seg.Timeframe)

	assert.FileExists(t, out)
	assert.NoFileExists(t, filepath.Join(dir, "clip_1.mp4"))
	assert.NoFileExists(t, filepath.Join(dir, "concat.txt"))
	assert.Equal(t, "file '"+filepath.Join(dir, "clip_1.mp4")+"'\n", fm.listBody)
}

func TestRender_NoValidSegments(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.mp4")
	fm := &fakeMedia{duration: 15}
	r := NewRenderer(fm, 0, false)

	for _, ranges := range [][]jobs.TimeRange{nil, {{Start: 20, End: 30}, {Start: 4, End: 4}}} {
		_, err := r.Render(context.Background(), "src.mp4", ranges, dir, out)
		require.Error(t, err)
		assert.True(t, cliperr.IsErrorType(err, cliperr.ErrNoValidSegments))
		assert.NoFileExists(t, out)
	}
	assert.Empty(t, fm.trims)
}

func TestRender_UnknownDurationSkipsUpperClamp(t *testing.T) {
	dir := t.TempDir()
	fm := &fakeMedia{probeErr: errors.New("ffprobe missing")}
	r := NewRenderer(fm, 0, false)

	res, err := r.Render(context.Background(), "src.mp4", []jobs.TimeRange{{Start: 100, End: 130}}, dir, filepath.Join(dir, "out.mp4"))
	require.NoError(t, err)
	require.Len(t, res.Segments, 1)
	assert.Equal(t, "30.0s", res.Segments[0].Duration)
}

func TestRender_PermissiveDropsFailedClips(t *testing.T) {
	dir := t.TempDir()
	fm := &fakeMedia{duration: 60, failTrim: map[float64]bool{10: true}}
	r := NewRenderer(fm, 0, false)

	res, err := r.Render(context.Background(), "src.mp4",
		[]jobs.TimeRange{{Start: 0, End: 5}, {Start: 10, End: 20}, {Start: 30, End: 42.5}}, dir, filepath.Join(dir, "out.mp4"))
	require.NoError(t, err)

	require.Len(t, res.Segments, 2)
	assert.Equal(t, "Clip 1", res.Segments[0].Label)
	assert.Equal(t, 2, res.Segments[1].Index)
	assert.Equal(t, 30.0, res.Segments[1].Start)
	assert.Equal(t, "12.5s", res.Segments[1].Duration)
	assert.Equal(t, 2, strings.Count(fm.listBody, "file '"))
}

func TestRender_StrictFailsOnFirstBadClip(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.mp4")
	fm := &fakeMedia{duration: 60, failTrim: map[float64]bool{10: true}}
	r := NewRenderer(fm, 0, true)

	_, err := r.Render(context.Background(), "src.mp4",
		[]jobs.TimeRange{{Start: 0, End: 5}, {Start: 10, End: 20}, {Start: 30, End: 40}}, dir, out)
	require.Error(t, err)
	assert.True(t, cliperr.IsErrorType(err, cliperr.ErrRenderFailed))
	assert.Len(t, fm.trims, 2)
	assert.NoFileExists(t, out)
	assert.NoFileExists(t, filepath.Join(dir, "clip_1.mp4"))
}

func TestRender_AllClipsFailOrConcatFails(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.mp4")

	fm := &fakeMedia{duration: 60, failTrim: map[float64]bool{0: true}}
	_, err := NewRenderer(fm, 0, false).Render(context.Background(), "src.mp4", []jobs.TimeRange{{Start: 0, End: 5}}, dir, out)
	require.Error(t, err)
	assert.True(t, cliperr.IsErrorType(err, cliperr.ErrRenderFailed))

	fm = &fakeMedia{duration: 60, concatErr: errors.New("invalid data found")}
	_, err = NewRenderer(fm, 0, false).Render(context.Background(), "src.mp4", []jobs.TimeRange{{Start: 0, End: 5}}, dir, out)
	require.Error(t, err)
	assert.True(t, cliperr.IsErrorType(err, cliperr.ErrRenderFailed))
	assert.NoFileExists(t, out)
	assert.NoFileExists(t, filepath.Join(dir, "clip_1.mp4"))
}
