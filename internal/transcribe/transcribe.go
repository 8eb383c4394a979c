package transcribe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MimeLyc/clipwave/internal/cliperr"
	"github.com/MimeLyc/clipwave/pkg/file"
	"github.com/MimeLyc/clipwave/pkg/log"
	"golang.org/x/sync/semaphore"
	"golang.org/x/text/language"
)

// Segment is one recognised stretch of speech, in seconds from the start.
type Segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type Transcript struct {
	Language string
	Segments []Segment
}

// Backend turns a mono 16 kHz wav into a transcript.
type Backend interface {
	Name() string
	Transcribe(ctx context.Context, wavPath string) (Transcript, error)
}

type AudioExtractor interface {
	ExtractAudio(ctx context.Context, src, outWav string) error
}

// Transcriber extracts audio from a media file and hands it to a backend.
// At most concurrency transcriptions run at once across all jobs.
type Transcriber struct {
	backend Backend
	audio   AudioExtractor
	sem     *semaphore.Weighted
	timeout time.Duration
}

func New(backend Backend, audio AudioExtractor, concurrency int, timeout time.Duration) *Transcriber {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Transcriber{
		backend: backend,
		audio:   audio,
		sem:     semaphore.NewWeighted(int64(concurrency)),
		timeout: timeout,
	}
}

func (t *Transcriber) Transcribe(ctx context.Context, mediaPath string) (Transcript, error) {
	if err := t.sem.Acquire(ctx, 1); err != nil {
		return Transcript{}, cliperr.WrapError(err, cliperr.ErrTranscriptionFailed, "waiting for a transcription slot")
	}
	defer t.sem.Release(1)

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	wavPath := file.ReplaceExt(mediaPath, ".wav")
	if err := t.audio.ExtractAudio(ctx, mediaPath, wavPath); err != nil {
		return Transcript{}, cliperr.WrapError(err, cliperr.ErrTranscriptionFailed, "media has no readable audio track")
	}
	defer func() {
		if err := file.RemoveIfExists(wavPath); err != nil {
			log.Warn("Failed to remove %s: %v", wavPath, err)
		}
	}()

	start := time.Now()
	transcript, err := t.backend.Transcribe(ctx, wavPath)
	if err != nil {
		return Transcript{}, cliperr.WrapError(err, cliperr.ErrTranscriptionFailed,
			fmt.Sprintf("%s transcription failed", t.backend.Name()))
	}

	transcript.Segments = clean(transcript.Segments)
	if len(transcript.Segments) == 0 {
		return Transcript{}, cliperr.NewError(cliperr.ErrTranscriptionFailed, "no speech recognised")
	}
	log.Info("Transcribed %s with %s: %d segments in %s",
		mediaPath, t.backend.Name(), len(transcript.Segments), time.Since(start).Round(time.Millisecond))
	return transcript, nil
}

func clean(segments []Segment) []Segment {
	out := make([]Segment, 0, len(segments))
	for _, s := range segments {
		s.Text = strings.TrimSpace(s.Text)
		if s.Text == "" || s.End <= s.Start {
			continue
		}
		out = append(out, s)
	}
	return out
}

// languageCode reduces a tag to the ISO 639-1 code both backends expect.
func languageCode(tag language.Tag) string {
	if tag == language.Und {
		return ""
	}
	base, _ := tag.Base()
	return base.String()
}
