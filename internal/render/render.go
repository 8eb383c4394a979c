package render

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/MimeLyc/clipwave/internal/cliperr"
	"github.com/MimeLyc/clipwave/internal/jobs"
	"github.com/MimeLyc/clipwave/internal/media"
	"github.com/MimeLyc/clipwave/pkg/file"
	"github.com/MimeLyc/clipwave/pkg/log"
)

type Renderer struct {
	media       media.Operator
	stepTimeout time.Duration
	// strict fails the render on the first clip that cannot be extracted
	// instead of dropping it.
	strict bool
}

type Result struct {
	OutputPath string
	Segments   []jobs.Segment
}

func NewRenderer(op media.Operator, stepTimeout time.Duration, strict bool) *Renderer {
	return &Renderer{media: op, stepTimeout: stepTimeout, strict: strict}
}

// Render cuts ranges out of src and joins them into out. Temporary clips are
// written under workDir and removed once the output exists.
func (r *Renderer) Render(ctx context.Context, src string, ranges []jobs.TimeRange, workDir, out string) (*Result, error) {
	duration, err := r.probe(ctx, src)
	known := err == nil && duration > 0
	if !known {
		log.Warn("Duration of %s unknown, ranges are not clamped to it: %v", src, err)
	}

	candidates := Clamp(ranges, duration, known)
	if dropped := len(ranges) - len(candidates); dropped > 0 {
		log.Info("Dropped %d of %d ranges as empty after clamping", dropped, len(ranges))
	}
	if len(candidates) == 0 {
		return nil, cliperr.NewError(cliperr.ErrNoValidSegments, "no usable time ranges to render").
			WithContext("requested", len(ranges))
	}

	var (
		clips []string
		kept  []Candidate
	)
	defer func() {
		for _, clip := range clips {
			if err := file.RemoveIfExists(clip); err != nil {
				log.Warn("Failed to remove temporary clip %s: %v", clip, err)
			}
		}
	}()

	for i, c := range candidates {
		clip := filepath.Join(workDir, fmt.Sprintf("clip_%d.mp4", i+1))
		err := r.step(ctx, func(ctx context.Context) error {
			return r.media.TrimClip(ctx, src, c.Start, c.End, clip)
		})
		if err == nil && !file.NonEmpty(clip) {
			err = fmt.Errorf("empty clip")
		}
		if err != nil {
			_ = file.RemoveIfExists(clip)
			if r.strict {
				return nil, cliperr.WrapError(err, cliperr.ErrRenderFailed, "clip extraction failed").
					WithContext("range", fmt.Sprintf("%.1f-%.1f", c.Start, c.End))
			}
			log.Warn("Skipping range %.1f-%.1f: %v", c.Start, c.End, err)
			continue
		}
		clips = append(clips, clip)
		kept = append(kept, c)
	}
	if len(clips) == 0 {
		return nil, cliperr.NewError(cliperr.ErrRenderFailed, "every clip extraction failed").
			WithContext("candidates", len(candidates))
	}

	listFile := filepath.Join(workDir, "concat.txt")
	defer func() { _ = file.RemoveIfExists(listFile) }()
	if err := media.WriteConcatList(listFile, clips); err != nil {
		return nil, cliperr.WrapError(err, cliperr.ErrRenderFailed, "write concat list")
	}

	err = r.step(ctx, func(ctx context.Context) error {
		return r.media.Concat(ctx, listFile, out)
	})
	if err == nil && !file.NonEmpty(out) {
		err = fmt.Errorf("concat produced no output")
	}
	if err != nil {
		_ = file.RemoveIfExists(out)
		return nil, cliperr.WrapError(err, cliperr.ErrRenderFailed, "concatenate clips")
	}

	log.Info("Rendered %d clips into %s", len(kept), out)
	return &Result{OutputPath: out, Segments: Describe(kept)}, nil
}

// Describe numbers candidates from 1 and formats their timings.
func Describe(candidates []Candidate) []jobs.Segment {
	segments := make([]jobs.Segment, 0, len(candidates))
	for i, c := range candidates {
		segments = append(segments, jobs.Segment{
			Index:     i + 1,
			Label:     fmt.Sprintf("Clip %d", i+1),
			Start:     c.Start,
			End:       c.End,
			Duration:  fmt.Sprintf("%.1fs", c.Duration()),
			Timeframe: fmt.Sprintf("%.1fs - %.1fs", c.Start, c.End),
		})
	}
	return segments
}

func (r *Renderer) probe(ctx context.Context, src string) (float64, error) {
	var duration float64
	err := r.step(ctx, func(ctx context.Context) error {
		d, err := r.media.ProbeDuration(ctx, src)
		duration = d
		return err
	})
	return duration, err
}

func (r *Renderer) step(ctx context.Context, fn func(context.Context) error) error {
	if r.stepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.stepTimeout)
		defer cancel()
	}
	return fn(ctx)
}
