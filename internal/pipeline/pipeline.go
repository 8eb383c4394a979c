package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/MimeLyc/clipwave/internal/cliperr"
	"github.com/MimeLyc/clipwave/internal/jobs"
	"github.com/MimeLyc/clipwave/internal/render"
	"github.com/MimeLyc/clipwave/internal/transcribe"
	"github.com/MimeLyc/clipwave/pkg/log"
)

type Acquirer interface {
	Acquire(ctx context.Context, ref, dest string) error
}

type Transcriber interface {
	Transcribe(ctx context.Context, mediaPath string) (transcribe.Transcript, error)
}

type Selector interface {
	SelectRanges(ctx context.Context, transcript []transcribe.Segment, instruction string) ([]jobs.TimeRange, error)
}

type Renderer interface {
	Render(ctx context.Context, src string, ranges []jobs.TimeRange, workDir, out string) (*render.Result, error)
}

// Checkpointer records stage progress for a running job. *jobs.Queue
// implements it.
type Checkpointer interface {
	Checkpoint(id string, progress int, step string) (*jobs.Job, error)
}

type Deps struct {
	Acquirer    Acquirer
	Transcriber Transcriber
	Selector    Selector
	Renderer    Renderer
	Progress    Checkpointer
}

// Pipeline runs acquire, transcribe, select and render for one job at a time.
// Stages run strictly in order and each completed stage is checkpointed.
type Pipeline struct {
	deps      Deps
	workDir   string
	videosDir string
	errors    cliperr.ErrorHandler
}

func New(deps Deps, workDir, videosDir string) *Pipeline {
	return &Pipeline{
		deps:      deps,
		workDir:   workDir,
		videosDir: videosDir,
		errors:    cliperr.NewDefaultErrorHandler(),
	}
}

// OutputPath is where a job's final video is written.
func (p *Pipeline) OutputPath(jobID string) string {
	return filepath.Join(p.videosDir, jobID+".mp4")
}

// Run is a jobs.Executor. The returned error is the job's failure detail.
func (p *Pipeline) Run(ctx context.Context, job *jobs.Job) (*jobs.Outcome, error) {
	var outcome *jobs.Outcome
	err := cliperr.SafeExecute(func() error {
		var err error
		outcome, err = p.run(ctx, job)
		return err
	})
	if err != nil {
		p.errors.Handle(err)
		return nil, err
	}
	return outcome, nil
}

func (p *Pipeline) run(ctx context.Context, job *jobs.Job) (*jobs.Outcome, error) {
	logger := log.GetLogger().With("job=" + job.ID)

	if err := os.MkdirAll(p.videosDir, 0755); err != nil {
		return nil, fmt.Errorf("create videos directory: %w", err)
	}
	if err := os.MkdirAll(p.workDir, 0755); err != nil {
		return nil, fmt.Errorf("create work directory: %w", err)
	}
	tmp, err := os.MkdirTemp(p.workDir, job.ID+"-")
	if err != nil {
		return nil, fmt.Errorf("create job directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tmp); err != nil {
			logger.Warn("Failed to remove job directory %s: %v", tmp, err)
		}
	}()

	source := filepath.Join(tmp, "input.mp4")
	logger.Info("Downloading %s", job.SourceURL)
	if err := p.deps.Acquirer.Acquire(ctx, job.SourceURL, source); err != nil {
		return nil, err
	}
	if err := p.checkpoint(job.ID, jobs.ProgressAcquired, jobs.StepTranscribing); err != nil {
		return nil, err
	}

	transcript, err := p.deps.Transcriber.Transcribe(ctx, source)
	if err != nil {
		return nil, err
	}
	logger.Info("Transcribed %d segments (language %q)", len(transcript.Segments), transcript.Language)
	if err := p.checkpoint(job.ID, jobs.ProgressTranscribed, jobs.StepSelecting); err != nil {
		return nil, err
	}

	ranges, err := p.deps.Selector.SelectRanges(ctx, transcript.Segments, job.Instruction)
	if err != nil {
		return nil, err
	}
	if err := p.checkpoint(job.ID, jobs.ProgressSelected, jobs.StepRendering); err != nil {
		return nil, err
	}

	result, err := p.deps.Renderer.Render(ctx, source, ranges, tmp, p.OutputPath(job.ID))
	if err != nil {
		return nil, err
	}
	logger.Info("Finished with %d segments at %s", len(result.Segments), result.OutputPath)

	return &jobs.Outcome{ResultRef: result.OutputPath, Segments: result.Segments}, nil
}

// checkpoint fails the run when the job can no longer be advanced, which is
// how a deletion during processing stops the remaining stages.
func (p *Pipeline) checkpoint(id string, progress int, step string) error {
	if _, err := p.deps.Progress.Checkpoint(id, progress, step); err != nil {
		return fmt.Errorf("checkpoint %d%%: %w", progress, err)
	}
	return nil
}
