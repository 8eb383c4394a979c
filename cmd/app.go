package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MimeLyc/clipwave/internal/acquire"
	"github.com/MimeLyc/clipwave/internal/config"
	"github.com/MimeLyc/clipwave/internal/jobs"
	"github.com/MimeLyc/clipwave/internal/llm"
	"github.com/MimeLyc/clipwave/internal/media"
	"github.com/MimeLyc/clipwave/internal/pipeline"
	"github.com/MimeLyc/clipwave/internal/progress"
	"github.com/MimeLyc/clipwave/internal/render"
	"github.com/MimeLyc/clipwave/internal/selector"
	"github.com/MimeLyc/clipwave/internal/transcribe"
	"github.com/MimeLyc/clipwave/pkg/icron"
	"github.com/MimeLyc/clipwave/pkg/log"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

type scheduler interface {
	Schedule(ctx context.Context) error
}

type cronEngine interface {
	Start()
	Stop() context.Context
}

type httpServer interface {
	ListenAndServe(addr string) error
	Shutdown(ctx context.Context) error
}

// runWithComponents registers the scheduled jobs, starts the cron engine and
// serves HTTP until ctx is cancelled or the server fails.
func runWithComponents(
	ctx context.Context,
	cfg *config.Config,
	sched scheduler,
	engine cronEngine,
	srv httpServer,
) error {
	if err := sched.Schedule(ctx); err != nil {
		return fmt.Errorf("schedule retention: %w", err)
	}
	engine.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("HTTP server listening on %s", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(cfg.HTTP.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)

		select {
		case <-engine.Stop().Done():
		case <-shutdownCtx.Done():
			log.Warn("Cron jobs still running at shutdown")
		}
		return err
	})
	return g.Wait()
}

// pipelineParts are the stage adapters built from configuration.
type pipelineParts struct {
	selector *selector.Selector
	pipeline *pipeline.Pipeline
}

func buildPipeline(cfg *config.Config, queue *jobs.Queue) (*pipelineParts, error) {
	ff := media.NewFFmpeg(cfg.Render.FFmpegBin, cfg.Render.FFprobeBin)

	var backend transcribe.Backend
	switch cfg.Transcribe.Backend {
	case config.BackendOpenAI:
		backend = transcribe.NewOpenAI(cfg.Transcribe.APIKey, cfg.Transcribe.APIURL, cfg.Transcribe.Model,
			cfg.Transcribe.Language, cfg.Transcribe.Timeout)
	default:
		backend = transcribe.NewWhisperCpp(cfg.Transcribe.WhisperBin, cfg.Transcribe.WhisperModel, cfg.Transcribe.Language)
	}

	chat, err := newLLMClient(cfg.LLM)
	if err != nil {
		return nil, err
	}
	sel := selector.New(chat, cfg.Jobs.DefaultInstruction)

	downloader := acquire.NewDownloader(acquire.NewYtDlp(cfg.Acquire.YtDlpBin), acquire.Options{
		Credentials: acquire.Credentials{
			CookiesB64:  cfg.Acquire.CookiesB64,
			CookiesFile: cfg.Acquire.CookiesFile,
		},
		UserAgents:     cfg.Acquire.UserAgents,
		Formats:        cfg.Acquire.Formats,
		ExtractorHints: cfg.Acquire.ExtractorHints,
		AttemptTimeout: cfg.Acquire.AttemptTimeout,
	})

	p := pipeline.New(pipeline.Deps{
		Acquirer:    downloader,
		Transcriber: transcribe.New(backend, ff, cfg.Transcribe.Concurrency, cfg.Transcribe.Timeout),
		Selector:    sel,
		Renderer:    render.NewRenderer(ff, cfg.Render.StepTimeout, cfg.Render.Strict),
		Progress:    queue,
	}, cfg.WorkDir(), cfg.VideosDir())

	return &pipelineParts{selector: sel, pipeline: p}, nil
}

func newLLMClient(c config.LLMConfig) (*llm.Client, error) {
	client, err := llm.NewClient(&llm.Config{
		APIKey:      c.APIKey,
		APIURL:      c.APIURL,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: c.Temperature,
		Timeout:     c.Timeout,
		SiteURL:     c.SiteURL,
		AppName:     c.AppName,
	})
	if err != nil {
		return nil, fmt.Errorf("create LLM client: %w", err)
	}
	return client, nil
}

// applyRuntimeSettings points the selector at the new model settings.
func applyRuntimeSettings(base config.LLMConfig, sel *selector.Selector, next config.RuntimeSettings) error {
	base.APIURL = next.LLMAPIURL
	base.APIKey = next.LLMAPIKey
	base.Model = next.LLMModel
	chat, err := newLLMClient(base)
	if err != nil {
		return err
	}
	sel.Update(chat, next.DefaultInstruction)
	log.Info("Runtime settings applied: model=%s", next.LLMModel)
	return nil
}

func newCron() *cron.Cron {
	return cron.New(cron.WithParser(icron.Parser))
}

func newQueue(cfg *config.Config, store jobs.Store, hub *progress.Hub) *jobs.Queue {
	return jobs.NewQueue(
		cfg.Jobs.Workers,
		store,
		jobs.WithMaxJobs(cfg.Jobs.MaxJobs),
		jobs.WithNotifier(hub),
	)
}
