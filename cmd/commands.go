package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MimeLyc/clipwave/internal/config"
	"github.com/MimeLyc/clipwave/internal/httpapi"
	"github.com/MimeLyc/clipwave/internal/jobs"
	"github.com/MimeLyc/clipwave/internal/persistence"
	"github.com/MimeLyc/clipwave/internal/progress"
	"github.com/MimeLyc/clipwave/internal/service"
	"github.com/MimeLyc/clipwave/pkg/log"
	"github.com/spf13/cobra"
)

// loadConfig reads the environment and overlays the runtime settings file
// when one exists. The returned closer releases the log file, if any.
func loadConfig(extra ...config.Option) (*config.Config, string, func(), error) {
	settingsPath := config.RuntimeSettingsFilePath()
	var opts []config.Option
	settings, err := config.LoadRuntimeSettingsFile(settingsPath)
	switch {
	case err == nil:
		opts = append(opts, config.WithRuntimeSettings(settings))
	case !errors.Is(err, fs.ErrNotExist):
		log.Warn("Ignoring runtime settings file %s: %v", settingsPath, err)
	}
	opts = append(opts, extra...)

	cfg, err := config.NewFromEnv(opts...)
	if err != nil {
		return nil, "", nil, fmt.Errorf("load configuration: %w", err)
	}
	closeLog, err := setupLogger(cfg.System)
	if err != nil {
		return nil, "", nil, err
	}
	return cfg, settingsPath, closeLog, nil
}

func setupLogger(sys config.SystemConfig) (func(), error) {
	level := log.ParseLevel(sys.LogLevel)
	if sys.LogFile == "" {
		log.GetLogger().SetLevel(level)
		return func() {}, nil
	}
	fileLogger, err := log.NewFileLogger(sys.LogFile, level)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	log.SetLogger(fileLogger.Logger)
	return func() { _ = fileLogger.Close() }, nil
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the job workers and the retention schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

func serve(ctx context.Context) error {
	cfg, settingsPath, closeLog, err := loadConfig()
	if err != nil {
		return err
	}
	defer closeLog()

	store, err := persistence.NewSQLiteStore(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("open job store: %w", err)
	}
	defer store.Close()

	hub := progress.NewHub()
	queue := newQueue(cfg, store, hub)
	parts, err := buildPipeline(cfg, queue)
	if err != nil {
		return err
	}
	queue.Start(parts.pipeline.Run)
	defer queue.Stop()

	engine := newCron()
	retention := service.NewRetentionService(queue, engine, cfg.Jobs.CleanupCron, cfg.Jobs.Retention(), cfg.WorkDir())

	settingsStore, err := config.NewRuntimeSettingsStore(settingsPath, cfg.RuntimeSettings())
	if err != nil {
		return fmt.Errorf("runtime settings: %w", err)
	}
	settingsStore.OnUpdate(func(next config.RuntimeSettings) {
		if err := applyRuntimeSettings(cfg.LLM, parts.selector, next); err != nil {
			log.Error("Failed to apply LLM settings: %v", err)
		}
		if err := retention.Reschedule(ctx, next.CleanupCron); err != nil {
			log.Error("Failed to reschedule retention cleanup: %v", err)
		}
	})

	srv := httpapi.NewServer(queue, hub,
		httpapi.WithUI(cfg.HTTP.UIStaticDir, cfg.HTTP.UIEnabled),
		httpapi.WithRuntimeSettingsStore(settingsStore),
	)
	return runWithComponents(ctx, cfg, retention, engine, srv)
}

func newClipCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clip <url>",
		Short: "Process one video in the foreground and print where the result was written",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			instruction, _ := cmd.Flags().GetString("instruction")
			user, _ := cmd.Flags().GetString("user")
			dataDir, _ := cmd.Flags().GetString("data-dir")

			var extra []config.Option
			if dataDir != "" {
				extra = append(extra, func(c *config.Config) { c.System.DataDir = dataDir })
			}
			cfg, _, closeLog, err := loadConfig(extra...)
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return clip(ctx, cfg, jobs.SubmitRequest{
				SourceURL:   args[0],
				Instruction: instruction,
				Owner:       user,
			}, cmd.OutOrStdout())
		},
	}
	cmd.Flags().String("instruction", "", "What to keep from the video (defaults to the configured instruction)")
	cmd.Flags().String("user", "cli", "Owner recorded on the job")
	cmd.Flags().String("data-dir", "", "Override DATA_DIR for this run")
	return cmd
}

func clip(ctx context.Context, cfg *config.Config, req jobs.SubmitRequest, out io.Writer) error {
	if strings.TrimSpace(req.SourceURL) == "" {
		return fmt.Errorf("a video URL is required")
	}

	hub := progress.NewHub()
	// one-shot runs are not recorded in the server's job store
	queue := newQueue(cfg, nil, hub)
	parts, err := buildPipeline(cfg, queue)
	if err != nil {
		return err
	}

	job := queue.Submit(req)
	sub := hub.Subscribe(job.ID, progress.DefaultBuffer)
	queue.Start(parts.pipeline.Run)
	defer queue.Stop()

	final, err := followJob(ctx, queue, sub, out)
	if err != nil {
		return err
	}
	if final.Status == jobs.StatusFailed {
		return fmt.Errorf("job %s failed: %s", final.ID, final.Error)
	}

	fmt.Fprintf(out, "Wrote %s\n", final.ResultRef)
	for _, seg := range final.Segments {
		fmt.Fprintf(out, "  %s  %s  (%s)\n", seg.Label, seg.Timeframe, seg.Duration)
	}
	return nil
}

// followJob prints each snapshot and returns once the job is terminal.
func followJob(ctx context.Context, queue *jobs.Queue, sub *progress.Subscription, out io.Writer) (*jobs.Job, error) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	events := sub.Events()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case snap, ok := <-events:
			if !ok {
				// fall back to polling the registry
				events = nil
				continue
			}
			fmt.Fprintf(out, "[%3d%%] %s\n", snap.Progress, snap.CurrentStep)
			if snap.Status.Terminal() {
				return snap, nil
			}
		case <-ticker.C:
			job, ok := queue.Get(sub.JobID())
			if !ok {
				return nil, fmt.Errorf("job %s disappeared", sub.JobID())
			}
			if job.Status.Terminal() {
				return job, nil
			}
		}
	}
}
