package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/MimeLyc/clipwave/pkg/file"
	"github.com/MimeLyc/clipwave/pkg/icron"
	"github.com/MimeLyc/clipwave/pkg/log"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"
)

// Pruner drops terminal jobs created before cutoff along with their
// artifacts and returns their ids. ActiveIDs lists jobs whose work
// directories belong to a run that may still be going. *jobs.Queue
// implements it.
type Pruner interface {
	DeleteOlderThan(cutoff time.Time) []string
	ActiveIDs() []string
}

type RetentionReport struct {
	JobIDs    []string
	TempFiles int
}

// RetentionService deletes old jobs and stale working files on a cron
// schedule.
type RetentionService struct {
	pruner    Pruner
	cron      *cron.Cron
	retention time.Duration
	workDir   string
	now       func() time.Time

	mu       sync.Mutex
	cronExpr string
	entryID  cron.EntryID
	group    singleflight.Group
}

func NewRetentionService(
	pruner Pruner,
	c *cron.Cron,
	cronExpr string,
	retention time.Duration,
	workDir string,
) *RetentionService {
	return &RetentionService{
		pruner:    pruner,
		cron:      c,
		cronExpr:  cronExpr,
		retention: retention,
		workDir:   workDir,
		now:       time.Now,
	}
}

func (s *RetentionService) Schedule(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scheduleLocked(ctx, s.cronExpr)
}

// Reschedule replaces the cleanup schedule. The old entry stays in place when
// expr is invalid.
func (s *RetentionService) Reschedule(ctx context.Context, expr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if expr == s.cronExpr && s.entryID != 0 {
		return nil
	}
	return s.scheduleLocked(ctx, expr)
}

func (s *RetentionService) scheduleLocked(ctx context.Context, expr string) error {
	schedule, err := icron.Parser.Parse(expr)
	if err != nil {
		return fmt.Errorf("invalid cleanup cron %q: %w", expr, err)
	}
	if s.entryID != 0 {
		s.cron.Remove(s.entryID)
	}
	s.entryID = s.cron.Schedule(schedule, cron.FuncJob(func() {
		if _, err := s.RunOnce(ctx); err != nil {
			log.Error("Retention cleanup failed: %v", err)
		}
	}))
	s.cronExpr = expr

	if info, err := icron.GetTriggerInfo(expr, s.now()); err == nil {
		log.Info("Retention cleanup scheduled with %q, next run at %s", expr, info.Next.Format(time.RFC3339))
	}
	return nil
}

// CronExpr returns the schedule currently in effect.
func (s *RetentionService) CronExpr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cronExpr
}

// RunOnce performs a cleanup pass. Overlapping calls share one pass.
func (s *RetentionService) RunOnce(ctx context.Context) (RetentionReport, error) {
	v, err, _ := s.group.Do("retention", func() (any, error) {
		cutoff := s.now().Add(-s.retention)
		report := RetentionReport{JobIDs: s.pruner.DeleteOlderThan(cutoff)}

		removed, err := s.sweepWorkDir(ctx, cutoff)
		report.TempFiles = removed
		log.Info("Retention cleanup removed %d jobs and %d stale work files older than %s",
			len(report.JobIDs), removed, cutoff.Format(time.RFC3339))
		return report, err
	})
	report, _ := v.(RetentionReport)
	return report, err
}

// sweepWorkDir removes files left behind by runs that never reached their own
// cleanup, then the job directories they emptied. Directories of queued or
// processing jobs are never touched, whatever the age of their files.
func (s *RetentionService) sweepWorkDir(ctx context.Context, cutoff time.Time) (int, error) {
	if s.workDir == "" {
		return 0, nil
	}
	active := s.pruner.ActiveIDs()
	stale, err := file.FindOlderThan(s.workDir, cutoff)
	if err != nil {
		return 0, fmt.Errorf("scan work dir: %w", err)
	}

	removed := 0
	dirs := make(map[string]struct{})
	for _, path := range stale {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		if owner := s.activeOwner(path, active); owner != "" {
			log.Debug("Keeping %s: job %s is still active", path, owner)
			continue
		}
		if err := file.RemoveIfExists(path); err != nil {
			log.Warn("Failed to remove stale file %s: %v", path, err)
			continue
		}
		removed++
		if dir := filepath.Dir(path); dir != filepath.Clean(s.workDir) {
			dirs[dir] = struct{}{}
		}
	}

	// os.Remove refuses directories that still hold fresh files
	for dir := range dirs {
		_ = os.Remove(dir)
	}
	return removed, nil
}

// activeOwner returns the active job whose run directory holds path, or "".
// Run directories are named "<jobID>-<suffix>" directly under the work dir.
func (s *RetentionService) activeOwner(path string, active []string) string {
	rel, err := filepath.Rel(s.workDir, path)
	if err != nil {
		return ""
	}
	top, _, _ := strings.Cut(filepath.ToSlash(rel), "/")
	for _, id := range active {
		if top == id || strings.HasPrefix(top, id+"-") {
			return id
		}
	}
	return ""
}
