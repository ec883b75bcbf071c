// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/yieldscope/internal/aggregator"
	"github.com/rovshanmuradov/yieldscope/internal/export"
)

// DefaultRefreshTimeout bounds one scheduled collection.
const DefaultRefreshTimeout = 2 * time.Minute

// Collector produces a merged opportunity snapshot. *aggregator.Aggregator satisfies it.
type Collector interface {
	Collect(ctx context.Context) aggregator.Snapshot
}

// Exporter persists snapshots. *export.SnapshotExporter satisfies it.
type Exporter interface {
	ExportAll(snap aggregator.Snapshot, dir string, formats []export.ExportFormat) ([]string, error)
}

// Invalidator drops cached source data before a refresh.
type Invalidator interface {
	Invalidate()
}

// Observer marks completed refreshes. *metrics.Collector satisfies it.
type Observer interface {
	MarkRefresh(t time.Time)
}

// Options configures the scheduler. Zero values disable export.
type Options struct {
	Spec         string
	Timeout      time.Duration
	ExportDir    string
	Formats      []export.ExportFormat
	Invalidators []Invalidator
}

// Scheduler refreshes the opportunity snapshot on a cron spec and keeps the latest one.
type Scheduler struct {
	cron      *cron.Cron
	collector Collector
	exporter  Exporter
	observer  Observer
	opts      Options
	logger    *zap.Logger

	mu      sync.RWMutex
	latest  aggregator.Snapshot
	hasData bool
	running sync.Mutex
}

// New creates a scheduler. exporter and observer may be nil.
func New(collector Collector, exporter Exporter, observer Observer, opts Options, logger *zap.Logger) *Scheduler {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultRefreshTimeout
	}
	return &Scheduler{
		cron:      cron.New(),
		collector: collector,
		exporter:  exporter,
		observer:  observer,
		opts:      opts,
		logger:    logger.Named("scheduler"),
	}
}

// Start registers the refresh job and starts the cron loop. An empty spec only allows RunNow.
func (s *Scheduler) Start() error {
	if s.opts.Spec == "" {
		s.logger.Info("Refresh schedule disabled")
		return nil
	}
	_, err := s.cron.AddFunc(s.opts.Spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.Timeout)
		defer cancel()
		if _, err := s.RunNow(ctx); err != nil {
			s.logger.Warn("Scheduled refresh failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("Refresh scheduler started", zap.String("spec", s.opts.Spec))
	return nil
}

// Stop halts the cron loop and waits for a running refresh.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("Refresh scheduler stopped")
}

// ErrRefreshInProgress is returned when RunNow overlaps another refresh.
var ErrRefreshInProgress = errors.New("refresh already in progress")

// RunNow collects immediately, stores the snapshot and exports it.
// Export failures are logged; the snapshot is still kept.
func (s *Scheduler) RunNow(ctx context.Context) (aggregator.Snapshot, error) {
	if !s.running.TryLock() {
		return aggregator.Snapshot{}, ErrRefreshInProgress
	}
	defer s.running.Unlock()

	for _, inv := range s.opts.Invalidators {
		inv.Invalidate()
	}

	start := time.Now()
	snap := s.collector.Collect(ctx)
	if err := ctx.Err(); err != nil {
		return snap, err
	}

	s.mu.Lock()
	s.latest = snap
	s.hasData = true
	s.mu.Unlock()

	if s.observer != nil {
		s.observer.MarkRefresh(snap.CollectedAt)
	}
	s.logger.Info("Snapshot refreshed",
		zap.Int("opportunities", len(snap.Opportunities)),
		zap.Int("failures", len(snap.Failures)),
		zap.Duration("duration", time.Since(start)))

	if s.exporter != nil && s.opts.ExportDir != "" && len(s.opts.Formats) > 0 {
		paths, err := s.exporter.ExportAll(snap, s.opts.ExportDir, s.opts.Formats)
		if err != nil {
			s.logger.Error("Snapshot export failed", zap.Error(err))
		} else {
			s.logger.Debug("Snapshot written", zap.Strings("files", paths))
		}
	}
	return snap, nil
}

// Latest returns the most recent snapshot and whether one exists.
func (s *Scheduler) Latest() (aggregator.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.hasData
}
