package snapshotter

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"reconquest/internal"
	"reconquest/internal/config"
	"reconquest/internal/pipeline"
)

const leaseName = "stats-baseline"

type Recorder interface {
	Baseline(ctx context.Context) (*internal.StatsBaseline, error)
	RecordBaseline(ctx context.Context) (internal.StatsBaseline, error)
	Report(ctx context.Context) pipeline.Report
}

type Leaser interface {
	Lease(ctx context.Context, name string, ttl time.Duration) (func(), bool, error)
}

// Service periodically records the dashboard stats as the trend baseline.
// A baseline younger than the interval is left alone, so restarts do not
// reset trends. With several replicas the lease elects one writer per cycle.
type Service struct {
	recorder   Recorder
	leaser     Leaser
	interval   time.Duration
	autoExport bool
	outputDir  string
	logger     *zap.Logger
	now        func() time.Time
}

func NewService(recorder Recorder, leaser Leaser, cfg config.Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := time.Duration(cfg.BaselineIntervalSec) * time.Second
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Service{
		recorder:   recorder,
		leaser:     leaser,
		interval:   interval,
		autoExport: cfg.BaselineAutoExport,
		outputDir:  cfg.OutputDir,
		logger:     logger.Named("snapshotter"),
		now:        time.Now,
	}
}

func (s *Service) Run(ctx context.Context) error {
	for {
		if err := s.runCycle(ctx); err != nil {
			s.logger.Error("snapshot cycle failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.nextWait()):
		}
	}
}

// nextWait polls at a tenth of the interval, bounded to [1s, 1h], so a due
// baseline is not missed by much after a restart.
func (s *Service) nextWait() time.Duration {
	wait := s.interval / 10
	if wait < time.Second {
		wait = time.Second
	}
	if wait > time.Hour {
		wait = time.Hour
	}
	return wait
}

func (s *Service) runCycle(ctx context.Context) error {
	due, err := s.due(ctx)
	if err != nil {
		return err
	}
	if !due {
		return nil
	}

	release, ok, err := s.leaser.Lease(ctx, leaseName, s.interval/2)
	if err != nil {
		return fmt.Errorf("acquire lease: %w", err)
	}
	if !ok {
		s.logger.Debug("baseline lease held elsewhere")
		return nil
	}
	defer release()

	b, err := s.recorder.RecordBaseline(ctx)
	if err != nil {
		return err
	}

	if s.autoExport {
		if err := s.export(ctx); err != nil {
			return err
		}
	}

	s.logger.Info("snapshot cycle done", zap.String("recorded_at", b.RecordedAt))
	return nil
}

func (s *Service) due(ctx context.Context) (bool, error) {
	b, err := s.recorder.Baseline(ctx)
	if err != nil {
		// an unreadable baseline is replaced
		s.logger.Warn("baseline unreadable", zap.Error(err))
		return true, nil
	}
	if b == nil {
		return true, nil
	}
	recorded, err := time.Parse(time.RFC3339, b.RecordedAt)
	if err != nil {
		return true, nil
	}
	return s.now().Sub(recorded) >= s.interval, nil
}

func (s *Service) export(ctx context.Context) error {
	report := s.recorder.Report(ctx)
	filename := fmt.Sprintf("report_%s.xlsx", s.now().UTC().Format("20060102T150405Z"))
	return pipeline.ExportReportToXLSX(report, filepath.Join(s.outputDir, "snapshots", filename))
}
