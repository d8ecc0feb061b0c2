// Package scheduler runs the pipeline on a cron schedule and on demand,
// never more than one run at a time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobpost-ingest/internal/jobs"
	"github.com/JakeFAU/jobpost-ingest/internal/logging"
	"github.com/JakeFAU/jobpost-ingest/internal/pipeline"
)

// ErrRunInProgress is returned by Trigger while a run is active.
var ErrRunInProgress = errors.New("a run is already in progress")

// Runner executes one pipeline run.
type Runner interface {
	RunWithID(ctx context.Context, runID string, sources []jobs.SourceDescriptor) (pipeline.Stats, error)
}

// Result is the outcome of the most recent finished run.
type Result struct {
	Stats pipeline.Stats
	Err   error
}

// Scheduler owns the cron loop and the single-run guard.
type Scheduler struct {
	runner  Runner
	ids     jobs.IDGenerator
	sources []jobs.SourceDescriptor
	spec    string
	cron    *cron.Cron
	logger  *zap.Logger

	mu      sync.Mutex
	running string
	last    *Result
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New validates spec (standard five-field cron; empty disables the schedule).
func New(runner Runner, ids jobs.IDGenerator, sources []jobs.SourceDescriptor, spec string, logger *zap.Logger) (*Scheduler, error) {
	if runner == nil || ids == nil {
		return nil, errors.New("runner and id generator are required")
	}
	cronParser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if spec != "" {
		if _, err := cronParser.Parse(spec); err != nil {
			return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		runner:  runner,
		ids:     ids,
		sources: sources,
		spec:    spec,
		cron:    cron.New(cron.WithParser(cronParser), cron.WithChain(cron.Recover(cron.DefaultLogger))),
		logger:  logging.OrNop(logger).Named("scheduler"),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start begins firing the schedule.
func (s *Scheduler) Start() error {
	if s.spec == "" {
		s.logger.Info("no schedule configured; runs start only on demand")
		return nil
	}
	if _, err := s.cron.AddFunc(s.spec, s.fire); err != nil {
		return fmt.Errorf("add schedule: %w", err)
	}
	s.cron.Start()
	s.logger.Info("scheduler started", zap.String("cron", s.spec))
	return nil
}

func (s *Scheduler) fire() {
	if _, err := s.Trigger(); errors.Is(err, ErrRunInProgress) {
		s.logger.Warn("scheduled run skipped; previous run still active")
	} else if err != nil {
		s.logger.Error("scheduled run failed to start", zap.Error(err))
	}
}

// Trigger starts a run in the background and returns its ID.
func (s *Scheduler) Trigger() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return "", errors.New("scheduler is stopped")
	}
	if s.running != "" {
		return "", ErrRunInProgress
	}
	runID, err := s.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}
	s.running = runID
	s.wg.Add(1)
	go s.execute(runID)
	return runID, nil
}

func (s *Scheduler) execute(runID string) {
	defer s.wg.Done()
	stats, err := s.runner.RunWithID(s.ctx, runID, s.sources)
	if err != nil {
		s.logger.Warn("run ended with error", zap.String("run_id", runID), zap.Error(err))
	}
	s.mu.Lock()
	s.running = ""
	s.last = &Result{Stats: stats, Err: err}
	s.mu.Unlock()
}

// Running returns the active run ID, or "" when idle.
func (s *Scheduler) Running() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Last returns the most recent finished run, if any.
func (s *Scheduler) Last() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return Result{}, false
	}
	return *s.last, true
}

// Wait blocks until no run is in flight.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Stop halts the schedule, cancels any active run and waits for it.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}
