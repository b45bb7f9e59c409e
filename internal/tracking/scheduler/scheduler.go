package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"mailtrack-backend/internal/tracking/dto"
	"mailtrack-backend/internal/tracking/repository"
	"mailtrack-backend/pkg/logger"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Syncer runs the sync pipeline for one user.
type Syncer interface {
	SyncEmails(ctx context.Context, userID string) (*dto.SyncResult, error)
}

// Clock abstracts time for the scheduler loop.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Task is one due sync for a user.
type Task struct {
	UserID string
	Tick   time.Time
}

// SyncScheduler fires the sync pipeline for every active connection on a
// cron schedule. Cycles never overlap: a single goroutine runs them.
type SyncScheduler struct {
	connections  repository.ConnectionRepository
	syncer       Syncer
	schedule     cron.Schedule
	runOnStartup bool
	clock        Clock
	logger       *zap.Logger

	started  atomic.Bool
	stopChan chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

type Option func(*SyncScheduler)

func WithClock(c Clock) Option {
	return func(s *SyncScheduler) { s.clock = c }
}

// NewSyncScheduler parses expr as a standard five-field cron expression.
func NewSyncScheduler(
	connections repository.ConnectionRepository,
	syncer Syncer,
	expr string,
	runOnStartup bool,
	log *zap.Logger,
	opts ...Option,
) (*SyncScheduler, error) {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", expr, err)
	}
	s := &SyncScheduler{
		connections:  connections,
		syncer:       syncer,
		schedule:     schedule,
		runOnStartup: runOnStartup,
		clock:        realClock{},
		logger:       logger.OrNop(log).Named("scheduler"),
		stopChan:     make(chan struct{}),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Next returns the first tick strictly after t.
func (s *SyncScheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t)
}

// Plan returns the tasks due at tick: one per active connection, oldest
// sync first.
func (s *SyncScheduler) Plan(ctx context.Context, tick time.Time) ([]Task, error) {
	conns, err := s.connections.FindActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active connections: %w", err)
	}
	tasks := make([]Task, 0, len(conns))
	for _, conn := range conns {
		tasks = append(tasks, Task{UserID: conn.UserID, Tick: tick})
	}
	return tasks, nil
}

// RunCycle plans the tick and runs every task sequentially. A failing or
// panicking user pipeline is logged and the cycle moves on. Cancelling ctx
// skips the remaining tasks but never interrupts a pipeline already running.
// It returns the number of tasks that completed without error.
func (s *SyncScheduler) RunCycle(ctx context.Context, tick time.Time) int {
	tasks, err := s.Plan(ctx, tick)
	if err != nil {
		s.logger.Error("failed to plan sync cycle", zap.Error(err))
		return 0
	}
	if len(tasks) == 0 {
		return 0
	}

	s.logger.Info("starting sync cycle", zap.Int("connections", len(tasks)))
	succeeded := 0
	for i, task := range tasks {
		if ctx.Err() != nil {
			s.logger.Info("sync cycle interrupted", zap.Int("skipped", len(tasks)-i))
			break
		}
		if s.runTask(context.WithoutCancel(ctx), task) {
			succeeded++
		}
	}
	s.logger.Info("sync cycle finished",
		zap.Int("connections", len(tasks)),
		zap.Int("succeeded", succeeded))
	return succeeded
}

func (s *SyncScheduler) runTask(ctx context.Context, task Task) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("sync pipeline panicked", zap.String("user_id", task.UserID), zap.Any("panic", r))
			ok = false
		}
	}()

	if _, err := s.syncer.SyncEmails(ctx, task.UserID); err != nil {
		s.logger.Error("sync failed", zap.String("user_id", task.UserID), zap.Error(err))
		return false
	}
	return true
}

// Start begins the scheduler loop. Calling it again is a no-op.
func (s *SyncScheduler) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	s.logger.Info("starting email sync scheduler", zap.Bool("run_on_startup", s.runOnStartup))

	go func() {
		defer close(s.done)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			select {
			case <-s.stopChan:
				cancel()
			case <-ctx.Done():
			}
		}()

		if s.runOnStartup {
			s.RunCycle(ctx, s.clock.Now())
		}

		for {
			now := s.clock.Now()
			next := s.schedule.Next(now)

			select {
			case <-s.clock.After(next.Sub(now)):
				s.RunCycle(ctx, next)
			case <-s.stopChan:
				s.logger.Info("scheduler stopped")
				return
			}
		}
	}()
}

// Stop signals the loop and waits for an in-flight cycle to return.
func (s *SyncScheduler) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	if !s.started.Load() {
		return nil
	}
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
