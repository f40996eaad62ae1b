// Package scheduler triggers refresh cycles on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	rcron "github.com/robfig/cron/v3"

	"github.com/okian/upready/internal/domain/refresh"
	"github.com/okian/upready/pkg/logger"
)

const (
	// DefaultSpec runs a cycle every 30 minutes, on the minute.
	DefaultSpec        = "0 */30 * * * *"
	defaultStopTimeout = 5 * time.Second
)

// ErrInvalidSpec is returned for an unparseable schedule.
var ErrInvalidSpec = errors.New("invalid refresh schedule")

// Runner runs one refresh cycle.
type Runner interface {
	RunCycle(ctx context.Context, req refresh.Request) (*refresh.Result, error)
}

// Scheduler runs non-forced refresh cycles on a cron schedule. A tick that
// fires while the previous cycle is still running is skipped.
type Scheduler struct {
	runner  Runner
	spec    string
	timeout time.Duration
	loc     *time.Location
	logger  logger.Logger

	mu     sync.Mutex
	cron   *rcron.Cron
	cancel context.CancelFunc
	runs   atomic.Int64
}

// New validates spec and creates a stopped scheduler.
func New(runner Runner, spec string, opts ...Option) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSpec
	}
	parser := rcron.NewParser(rcron.SecondOptional | rcron.Minute | rcron.Hour | rcron.Dom | rcron.Month | rcron.Dow | rcron.Descriptor)
	if _, err := parser.Parse(spec); err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidSpec, spec, err)
	}
	s := &Scheduler{
		runner: runner,
		spec:   spec,
		loc:    time.Local,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("scheduler")
	}
	return s, nil
}

// Start begins firing cycles. They run under a context derived from ctx,
// and Stop or cancellation of ctx stops the schedule.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	cl := cronLogger{l: s.logger}
	c := rcron.New(
		rcron.WithParser(rcron.NewParser(rcron.SecondOptional|rcron.Minute|rcron.Hour|rcron.Dom|rcron.Month|rcron.Dow|rcron.Descriptor)),
		rcron.WithLocation(s.loc),
		rcron.WithLogger(cl),
		rcron.WithChain(rcron.Recover(cl), rcron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(s.spec, func() { s.tick(runCtx) }); err != nil {
		cancel()
		return fmt.Errorf("%w: %w", ErrInvalidSpec, err)
	}
	c.Start()
	s.cron = c
	s.cancel = cancel
	s.logger.Info(ctx, "refresh schedule started", logger.String("spec", s.spec))

	go func() {
		<-runCtx.Done()
		s.Stop()
	}()
	return nil
}

// Stop halts the schedule and waits for a running cycle to observe
// cancellation.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	cancel()
	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(defaultStopTimeout):
		s.logger.Warn(context.Background(), "stop timeout waiting for running refresh")
	}
	s.logger.Info(context.Background(), "refresh schedule stopped")
}

// Runs returns how many scheduled cycles have started.
func (s *Scheduler) Runs() int64 {
	return s.runs.Load()
}

func (s *Scheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	s.runs.Add(1)
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	res, err := s.runner.RunCycle(ctx, refresh.Request{})
	if err != nil {
		s.logger.Warn(ctx, "scheduled refresh failed", logger.Error(err))
		return
	}
	if res != nil {
		s.logger.Debug(ctx, "scheduled refresh finished", logger.String("outcome", string(res.Outcome)))
	}
}

// cronLogger adapts logger.Logger to rcron.Logger.
type cronLogger struct {
	l logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(context.Background(), "cron: "+msg, kvFields(keysAndValues)...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(context.Background(), "cron: "+msg, append(kvFields(keysAndValues), logger.Error(err))...)
}

func kvFields(kv []interface{}) []logger.Field {
	fields := make([]logger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		fields = append(fields, logger.Any(key, kv[i+1]))
	}
	return fields
}
