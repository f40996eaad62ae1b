// Package worker drains the ingest queue into the biometric store.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/upready/internal/domain/model"
	"github.com/okian/upready/pkg/logger"
	"github.com/okian/upready/pkg/metrics"
)

const (
	metricsUpdateInterval = 5 * time.Second
	poolShutdownTimeout   = 30 * time.Second
)

// ErrUnknownKind is returned for an envelope whose payload does not match its kind.
var ErrUnknownKind = errors.New("unknown ingest kind")

// Writer persists ingested records.
type Writer interface {
	PutSample(ctx context.Context, s model.BiometricSample) error
	PutSleepInterval(ctx context.Context, iv model.SleepInterval) error
	PutWorkout(ctx context.Context, w model.WorkoutSession) error
	SetBirthDate(ctx context.Context, birth time.Time) error
}

// Queue is the receive side workers read from.
type Queue interface {
	Dequeue() <-chan model.Ingest
}

// Worker applies ingested records until its queue closes or it is stopped.
type Worker interface {
	Run(ctx context.Context)
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue  Queue
	writer Writer
	name   string
	busy   *atomic.Int64

	shutdown chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a worker.
func NewInMemoryWorker(queue Queue, writer Writer, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    queue,
		writer:   writer,
		name:     "worker",
		busy:     new(atomic.Int64),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named(w.name)
	}
	return w
}

// Run processes records until ctx is done, Shutdown is called or the queue
// is closed and drained.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	items := w.queue.Dequeue()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case in, ok := <-items:
			if !ok {
				return
			}
			metrics.RecordQueueDequeue()
			if err := w.process(ctx, in); err != nil {
				w.logger.Error(ctx, "ingest failed",
					logger.String("id", in.ID),
					logger.String("kind", string(in.Kind)),
					logger.Error(err),
				)
			}
		}
	}
}

// Shutdown stops the worker and waits for the current record.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.stop()
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) stop() {
	w.stopOnce.Do(func() { close(w.shutdown) })
}

// Done is closed once Run has returned.
func (w *InMemoryWorker) Done() <-chan struct{} {
	return w.done
}

func (w *InMemoryWorker) process(ctx context.Context, in model.Ingest) error { //nolint:gocritic // channel element
	w.busy.Add(1)
	defer w.busy.Add(-1)

	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
		if !in.ReceivedAt.IsZero() {
			metrics.RecordQueueProcessingLatency(float64(time.Since(in.ReceivedAt).Milliseconds()))
		}
	}()

	err := Apply(ctx, w.writer, in)
	if err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "write")
		return err
	}
	metrics.RecordIngested(string(in.Kind))
	return nil
}

// Apply writes the payload of in to w.
func Apply(ctx context.Context, w Writer, in model.Ingest) error { //nolint:gocritic // channel element
	switch {
	case in.Kind == model.IngestSample && in.Sample != nil:
		return w.PutSample(ctx, *in.Sample)
	case in.Kind == model.IngestInterval && in.Interval != nil:
		return w.PutSleepInterval(ctx, *in.Interval)
	case in.Kind == model.IngestWorkout && in.Workout != nil:
		return w.PutWorkout(ctx, *in.Workout)
	case in.Kind == model.IngestBirthDate && in.BirthDate != nil:
		return w.SetBirthDate(ctx, *in.BirthDate)
	}
	return fmt.Errorf("%w: %q", ErrUnknownKind, in.Kind)
}

// Pool runs a fixed set of workers over one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	busy    *atomic.Int64

	shutdown chan struct{}
	stopped  atomic.Bool

	logger logger.Logger
}

// NewPool creates a pool of workerCount workers. A count below one uses
// one worker per CPU.
func NewPool(workerCount int, queue Queue, writer Writer, opts ...PoolOption) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}
	p := &Pool{
		workers:  make([]*InMemoryWorker, workerCount),
		queue:    queue,
		busy:     new(atomic.Int64),
		shutdown: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logger.Get().Named("worker-pool")
	}
	for i := range p.workers {
		name := "worker-" + strconv.Itoa(i)
		w := NewInMemoryWorker(queue, writer, WithName(name), WithLogger(p.logger.Named(name)))
		w.busy = p.busy
		p.workers[i] = w
	}

	metrics.UpdateWorkerCount(workerCount)
	metrics.UpdateWorkerActiveCount(0)
	metrics.UpdateWorkerIdleCount(workerCount)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Start launches every worker and the metrics updater.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	go p.runMetricsUpdater(ctx)
	p.logger.Info(ctx, "worker pool started", logger.Int("workers", len(p.workers)))
}

func (p *Pool) runMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case <-ticker.C:
			p.updateMetrics()
		}
	}
}

func (p *Pool) updateMetrics() {
	active := int(p.busy.Load())
	metrics.UpdateWorkerActiveCount(active)
	metrics.UpdateWorkerIdleCount(len(p.workers) - active)
}

// Shutdown closes the queue and lets the workers drain what is left. Workers
// still running when ctx or the pool timeout expires are stopped.
func (p *Pool) Shutdown(ctx context.Context) error {
	if !p.stopped.CompareAndSwap(false, true) {
		return nil
	}
	defer close(p.shutdown)
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	waitCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-waitCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			for _, rest := range p.workers[i:] {
				rest.stop()
			}
			return fmt.Errorf("worker pool shutdown: %w", waitCtx.Err())
		}
	}
	p.updateMetrics()
	return nil
}
