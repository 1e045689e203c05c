// Package worker runs the crawl worker pool: a fixed number of goroutines
// draining a shared FIFO of targets, each retrying its current target with a
// linear backoff until a per-target failure ceiling kills that worker alone.
package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/opencampus/portal-crawler/internal/metrics"
	"github.com/opencampus/portal-crawler/internal/queue"
)

// Outcome classifies one task attempt so the retry loop branches on kind
// instead of sniffing error identity.
type Outcome int

const (
	// Succeeded means the target is done; move to the next one.
	Succeeded Outcome = iota
	// Retry means the attempt failed in a way that may pass later:
	// network flakes, remote 5xx, or losing an insert race to a sibling.
	Retry
	// Abort means retrying is pointless: usage errors and failed
	// authentication. The worker gives up immediately.
	Abort
)

// Classifier maps a task error to an Outcome. A nil error is always
// Succeeded regardless of the classifier.
type Classifier func(error) Outcome

// Task processes one crawl target. All side effects go through the
// reconciliation controller the closure was built with.
type Task[T any] func(ctx context.Context, target T) error

// TaskFactory builds the task closure for one worker. Each worker gets its
// own closure so store connections and controllers are never shared across
// goroutines.
type TaskFactory[T any] func(workerID int) (Task[T], error)

const (
	baseDelay    = 5 * time.Second
	maxExtra     = 55 * time.Second
	fatalCeiling = 10
	pollEvery    = 5 * time.Second
)

// Config controls a pool.
type Config struct {
	// Name labels the pool's metrics, usually the crawl phase name.
	Name string
	// Workers is the pool size; zero means 6.
	Workers int
	// Sleep is the retry delay function, replaceable in tests.
	// Defaults to time.Sleep.
	Sleep func(time.Duration)
	// Poll is the orchestrator's queue-drain polling interval.
	// Defaults to 5s.
	Poll time.Duration
}

// Pool drains one queue with a fixed set of workers.
type Pool[T any] struct {
	queue    *queue.FIFO[T]
	factory  TaskFactory[T]
	classify Classifier
	cfg      Config
	log      *zap.Logger
}

// NewPool builds a pool over the queue. The classifier may be nil, in which
// case every error is retried.
func NewPool[T any](q *queue.FIFO[T], factory TaskFactory[T], classify Classifier, cfg Config, log *zap.Logger) *Pool[T] {
	metrics.Init()
	if cfg.Name == "" {
		cfg.Name = "pool"
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 6
	}
	if cfg.Sleep == nil {
		cfg.Sleep = time.Sleep
	}
	if cfg.Poll <= 0 {
		cfg.Poll = pollEvery
	}
	if classify == nil {
		classify = func(error) Outcome { return Retry }
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pool[T]{queue: q, factory: factory, classify: classify, cfg: cfg, log: log}
}

// retryDelay ramps linearly from 6s and caps at 60s.
func retryDelay(failures int) time.Duration {
	extra := time.Duration(failures) * time.Second
	if extra > maxExtra {
		extra = maxExtra
	}
	return baseDelay + extra
}

// Run starts the workers, polls until the queue drains, then waits for every
// worker to finish. Workers that hit their failure ceiling terminate alone;
// their errors are joined into the returned error after the pool winds down.
// A drained queue with some targets unprocessed is acceptable: the whole
// pipeline is re-run periodically and reconciliation is idempotent.
func (p *Pool[T]) Run(ctx context.Context) error {
	errs := make(chan error, p.cfg.Workers)
	for i := 0; i < p.cfg.Workers; i++ {
		task, err := p.factory(i)
		if err != nil {
			return fmt.Errorf("build worker %d: %w", i, err)
		}
		go func(id int, task Task[T]) {
			errs <- p.workerLoop(ctx, id, task)
		}(i, task)
	}

	for !p.queue.IsEmpty() {
		metrics.SetQueueDepth(p.cfg.Name, p.queue.Len())
		select {
		case <-ctx.Done():
			// Workers notice the canceled context on their next pop
			// or retry sleep boundary.
		case <-time.After(p.cfg.Poll):
			continue
		}
		break
	}

	var joined error
	for i := 0; i < p.cfg.Workers; i++ {
		joined = multierr.Append(joined, <-errs)
	}
	metrics.SetQueueDepth(p.cfg.Name, p.queue.Len())
	return joined
}

// workerLoop pops targets until the queue drains. On failure it retries the
// same target (never requeues, never advances) with retryDelay backoff; the
// consecutive-failure counter resets on every success and terminates the
// worker once it exceeds the ceiling.
func (p *Pool[T]) workerLoop(ctx context.Context, id int, task Task[T]) error {
	log := p.log.With(zap.Int("worker", id))
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		target, ok := p.queue.Pop()
		if !ok {
			log.Debug("queue drained, worker exiting")
			return nil
		}

		failures := 0
		for {
			metrics.IncActiveWorkers()
			err := task(ctx, target)
			metrics.DecActiveWorkers()
			if err == nil {
				break
			}
			outcome := p.classify(err)
			if outcome == Abort {
				metrics.ObserveWorkerFailure(p.cfg.Name)
				return fmt.Errorf("worker %d: target %v: %w", id, target, err)
			}
			if outcome == Succeeded {
				break
			}
			failures++
			metrics.ObserveTaskRetry(p.cfg.Name)
			if failures > fatalCeiling {
				metrics.ObserveWorkerFailure(p.cfg.Name)
				return fmt.Errorf("worker %d: target %v failed %d times: %w",
					id, target, failures, err)
			}
			delay := retryDelay(failures)
			log.Warn("task failed, retrying same target",
				zap.Any("target", target),
				zap.Int("failures", failures),
				zap.Duration("delay", delay),
				zap.Error(err))
			p.cfg.Sleep(delay)
		}
	}
}
