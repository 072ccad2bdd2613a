// Package scheduler runs the periodic maintenance sweeps: hold expiry, orphan
// reconciliation and show status advancement.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// leaseFactor sizes the default lease so a run that overruns its interval
// keeps the lease until the next tick has passed.
const leaseFactor = 2

// Task performs one sweep and reports how many records it changed.
type Task func(ctx context.Context, now time.Time) (int, error)

type Runner struct {
	name     string
	interval time.Duration
	leaseTTL time.Duration
	task     Task
	locker   Locker
	logger   *slog.Logger
	now      func() time.Time

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type Option func(*Runner)

// WithLocker makes the runner skip a tick while another process holds the
// lease for the same task name.
func WithLocker(locker Locker) Option {
	return func(r *Runner) {
		r.locker = locker
	}
}

// WithLeaseTTL overrides how long a run may hold the lease. A run is cancelled
// once its lease runs out.
func WithLeaseTTL(ttl time.Duration) Option {
	return func(r *Runner) {
		r.leaseTTL = ttl
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

func NewRunner(name string, interval time.Duration, task Task, logger *slog.Logger, opts ...Option) *Runner {
	r := &Runner{
		name:     name,
		interval: interval,
		leaseTTL: leaseFactor * interval,
		task:     task,
		logger:   logger.With("task", name),
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

func (r *Runner) Name() string {
	return r.name
}

// Start runs the task every interval until Stop is called or ctx is done.
func (r *Runner) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		r.logger.Info("scheduler started", "interval", r.interval.String())

		for {
			select {
			case <-ctx.Done():
				r.logger.Info("scheduler stopped")
				return
			case <-ticker.C:
				if _, err := r.RunOnce(ctx); err != nil {
					r.logger.Error("scheduled run failed", "error", err)
				}
			}
		}
	}()
}

// Stop cancels the loop and waits for an in-flight run to finish.
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

// RunOnce executes the task unless a previous run is still in progress or
// another process holds the lease. It reports whether the task ran.
func (r *Runner) RunOnce(ctx context.Context) (bool, error) {
	if !r.running.CompareAndSwap(false, true) {
		r.logger.Warn("previous run still in progress, skipping")
		return false, nil
	}
	defer r.running.Store(false)

	if r.locker != nil {
		token, ok, err := r.locker.Acquire(ctx, r.name, r.leaseTTL)
		if err != nil {
			return false, err
		}
		if !ok {
			r.logger.Debug("lease held by another instance, skipping")
			return false, nil
		}

		defer func() {
			if err := r.locker.Release(context.WithoutCancel(ctx), r.name, token); err != nil {
				r.logger.Error("failed to release lease", "error", err)
			}
		}()

		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.leaseTTL)
		defer cancel()
	}

	started := r.now()

	changed, err := r.task(ctx, started)
	if err != nil {
		return true, err
	}

	if changed > 0 {
		r.logger.Info("scheduled run finished", "changed", changed, "duration", time.Since(started).String())
	}

	return true, nil
}
