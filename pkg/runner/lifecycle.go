package runner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrAlreadyStarted = errors.New("runner already started")
	ErrDrainTimeout   = errors.New("drain timeout")
)

// Options configure a LifecycleRunner.
type Options struct {
	Name    string
	Drainer Drainer
	Hooks   Hooks
	// Timeout bounds Drain; the default is 10s.
	Timeout time.Duration
	// Banner receives the startup banner; nil prints none.
	Banner io.Writer
	Logger *slog.Logger
}

// LifecycleRunner runs until its context is cancelled or Stop is called,
// then drains once.
type LifecycleRunner struct {
	state    atomic.Int32
	ctx      context.Context
	cancel   context.CancelFunc
	onceStop sync.Once
	opts     Options
	log      *slog.Logger
	stopErr  error
}

func NewLifecycleRunner(opts Options) *LifecycleRunner {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &LifecycleRunner{ctx: ctx, cancel: cancel, opts: opts, log: log}
	r.state.Store(int32(StateNew))
	return r
}

// Run blocks until ctx ends or Stop is called. The context handed to
// OnStart is cancelled when the runner begins draining.
func (r *LifecycleRunner) Run(ctx context.Context) error {
	if !r.casState(StateNew, StateStarting) {
		return ErrAlreadyStarted
	}
	PrintBanner(r.opts.Banner, r.opts.Name)
	if ctx != nil {
		r.cancel()
		r.ctx, r.cancel = context.WithCancel(ctx)
	}
	if r.opts.Hooks.OnStart != nil {
		if err := r.opts.Hooks.OnStart(r.ctx); err != nil {
			r.log.Error("runner_start_failed", "name", r.opts.Name, "error", err.Error())
			r.cancel()
			return errors.Join(err, r.stop())
		}
	}
	r.setState(StateRunning)
	r.log.Info("runner_running", "name", r.opts.Name)
	<-r.ctx.Done()
	return r.stop()
}

func (r *LifecycleRunner) Stop() error {
	r.cancel()
	return r.stop()
}

func (r *LifecycleRunner) State() State {
	return State(r.state.Load())
}

func (r *LifecycleRunner) stop() error {
	r.onceStop.Do(func() {
		r.setState(StateDraining)
		r.log.Info("runner_draining", "name", r.opts.Name, "timeout", r.opts.Timeout.String())
		if r.opts.Drainer != nil {
			done := make(chan error, 1)
			go func() { done <- r.opts.Drainer.Drain() }()
			select {
			case err := <-done:
				r.stopErr = err
			case <-time.After(r.opts.Timeout):
				r.stopErr = ErrDrainTimeout
			}
		}
		if r.opts.Hooks.OnStop != nil {
			r.opts.Hooks.OnStop()
		}
		r.setState(StateStopped)
		if r.stopErr != nil {
			r.log.Warn("runner_drain_failed", "name", r.opts.Name, "error", r.stopErr.Error())
		}
	})
	return r.stopErr
}

func (r *LifecycleRunner) casState(from, to State) bool {
	return r.state.CompareAndSwap(int32(from), int32(to))
}

func (r *LifecycleRunner) setState(s State) {
	r.state.Store(int32(s))
}
