package command

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Outcome labels passed to an Observer.
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeRejected  = "rejected"
	OutcomeCancelled = "cancelled"
)

// unknownName labels rejected commands whose name is not registered, so
// arbitrary names cannot grow observer label sets.
const unknownName = "unknown"

// Observer receives one call per dispatched command.
type Observer interface {
	ObserveCommand(name, outcome string, elapsed time.Duration)
}

type job struct {
	ctx   context.Context
	spec  *Spec
	args  Args
	reply chan outcome
}

type outcome struct {
	data any
	err  error
}

// Dispatcher runs commands strictly one at a time in the order they were queued.
type Dispatcher struct {
	registry *Registry
	queue    chan *job
	done     chan struct{}
	stopped  chan struct{}
	once     sync.Once
	wg       sync.WaitGroup
	logger   *zap.Logger
	observer Observer
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

func WithLogger(l *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = l }
}

func WithObserver(o Observer) DispatcherOption {
	return func(d *Dispatcher) { d.observer = o }
}

// WithQueueSize sets how many commands may wait behind the running one.
func WithQueueSize(n int) DispatcherOption {
	return func(d *Dispatcher) { d.queue = make(chan *job, n) }
}

func NewDispatcher(registry *Registry, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		queue:    make(chan *job, 64),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With(zap.String("component", "dispatcher"))
	d.wg.Add(1)
	go d.run()
	return d
}

// Dispatch validates cmd, queues it and waits for its result.
// Invalid commands are rejected without being queued.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command) (any, error) {
	spec, args, err := d.registry.Validate(cmd)
	if err != nil {
		name := cmd.Name
		if errors.Is(err, ErrUnknownCommand) {
			name = unknownName
		}
		d.observe(name, OutcomeRejected, 0)
		d.logger.Debug("command rejected", zap.String("command", cmd.Name), zap.Error(err))
		return nil, err
	}

	j := &job{ctx: ctx, spec: spec, args: args, reply: make(chan outcome, 1)}
	select {
	case <-d.done:
		return nil, ErrDispatcherClosed
	default:
	}
	select {
	case d.queue <- j:
	case <-ctx.Done():
		d.observe(cmd.Name, OutcomeCancelled, 0)
		return nil, ctx.Err()
	case <-d.done:
		return nil, ErrDispatcherClosed
	}

	return d.await(ctx, j)
}

// await waits for j's reply. A job that slipped into the queue after the
// worker's final drain is never answered; it fails once the worker is gone.
func (d *Dispatcher) await(ctx context.Context, j *job) (any, error) {
	select {
	case out := <-j.reply:
		return out.data, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-d.stopped:
		select {
		case out := <-j.reply:
			return out.data, out.err
		default:
			return nil, ErrDispatcherClosed
		}
	}
}

// Result is Dispatch folded into a Result value.
func (d *Dispatcher) Result(ctx context.Context, cmd Command) Result {
	data, err := d.Dispatch(ctx, cmd)
	if err != nil {
		return Failure(err)
	}
	return Success(data)
}

// Close stops the worker after the running command finishes.
// Commands still queued fail with ErrDispatcherClosed.
func (d *Dispatcher) Close() {
	d.once.Do(func() { close(d.done) })
	d.wg.Wait()
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	defer close(d.stopped)
	for {
		select {
		case <-d.done:
			d.drain()
			return
		case j := <-d.queue:
			d.execute(j)
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case j := <-d.queue:
			j.reply <- outcome{err: ErrDispatcherClosed}
		default:
			return
		}
	}
}

func (d *Dispatcher) execute(j *job) {
	name := j.spec.Name
	if err := j.ctx.Err(); err != nil {
		d.observe(name, OutcomeCancelled, 0)
		j.reply <- outcome{err: err}
		return
	}

	d.logger.Debug("executing command",
		zap.String("command", name),
		zap.Stringer("category", j.spec.Category),
	)
	start := time.Now()
	data, err := j.spec.Handler(j.ctx, j.args)
	elapsed := time.Since(start)

	if err != nil {
		d.observe(name, OutcomeError, elapsed)
		d.logger.Warn("command failed",
			zap.String("command", name),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
	} else {
		d.observe(name, OutcomeOK, elapsed)
		d.logger.Info("command completed",
			zap.String("command", name),
			zap.Duration("elapsed", elapsed),
		)
	}
	j.reply <- outcome{data: data, err: err}
}

func (d *Dispatcher) observe(name, outcome string, elapsed time.Duration) {
	if d.observer != nil {
		d.observer.ObserveCommand(name, outcome, elapsed)
	}
}
