package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/vital-sim/vital-sim/sim"
)

// RetryConfig bounds the exponential backoff applied to each item.
type RetryConfig struct {
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
	MaxElapsed      time.Duration `yaml:"max_elapsed"`
	MaxRetries      int           `yaml:"max_retries"` // 0 means bounded by MaxElapsed only
}

// DefaultRetryConfig returns 100ms doubling to 5s, giving up after 30s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{InitialInterval: 100 * time.Millisecond, MaxInterval: 5 * time.Second, MaxElapsed: 30 * time.Second}
}

// Validate checks the retry section.
func (c RetryConfig) Validate(prefix string) error {
	if c.InitialInterval <= 0 {
		return fmt.Errorf("%s.initial_interval must be positive, got %s", prefix, c.InitialInterval)
	}
	if c.MaxInterval < c.InitialInterval {
		return fmt.Errorf("%s.max_interval must be at least initial_interval, got %s", prefix, c.MaxInterval)
	}
	if c.MaxElapsed <= 0 {
		return fmt.Errorf("%s.max_elapsed must be positive, got %s", prefix, c.MaxElapsed)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%s.max_retries must be non-negative, got %d", prefix, c.MaxRetries)
	}
	return nil
}

func (c RetryConfig) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.InitialInterval
	b.MaxInterval = c.MaxInterval
	b.MaxElapsedTime = c.MaxElapsed
	var bo backoff.BackOff = b
	if c.MaxRetries > 0 {
		bo = backoff.WithMaxRetries(bo, uint64(c.MaxRetries))
	}
	return backoff.WithContext(bo, ctx)
}

// Dispatcher drains one queue into one sink on a single goroutine, so items
// reach the sink in enqueue order.
type Dispatcher[T any] struct {
	name    string
	queue   *Queue[T]
	send    func(context.Context, T) error
	retry   RetryConfig
	metrics *sim.Metrics
	cancel  context.CancelFunc
	started bool
	done    chan struct{}
}

// NewDispatcher wires a queue to a send function. metrics may be nil.
func NewDispatcher[T any](name string, qc QueueConfig, rc RetryConfig, m *sim.Metrics, send func(context.Context, T) error) *Dispatcher[T] {
	return &Dispatcher[T]{
		name:    name,
		queue:   NewQueue[T](qc),
		send:    send,
		retry:   rc,
		metrics: m,
		done:    make(chan struct{}),
	}
}

// Name returns the dispatcher label used in logs and metrics.
func (d *Dispatcher[T]) Name() string { return d.name }

// Start launches the delivery goroutine. Cancelling ctx aborts in-flight retries.
func (d *Dispatcher[T]) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	d.started = true
	go d.loop(ctx)
}

// Enqueue hands item to the queue, counting any overflow drop.
func (d *Dispatcher[T]) Enqueue(item T) {
	if n := d.queue.Push(item); n > 0 {
		logrus.Warnf("[%s] queue full, dropped %d item(s)", d.name, n)
		if d.metrics != nil {
			d.metrics.QueueDropped.WithLabelValues(d.name).Add(float64(n))
		}
	}
}

// Close stops intake and waits for queued items to be delivered or ctx to end,
// in which case remaining retries are abandoned.
func (d *Dispatcher[T]) Close(ctx context.Context) error {
	d.queue.Close()
	if !d.started {
		return nil
	}
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		if d.cancel != nil {
			d.cancel()
		}
		<-d.done
		return fmt.Errorf("%s: closed with %d undelivered: %w", d.name, d.queue.Len(), ctx.Err())
	}
}

func (d *Dispatcher[T]) loop(ctx context.Context) {
	defer close(d.done)
	for {
		item, err := d.queue.Pop(ctx)
		if err != nil {
			return
		}
		d.deliver(ctx, item)
	}
}

func (d *Dispatcher[T]) deliver(ctx context.Context, item T) {
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := d.send(ctx, item)
		if err != nil && attempt > 1 {
			logrus.Debugf("[%s] attempt %d failed: %v", d.name, attempt, err)
		}
		return err
	}, d.retry.backOff(ctx))
	if err == nil {
		if d.metrics != nil {
			d.metrics.Deliveries.WithLabelValues(d.name).Inc()
		}
		return
	}
	var terr *sim.TransientTransportError
	if !errors.As(err, &terr) {
		err = &sim.TransientTransportError{Sink: d.name, Err: err}
	}
	logrus.Errorf("[%s] giving up after %d attempt(s): %v", d.name, attempt, err)
	if d.metrics != nil {
		d.metrics.DeliveryFailures.WithLabelValues(d.name).Inc()
	}
}

// Fanout enqueues each item on every dispatcher.
type Fanout[T any] []*Dispatcher[T]

// Enqueue hands item to every dispatcher.
func (f Fanout[T]) Enqueue(item T) {
	for _, d := range f {
		d.Enqueue(item)
	}
}

// Start launches every dispatcher.
func (f Fanout[T]) Start(ctx context.Context) {
	for _, d := range f {
		d.Start(ctx)
	}
}

// Close closes every dispatcher and returns the first error.
func (f Fanout[T]) Close(ctx context.Context) error {
	var first error
	for _, d := range f {
		if err := d.Close(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}
