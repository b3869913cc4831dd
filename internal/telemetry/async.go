package telemetry

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

type metric struct {
	src *SourceMetric
	agg *AggregateMetric
}

// Async queues metrics on a buffered channel and hands them to the backends
// from one worker goroutine. When the buffer is full the metric is dropped.
type Async struct {
	ch       chan metric
	backends []Sink
	dropped  atomic.Int64
	log      *zap.Logger

	once sync.Once
	done chan struct{}
}

func NewAsync(buffer int, log *zap.Logger, backends ...Sink) *Async {
	if buffer <= 0 {
		buffer = 1024
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Async{
		ch:       make(chan metric, buffer),
		backends: backends,
		log:      log.Named("telemetry"),
		done:     make(chan struct{}),
	}
}

func (a *Async) RecordSource(m SourceMetric) { a.enqueue(metric{src: &m}) }

func (a *Async) RecordAggregate(m AggregateMetric) { a.enqueue(metric{agg: &m}) }

func (a *Async) enqueue(m metric) {
	select {
	case a.ch <- m:
	default:
		if n := a.dropped.Add(1); n == 1 || n%100 == 0 {
			a.log.Warn("telemetry buffer full, dropping metrics", zap.Int64("dropped", n))
		}
	}
}

func (a *Async) Dropped() int64 { return a.dropped.Load() }

// Run drains the queue until ctx is done, then flushes what is buffered.
func (a *Async) Run(ctx context.Context) {
	defer close(a.done)
	for {
		select {
		case m := <-a.ch:
			a.deliver(m)
		case <-ctx.Done():
			for {
				select {
				case m := <-a.ch:
					a.deliver(m)
				default:
					return
				}
			}
		}
	}
}

// Start runs the worker in the background; Wait blocks until it exits.
func (a *Async) Start(ctx context.Context) {
	a.once.Do(func() { go a.Run(ctx) })
}

func (a *Async) Wait() { <-a.done }

func (a *Async) deliver(m metric) {
	for _, b := range a.backends {
		func() {
			defer func() {
				if r := recover(); r != nil {
					a.log.Error("telemetry backend panicked", zap.Any("panic", r))
				}
			}()
			if m.src != nil {
				b.RecordSource(*m.src)
			}
			if m.agg != nil {
				b.RecordAggregate(*m.agg)
			}
		}()
	}
}
