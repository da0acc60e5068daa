// Package pool bounds how many snapshot pipelines run at once and how many
// callers may wait for a slot.
package pool

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
)

// ErrQueueFull is returned by Do when every slot is busy and the wait queue
// is at capacity.
var ErrQueueFull = errors.New("pool: queue full")

// Pool is a counting semaphore with a bounded number of waiters.
type Pool struct {
	sem      chan struct{}
	maxQueue int64

	waiting atomic.Int64
	running atomic.Int64
	done    atomic.Int64
}

// New creates a Pool. workers <= 0 means runtime.NumCPU(); queue < 0 means 0.
func New(workers, queue int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if queue < 0 {
		queue = 0
	}
	return &Pool{
		sem:      make(chan struct{}, workers),
		maxQueue: int64(queue),
	}
}

// Do runs fn once a slot is free. It returns ErrQueueFull without waiting
// when the queue is saturated, and ctx.Err() if ctx ends while waiting.
func (p *Pool) Do(ctx context.Context, fn func(context.Context) error) error {
	select {
	case p.sem <- struct{}{}:
	default:
		if p.waiting.Add(1) > p.maxQueue {
			p.waiting.Add(-1)
			return ErrQueueFull
		}
		select {
		case p.sem <- struct{}{}:
			p.waiting.Add(-1)
		case <-ctx.Done():
			p.waiting.Add(-1)
			return ctx.Err()
		}
	}

	p.running.Add(1)
	defer func() {
		p.running.Add(-1)
		p.done.Add(1)
		<-p.sem
	}()
	return fn(ctx)
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Workers   int   `json:"workers"`
	Running   int64 `json:"running"`
	Waiting   int64 `json:"waiting"`
	QueueSize int64 `json:"queue_size"`
	Completed int64 `json:"completed"`
}

func (p *Pool) Stats() Stats {
	return Stats{
		Workers:   cap(p.sem),
		Running:   p.running.Load(),
		Waiting:   p.waiting.Load(),
		QueueSize: p.maxQueue,
		Completed: p.done.Load(),
	}
}
