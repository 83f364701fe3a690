package main

import "errors"

// WorkItem carries one parsed command from a connection to a worker. The
// reply channel has capacity one: the worker sends exactly one result and
// the connection receives exactly once.
type WorkItem struct {
	Cmd       *Command
	RequestID uint64
	Reply     chan Response
}

// NewWorkItem pairs a command with a fresh single-shot reply channel.
func NewWorkItem(cmd *Command, requestID uint64) WorkItem {
	return WorkItem{Cmd: cmd, RequestID: requestID, Reply: make(chan Response, 1)}
}

// ErrQueueFull is returned by TrySend when the queue is at capacity.
var ErrQueueFull = errors.New("queue full")

// CommandQueue is a bounded multi-producer/multi-consumer queue of work
// items backed by a buffered channel. Producers are connection goroutines;
// consumers are pool workers draining Items.
type CommandQueue struct {
	items    chan WorkItem
	capacity int
}

// DefaultQueueCapacity bounds each pool's backlog.
const DefaultQueueCapacity = 10000

// NewCommandQueue creates a queue. capacity of 0 selects the default.
func NewCommandQueue(capacity int) *CommandQueue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &CommandQueue{
		items:    make(chan WorkItem, capacity),
		capacity: capacity,
	}
}

// TrySend enqueues without blocking. A full queue returns ErrQueueFull so
// the dispatcher can reply with backpressure instead of stalling the
// connection's read loop.
func (q *CommandQueue) TrySend(item WorkItem) error {
	select {
	case q.items <- item:
		return nil
	default:
		return ErrQueueFull
	}
}

// Items exposes the receive side for workers to range over.
func (q *CommandQueue) Items() <-chan WorkItem { return q.items }

// Close ends the queue. Workers draining Items exit once the backlog is
// empty.
func (q *CommandQueue) Close() { close(q.items) }

// Len reports the approximate backlog.
func (q *CommandQueue) Len() int { return len(q.items) }

// Capacity reports the bound.
func (q *CommandQueue) Capacity() int { return q.capacity }
