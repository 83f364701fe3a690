package main

import (
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
)

// WorkerPoolConfig sizes one pool.
type WorkerPoolConfig struct {
	// Pool name for logs and thread identification.
	Name string
	// Worker count; 0 auto-detects the core count.
	NumWorkers int
	// Pin each worker's OS thread to a distinct CPU core.
	PinToCores bool
}

// WorkerPool owns a group of workers draining one command queue. Workers
// run on dedicated OS threads when pinning is enabled so the scheduler
// cannot migrate the latency-critical path. A panicking worker is
// replaced; the rest of the pool keeps running.
type WorkerPool struct {
	cfg     WorkerPoolConfig
	queue   *CommandQueue
	exec    *Executor
	metrics *Metrics
	logger  *zap.Logger
	wg      sync.WaitGroup
}

// NewWorkerPool binds a pool to its queue and executor.
func NewWorkerPool(cfg WorkerPoolConfig, queue *CommandQueue, exec *Executor, metrics *Metrics, logger *zap.Logger) *WorkerPool {
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = runtime.NumCPU()
	}
	return &WorkerPool{
		cfg:     cfg,
		queue:   queue,
		exec:    exec,
		metrics: metrics,
		logger:  logger.With(zap.String("pool", cfg.Name)),
	}
}

// Start launches the workers. Each exits when the queue closes and its
// backlog drains.
func (p *WorkerPool) Start() {
	p.logger.Info("starting workers",
		zap.Int("workers", p.cfg.NumWorkers),
		zap.Bool("pinned", p.cfg.PinToCores))

	for i := 0; i < p.cfg.NumWorkers; i++ {
		p.wg.Add(1)
		go p.supervise(i)
	}
}

// supervise keeps worker slot i occupied: when the worker loop dies to a
// panic it is logged and relaunched, preserving pool capacity.
func (p *WorkerPool) supervise(id int) {
	defer p.wg.Done()

	for {
		panicked := p.runWorker(id)
		if !panicked {
			return
		}
		p.logger.Warn("respawning worker after panic", zap.Int("worker", id))
	}
}

// runWorker drains the queue until it closes. Returns true if the loop
// ended because a command execution panicked.
func (p *WorkerPool) runWorker(id int) (panicked bool) {
	if p.cfg.PinToCores {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		if err := pinToCore(id); err != nil {
			p.logger.Debug("core pinning unavailable", zap.Int("worker", id), zap.Error(err))
		}
	}

	for item := range p.queue.Items() {
		if p.executeItem(item) {
			return true
		}
	}
	return false
}

// executeItem runs one work item, isolating panics so a bad command takes
// down neither the worker pool nor the in-flight reply.
func (p *WorkerPool) executeItem(item WorkItem) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			p.logger.Error("worker panic", zap.Any("panic", r), zap.String("command", item.Cmd.Name()))
			p.sendReply(item, respError("worker error"))
		}
	}()

	start := time.Now()
	result := p.exec.Execute(item.Cmd)
	p.sendReply(item, result)
	p.metrics.RecordOperation(item.Cmd.Name(), time.Since(start))
	return false
}

// sendReply delivers the single result. The reply channel is buffered, so
// a connection that already went away simply never receives it; the store
// mutation stands either way.
func (p *WorkerPool) sendReply(item WorkItem, resp Response) {
	select {
	case item.Reply <- resp:
	default:
	}
}

// Wait blocks until every worker has exited. Call after closing the queue.
func (p *WorkerPool) Wait() {
	p.wg.Wait()
	p.logger.Info("workers stopped")
}
