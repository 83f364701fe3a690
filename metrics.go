package main

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics tracks operation counts and running latency. Counters are
// lock-free atomics; the per-command map takes its write lock only when a
// new command name first appears.
type Metrics struct {
	totalOps    atomic.Uint64
	connections atomic.Uint64

	latencySumUs atomic.Uint64
	latencyCount atomic.Uint64
	latencyMinUs atomic.Uint64
	latencyMaxUs atomic.Uint64

	mu           sync.RWMutex
	opsByCommand map[string]*atomic.Uint64
}

// NewMetrics creates a metrics collector. Each subsystem holds a shared
// reference; tests instantiate their own.
func NewMetrics() *Metrics {
	m := &Metrics{opsByCommand: make(map[string]*atomic.Uint64)}
	m.latencyMinUs.Store(math.MaxUint64)
	return m
}

// RecordOperation counts one executed command and folds its latency into
// the running sum/min/max.
func (m *Metrics) RecordOperation(command string, latency time.Duration) {
	m.totalOps.Add(1)
	m.commandCounter(command).Add(1)

	us := uint64(latency.Microseconds())
	m.latencySumUs.Add(us)
	m.latencyCount.Add(1)

	for {
		current := m.latencyMinUs.Load()
		if us >= current || m.latencyMinUs.CompareAndSwap(current, us) {
			break
		}
	}
	for {
		current := m.latencyMaxUs.Load()
		if us <= current || m.latencyMaxUs.CompareAndSwap(current, us) {
			break
		}
	}
}

func (m *Metrics) commandCounter(command string) *atomic.Uint64 {
	m.mu.RLock()
	c, ok := m.opsByCommand[command]
	m.mu.RUnlock()
	if ok {
		return c
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok = m.opsByCommand[command]; ok {
		return c
	}
	c = new(atomic.Uint64)
	m.opsByCommand[command] = c
	return c
}

// RecordConnection counts one accepted connection.
func (m *Metrics) RecordConnection() { m.connections.Add(1) }

// TotalOps returns the total executed command count.
func (m *Metrics) TotalOps() uint64 { return m.totalOps.Load() }

// Connections returns the accepted connection count.
func (m *Metrics) Connections() uint64 { return m.connections.Load() }

// OpsByCommand returns a copy of the per-command counts.
func (m *Metrics) OpsByCommand() map[string]uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]uint64, len(m.opsByCommand))
	for name, c := range m.opsByCommand {
		out[name] = c.Load()
	}
	return out
}

// AvgLatencyUs returns the mean latency in microseconds, 0 before any
// operation.
func (m *Metrics) AvgLatencyUs() float64 {
	count := m.latencyCount.Load()
	if count == 0 {
		return 0
	}
	return float64(m.latencySumUs.Load()) / float64(count)
}

// MinLatencyUs returns the smallest recorded latency in microseconds.
func (m *Metrics) MinLatencyUs() uint64 {
	v := m.latencyMinUs.Load()
	if v == math.MaxUint64 {
		return 0
	}
	return v
}

// MaxLatencyUs returns the largest recorded latency in microseconds.
func (m *Metrics) MaxLatencyUs() uint64 { return m.latencyMaxUs.Load() }

// MetricsSnapshot is a copy-out view for the admin endpoints.
type MetricsSnapshot struct {
	TotalOps     uint64            `json:"total_ops"`
	Connections  uint64            `json:"connections"`
	OpsByCommand map[string]uint64 `json:"ops_by_command"`
	AvgLatencyUs float64           `json:"avg_latency_us"`
	MinLatencyUs uint64            `json:"min_latency_us"`
	MaxLatencyUs uint64            `json:"max_latency_us"`
}

// Snapshot captures the current counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		TotalOps:     m.TotalOps(),
		Connections:  m.Connections(),
		OpsByCommand: m.OpsByCommand(),
		AvgLatencyUs: m.AvgLatencyUs(),
		MinLatencyUs: m.MinLatencyUs(),
		MaxLatencyUs: m.MaxLatencyUs(),
	}
}
