package main

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsRecordOperation(t *testing.T) {
	m := NewMetrics()

	m.RecordOperation("GET", 100*time.Microsecond)
	m.RecordOperation("GET", 200*time.Microsecond)
	m.RecordOperation("SET", 150*time.Microsecond)

	assert.Equal(t, uint64(3), m.TotalOps())
	assert.Equal(t, uint64(100), m.MinLatencyUs())
	assert.Equal(t, uint64(200), m.MaxLatencyUs())
	assert.InDelta(t, 150.0, m.AvgLatencyUs(), 0.1)

	byCmd := m.OpsByCommand()
	assert.Equal(t, uint64(2), byCmd["GET"])
	assert.Equal(t, uint64(1), byCmd["SET"])
}

func TestMetricsZeroValues(t *testing.T) {
	m := NewMetrics()
	assert.Equal(t, uint64(0), m.TotalOps())
	assert.Equal(t, uint64(0), m.MinLatencyUs())
	assert.Equal(t, uint64(0), m.MaxLatencyUs())
	assert.Equal(t, 0.0, m.AvgLatencyUs())
}

func TestMetricsConnections(t *testing.T) {
	m := NewMetrics()
	m.RecordConnection()
	m.RecordConnection()
	assert.Equal(t, uint64(2), m.Connections())
}

func TestMetricsConcurrent(t *testing.T) {
	m := NewMetrics()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				m.RecordOperation("GET", time.Duration(j)*time.Microsecond)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(8000), m.TotalOps())
	assert.Equal(t, uint64(8000), m.OpsByCommand()["GET"])
	assert.Equal(t, uint64(0), m.MinLatencyUs())
	assert.Equal(t, uint64(999), m.MaxLatencyUs())
}

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.RecordOperation("PING", 50*time.Microsecond)
	m.RecordConnection()

	snap := m.Snapshot()
	assert.Equal(t, uint64(1), snap.TotalOps)
	assert.Equal(t, uint64(1), snap.Connections)
	assert.Equal(t, uint64(1), snap.OpsByCommand["PING"])
	assert.Equal(t, uint64(50), snap.MinLatencyUs)
}
