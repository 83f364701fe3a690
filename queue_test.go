package main

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueSendRecv(t *testing.T) {
	q := NewCommandQueue(10)

	item := NewWorkItem(&Command{Op: OpPing}, 1)
	require.NoError(t, q.TrySend(item))
	assert.Equal(t, 1, q.Len())

	got := <-q.Items()
	assert.Equal(t, uint64(1), got.RequestID)
	assert.Equal(t, OpPing, got.Cmd.Op)
}

func TestQueueFull(t *testing.T) {
	q := NewCommandQueue(2)

	require.NoError(t, q.TrySend(NewWorkItem(&Command{Op: OpPing}, 1)))
	require.NoError(t, q.TrySend(NewWorkItem(&Command{Op: OpPing}, 2)))

	err := q.TrySend(NewWorkItem(&Command{Op: OpPing}, 3))
	assert.ErrorIs(t, err, ErrQueueFull)

	// Draining one slot unblocks the producer.
	<-q.Items()
	assert.NoError(t, q.TrySend(NewWorkItem(&Command{Op: OpPing}, 3)))
}

func TestQueueDefaults(t *testing.T) {
	q := NewCommandQueue(0)
	assert.Equal(t, DefaultQueueCapacity, q.Capacity())
}

func TestQueueMPMC(t *testing.T) {
	q := NewCommandQueue(200)
	var produced, consumed atomic.Uint64

	var producers sync.WaitGroup
	for i := 0; i < 4; i++ {
		producers.Add(1)
		go func(id int) {
			defer producers.Done()
			for j := 0; j < 25; j++ {
				cmd := &Command{Op: OpGet, Key: []byte(fmt.Sprintf("key-%d-%d", id, j))}
				require.NoError(t, q.TrySend(NewWorkItem(cmd, uint64(id*25+j))))
				produced.Add(1)
			}
		}(i)
	}

	var consumers sync.WaitGroup
	for i := 0; i < 2; i++ {
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			for range q.Items() {
				consumed.Add(1)
			}
		}()
	}

	producers.Wait()
	q.Close()
	consumers.Wait()

	assert.Equal(t, uint64(100), produced.Load())
	assert.Equal(t, uint64(100), consumed.Load())
}

func TestQueueCloseEndsConsumers(t *testing.T) {
	q := NewCommandQueue(10)
	done := make(chan struct{})

	go func() {
		for range q.Items() {
		}
		close(done)
	}()

	q.Close()
	<-done
}
