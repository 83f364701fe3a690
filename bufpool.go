package main

import "sync"

// BytePool recycles response-assembly buffers on the connection write
// path. Buffers above the cap are left to the GC rather than pooled.
type BytePool struct {
	pool sync.Pool
}

const (
	bytePoolInitialSize = 4096
	bytePoolMaxSize     = 64 * 1024
)

// NewBytePool creates a pool of growable byte buffers.
func NewBytePool() *BytePool {
	return &BytePool{
		pool: sync.Pool{
			New: func() any {
				buf := make([]byte, 0, bytePoolInitialSize)
				return &buf
			},
		},
	}
}

// Get returns an empty buffer with whatever capacity the pool had on
// hand.
func (bp *BytePool) Get() []byte {
	buf := bp.pool.Get().(*[]byte)
	return (*buf)[:0]
}

// Put returns a buffer to the pool, cleared. Oversized buffers are
// dropped.
func (bp *BytePool) Put(buf []byte) {
	if cap(buf) > bytePoolMaxSize {
		return
	}
	buf = buf[:0]
	bp.pool.Put(&buf)
}
