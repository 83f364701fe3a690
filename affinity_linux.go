//go:build linux

package main

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// pinToCore binds the calling thread to one CPU, chosen round-robin by
// worker id. Caller must hold runtime.LockOSThread.
func pinToCore(workerID int) error {
	cpu := workerID % runtime.NumCPU()

	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	return unix.SchedSetaffinity(0, &set)
}
