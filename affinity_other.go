//go:build !linux

package main

import "errors"

// pinToCore is a no-op off linux; workers still run on locked OS threads.
func pinToCore(workerID int) error {
	return errors.New("cpu affinity not supported on this platform")
}
