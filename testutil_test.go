package main

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func newTestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}
