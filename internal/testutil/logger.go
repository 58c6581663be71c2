package testutil

import (
	"bytes"
	"io"

	"github.com/dtroode/identity-store/internal/logger"
)

// MakeNoopLogger returns a logger that discards everything.
func MakeNoopLogger() *logger.Logger {
	return logger.NewWithWriter(io.Discard, 0, "text")
}

// MakeBufferLogger returns a debug-level logger writing into the returned buffer.
func MakeBufferLogger() (*logger.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return logger.NewWithWriter(buf, -4, "text"), buf
}
