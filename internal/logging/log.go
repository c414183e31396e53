// SPDX-License-Identifier: Apache-2.0

// Package logging holds the structured logging helpers shared by the engine and the mechanisms.
package logging

import (
	"io"
	"log/slog"
	"math"
)

var noopLogger *slog.Logger

// NoopLogger returns a disabled Logger
func NoopLogger() *slog.Logger {
	return noopLogger
}

// OrNoop returns l, or the disabled logger when l is nil.
func OrNoop(l *slog.Logger) *slog.Logger {
	if l == nil {
		return noopLogger
	}
	return l
}

func init() {
	hdlr := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)})
	noopLogger = slog.New(hdlr)
}
