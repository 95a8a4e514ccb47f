// Package safego provides a panic-recovering goroutine launcher for background work.
package safego

import (
	"log/slog"
	"runtime/debug"
)

// Go launches fn in a new goroutine. A panic in fn is recovered and logged with
// name and stack instead of crashing the process. Use it for every
// fire-and-forget goroutine: audit publishing, shipper flush loops, collectors.
func Go(name string, fn func()) {
	go func() {
		defer Recover(name)
		fn()
	}()
}

// Recover logs a recovered panic. It must be called directly via defer.
func Recover(name string) {
	if r := recover(); r != nil {
		slog.Error("recovered panic in background goroutine",
			"goroutine", name,
			"panic", r,
			"stack", string(debug.Stack()))
	}
}
