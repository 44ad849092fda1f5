// Package shutdown maps termination signals onto cancellation.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

var signals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// Notify relays SIGINT and SIGTERM to ch.
func Notify(ch chan os.Signal) {
	signal.Notify(ch, signals...)
}

// Context returns a context cancelled by the first SIGINT or SIGTERM.
// The returned stop function restores default signal handling.
func Context(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, signals...)
}
