// Package netlog is the single place every other netkit package gets a
// logger from. It composes github.com/joeycumines/logiface with the
// log/slog backend (github.com/joeycumines/logiface-slog) and hands out
// one child logger per component.
package netlog

import (
	"log/slog"
	"os"

	"github.com/joeycumines/logiface"
	slogadapter "github.com/joeycumines/logiface-slog"
)

// Event is the concrete event type used throughout netkit.
type Event = slogadapter.Event

// Logger is the shared logger type alias used across component packages.
type Logger = logiface.Logger[*Event]

var root *Logger

func init() {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	root = logiface.New[*Event](slogadapter.NewLogger(handler))
}

// SetHandler replaces the root handler, e.g. so cmd/netctl and cmd/netbench
// can switch to a text handler or raise verbosity.
func SetHandler(h slog.Handler) {
	root = logiface.New[*Event](slogadapter.NewLogger(h))
}

// For returns a child logger tagged with the owning component's name.
func For(component string) *Logger {
	return root.Clone().Str("component", component).Logger()
}
