package port

import "time"

// Sink is the operator-facing console output.
type Sink interface {
	// WriteLive redraws the current status line in place.
	WriteLive(line string) error
	// WriteSnapshot prints a timestamped line that stays in scrollback.
	WriteSnapshot(ts time.Time, line string) error
	// NewLine ends the status line, used before exit.
	NewLine() error
}
