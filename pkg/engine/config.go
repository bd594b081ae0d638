package engine

import "time"

// Config holds configuration for the core engine.
type Config struct {
	// RunTimeout bounds a single dispatched run. When it fires the run
	// is torn down like an explicit stop but resolves with an error
	// outcome. Zero or negative disables the watchdog.
	RunTimeout time.Duration

	// DefaultDebounce is the delay used by ScheduleRun when the caller
	// does not pass one. Zero or negative means use 500ms.
	DefaultDebounce time.Duration
}

// debounce returns the effective debounce window, defaulting to 500ms.
func (c Config) debounce() time.Duration {
	if c.DefaultDebounce <= 0 {
		return 500 * time.Millisecond
	}
	return c.DefaultDebounce
}
