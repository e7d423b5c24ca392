//go:build !linux

package probe

// NewScheduler returns a controller that leaves priorities untouched on
// platforms without per-thread scheduling classes.
func NewScheduler() Scheduler {
	return noopScheduler{}
}

// RestoreThread is a no-op where priorities are never lowered.
func RestoreThread(int) error {
	return nil
}
