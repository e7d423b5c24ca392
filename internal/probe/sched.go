package probe

// Scheduler controls the scheduling priority of the measuring thread inside
// the helper process. Attach is called on the locked thread and returns its
// kernel thread id so the watcher can raise it again on shutdown.
type Scheduler interface {
	Attach() (tid int, err error)
	Lower() error
	Restore() error
}

type noopScheduler struct{}

func (noopScheduler) Attach() (int, error) { return 0, nil }
func (noopScheduler) Lower() error         { return nil }
func (noopScheduler) Restore() error       { return nil }
