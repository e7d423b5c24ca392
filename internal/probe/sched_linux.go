//go:build linux

package probe

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Linux scheduling policies from <linux/sched.h>.
const (
	schedNormal = 0
	schedIdle   = 5

	// Nice value used when SCHED_IDLE is refused.
	lowestNice = 19
)

// ThreadScheduler moves a single thread between SCHED_IDLE and SCHED_OTHER.
type ThreadScheduler struct {
	tid int
}

// NewScheduler returns the platform scheduler controller.
func NewScheduler() Scheduler {
	return &ThreadScheduler{}
}

func (s *ThreadScheduler) Attach() (int, error) {
	tid := unix.Gettid()
	if _, err := unix.Getpriority(unix.PRIO_PROCESS, tid); err != nil {
		return 0, fmt.Errorf("query thread %d priority: %w", tid, err)
	}
	s.tid = tid
	return tid, nil
}

func (s *ThreadScheduler) Lower() error {
	if err := s.setPolicy(schedIdle); err == nil {
		return nil
	}
	if err := unix.Setpriority(unix.PRIO_PROCESS, s.tid, lowestNice); err != nil {
		return fmt.Errorf("lower thread %d priority: %w", s.tid, err)
	}
	return nil
}

func (s *ThreadScheduler) Restore() error {
	return RestoreThread(s.tid)
}

func (s *ThreadScheduler) setPolicy(policy uint32) error {
	return setPolicy(s.tid, policy)
}

// RestoreThread puts thread tid back on SCHED_OTHER. The watcher calls it on
// the helper's measuring thread so a starved helper can see its shutdown.
func RestoreThread(tid int) error {
	if err := setPolicy(tid, schedNormal); err != nil {
		return fmt.Errorf("restore thread %d policy: %w", tid, err)
	}
	return nil
}

func setPolicy(tid int, policy uint32) error {
	if tid == 0 {
		return fmt.Errorf("scheduler not attached")
	}
	attr := unix.SchedAttr{
		Size:   uint32(unsafe.Sizeof(unix.SchedAttr{})),
		Policy: policy,
	}
	return unix.SchedSetAttr(tid, &attr, 0)
}
