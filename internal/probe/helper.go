package probe

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// helperEnv marks a process started as the idle probe helper.
const helperEnv = "CPU_WATCHER_IDLE_PROBE"

// flushEvery bounds how long measured idle time stays in the helper before
// it is sent to the watcher.
const flushEvery = 10 * time.Millisecond

// Control bytes sent from the watcher to the helper on stdin.
const (
	cmdGo      byte = 'g'
	cmdPrecise byte = 'p'
	cmdCoarse  byte = 'c'
)

// Frame kinds sent from the helper to the watcher on stdout.
const (
	frameReady uint8 = iota + 1
	frameTrouble
	frameMeasuring
	frameSample
)

// frame is the fixed-size record the helper streams to the watcher.
type frame struct {
	Kind    uint8
	Mode    uint8
	Lowered bool
	Tid     int32
	Idle    int64
	Runs    uint64
}

func writeFrame(w io.Writer, f frame) error {
	return binary.Write(w, binary.LittleEndian, f)
}

func readFrame(r io.Reader) (frame, error) {
	var f frame
	err := binary.Read(r, binary.LittleEndian, &f)
	return f, err
}

func modeCommand(m Mode) byte {
	if m == Coarse {
		return cmdCoarse
	}
	return cmdPrecise
}

// IsHelper reports whether this process was started as the idle probe
// helper. Binaries that start a Probe must check it first thing in main.
func IsHelper() bool {
	return os.Getenv(helperEnv) == "1"
}

// RunHelper measures on stdin/stdout until the watcher closes stdin and
// returns the process exit code.
func RunHelper() int {
	strategies := [2]Strategy{Precise: NewTimeBased(), Coarse: NewCountBased()}
	if err := serve(os.Stdin, os.Stdout, NewScheduler(), strategies); err != nil {
		fmt.Fprintf(os.Stderr, "idle probe helper: %v\n", err)
		return 1
	}
	return 0
}

// control is the helper's view of the watcher's commands.
type control struct {
	mode    atomic.Int32
	running atomic.Bool
	goCh    chan struct{}
	once    sync.Once
}

func (c *control) release() {
	c.once.Do(func() { close(c.goCh) })
}

// read applies commands until stdin closes, which stops the helper.
func (c *control) read(in io.Reader) {
	defer func() {
		c.running.Store(false)
		c.release()
	}()

	br := bufio.NewReader(in)
	for {
		b, err := br.ReadByte()
		if err != nil {
			return
		}
		switch b {
		case cmdGo:
			c.release()
		case cmdPrecise:
			c.mode.Store(int32(Precise))
		case cmdCoarse:
			c.mode.Store(int32(Coarse))
		}
	}
}

// serve is the helper body. The measuring goroutine stays locked to one
// thread which is the only thread whose priority is lowered.
func serve(in io.Reader, out io.Writer, sched Scheduler, strategies [2]Strategy) error {
	runtime.LockOSThread()
	if runtime.GOMAXPROCS(0) < 2 {
		// The command reader must not wait behind the starved thread.
		runtime.GOMAXPROCS(2)
	}

	tid, err := sched.Attach()
	if err != nil {
		_ = writeFrame(out, frame{Kind: frameTrouble})
		return err
	}

	c := &control{goCh: make(chan struct{})}
	c.running.Store(true)
	go c.read(in)

	if err := writeFrame(out, frame{Kind: frameReady, Tid: int32(tid)}); err != nil {
		return fmt.Errorf("write ready: %w", err)
	}

	<-c.goCh
	if !c.running.Load() {
		return nil
	}

	lowered := sched.Lower() == nil
	if err := writeFrame(out, frame{Kind: frameMeasuring, Lowered: lowered}); err != nil {
		return fmt.Errorf("write measuring: %w", err)
	}

	var acc Accumulator
	for c.running.Load() {
		m := Mode(c.mode.Load())
		deadline := time.Now().Add(flushEvery)
		strategies[m].Measure(&acc, func() bool {
			return !c.running.Load() || Mode(c.mode.Load()) != m || !time.Now().Before(deadline)
		})

		r := acc.Drain()
		if r.Idle == 0 && r.Runs == 0 {
			continue
		}
		f := frame{Kind: frameSample, Mode: uint8(m), Idle: int64(r.Idle), Runs: r.Runs}
		if err := writeFrame(out, f); err != nil {
			return fmt.Errorf("write sample: %w", err)
		}
	}
	return nil
}
