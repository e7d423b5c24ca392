package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cptspacemanspiff/gnome-cpu-watcher/internal/logging"
)

// ErrTrouble is returned by Start when the probe could not set itself up.
// Measurement never activates and CPULoad stays at 0.
var ErrTrouble = errors.New("idle probe failed to initialize")

// Options configures a Probe. Zero fields use platform defaults.
type Options struct {
	Mode Mode
	// Precise and Coarse convert drained readings into a load.
	Precise Strategy
	Coarse  Strategy
	// Command builds the helper process. The default re-executes the
	// running binary with the helper environment set.
	Command func() (*exec.Cmd, error)
	// Restore raises the helper's measuring thread before shutdown.
	Restore func(tid int) error
	Logger  *slog.Logger
}

// Probe measures CPU idleness through a helper process whose measuring
// thread runs at the lowest scheduling priority. The thread lives outside
// this process so starving it never holds up this process's goroutines or
// garbage collector.
//
// Lifecycle: Start blocks until the helper reports ready; Go lets it enter
// the measurement loop; Stop closes its command pipe and waits for it to
// exit.
type Probe struct {
	acc        Accumulator
	strategies [2]Strategy
	mode       atomic.Int32
	trouble    atomic.Bool
	measuring  atomic.Bool
	sentGo     atomic.Bool

	newCmd  func() (*exec.Cmd, error)
	restore func(int) error
	log     *slog.Logger

	cmd  *exec.Cmd
	tid  int
	done chan struct{}

	ctrlMu sync.Mutex
	ctrl   io.WriteCloser
}

// New creates a probe. The helper is not started until Start.
func New(opts Options) *Probe {
	if opts.Precise == nil {
		opts.Precise = NewTimeBased()
	}
	if opts.Coarse == nil {
		opts.Coarse = NewCountBased()
	}
	if opts.Command == nil {
		opts.Command = helperCommand
	}
	if opts.Restore == nil {
		opts.Restore = RestoreThread
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	p := &Probe{
		strategies: [2]Strategy{Precise: opts.Precise, Coarse: opts.Coarse},
		newCmd:     opts.Command,
		restore:    opts.Restore,
		log:        opts.Logger,
		done:       make(chan struct{}),
	}
	p.mode.Store(int32(opts.Mode))
	return p
}

func helperCommand() (*exec.Cmd, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate executable: %w", err)
	}
	cmd := exec.Command(self)
	cmd.Env = append(os.Environ(), helperEnv+"=1")
	return cmd, nil
}

// Start launches the helper and waits until it is ready.
func (p *Probe) Start(ctx context.Context) error {
	if err := p.start(ctx); err != nil {
		p.trouble.Store(true)
		close(p.done)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", ErrTrouble, err)
	}
	return nil
}

func (p *Probe) start(ctx context.Context) error {
	cmd, err := p.newCmd()
	if err != nil {
		return err
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("helper stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("helper stdout: %w", err)
	}
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start helper: %w", err)
	}

	type result struct {
		f   frame
		err error
	}
	first := make(chan result, 1)
	go func() {
		f, err := readFrame(stdout)
		first <- result{f, err}
	}()

	var res result
	select {
	case res = <-first:
	case <-ctx.Done():
		res.err = ctx.Err()
	}
	if res.err == nil && res.f.Kind != frameReady {
		res.err = errors.New("helper could not attach to its thread")
	}
	if res.err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return res.err
	}

	p.cmd = cmd
	p.ctrl = stdin
	p.tid = int(res.f.Tid)
	if err := p.send(modeCommand(p.Mode())); err != nil {
		p.log.Warn("send probe mode", "err", err)
	}
	go p.receive(stdout)
	return nil
}

// receive folds helper frames into the accumulator until the helper exits.
func (p *Probe) receive(r io.Reader) {
	defer close(p.done)
	defer p.measuring.Store(false)

	for {
		f, err := readFrame(r)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				p.log.Warn("idle probe stream", "err", err)
			}
			return
		}
		switch f.Kind {
		case frameMeasuring:
			if !f.Lowered {
				p.log.Warn("idle probe runs at normal priority")
			}
			p.acc.Drain()
			p.measuring.Store(true)
			p.log.Debug("idle probe measuring", "mode", p.Mode().String())
		case frameSample:
			// Readings taken before a mode switch are dropped.
			if Mode(f.Mode) == p.Mode() {
				p.acc.Add(Reading{Idle: time.Duration(f.Idle), Runs: f.Runs})
			}
		}
	}
}

func (p *Probe) send(b byte) error {
	p.ctrlMu.Lock()
	defer p.ctrlMu.Unlock()
	if p.ctrl == nil {
		return nil
	}
	_, err := p.ctrl.Write([]byte{b})
	return err
}

// Go releases the helper into its measurement loop. It must only be called
// after Start returned nil; later calls are ignored.
func (p *Probe) Go() {
	if p.trouble.Load() || !p.sentGo.CompareAndSwap(false, true) {
		return
	}
	if err := p.send(cmdGo); err != nil {
		p.log.Warn("release idle probe", "err", err)
	}
}

// Stop raises the helper's thread back to normal priority so it can unwind
// promptly, closes its command pipe and waits for it to exit or ctx to end.
func (p *Probe) Stop(ctx context.Context) error {
	if p.trouble.Load() || p.cmd == nil {
		return nil
	}
	if p.measuring.Load() {
		if err := p.restore(p.tid); err != nil {
			p.log.Warn("restore probe priority", "err", err)
		}
	}

	p.ctrlMu.Lock()
	if p.ctrl != nil {
		_ = p.ctrl.Close()
		p.ctrl = nil
	}
	p.ctrlMu.Unlock()

	select {
	case <-p.done:
	case <-ctx.Done():
		_ = p.cmd.Process.Kill()
		<-p.done
		_ = p.cmd.Wait()
		return ctx.Err()
	}
	if err := p.cmd.Wait(); err != nil {
		p.log.Warn("idle probe helper exit", "err", err)
	}
	return nil
}

// Mode returns the active measurement mode.
func (p *Probe) Mode() Mode {
	return Mode(p.mode.Load())
}

// SetMode switches the measurement strategy. Whatever was accumulated under
// the old mode is discarded.
func (p *Probe) SetMode(m Mode) {
	if Mode(p.mode.Swap(int32(m))) == m {
		return
	}
	p.acc.Drain()
	if err := p.send(modeCommand(m)); err != nil {
		p.log.Warn("send probe mode", "err", err)
	}
	p.log.Info("measurement mode changed", "mode", m.String())
}

// Measuring reports whether the helper has entered its measurement loop.
func (p *Probe) Measuring() bool {
	return p.measuring.Load()
}

// CPULoad drains the accumulator and converts it with the active strategy.
// It returns 0 while the probe is not measuring.
func (p *Probe) CPULoad(interval time.Duration) uint8 {
	r := p.acc.Drain()
	if !p.measuring.Load() {
		return 0
	}
	return p.strategy().Load(r, interval)
}

// Discard drops whatever the accumulator holds.
func (p *Probe) Discard() {
	p.acc.Drain()
}

func (p *Probe) strategy() Strategy {
	return p.strategies[p.Mode()]
}
