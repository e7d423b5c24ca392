package collector

import (
	"log/slog"

	"github.com/godbus/dbus/v5"

	"github.com/cptspacemanspiff/gnome-cpu-watcher/internal/logging"
)

const (
	logindInterface = "org.freedesktop.login1.Manager"
	prepareForSleep = logindInterface + ".PrepareForSleep"
)

// signalConn is the part of *dbus.Conn the monitor needs.
type signalConn interface {
	Signal(ch chan<- *dbus.Signal)
	RemoveSignal(ch chan<- *dbus.Signal)
}

// WakeMonitor listens for systemd-logind PrepareForSleep signals and
// notifies on resume. Counters taken across a suspend are meaningless, so the
// sampler rebases on every wake.
type WakeMonitor struct {
	conn signalConn
	done chan struct{}
	wake chan struct{}
	log  *slog.Logger
}

// NewWakeMonitor subscribes to logind on the system bus.
func NewWakeMonitor(logger *slog.Logger) (*WakeMonitor, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, err
	}
	err = conn.AddMatchSignal(
		dbus.WithMatchInterface(logindInterface),
		dbus.WithMatchMember("PrepareForSleep"),
	)
	if err != nil {
		return nil, err
	}
	return newWakeMonitor(conn, logger), nil
}

func newWakeMonitor(conn signalConn, logger *slog.Logger) *WakeMonitor {
	if logger == nil {
		logger = logging.Discard()
	}
	m := &WakeMonitor{
		conn: conn,
		done: make(chan struct{}),
		wake: make(chan struct{}, 1),
		log:  logger,
	}
	ch := make(chan *dbus.Signal, 16)
	conn.Signal(ch)
	go m.listen(ch)
	return m
}

// Wake returns a channel that receives a value each time the system resumes.
// Wakes that arrive before the previous one was consumed are coalesced.
func (m *WakeMonitor) Wake() <-chan struct{} {
	return m.wake
}

// Close stops the monitor.
func (m *WakeMonitor) Close() {
	close(m.done)
}

func (m *WakeMonitor) listen(ch chan *dbus.Signal) {
	defer m.conn.RemoveSignal(ch)

	for {
		select {
		case sig, ok := <-ch:
			if !ok {
				m.log.Warn("system bus signal channel closed, wake tracking stopped")
				return
			}
			if sig == nil || sig.Name != prepareForSleep || len(sig.Body) < 1 {
				continue
			}
			active, ok := sig.Body[0].(bool)
			if !ok {
				continue
			}
			if active {
				m.log.Info("system going to sleep")
				continue
			}
			m.log.Info("system woke up")
			select {
			case m.wake <- struct{}{}:
			default:
			}
		case <-m.done:
			return
		}
	}
}
