package dbus

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	godbus "github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/cptspacemanspiff/gnome-cpu-watcher/internal/monitor"
	"github.com/cptspacemanspiff/gnome-cpu-watcher/internal/ring"
)

const (
	busName   = "org.gnome.CpuWatcher"
	objPath   = "/org/gnome/CpuWatcher"
	ifaceName = "org.gnome.CpuWatcher"
)

const introspectXML = `
<node>
  <interface name="` + ifaceName + `">
    <method name="GetCurrentStats">
      <arg direction="out" type="s" name="json"/>
    </method>
    <method name="GetHistory">
      <arg direction="in" type="i" name="samples"/>
      <arg direction="out" type="s" name="json"/>
    </method>
    <method name="GetTitles">
      <arg direction="out" type="s" name="window"/>
      <arg direction="out" type="s" name="screen"/>
    </method>
    <signal name="Updated">
      <arg type="s" name="json"/>
    </signal>
  </interface>
` + introspect.IntrospectDataString + `
</node>`

var errNoSample = errors.New("no sample taken yet")

// emitter is the part of *godbus.Conn used to send signals.
type emitter interface {
	Emit(path godbus.ObjectPath, name string, values ...interface{}) error
}

// Service exposes the latest sample and the ring history over D-Bus.
// Publish is called from the event loop; method calls arrive on godbus
// goroutines.
type Service struct {
	mu     sync.RWMutex
	status monitor.Status
	have   bool
	conn   emitter
}

// NewService creates a new D-Bus service.
func NewService() *Service {
	return &Service{}
}

// Export registers the service on the session bus.
func (s *Service) Export() (*godbus.Conn, error) {
	conn, err := godbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}

	conn.Export(s, objPath, ifaceName)
	conn.Export(introspect.Introspectable(introspectXML), objPath, "org.freedesktop.DBus.Introspectable")

	reply, err := conn.RequestName(busName, godbus.NameFlagDoNotQueue)
	if err != nil {
		return nil, fmt.Errorf("request name: %w", err)
	}
	if reply != godbus.RequestNameReplyPrimaryOwner {
		return nil, fmt.Errorf("name %s already taken", busName)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	return conn, nil
}

// Publish stores st and emits the Updated signal when exported.
func (s *Service) Publish(st monitor.Status) {
	s.mu.Lock()
	s.status = st
	s.have = true
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return
	}
	data, err := json.Marshal(st)
	if err != nil {
		return
	}
	_ = conn.Emit(objPath, ifaceName+".Updated", string(data))
}

// GetCurrentStats returns the latest sample, speeds and mode as JSON.
func (s *Service) GetCurrentStats() (string, *godbus.Error) {
	s.mu.RLock()
	st, have := s.status, s.have
	s.mu.RUnlock()
	if !have {
		return "", godbus.MakeFailedError(errNoSample)
	}

	data, err := json.Marshal(st)
	if err != nil {
		return "", godbus.MakeFailedError(err)
	}
	return string(data), nil
}

// GetHistory returns the newest samples, oldest first, as JSON.
func (s *Service) GetHistory(samples int32) (string, *godbus.Error) {
	if samples < 1 || samples > ring.Capacity {
		return "", godbus.MakeFailedError(fmt.Errorf("samples must be between 1 and %d, got %d", ring.Capacity, samples))
	}

	s.mu.RLock()
	history := s.status.History
	s.mu.RUnlock()

	if n := int(samples); n < len(history) {
		history = history[len(history)-n:]
	}
	if history == nil {
		history = []ring.Sample{}
	}
	data, err := json.Marshal(history)
	if err != nil {
		return "", godbus.MakeFailedError(err)
	}
	return string(data), nil
}

// GetTitles returns the short window title and the long screen title.
func (s *Service) GetTitles() (string, string, *godbus.Error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.have {
		return "", "", godbus.MakeFailedError(errNoSample)
	}
	return s.status.WindowTitle, s.status.ScreenTitle, nil
}
