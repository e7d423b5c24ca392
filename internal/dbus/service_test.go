package dbus

import (
	"encoding/json"
	"testing"

	godbus "github.com/godbus/dbus/v5"

	"github.com/cptspacemanspiff/gnome-cpu-watcher/internal/monitor"
	"github.com/cptspacemanspiff/gnome-cpu-watcher/internal/ring"
)

type recordingEmitter struct {
	names  []string
	bodies []string
}

func (r *recordingEmitter) Emit(path godbus.ObjectPath, name string, values ...interface{}) error {
	r.names = append(r.names, name)
	if len(values) == 1 {
		if s, ok := values[0].(string); ok {
			r.bodies = append(r.bodies, s)
		}
	}
	return nil
}

func testStatus() monitor.Status {
	history := make([]ring.Sample, ring.Capacity)
	for i := range history {
		history[i].CPU = uint8(i % 101)
	}
	return monitor.Status{
		Sample:      history[ring.Capacity-1],
		ULSpeed:     2.5,
		DLSpeed:     10,
		Mode:        "precise",
		WindowTitle: "CPU:  97% V:   0% P:   0% G:   0%",
		ScreenTitle: "long title",
		History:     history,
	}
}

func TestService_NoSampleYet(t *testing.T) {
	svc := NewService()

	if _, err := svc.GetCurrentStats(); err == nil {
		t.Fatal("GetCurrentStats() error = nil before first publish")
	}
	if _, _, err := svc.GetTitles(); err == nil {
		t.Fatal("GetTitles() error = nil before first publish")
	}
	got, err := svc.GetHistory(10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if got != "[]" {
		t.Fatalf("GetHistory() = %s, want []", got)
	}
}

func TestService_GetCurrentStats(t *testing.T) {
	svc := NewService()
	svc.Publish(testStatus())

	data, dbusErr := svc.GetCurrentStats()
	if dbusErr != nil {
		t.Fatalf("GetCurrentStats() error = %v", dbusErr)
	}

	var got map[string]any
	if err := json.Unmarshal([]byte(data), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["mode"] != "precise" || got["upload_kib_s"] != 2.5 {
		t.Fatalf("GetCurrentStats() = %s", data)
	}
	if _, ok := got["History"]; ok {
		t.Fatal("history leaked into current stats")
	}
	sample, ok := got["sample"].(map[string]any)
	if !ok || sample["cpu_load"] != float64(97) {
		t.Fatalf("sample = %v, want cpu_load 97", got["sample"])
	}
}

func TestService_GetHistory(t *testing.T) {
	svc := NewService()
	svc.Publish(testStatus())

	tests := []struct {
		name    string
		n       int32
		wantLen int
		wantErr bool
	}{
		{name: "newest three", n: 3, wantLen: 3},
		{name: "full ring", n: ring.Capacity, wantLen: ring.Capacity},
		{name: "zero", n: 0, wantErr: true},
		{name: "too many", n: ring.Capacity + 1, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := svc.GetHistory(tt.n)
			if tt.wantErr {
				if err == nil {
					t.Fatal("GetHistory() error = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("GetHistory() error = %v", err)
			}
			var got []ring.Sample
			if err := json.Unmarshal([]byte(data), &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if len(got) != tt.wantLen {
				t.Fatalf("len = %d, want %d", len(got), tt.wantLen)
			}
			if got[len(got)-1].CPU != 97 {
				t.Fatalf("newest CPU = %d, want 97", got[len(got)-1].CPU)
			}
		})
	}
}

func TestService_PublishEmitsSignal(t *testing.T) {
	svc := NewService()
	rec := &recordingEmitter{}
	svc.conn = rec

	svc.Publish(testStatus())

	if len(rec.names) != 1 || rec.names[0] != ifaceName+".Updated" {
		t.Fatalf("emitted = %v, want one Updated signal", rec.names)
	}
	window, screen, err := svc.GetTitles()
	if err != nil {
		t.Fatalf("GetTitles() error = %v", err)
	}
	if window != testStatus().WindowTitle || screen != "long title" {
		t.Fatalf("GetTitles() = %q, %q", window, screen)
	}
}
