package collector

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/cptspacemanspiff/gnome-cpu-watcher/internal/ring"
)

// MemoryReader reports the free percentage of the three memory pools.
// Each pool may fail independently.
type MemoryReader struct {
	virtualMemory func() (*mem.VirtualMemoryStat, error)
	swapMemory    func() (*mem.SwapMemoryStat, error)
	video         func() (VideoMemory, error)
}

// NewMemoryReader returns a reader backed by gopsutil and DRM sysfs.
func NewMemoryReader() *MemoryReader {
	return &MemoryReader{
		virtualMemory: mem.VirtualMemory,
		swapMemory:    mem.SwapMemory,
		video:         ReadVideoMemory,
	}
}

// FreeRAM returns available system RAM as a percentage of total.
func (m *MemoryReader) FreeRAM() (uint8, error) {
	vm, err := m.virtualMemory()
	if err != nil {
		return 0, fmt.Errorf("read ram: %w", err)
	}
	return ring.Percent(vm.Available, vm.Total), nil
}

// FreeVirtual returns free swap as a percentage of total swap.
func (m *MemoryReader) FreeVirtual() (uint8, error) {
	sw, err := m.swapMemory()
	if err != nil {
		return 0, fmt.Errorf("read swap: %w", err)
	}
	return ring.Percent(sw.Free, sw.Total), nil
}

// FreeVideo returns free VRAM as a percentage of total VRAM.
func (m *MemoryReader) FreeVideo() (uint8, error) {
	v, err := m.video()
	if err != nil {
		return 0, err
	}
	return ring.Percent(v.Free(), v.Total), nil
}
