package collector

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// sysfsRoot is overridden in tests.
var sysfsRoot = "/sys"

// ErrNoVideoMemory is returned when no DRM card exposes VRAM counters.
var ErrNoVideoMemory = errors.New("no video memory counters")

// VideoMemory is the VRAM usage summed over all DRM cards, in bytes.
type VideoMemory struct {
	Total uint64
	Used  uint64
}

// Free returns Total-Used, or 0 when the card reports more used than total.
func (v VideoMemory) Free() uint64 {
	if v.Used >= v.Total {
		return 0
	}
	return v.Total - v.Used
}

// ReadVideoMemory reads mem_info_vram_total/used from every card under
// class/drm. Cards without the files (most non-amdgpu drivers) are skipped.
func ReadVideoMemory() (VideoMemory, error) {
	cards, err := filepath.Glob(filepath.Join(sysfsRoot, "class/drm/card[0-9]*"))
	if err != nil {
		return VideoMemory{}, fmt.Errorf("glob drm: %w", err)
	}
	sort.Strings(cards)

	var vm VideoMemory
	found := false
	for _, card := range cards {
		if strings.Contains(filepath.Base(card), "-") {
			continue // connector, e.g. card0-DP-1
		}
		dev := filepath.Join(card, "device")
		total, err := readIntFile(filepath.Join(dev, "mem_info_vram_total"))
		if err != nil || total <= 0 {
			continue
		}
		used, err := readIntFile(filepath.Join(dev, "mem_info_vram_used"))
		if err != nil || used < 0 {
			continue
		}
		vm.Total += uint64(total)
		vm.Used += uint64(used)
		found = true
	}
	if !found {
		return VideoMemory{}, ErrNoVideoMemory
	}
	return vm, nil
}

func readIntFile(path string) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
}
