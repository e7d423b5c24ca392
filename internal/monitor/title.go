package monitor

import (
	"fmt"

	"github.com/cptspacemanspiff/gnome-cpu-watcher/internal/probe"
	"github.com/cptspacemanspiff/gnome-cpu-watcher/internal/ring"
	"github.com/cptspacemanspiff/gnome-cpu-watcher/internal/sampler"
)

// WindowTitle is the short title shown in the window's drag bar.
func WindowTitle(s ring.Sample) string {
	return fmt.Sprintf("CPU: %3d%% V: %3d%% P: %3d%% G: %3d%%",
		s.CPU, s.FreeVirtual, s.FreeRAM, s.FreeVideo)
}

// ScreenTitle is the long status line including speeds and the mode letter.
func ScreenTitle(r sampler.Reading, mode probe.Mode) string {
	return fmt.Sprintf("CPU: %3d%% Virtual: %3d%% Public: %3d%% Graphics: %3d%% Download: %4.1fKB/s Upload: %4.1fKB/s Mode: %c",
		r.CPU, r.FreeVirtual, r.FreeRAM, r.FreeVideo, r.DLSpeed, r.ULSpeed, mode.Letter())
}
