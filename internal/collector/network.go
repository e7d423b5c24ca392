package collector

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/net"

	"github.com/cptspacemanspiff/gnome-cpu-watcher/internal/netstats"
)

// NetCounters sums byte counters over every interface except loopback.
type NetCounters struct {
	ioCounters func(pernic bool) ([]net.IOCountersStat, error)
}

// NewNetCounters returns counters backed by gopsutil.
func NewNetCounters() *NetCounters {
	return &NetCounters{ioCounters: net.IOCounters}
}

// Read implements netstats.Source.
func (n *NetCounters) Read() (netstats.Counters, error) {
	stats, err := n.ioCounters(true)
	if err != nil {
		return netstats.Counters{}, fmt.Errorf("read nic counters: %w", err)
	}
	var c netstats.Counters
	for _, s := range stats {
		if s.Name == "lo" {
			continue
		}
		c.BytesRecv += s.BytesRecv
		c.BytesSent += s.BytesSent
	}
	return c, nil
}
