// Package monitor samples host resource gauges for heartbeats and the
// status snapshot. Every probe is best-effort: a failing source leaves
// its gauge at zero rather than failing the cycle.
package monitor

import (
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	gnet "github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/sensors"
)

// Gauges is one resource sample.
type Gauges struct {
	CPUPct   float64 `json:"cpu_pct"`
	RAMPct   float64 `json:"ram_pct"`
	DiskPct  float64 `json:"disk_pct"`
	NetRxBps float64 `json:"net_rx_bps"`
	NetTxBps float64 `json:"net_tx_bps"`
	TempC    float64 `json:"temp_c"`
}

// Monitor keeps the previous network counters so rates can be derived
// between samples.
type Monitor struct {
	prevRx uint64
	prevTx uint64
	prevAt time.Time
	now    func() time.Time
}

// New builds a monitor.
func New() *Monitor {
	return &Monitor{now: time.Now}
}

// Sample probes all sources once.
func (m *Monitor) Sample() Gauges {
	var g Gauges

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		g.CPUPct = pct[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		g.RAMPct = vm.UsedPercent
	}
	if du, err := disk.Usage("/"); err == nil {
		g.DiskPct = du.UsedPercent
	}
	if counters, err := gnet.IOCounters(false); err == nil && len(counters) > 0 {
		now := m.now()
		rx, tx := counters[0].BytesRecv, counters[0].BytesSent
		if !m.prevAt.IsZero() {
			dt := now.Sub(m.prevAt).Seconds()
			if dt > 0 && rx >= m.prevRx && tx >= m.prevTx {
				g.NetRxBps = float64(rx-m.prevRx) / dt
				g.NetTxBps = float64(tx-m.prevTx) / dt
			}
		}
		m.prevRx, m.prevTx, m.prevAt = rx, tx, now
	}
	if temps, err := sensors.SensorsTemperatures(); err == nil {
		for _, t := range temps {
			if t.Temperature > 0 {
				g.TempC = t.Temperature
				break
			}
		}
	}
	return g
}
