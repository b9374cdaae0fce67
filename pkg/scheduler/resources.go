package scheduler

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/mem"
)

// ResourceMonitor samples CPU/memory/idle-worker fractions on a ticker,
// grounded on the teacher's collector.Collector.collectLoop idiom
// (ticker-driven background sampling guarded by a mutex), adapted from
// Prometheus-metric polling to a direct gopsutil platform probe.
type ResourceMonitor struct {
	interval time.Duration

	mu          sync.RWMutex
	latest      ResourceSample
	activeJobs  int
	totalSlots  int

	running bool
	stopCh  chan struct{}
}

// NewResourceMonitor creates a monitor sampling every interval (spec.md
// §5's "platform probe every 2 seconds" by default).
func NewResourceMonitor(interval time.Duration) *ResourceMonitor {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &ResourceMonitor{interval: interval, stopCh: make(chan struct{})}
}

// SetCapacity records how many worker slots exist and how many are
// currently busy, so Sample can compute idle-worker-fraction.
func (m *ResourceMonitor) SetCapacity(totalSlots, activeJobs int) {
	m.mu.Lock()
	m.totalSlots = totalSlots
	m.activeJobs = activeJobs
	m.mu.Unlock()
}

// Start begins the sampling loop. It takes one sample immediately so
// Latest() is usable right away.
func (m *ResourceMonitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	m.sampleOnce(ctx)
	go m.loop(ctx)
}

func (m *ResourceMonitor) loop(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.sampleOnce(ctx)
		}
	}
}

func (m *ResourceMonitor) sampleOnce(ctx context.Context) {
	sample := ResourceSample{Timestamp: time.Now()}

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		sample.CPUFraction = percents[0] / 100.0
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		sample.MemoryFraction = vm.UsedPercent / 100.0
	}

	m.mu.Lock()
	if m.totalSlots > 0 {
		sample.IdleWorkerFraction = 1 - float64(m.activeJobs)/float64(m.totalSlots)
	} else {
		sample.IdleWorkerFraction = 1
	}
	m.latest = sample
	m.mu.Unlock()
}

// Latest returns the most recent sample. Before Start takes its first
// sample it returns the zero ResourceSample.
func (m *ResourceMonitor) Latest() ResourceSample {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest
}

// Stop ends the sampling loop.
func (m *ResourceMonitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()
	close(m.stopCh)
}

// HardwareThreads returns the number of logical CPUs the scheduler sizes
// its worker counts from.
func HardwareThreads() int {
	return runtime.NumCPU()
}

// ResidentSetCeilingExceeded returns the memory the Go runtime has
// obtained from the OS (runtime.MemStats.Sys, not the resident-set size)
// as a fraction of ceilingMB; ok is false when ceilingMB is not positive.
// It applies no threshold itself, and the scheduler does not call it, so
// the configured memory ceiling does not change the mode or batch size.
func ResidentSetCeilingExceeded(ceilingMB int) (exceededFraction float64, ok bool) {
	if ceilingMB <= 0 {
		return 0, false
	}
	var rtm runtime.MemStats
	runtime.ReadMemStats(&rtm)
	usedMB := float64(rtm.Sys) / (1024 * 1024)
	return usedMB / float64(ceilingMB), true
}
