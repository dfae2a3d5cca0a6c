package serial

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"serialscope/bus"
	"serialscope/models"
)

// Poller watches the set of OS serial devices and publishes a
// PortsChangedEvent whenever the sorted set of paths differs from the
// previous snapshot. Enumeration failures are logged and treated as "no
// change".
type Poller struct {
	list   Lister
	events *bus.Bus
	logger *slog.Logger

	mu       sync.RWMutex
	snapshot []models.PortInfo
	started  bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewPoller creates a poller over the given lister
func NewPoller(list Lister, events *bus.Bus, logger *slog.Logger) *Poller {
	return &Poller{
		list:   list,
		events: events,
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

// Start begins polling at the given interval. The first poll runs
// immediately and seeds the snapshot without publishing.
func (p *Poller) Start(interval time.Duration) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	if ports, err := p.list(); err != nil {
		p.logger.Warn("Initial port enumeration failed", "error", err)
	} else {
		p.mu.Lock()
		p.snapshot = ports
		p.mu.Unlock()
	}

	p.wg.Add(1)
	go p.loop(interval)
}

// Stop halts the poll loop and waits for it to exit
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()

	close(p.stopCh)
	p.wg.Wait()
}

// Ports returns the most recent enumeration snapshot
func (p *Poller) Ports() []models.PortInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]models.PortInfo, len(p.snapshot))
	copy(out, p.snapshot)
	return out
}

func (p *Poller) loop(interval time.Duration) {
	defer p.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.poll()
		}
	}
}

func (p *Poller) poll() {
	ports, err := p.list()
	if err != nil {
		p.logger.Warn("Port enumeration failed", "error", err)
		return
	}

	p.mu.Lock()
	changed := !samePaths(p.snapshot, ports)
	if changed {
		p.snapshot = ports
	}
	p.mu.Unlock()

	if changed {
		p.logger.Info("Serial port set changed", "count", len(ports))
		p.events.Publish(bus.PortsChangedEvent{Ports: ports})
	}
}

// samePaths compares two enumerations by their sorted path sets
func samePaths(a, b []models.PortInfo) bool {
	if len(a) != len(b) {
		return false
	}
	ap := make([]string, len(a))
	bp := make([]string, len(b))
	for i := range a {
		ap[i] = a[i].Path
	}
	for i := range b {
		bp[i] = b[i].Path
	}
	sort.Strings(ap)
	sort.Strings(bp)
	for i := range ap {
		if ap[i] != bp[i] {
			return false
		}
	}
	return true
}
