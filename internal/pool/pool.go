// Package pool implements the edge-server selection policy: a penalty-counter
// guarded server list with cell-affinity, type, and weighted-load selection,
// refreshed lazily from the control plane. The table-of-named-endpoints shape
// mirrors this codebase's existing provider registry, generalized here to
// hold discovered server descriptors rather than a static configuration map.
package pool

import (
	"context"
	"fmt"
	"sync"
)

// ServerType distinguishes edge server flavors returned by the directory
// service.
type ServerType string

const (
	TypeSteamCache ServerType = "SteamCache"
	TypeCDN        ServerType = "CDN"
)

// ServerDescriptor is an immutable edge server entry.
type ServerDescriptor struct {
	Type         ServerType
	Secure       bool
	Host         string
	VHost        string
	Port         int
	CellID       uint32
	Load         float64
	WeightedLoad float64
}

// URLBase returns the scheme://host:port prefix for requests to this server.
func (d ServerDescriptor) URLBase() string {
	scheme := "http"
	if d.Secure {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, d.Host, d.Port)
}

// DirectoryEntry is the shape the control plane's server-directory response
// maps onto before being turned into a ServerDescriptor.
type DirectoryEntry struct {
	Type         string
	Host         string
	VHost        string
	HTTPSSupport string // "mandatory", "optional", "none"
	CellID       uint32
	Load         float64
	WeightedLoad float64
}

// ToDescriptor converts a raw directory entry into a ServerDescriptor,
// applying the port/scheme convention the edge servers use.
func (e DirectoryEntry) ToDescriptor() ServerDescriptor {
	secure := e.HTTPSSupport == "mandatory"
	port := 80
	if secure {
		port = 443
	}
	return ServerDescriptor{
		Type:         ServerType(e.Type),
		Secure:       secure,
		Host:         e.Host,
		VHost:        e.VHost,
		Port:         port,
		CellID:       e.CellID,
		Load:         e.Load,
		WeightedLoad: e.WeightedLoad,
	}
}

// RefreshFunc fetches a fresh server directory for the given cell id.
type RefreshFunc func(ctx context.Context, cellID uint32) ([]DirectoryEntry, error)

type entry struct {
	descriptor ServerDescriptor
	penalty    int
}

// Pool holds the current list of edge servers with a per-server penalty
// counter and refreshes itself from the control plane when exhausted.
type Pool struct {
	mu      sync.Mutex
	entries []entry
	refresh RefreshFunc
	cellID  uint32
}

// New constructs an empty pool that will call refresh on first use.
func New(cellID uint32, refresh RefreshFunc) *Pool {
	return &Pool{refresh: refresh, cellID: cellID}
}

// ErrNoServers is returned when no server descriptor can be selected even
// after a refresh.
var ErrNoServers = fmt.Errorf("pool: no suitable servers available")

// Pick selects a server: cell-affinity first, then the least-penalized,
// least-loaded CDN/SteamCache entry, refreshing the pool first if it is
// empty or fully penalized.
func (p *Pool) Pick(ctx context.Context) (ServerDescriptor, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.needsRefreshLocked() {
		if err := p.refreshLocked(ctx); err != nil {
			return ServerDescriptor{}, fmt.Errorf("pool: refreshing: %w", err)
		}
	}

	if len(p.entries) == 0 {
		return ServerDescriptor{}, ErrNoServers
	}

	for _, e := range p.entries {
		if e.descriptor.CellID == p.cellID && e.penalty == 0 {
			return e.descriptor, nil
		}
	}

	best := -1
	for i, e := range p.entries {
		if e.descriptor.Type != TypeCDN && e.descriptor.Type != TypeSteamCache {
			continue
		}
		if best == -1 {
			best = i
			continue
		}
		bi := p.entries[best]
		if e.penalty < bi.penalty ||
			(e.penalty == bi.penalty && e.descriptor.WeightedLoad < bi.descriptor.WeightedLoad) {
			best = i
		}
	}
	if best == -1 {
		return ServerDescriptor{}, ErrNoServers
	}
	return p.entries[best].descriptor, nil
}

// Penalize increments the penalty counter for the entry matching descriptor.
// It is invoked whenever an edge request against that server returns a
// non-2xx status.
func (p *Pool) Penalize(descriptor ServerDescriptor) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.entries {
		if p.entries[i].descriptor == descriptor {
			p.entries[i].penalty++
			return
		}
	}
}

func (p *Pool) needsRefreshLocked() bool {
	if len(p.entries) == 0 {
		return true
	}
	for _, e := range p.entries {
		if e.penalty == 0 {
			return false
		}
	}
	return true
}

func (p *Pool) refreshLocked(ctx context.Context) error {
	dirEntries, err := p.refresh(ctx, p.cellID)
	if err != nil {
		return err
	}
	entries := make([]entry, 0, len(dirEntries))
	for _, d := range dirEntries {
		entries = append(entries, entry{descriptor: d.ToDescriptor()})
	}
	p.entries = entries
	return nil
}

// Len reports the current number of entries, for diagnostics and tests.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
