package terminal

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gluk-w/claworc/console/internal/instances"
	"github.com/gluk-w/claworc/console/internal/simterm"
	"github.com/gluk-w/claworc/console/internal/termproto"
	"github.com/gluk-w/claworc/console/internal/termsession"
)

// DefaultRetention is how long closed terminals stay listed before
// CleanupClosed drops them.
const DefaultRetention = 10 * time.Minute

// ManagerConfig holds the settings shared by every terminal a Manager creates.
type ManagerConfig struct {
	Dialer       termsession.Dialer
	PingInterval time.Duration
	Record       bool
	RecordLimit  int
	// Retention is how long closed terminals remain visible. Zero uses
	// DefaultRetention.
	Retention time.Duration
	// OnClose receives the audit summary of every closed terminal.
	OnClose func(Summary)
}

// CreateOptions describes one terminal to create.
type CreateOptions struct {
	Target        termproto.Target
	Controller    instances.Controller
	InstanceName  string
	Clipboard     simterm.Clipboard
	AuthorizedKey string
}

// Manager tracks all terminals across all targets.
type Manager struct {
	cfg   ManagerConfig
	locks *targetLocks

	mu        sync.RWMutex
	terminals map[string]*Coordinator // terminal ID → coordinator
}

// NewManager creates an empty Manager.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	return &Manager{
		cfg:       cfg,
		locks:     newTargetLocks(),
		terminals: make(map[string]*Coordinator),
	}
}

// Create registers a new simulated-mode terminal for target. The caller opens
// it with Coordinator.Open.
func (m *Manager) Create(opts CreateOptions) *Coordinator {
	c := New(Options{
		ID:            uuid.New().String(),
		Target:        opts.Target,
		Dialer:        m.cfg.Dialer,
		PingInterval:  m.cfg.PingInterval,
		Record:        m.cfg.Record,
		RecordLimit:   m.cfg.RecordLimit,
		Controller:    opts.Controller,
		InstanceName:  opts.InstanceName,
		Clipboard:     opts.Clipboard,
		AuthorizedKey: opts.AuthorizedKey,
		OnClose:       m.cfg.OnClose,
		locks:         m.locks,
	})

	m.mu.Lock()
	m.terminals[c.ID()] = c
	m.mu.Unlock()

	log.Printf("[terminal] created %s for target %s", c.ID(), c.Target().ID)
	return c
}

// Get returns a terminal by ID, or nil if not found.
func (m *Manager) Get(id string) *Coordinator {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.terminals[id]
}

// List returns the terminals of a target, oldest first. An empty targetID
// lists every terminal.
func (m *Manager) List(targetID string) []*Coordinator {
	m.mu.RLock()
	var result []*Coordinator
	for _, c := range m.terminals {
		if targetID != "" && c.Target().ID != targetID {
			continue
		}
		result = append(result, c)
	}
	m.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt().Before(result[j].CreatedAt())
	})
	return result
}

// LiveOwner returns the ID of the terminal holding target's live connection.
func (m *Manager) LiveOwner(t termproto.Target) (string, bool) {
	return m.locks.owner(lockKey(t))
}

// CloseSession closes a terminal by ID.
func (m *Manager) CloseSession(id string) error {
	c := m.Get(id)
	if c == nil {
		return fmt.Errorf("terminal %q not found", id)
	}
	c.Close()
	return nil
}

// CloseAllForTarget closes every terminal bound to targetID.
func (m *Manager) CloseAllForTarget(targetID string) int {
	list := m.List(targetID)
	n := 0
	for _, c := range list {
		if !c.IsClosed() {
			c.Close()
			n++
		}
	}
	return n
}

// CleanupClosed drops closed terminals older than the retention window. It
// is meant to run periodically.
func (m *Manager) CleanupClosed() int {
	cutoff := time.Now().Add(-m.cfg.Retention)

	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, c := range m.terminals {
		closedAt, ok := c.ClosedAt()
		if ok && closedAt.Before(cutoff) {
			delete(m.terminals, id)
			removed++
		}
	}
	if removed > 0 {
		log.Printf("[terminal] cleaned up %d closed terminal(s)", removed)
	}
	return removed
}

// Stop closes every terminal. Used at shutdown.
func (m *Manager) Stop() {
	for _, c := range m.List("") {
		c.Close()
	}
}

// Count returns the number of tracked terminals.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.terminals)
}

// ActiveCount returns the number of terminals not yet closed.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, c := range m.terminals {
		if !c.IsClosed() {
			n++
		}
	}
	return n
}
