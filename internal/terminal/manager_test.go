package terminal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gluk-w/claworc/console/internal/termproto"
	"github.com/gluk-w/claworc/console/internal/termsession"
)

func TestManager_CreateAssignsUniqueIDs(t *testing.T) {
	m := NewManager(ManagerConfig{})
	defer m.Stop()

	a := m.Create(CreateOptions{Target: target})
	b := m.Create(CreateOptions{Target: target})
	if a.ID() == "" || a.ID() == b.ID() {
		t.Fatalf("ids = %q, %q; want distinct non-empty", a.ID(), b.ID())
	}
	if m.Get(a.ID()) != a {
		t.Error("Get did not return the created terminal")
	}
	if m.Get("missing") != nil {
		t.Error("Get of unknown id should be nil")
	}
	if m.Count() != 2 {
		t.Errorf("Count = %d, want 2", m.Count())
	}
}

func TestManager_ListFiltersByTarget(t *testing.T) {
	m := NewManager(ManagerConfig{})
	defer m.Stop()

	other := termproto.Target{ID: "8", Host: "10.0.0.6"}
	m.Create(CreateOptions{Target: target})
	m.Create(CreateOptions{Target: other})
	m.Create(CreateOptions{Target: target})

	if got := len(m.List("7")); got != 2 {
		t.Errorf("List(7) = %d terminals, want 2", got)
	}
	if got := len(m.List("8")); got != 1 {
		t.Errorf("List(8) = %d terminals, want 1", got)
	}
	if got := len(m.List("")); got != 3 {
		t.Errorf("List() = %d terminals, want 3", got)
	}
}

func TestManager_OneLiveConnectionPerTarget(t *testing.T) {
	d := &pipeDialer{}
	m := NewManager(ManagerConfig{Dialer: d})
	defer m.Stop()

	first := m.Create(CreateOptions{Target: target})
	first.Open(context.Background(), termsession.ModeSimulated)
	goLive(t, first, d)

	second := m.Create(CreateOptions{Target: target})
	second.Open(context.Background(), termsession.ModeSimulated)
	err := second.RequestLive(context.Background())
	if !errors.Is(err, ErrTargetBusy) {
		t.Fatalf("second RequestLive = %v, want ErrTargetBusy", err)
	}
	if !contains(second.View().Scrollback, "Another terminal is already connected") {
		t.Errorf("busy notice missing: %q", second.View().Scrollback)
	}
	if second.Mode() != termsession.ModeSimulated {
		t.Errorf("second mode = %s, want simulated", second.Mode())
	}
	if owner, _ := m.LiveOwner(target); owner != first.ID() {
		t.Errorf("live owner = %q, want %q", owner, first.ID())
	}

	first.Close()
	if _, ok := m.LiveOwner(target); ok {
		t.Fatal("target still held after the owner closed")
	}
	goLive(t, second, d)
}

func TestManager_TargetFreedWhenSessionFails(t *testing.T) {
	d := &pipeDialer{}
	m := NewManager(ManagerConfig{Dialer: d})
	defer m.Stop()

	c := m.Create(CreateOptions{Target: target})
	c.Open(context.Background(), termsession.ModeSimulated)
	p := goLive(t, c, d)

	p.Close()
	waitFor(t, "target release", func() bool {
		_, held := m.LiveOwner(target)
		return !held
	})
}

func TestManager_CloseSession(t *testing.T) {
	m := NewManager(ManagerConfig{})
	c := m.Create(CreateOptions{Target: target})

	if err := m.CloseSession(c.ID()); err != nil {
		t.Fatalf("CloseSession: %v", err)
	}
	if !c.IsClosed() {
		t.Error("terminal not closed")
	}
	if err := m.CloseSession("missing"); err == nil {
		t.Error("CloseSession of unknown id should fail")
	}
}

func TestManager_CloseAllForTarget(t *testing.T) {
	var mu sync.Mutex
	closed := map[string]bool{}
	m := NewManager(ManagerConfig{OnClose: func(s Summary) {
		mu.Lock()
		closed[s.ID] = true
		mu.Unlock()
	}})

	a := m.Create(CreateOptions{Target: target})
	b := m.Create(CreateOptions{Target: target})
	other := m.Create(CreateOptions{Target: termproto.Target{ID: "8", Host: "10.0.0.6"}})

	if n := m.CloseAllForTarget("7"); n != 2 {
		t.Errorf("CloseAllForTarget = %d, want 2", n)
	}
	if !a.IsClosed() || !b.IsClosed() {
		t.Error("target terminals not closed")
	}
	if other.IsClosed() {
		t.Error("unrelated terminal closed")
	}
	if m.ActiveCount() != 1 {
		t.Errorf("ActiveCount = %d, want 1", m.ActiveCount())
	}
	mu.Lock()
	defer mu.Unlock()
	if !closed[a.ID()] || !closed[b.ID()] || closed[other.ID()] {
		t.Errorf("OnClose calls = %v", closed)
	}
}

func TestManager_CleanupClosed(t *testing.T) {
	m := NewManager(ManagerConfig{Retention: time.Millisecond})
	defer m.Stop()

	done := m.Create(CreateOptions{Target: target})
	open := m.Create(CreateOptions{Target: target})
	done.Close()
	time.Sleep(5 * time.Millisecond)

	if n := m.CleanupClosed(); n != 1 {
		t.Fatalf("CleanupClosed = %d, want 1", n)
	}
	if m.Get(done.ID()) != nil {
		t.Error("closed terminal still tracked")
	}
	if m.Get(open.ID()) == nil {
		t.Error("open terminal removed")
	}
}

func TestManager_CleanupKeepsRecentlyClosed(t *testing.T) {
	m := NewManager(ManagerConfig{})
	c := m.Create(CreateOptions{Target: target})
	c.Close()

	if n := m.CleanupClosed(); n != 0 {
		t.Errorf("CleanupClosed = %d, want 0 within retention", n)
	}
}
