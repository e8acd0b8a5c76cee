package chat

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"TalkWire/tools/errs"
)

func newTestClient(connID string) *Client {
	return newClient(connID, nil, 16)
}

func TestRegistryBindAndDrop(t *testing.T) {
	r := NewRegistry()

	a1 := newTestClient("a1")
	a2 := newTestClient("a2")
	r.Track(a1)
	r.Track(a2)

	wentOnline, err := r.Bind("a1", "alice")
	if err != nil {
		t.Fatalf("bind a1: %v", err)
	}
	if !wentOnline {
		t.Fatalf("first connection should transition alice online")
	}

	wentOnline, err = r.Bind("a2", "alice")
	if err != nil {
		t.Fatalf("bind a2: %v", err)
	}
	if wentOnline {
		t.Fatalf("second connection must not re-transition alice online")
	}

	if got := len(r.ConnectionsFor("alice")); got != 2 {
		t.Fatalf("alice connections = %d, want 2", got)
	}
	if err := r.CheckConsistency(); err != nil {
		t.Fatalf("consistency after binds: %v", err)
	}

	// Losing one of two connections keeps the user online.
	if user, wentOffline := r.Drop("a1"); user != "alice" || wentOffline {
		t.Fatalf("drop a1 = (%q, %v), want (alice, false)", user, wentOffline)
	}
	if !r.IsOnline("alice") {
		t.Fatalf("alice should still be online via a2")
	}

	// Losing the last one transitions offline exactly once.
	if user, wentOffline := r.Drop("a2"); user != "alice" || !wentOffline {
		t.Fatalf("drop a2 = (%q, %v), want (alice, true)", user, wentOffline)
	}
	if r.IsOnline("alice") {
		t.Fatalf("alice should be offline")
	}
	if err := r.CheckConsistency(); err != nil {
		t.Fatalf("consistency after drops: %v", err)
	}
}

func TestRegistryBindIdempotent(t *testing.T) {
	r := NewRegistry()
	c := newTestClient("c1")
	r.Track(c)

	if _, err := r.Bind("c1", "alice"); err != nil {
		t.Fatalf("first bind: %v", err)
	}
	// Same pair again is a no-op, not an error.
	wentOnline, err := r.Bind("c1", "alice")
	if err != nil {
		t.Fatalf("re-bind same pair: %v", err)
	}
	if wentOnline {
		t.Fatalf("re-bind must not report a transition")
	}
	if got := len(r.ConnectionsFor("alice")); got != 1 {
		t.Fatalf("alice connections = %d, want exactly 1", got)
	}
}

func TestRegistryBindConflict(t *testing.T) {
	r := NewRegistry()
	c := newTestClient("c1")
	r.Track(c)

	if _, err := r.Bind("c1", "alice"); err != nil {
		t.Fatalf("first bind: %v", err)
	}
	_, err := r.Bind("c1", "bob")
	if !errors.Is(err, errs.ErrAlreadyBound) {
		t.Fatalf("rebind to another user = %v, want AlreadyBound", err)
	}
	// The first binding is kept.
	if c.UserID() != "alice" {
		t.Fatalf("binding changed to %q, want alice", c.UserID())
	}
	if err := r.CheckConsistency(); err != nil {
		t.Fatalf("consistency after conflict: %v", err)
	}
}

func TestRegistryDropUnknownIsNoop(t *testing.T) {
	r := NewRegistry()
	if user, wentOffline := r.Drop("ghost"); user != "" || wentOffline {
		t.Fatalf("drop unknown = (%q, %v), want no-op", user, wentOffline)
	}
	// Duplicate disconnect events for the same connection.
	c := newTestClient("c1")
	r.Track(c)
	if _, err := r.Bind("c1", "alice"); err != nil {
		t.Fatalf("bind: %v", err)
	}
	r.Drop("c1")
	if user, wentOffline := r.Drop("c1"); user != "" || wentOffline {
		t.Fatalf("second drop = (%q, %v), want no-op", user, wentOffline)
	}
}

func TestRegistryConcurrentLifecycles(t *testing.T) {
	r := NewRegistry()
	const users = 50
	const connsPer = 4

	var wg sync.WaitGroup
	for u := 0; u < users; u++ {
		for k := 0; k < connsPer; k++ {
			wg.Add(1)
			go func(u, k int) {
				defer wg.Done()
				id := fmt.Sprintf("c-%d-%d", u, k)
				c := newTestClient(id)
				r.Track(c)
				if _, err := r.Bind(id, fmt.Sprintf("user-%d", u)); err != nil {
					t.Errorf("bind %s: %v", id, err)
				}
			}(u, k)
		}
	}
	wg.Wait()

	if err := r.CheckConsistency(); err != nil {
		t.Fatalf("consistency after concurrent binds: %v", err)
	}
	online := r.OnlineUsers()
	if len(online) != users {
		t.Fatalf("online users = %d, want %d", len(online), users)
	}
	seen := make(map[string]bool, len(online))
	for _, u := range online {
		if seen[u] {
			t.Fatalf("duplicate user %s in snapshot", u)
		}
		seen[u] = true
	}

	// Tear everything down concurrently; registry must end empty.
	for u := 0; u < users; u++ {
		for k := 0; k < connsPer; k++ {
			wg.Add(1)
			go func(u, k int) {
				defer wg.Done()
				r.Drop(fmt.Sprintf("c-%d-%d", u, k))
			}(u, k)
		}
	}
	wg.Wait()

	if err := r.CheckConsistency(); err != nil {
		t.Fatalf("consistency after concurrent drops: %v", err)
	}
	if n := len(r.OnlineUsers()); n != 0 {
		t.Fatalf("online users after teardown = %d, want 0", n)
	}
	if n := r.Len(); n != 0 {
		t.Fatalf("tracked connections after teardown = %d, want 0", n)
	}
}
