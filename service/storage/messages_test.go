package storage

import "testing"

func TestDMKeyDirectionIndependent(t *testing.T) {
	if DMKey("alice", "bob") != DMKey("bob", "alice") {
		t.Fatalf("DMKey depends on direction")
	}
	if got, want := DMKey("bob", "alice"), "tw:dm:alice:bob"; got != want {
		t.Fatalf("DMKey = %q, want %q", got, want)
	}
}

func TestPresenceKeyPerGateway(t *testing.T) {
	// One entry per (user, gateway) pair: a node going away only deletes
	// its own entry, never a peer's.
	if got, want := presenceKey("u1", "gw-1"), "tw:presence:u1:gw-1"; got != want {
		t.Fatalf("presenceKey = %q, want %q", got, want)
	}
	if presenceKey("u1", "gw-1") == presenceKey("u1", "gw-2") {
		t.Fatalf("entries for different gateways collide")
	}
}

func TestHelpersRequireRedis(t *testing.T) {
	// Without InitRedis every helper degrades to an error the callers
	// treat as best-effort.
	if Enabled() {
		t.Skip("redis initialized by another test")
	}
	if _, err := AppendDM(DMKey("a", "b"), map[string]any{"x": 1}); err == nil {
		t.Fatalf("AppendDM without redis should fail")
	}
	if _, err := UnreadIncr("a", "b"); err == nil {
		t.Fatalf("UnreadIncr without redis should fail")
	}
	if err := PresenceOnline("a", "gw", 0); err == nil {
		t.Fatalf("PresenceOnline without redis should fail")
	}
	if err := PresenceOffline("a", "gw"); err == nil {
		t.Fatalf("PresenceOffline without redis should fail")
	}
	if _, err := PresenceLookup("a"); err == nil {
		t.Fatalf("PresenceLookup without redis should fail")
	}
	if _, err := PresenceAnywhere("a"); err == nil {
		t.Fatalf("PresenceAnywhere without redis should fail")
	}
}
