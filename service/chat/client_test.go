package chat

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestClientGraceExpiresUnbound(t *testing.T) {
	c := newTestClient("c1")
	var fired atomic.Bool
	c.startGrace(30*time.Millisecond, func() {
		if !c.Bound() {
			fired.Store(true)
		}
	})

	time.Sleep(100 * time.Millisecond)
	if !fired.Load() {
		t.Fatalf("grace timer did not fire for unbound connection")
	}
}

func TestClientBindStopsGrace(t *testing.T) {
	r := NewRegistry()
	c := newTestClient("c1")
	r.Track(c)

	var fired atomic.Bool
	c.startGrace(50*time.Millisecond, func() {
		if !c.Bound() {
			fired.Store(true)
		}
	})
	if _, err := r.Bind("c1", "alice"); err != nil {
		t.Fatalf("bind: %v", err)
	}

	time.Sleep(120 * time.Millisecond)
	if fired.Load() {
		t.Fatalf("grace timer fired after successful registration")
	}
}

func TestClientCloseIsTerminal(t *testing.T) {
	r := NewRegistry()
	c := newTestClient("c1")
	r.Track(c)
	c.markClosed()
	c.markClosed() // idempotent

	// A registration racing a disconnect loses.
	if _, err := r.Bind("c1", "alice"); err == nil {
		t.Fatalf("bind after close should fail")
	}
	if c.Bound() {
		t.Fatalf("closed connection reports bound")
	}
}

func TestClientEnqueueDropsWhenFull(t *testing.T) {
	c := newClient("c1", nil, 2)
	if !c.enqueue([]byte("a")) || !c.enqueue([]byte("b")) {
		t.Fatalf("enqueue into free buffer failed")
	}
	if c.enqueue([]byte("c")) {
		t.Fatalf("enqueue into full buffer should drop")
	}
}
