package chat

import (
	"testing"
	"time"
)

func TestFanoutDeliversToEveryConn(t *testing.T) {
	fan := NewFanout(2, 16)
	t.Cleanup(fan.Close)

	a := newTestClient("a")
	b := newTestClient("b")
	fan.Broadcast([]*Client{a, b}, []byte("x"))

	for _, c := range []*Client{a, b} {
		select {
		case got := <-c.Send:
			if string(got) != "x" {
				t.Fatalf("conn %s got %q", c.ConnID, got)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("conn %s got nothing", c.ConnID)
		}
	}
}

func TestFanoutBroadcastAfterClose(t *testing.T) {
	fan := NewFanout(1, 4)
	c := newTestClient("c1")

	fan.Close()
	fan.Close() // idempotent

	// Shutdown races a handler still finishing: must not panic, must
	// not deliver.
	fan.Broadcast([]*Client{c}, []byte("late"))
	select {
	case got := <-c.Send:
		t.Fatalf("delivery after close: %q", got)
	case <-time.After(50 * time.Millisecond):
	}
}
