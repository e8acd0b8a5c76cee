package chat

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"TalkWire/tools/errs"
	"TalkWire/tools/security"
)

func newTestServer(t *testing.T, opts Options) (*Server, *fakeStore) {
	t.Helper()
	st := newFakeStore()
	opts.FanoutWorkers = 2
	opts.FanoutQueue = 64
	s := NewServer(opts, st, nil)
	t.Cleanup(s.Close)
	return s, st
}

func frame(t *testing.T, event string, data any) *Frame {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s payload: %v", event, err)
	}
	return &Frame{Event: event, Data: raw}
}

// recvErrorCode waits for the next error frame and returns its code.
func recvErrorCode(t *testing.T, c *Client) int {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case raw := <-c.Send:
			f, err := ParseFrame(raw)
			if err != nil {
				t.Fatalf("bad outbound frame: %v", err)
			}
			if f.Event != EventError {
				continue
			}
			var ce errs.CodeError
			if err := json.Unmarshal(f.Data, &ce); err != nil {
				t.Fatalf("decode error payload: %v", err)
			}
			return ce.Code
		case <-deadline:
			t.Fatalf("no error frame for conn %s", c.ConnID)
			return 0
		}
	}
}

func TestRegisterHandlerBareStringPayload(t *testing.T) {
	s, _ := newTestServer(t, Options{GatewayID: "gw-h"})
	c := newTestClient("c1")
	s.reg.Track(c)

	if err := (registerHandler{}).Handle(&Context{S: s}, frame(t, EventRegister, "alice"), c); err != nil {
		t.Fatalf("register: %v", err)
	}
	if got := c.UserID(); got != "alice" {
		t.Fatalf("bound user = %q, want alice", got)
	}

	// Ack carries the durable user id and the connection id.
	m := struct {
		UserID string `json:"userId"`
		ConnID string `json:"connId"`
	}{}
	deadline := time.After(2 * time.Second)
	for {
		select {
		case raw := <-c.Send:
			f, err := ParseFrame(raw)
			if err != nil {
				t.Fatalf("bad outbound frame: %v", err)
			}
			if f.Event != EventRegistered {
				continue
			}
			if err := json.Unmarshal(f.Data, &m); err != nil {
				t.Fatalf("decode ack: %v", err)
			}
			if m.UserID != "alice" || m.ConnID != "c1" {
				t.Fatalf("ack = %+v", m)
			}
			return
		case <-deadline:
			t.Fatalf("no registered ack")
		}
	}
}

func TestRegisterHandlerRejectsConflictingRebind(t *testing.T) {
	s, _ := newTestServer(t, Options{GatewayID: "gw-h"})
	c := newTestClient("c1")
	s.reg.Track(c)

	if err := (registerHandler{}).Handle(&Context{S: s}, frame(t, EventRegister, "alice"), c); err != nil {
		t.Fatalf("first register: %v", err)
	}
	err := (registerHandler{}).Handle(&Context{S: s}, frame(t, EventRegister, "bob"), c)
	if !errors.Is(err, errs.ErrAlreadyBound) {
		t.Fatalf("err = %v, want AlreadyBound", err)
	}
	// The first identity survives the conflicting attempt.
	if got := c.UserID(); got != "alice" {
		t.Fatalf("bound user = %q, want alice", got)
	}
	if code := recvErrorCode(t, c); code != errs.CodeAlreadyBound {
		t.Fatalf("error code = %d, want %d", code, errs.CodeAlreadyBound)
	}
}

func TestRegisterHandlerTokenSubjectMustMatch(t *testing.T) {
	secret := []byte("handler-test-secret")
	s, _ := newTestServer(t, Options{GatewayID: "gw-h", AuthSecret: string(secret)})
	c := newTestClient("c1")
	s.reg.Track(c)

	token, _, err := security.Generate(security.DefaultOptions(secret), "bob")
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	herr := (registerHandler{}).Handle(&Context{S: s}, frame(t, EventRegister,
		&RegisterPayload{UserID: "alice", Token: token}), c)
	if !errors.Is(herr, errs.ErrUnauthorized) {
		t.Fatalf("err = %v, want Unauthorized", herr)
	}
	if c.Bound() {
		t.Fatalf("mismatched token still bound the connection")
	}

	// The matching subject is accepted.
	token, _, err = security.Generate(security.DefaultOptions(secret), "alice")
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if herr := (registerHandler{}).Handle(&Context{S: s}, frame(t, EventRegister,
		&RegisterPayload{UserID: "alice", Token: token}), c); herr != nil {
		t.Fatalf("register with valid token: %v", herr)
	}
	if got := c.UserID(); got != "alice" {
		t.Fatalf("bound user = %q, want alice", got)
	}
}

func TestSendHandlerRejectsUnbound(t *testing.T) {
	s, st := newTestServer(t, Options{GatewayID: "gw-h"})
	c := newTestClient("c1")
	s.reg.Track(c)

	err := (sendHandler{}).Handle(&Context{S: s}, frame(t, EventMessageSend,
		&SendPayload{ReceiverID: "bob", Text: "hi"}), c)
	if !errors.Is(err, errs.ErrUnboundConnection) {
		t.Fatalf("err = %v, want UnboundConnection", err)
	}
	if code := recvErrorCode(t, c); code != errs.CodeUnboundConnection {
		t.Fatalf("error code = %d, want %d", code, errs.CodeUnboundConnection)
	}
	if st.creates() != 0 {
		t.Fatalf("persist calls = %d, want 0", st.creates())
	}
}

func TestSendHandlerDeliversThroughRouter(t *testing.T) {
	s, st := newTestServer(t, Options{GatewayID: "gw-h"})
	sender := newTestClient("c1")
	receiver := newTestClient("c2")
	s.reg.Track(sender)
	s.reg.Track(receiver)
	if err := s.Bind(sender, "alice"); err != nil {
		t.Fatalf("bind sender: %v", err)
	}
	if err := s.Bind(receiver, "bob"); err != nil {
		t.Fatalf("bind receiver: %v", err)
	}

	err := (sendHandler{}).Handle(&Context{S: s}, frame(t, EventMessageSend,
		&SendPayload{ReceiverID: "bob", Text: "hello"}), sender)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if st.creates() != 1 {
		t.Fatalf("persist calls = %d, want 1", st.creates())
	}
	m := recvEvent(t, receiver, EventMessageReceive)
	if m.Text != "hello" || m.SenderID != "alice" {
		t.Fatalf("delivered %+v", m)
	}
	recvEvent(t, sender, EventMessageSent)
}
