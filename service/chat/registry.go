package chat

import (
	"fmt"
	"sort"
	"sync"

	"TalkWire/tools/errs"
)

// Registry maps durable user ids to their live connections on this node.
// Two indexes are kept in lockstep under one mutex: byUser for fan-out
// lookups, byConn for O(1) teardown. No two mutations of the same user's
// connection set may interleave; the single registry lock enforces that.
type Registry struct {
	mu     sync.RWMutex
	byUser map[string]map[string]*Client // user -> conn_id -> client
	byConn map[string]*Client            // conn_id -> client (bound or not)
}

func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[string]map[string]*Client),
		byConn: make(map[string]*Client),
	}
}

// Track records a freshly accepted, not yet registered connection.
func (r *Registry) Track(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byConn[c.ConnID] = c
}

// Bind registers a connection under a user id. Re-invoking with the same
// pair is a no-op; binding to a different user fails with AlreadyBound and
// keeps the first binding. wentOnline reports a zero-to-one transition for
// the user.
func (r *Registry) Bind(connID, userID string) (wentOnline bool, err error) {
	if connID == "" || userID == "" {
		return false, errs.ErrArgs.WrapMsg("bind", "conn", connID, "user", userID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byConn[connID]
	if !ok {
		return false, errs.ErrArgs.WrapMsg("unknown connection", "conn", connID)
	}

	cur := c.UserID()
	if cur == userID {
		return false, nil // idempotent re-register
	}
	if cur != "" {
		return false, errs.ErrAlreadyBound.WrapMsg("bound", "conn", connID, "user", cur)
	}
	if !c.bind(userID) {
		return false, errs.ErrArgs.WrapMsg("connection closed", "conn", connID)
	}

	m := r.byUser[userID]
	if m == nil {
		m = make(map[string]*Client)
		r.byUser[userID] = m
	}
	m[connID] = c
	return len(m) == 1, nil
}

// Drop removes a connection from both indexes. Unknown ids are a no-op
// (duplicate disconnect events are expected). wentOffline reports that this
// was the user's last connection.
func (r *Registry) Drop(connID string) (userID string, wentOffline bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byConn[connID]
	if !ok {
		return "", false
	}
	delete(r.byConn, connID)

	userID = c.UserID()
	if userID == "" {
		return "", false
	}
	if m := r.byUser[userID]; m != nil {
		delete(m, connID)
		if len(m) == 0 {
			delete(r.byUser, userID)
			return userID, true
		}
	}
	return userID, false
}

// ConnectionsFor returns the user's live connections; empty when offline.
func (r *Registry) ConnectionsFor(userID string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m := r.byUser[userID]
	if len(m) == 0 {
		return nil
	}
	out := make([]*Client, 0, len(m))
	for _, c := range m {
		out = append(out, c)
	}
	return out
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// OnlineUsers returns a sorted snapshot of every user with at least one
// live connection.
func (r *Registry) OnlineUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byUser))
	for u := range r.byUser {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// Clients returns every tracked connection, bound or not.
func (r *Registry) Clients() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.byConn))
	for _, c := range r.byConn {
		out = append(out, c)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}

// CheckConsistency verifies the forward/inverse indexes agree. A mismatch
// is an implementation bug, not a runtime condition.
func (r *Registry) CheckConsistency() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for user, m := range r.byUser {
		if len(m) == 0 {
			return fmt.Errorf("registry: empty connection set kept for user %s", user)
		}
		for connID, c := range m {
			got, ok := r.byConn[connID]
			if !ok {
				return fmt.Errorf("registry: conn %s under user %s missing from byConn", connID, user)
			}
			if got != c {
				return fmt.Errorf("registry: conn %s points at different clients", connID)
			}
			if c.UserID() != user {
				return fmt.Errorf("registry: conn %s filed under %s but bound to %q", connID, user, c.UserID())
			}
		}
	}
	for connID, c := range r.byConn {
		if u := c.UserID(); u != "" {
			if _, ok := r.byUser[u][connID]; !ok {
				return fmt.Errorf("registry: bound conn %s missing from byUser[%s]", connID, u)
			}
		}
	}
	return nil
}
