package chat

import (
	"sync"
	"time"

	"TalkWire/logger"
	"TalkWire/service/storage"
	"TalkWire/tools/safe"
)

// Presence derives the online-user set from the Registry and broadcasts it
// as a full snapshot (replace, not diff) to every live connection whenever
// a user transitions online or offline.
//
// Transitions are coalesced: Kick only marks the set dirty, and the
// broadcaster goroutine collapses any number of kicks that land within one
// scheduling tick into a single broadcast. It reads a consistent registry
// snapshot and never mutates it.
//
// When Redis is configured, presence is additionally mirrored as one
// tw:presence:<user>:<gw> entry per gateway holding the user, TTL-renewed
// in the background, so peer gateways and the REST layer can locate every
// node a user is connected through.
type Presence struct {
	reg  *Registry
	fan  *Fanout
	gwID string
	ttl  time.Duration

	dirty    chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
}

func NewPresence(reg *Registry, fan *Fanout, gwID string, ttl time.Duration) *Presence {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	p := &Presence{
		reg:   reg,
		fan:   fan,
		gwID:  gwID,
		ttl:   ttl,
		dirty: make(chan struct{}, 1),
		stop:  make(chan struct{}),
	}
	safe.Go(p.run)
	return p
}

// Kick marks the online set dirty. Non-blocking; concurrent kicks coalesce.
func (p *Presence) Kick() {
	select {
	case p.dirty <- struct{}{}:
	default:
	}
}

// UserOnline mirrors a zero-to-one transition and schedules a broadcast.
func (p *Presence) UserOnline(user string) {
	if storage.Enabled() {
		if err := storage.PresenceOnline(user, p.gwID, p.ttl); err != nil {
			logger.Warnf("[presence] mirror online failed user=%s err=%v", user, err)
		}
	}
	p.Kick()
}

// UserOffline mirrors a one-to-zero transition and schedules a broadcast.
func (p *Presence) UserOffline(user string) {
	if storage.Enabled() {
		if err := storage.PresenceOffline(user, p.gwID); err != nil {
			logger.Warnf("[presence] mirror offline failed user=%s err=%v", user, err)
		}
	}
	p.Kick()
}

func (p *Presence) run() {
	renew := time.NewTicker(p.ttl / 3)
	defer renew.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-p.dirty:
			p.broadcast()
		case <-renew.C:
			p.renewMirror()
		}
	}
}

func (p *Presence) broadcast() {
	users := p.reg.OnlineUsers()
	payload, err := BuildOnlineUsers(users)
	if err != nil {
		logger.Errorf("[presence] marshal snapshot: %v", err)
		return
	}
	p.fan.Broadcast(p.reg.Clients(), payload)
}

func (p *Presence) renewMirror() {
	if !storage.Enabled() {
		return
	}
	for _, user := range p.reg.OnlineUsers() {
		if err := storage.PresenceOnline(user, p.gwID, p.ttl); err != nil {
			logger.Warnf("[presence] mirror renew failed user=%s err=%v", user, err)
		}
	}
}

func (p *Presence) Close() {
	p.stopOnce.Do(func() { close(p.stop) })
}
