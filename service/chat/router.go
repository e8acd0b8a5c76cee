package chat

import (
	"context"
	"errors"

	"TalkWire/logger"
	"TalkWire/module/chat/model"
	"TalkWire/service/storage"
	"TalkWire/service/store"
	"TalkWire/tools/errs"
)

// RemoteDeliverer hands a persisted message to a peer gateway node that
// holds connections for its sender or receiver. Nil in single-node
// deployments.
type RemoteDeliverer interface {
	Deliver(gatewayID string, m *model.Message) error
}

// Router takes a validated send intent from a bound connection, persists it
// through the store, then attempts live delivery: message:receive to every
// connection of the receiver, message:sent echoed to every connection of
// the sender, the originating one included, so each of the sender's tabs
// shows the message. Local connections are served directly; the message is
// additionally relayed to every peer node the presence mirror lists for
// either party, where DeliverLocal fans it to that node's connections.
//
// Persistence is the durability source of truth. An offline receiver is
// still success; a stale connection at delivery time is dropped, never
// retried. A persistence failure is reported to the originator only and
// never touches registry state.
type Router struct {
	reg    *Registry
	st     store.Store
	fan    *Fanout
	remote RemoteDeliverer
	gwID   string

	// locate resolves which gateway nodes hold a user, hot runs after a
	// record is first persisted. Defaults use the Redis mirror and cache.
	locate func(user string) ([]string, error)
	hot    func(m *model.Message)
}

func NewRouter(reg *Registry, st store.Store, fan *Fanout, remote RemoteDeliverer, gwID string) *Router {
	rt := &Router{reg: reg, st: st, fan: fan, remote: remote, gwID: gwID}
	rt.locate = mirrorLocate
	rt.hot = rt.hotCache
	return rt
}

func mirrorLocate(user string) ([]string, error) {
	if !storage.Enabled() {
		return nil, nil
	}
	return storage.PresenceLookup(user)
}

// ValidateIntent applies the send-intent rules shared by the socket and
// REST paths: no empty text, a receiver must be named, self-messaging is an
// explicit rejection.
func ValidateIntent(senderID, receiverID, text string) error {
	if text == "" {
		return errs.ErrInvalidMessage.WrapMsg("empty text")
	}
	if receiverID == "" {
		return errs.ErrInvalidMessage.WrapMsg("missing receiverId")
	}
	if receiverID == senderID {
		return errs.ErrInvalidMessage.WrapMsg("self messaging rejected")
	}
	return nil
}

// HandleSend processes one send intent from origin. origin must already be
// bound; the sender identity is taken from the binding, not the payload.
func (rt *Router) HandleSend(ctx context.Context, origin *Client, p *SendPayload) error {
	senderID := origin.UserID()
	if senderID == "" {
		return errs.ErrUnboundConnection.WrapMsg("conn", origin.ConnID)
	}
	if p.SenderID != "" && p.SenderID != senderID {
		return errs.ErrInvalidMessage.WrapMsg("senderId does not match binding")
	}
	if err := ValidateIntent(senderID, p.ReceiverID, p.Text); err != nil {
		return err
	}

	m, created, err := rt.persist(ctx, senderID, p)
	if err != nil {
		return err
	}
	if created {
		rt.hot(m)
	}

	rt.deliverReceiver(m)
	rt.deliverEcho(m)
	rt.deliverRemote(m)
	return nil
}

// persist writes the message, or dedups by the persisted message id when
// the client already created the record over REST before emitting the
// socket intent. created reports whether this call inserted the record.
func (rt *Router) persist(ctx context.Context, senderID string, p *SendPayload) (*model.Message, bool, error) {
	if p.MessageID != "" {
		m, err := rt.st.GetMessage(ctx, p.MessageID)
		if err == nil {
			if m.SenderID != senderID {
				return nil, false, errs.ErrInvalidMessage.WrapMsg("messageId belongs to another sender")
			}
			return m, false, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, false, errs.ErrPersistenceFailure.WrapMsg("lookup", "id", p.MessageID, "err", err)
		}
		// Unknown id: fall through and persist under it.
	}

	m := &model.Message{
		ID:         p.MessageID,
		SenderID:   senderID,
		ReceiverID: p.ReceiverID,
		Text:       p.Text,
	}
	if err := rt.st.CreateMessage(ctx, m); err != nil {
		return nil, false, err
	}
	return m, true, nil
}

// hotCache appends to the recent-DM stream and bumps the unread counter.
// Runs once per created record whichever path persisted it; the dedup path
// never re-counts. Strictly best-effort: failures are logged and never
// fail the send.
func (rt *Router) hotCache(m *model.Message) {
	if !storage.Enabled() {
		return
	}
	if _, err := storage.AppendDM(storage.DMKey(m.SenderID, m.ReceiverID), map[string]any{
		"id":   m.ID,
		"from": m.SenderID,
		"to":   m.ReceiverID,
		"text": m.Text,
		"ts":   m.CreatedAt.UnixMilli(),
	}); err != nil {
		logger.Warnf("[router] dm stream append failed id=%s err=%v", m.ID, err)
	}
	if _, err := storage.UnreadIncr(m.SenderID, m.ReceiverID); err != nil {
		logger.Warnf("[router] unread incr failed id=%s err=%v", m.ID, err)
	}
}

func (rt *Router) deliverReceiver(m *model.Message) {
	payload, err := BuildMessageFrame(EventMessageReceive, m)
	if err != nil {
		logger.Errorf("[router] marshal receive frame id=%s err=%v", m.ID, err)
		return
	}
	rt.fan.Broadcast(rt.reg.ConnectionsFor(m.ReceiverID), payload)
}

func (rt *Router) deliverEcho(m *model.Message) {
	payload, err := BuildMessageFrame(EventMessageSent, m)
	if err != nil {
		logger.Errorf("[router] marshal sent frame id=%s err=%v", m.ID, err)
		return
	}
	rt.fan.Broadcast(rt.reg.ConnectionsFor(m.SenderID), payload)
}

// deliverRemote relays the message to every peer node holding connections
// for the receiver or the sender. Each node fans out only to its own
// connections, so local and relayed delivery never duplicate a frame.
func (rt *Router) deliverRemote(m *model.Message) {
	if rt.remote == nil {
		return
	}
	for _, gw := range rt.peerGateways(m.ReceiverID, m.SenderID) {
		if err := rt.remote.Deliver(gw, m); err != nil {
			logger.Warnf("[router] relay to gw=%s failed id=%s err=%v", gw, m.ID, err)
		}
	}
}

// peerGateways resolves the mirror entries for the given users into a
// deduplicated set of peer node ids, this node excluded.
func (rt *Router) peerGateways(users ...string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, u := range users {
		gateways, err := rt.locate(u)
		if err != nil {
			logger.Warnf("[router] presence lookup failed user=%s err=%v", u, err)
			continue
		}
		for _, gw := range gateways {
			if gw == rt.gwID || seen[gw] {
				continue
			}
			seen[gw] = true
			out = append(out, gw)
		}
	}
	return out
}

// DeliverLocal pushes a message relayed from a peer gateway to this node's
// connections: message:receive for the receiver's, message:sent for the
// sender's tabs living here.
func (rt *Router) DeliverLocal(m *model.Message) {
	rt.deliverReceiver(m)
	rt.deliverEcho(m)
}
