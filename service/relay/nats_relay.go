package relay

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"

	"TalkWire/logger"
	"TalkWire/module/chat/model"
	"TalkWire/tools/errs"
)

// NATS-backed inter-gateway relay. Each gateway subscribes to its own
// deliver subject; a router that finds the receiver online on a peer node
// (per the Redis presence mirror) publishes the persisted message there.
// Delivery over the relay is as best-effort as local delivery: the durable
// record already exists when anything is published.

const subjectPrefix = "talkwire.deliver."

func subject(gatewayID string) string { return subjectPrefix + gatewayID }

type Config struct {
	URL       string
	GatewayID string
}

type Relay struct {
	nc   *nats.Conn
	gwID string
	sub  *nats.Subscription
}

func Dial(cfg Config) (*Relay, error) {
	if cfg.URL == "" || cfg.GatewayID == "" {
		return nil, errs.ErrArgs.WrapMsg("relay needs url and gateway id")
	}
	nc, err := nats.Connect(cfg.URL,
		nats.Name("talkwire-"+cfg.GatewayID),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warnf("[relay] nats disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Infof("[relay] nats reconnected to %s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, errs.ErrInternal.WrapMsg("connect nats", "url", cfg.URL, "err", err)
	}
	return &Relay{nc: nc, gwID: cfg.GatewayID}, nil
}

// Deliver publishes a persisted message to the peer gateway's subject.
func (r *Relay) Deliver(gatewayID string, m *model.Message) error {
	if gatewayID == r.gwID {
		return nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return r.nc.Publish(subject(gatewayID), raw)
}

// Subscribe starts consuming this gateway's own subject. deliver runs on
// the NATS callback goroutine and must not block.
func (r *Relay) Subscribe(deliver func(*model.Message)) error {
	sub, err := r.nc.Subscribe(subject(r.gwID), func(msg *nats.Msg) {
		var m model.Message
		if err := json.Unmarshal(msg.Data, &m); err != nil {
			logger.Warnf("[relay] bad relayed message: %v", err)
			return
		}
		deliver(&m)
	})
	if err != nil {
		return errs.ErrInternal.WrapMsg("subscribe", "subject", subject(r.gwID), "err", err)
	}
	r.sub = sub
	return nil
}

func (r *Relay) Close() {
	if r.sub != nil {
		_ = r.sub.Unsubscribe()
	}
	if r.nc != nil {
		_ = r.nc.Drain()
	}
}
