package chat

import (
	"TalkWire/logger"
	"TalkWire/tools/errs"
	"TalkWire/tools/security"
)

// registerHandler completes session binding: the client announces the
// durable user id it obtained from the identity service before opening the
// transport. When an auth secret is configured the announced id must match
// the verified token subject; otherwise the id is trusted verbatim.
type registerHandler struct{}

func (registerHandler) Event() string { return EventRegister }

func (registerHandler) Handle(ctx *Context, f *Frame, c *Client) error {
	s := ctx.S

	p, err := ExtractRegisterPayload(f)
	if err != nil {
		c.enqueue(BuildError(err))
		return err
	}

	if opts, enabled := s.authOptions(); enabled {
		sub, verr := security.Parse(opts, p.Token)
		if verr != nil || sub != p.UserID {
			err := errs.ErrUnauthorized.WrapMsg("register token rejected", "user", p.UserID)
			c.enqueue(BuildError(err))
			return err
		}
	}

	if err := s.Bind(c, p.UserID); err != nil {
		c.enqueue(BuildError(err))
		return err
	}

	ack, err := BuildRegistered(p.UserID, c.ConnID)
	if err != nil {
		return err
	}
	c.enqueue(ack)
	return nil
}

// sendHandler routes a message:send intent. Intents from a connection that
// never completed registration are rejected explicitly, not dropped.
type sendHandler struct{}

func (sendHandler) Event() string { return EventMessageSend }

func (sendHandler) Handle(ctx *Context, f *Frame, c *Client) error {
	s := ctx.S

	if !c.Bound() {
		err := errs.ErrUnboundConnection.WrapMsg("conn", c.ConnID)
		c.enqueue(BuildError(err))
		return err
	}

	p, err := ExtractSendPayload(f)
	if err != nil {
		c.enqueue(BuildError(err))
		return err
	}

	sctx, cancel := s.sendContext()
	defer cancel()
	if err := s.router.HandleSend(sctx, c, p); err != nil {
		logger.Infof("[send] rejected conn=%s user=%s err=%v", c.ConnID, c.UserID(), err)
		c.enqueue(BuildError(err))
		return err
	}
	return nil
}
