package chat

import (
	"encoding/json"
	"errors"

	"TalkWire/module/chat/model"
	"TalkWire/tools/decode"
	"TalkWire/tools/errs"
)

// Wire events. Names match what the web client emits and listens for.
const (
	EventRegister       = "user:register"
	EventRegistered     = "user:registered"
	EventMessageSend    = "message:send"
	EventMessageReceive = "message:receive"
	EventMessageSent    = "message:sent"
	EventUsersOnline    = "users:online"
	EventError          = "error"
)

// Frame is the envelope for every message on the socket, both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func ParseFrame(raw []byte) (*Frame, error) {
	f := &Frame{}
	if err := json.Unmarshal(raw, f); err != nil {
		return nil, errs.ErrArgs.WrapMsg("unmarshal frame", "err", err)
	}
	if f.Event == "" {
		return nil, errs.ErrArgs.WrapMsg("frame has no event")
	}
	return f, nil
}

type RegisterPayload struct {
	UserID string `json:"userId"`
	Token  string `json:"token,omitempty"`
}

// ExtractRegisterPayload accepts both shapes the client may emit: a bare
// user-id string (the original hook does `emit("user:register", id)`) or an
// object with userId and an optional token.
func ExtractRegisterPayload(f *Frame) (*RegisterPayload, error) {
	if len(f.Data) == 0 {
		return nil, errs.ErrArgs.WrapMsg("register payload is empty")
	}
	var bare string
	if err := json.Unmarshal(f.Data, &bare); err == nil {
		if bare == "" {
			return nil, errs.ErrArgs.WrapMsg("register payload is empty")
		}
		return &RegisterPayload{UserID: bare}, nil
	}
	p, err := decode.Raw[RegisterPayload](f.Data)
	if err != nil {
		return nil, errs.ErrArgs.WrapMsg("register payload", "err", err)
	}
	if p.UserID == "" {
		return nil, errs.ErrArgs.WrapMsg("register payload has no userId")
	}
	return p, nil
}

type SendPayload struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Text       string `json:"text"`
	// MessageID is set when the REST path already persisted the record;
	// the router then dedups by it instead of inserting twice.
	MessageID       string `json:"messageId,omitempty"`
	ClientMessageID string `json:"clientMessageId,omitempty"`
}

func ExtractSendPayload(f *Frame) (*SendPayload, error) {
	if len(f.Data) == 0 {
		return nil, errs.ErrInvalidMessage.WrapMsg("send payload is empty")
	}
	p, err := decode.Raw[SendPayload](f.Data)
	if err != nil {
		return nil, errs.ErrInvalidMessage.WrapMsg("send payload", "err", err)
	}
	return p, nil
}

// ---- server-to-client frame builders ----

func marshalFrame(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(&Frame{Event: event, Data: raw})
}

func BuildMessageFrame(event string, m *model.Message) ([]byte, error) {
	return marshalFrame(event, m)
}

func BuildOnlineUsers(users []string) ([]byte, error) {
	if users == nil {
		users = []string{}
	}
	return marshalFrame(EventUsersOnline, users)
}

type registeredPayload struct {
	UserID string `json:"userId"`
	ConnID string `json:"connId"`
}

func BuildRegistered(userID, connID string) ([]byte, error) {
	return marshalFrame(EventRegistered, &registeredPayload{UserID: userID, ConnID: connID})
}

// BuildError turns any error into an error frame; coded errors keep their
// code, everything else maps to internal.
func BuildError(err error) []byte {
	ce := &errs.CodeError{Code: errs.CodeInternal, Msg: "internal error"}
	var coded *errs.CodeError
	if errors.As(err, &coded) {
		ce = coded
	}
	raw, merr := marshalFrame(EventError, ce)
	if merr != nil {
		return []byte(`{"event":"error","data":{"code":10000,"msg":"internal error"}}`)
	}
	return raw
}
