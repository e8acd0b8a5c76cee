package store

import (
	"context"
	"errors"

	"TalkWire/module/chat/model"
)

// ErrNotFound is returned by GetMessage when no record exists for the id.
var ErrNotFound = errors.New("record not found")

// Store is the persistence collaborator of the realtime core. The gateway
// treats it as the durability source of truth: a message counts as sent
// once CreateMessage returns, live delivery is best-effort on top.
//
// Implementations: mongostore (MongoDB) and pgstore (Postgres, the layout
// the web app's Prisma schema uses). Selected by config.
type Store interface {
	// CreateMessage persists m, assigning ID and CreatedAt when unset.
	CreateMessage(ctx context.Context, m *model.Message) error

	// GetMessage loads a message by its durable id; ErrNotFound if absent.
	GetMessage(ctx context.Context, id string) (*model.Message, error)

	// ListBetween returns all messages between two users, ascending by
	// creation time.
	ListBetween(ctx context.Context, userA, userB string) ([]*model.Message, error)

	// MarkRead flags every unread message from sender to receiver as read
	// and reports how many rows changed.
	MarkRead(ctx context.Context, senderID, receiverID string) (int64, error)

	// LastBetween returns the most recent message between two users, for
	// the sidebar preview; ErrNotFound when they never talked.
	LastBetween(ctx context.Context, userA, userB string) (*model.Message, error)

	// ListUsers returns the user directory minus exceptID, for the sidebar.
	ListUsers(ctx context.Context, exceptID string) ([]*model.User, error)

	Close(ctx context.Context) error
}
