package model

import "time"

// MsgTableName is the collection/table name for direct messages.
const MsgTableName = "messages"

// Message is one persisted direct message. The gateway creates it through
// the store and afterwards forwards it by value over the transport; it is
// never mutated in flight. JSON tags match what the web client renders.
type Message struct {
	ID         string    `bson:"_id" json:"id"`
	SenderID   string    `bson:"sender_id" json:"senderId"`
	ReceiverID string    `bson:"receiver_id" json:"receiverId"`
	Text       string    `bson:"text" json:"text"`
	CreatedAt  time.Time `bson:"created_at" json:"createdAt"`
	IsRead     bool      `bson:"is_read" json:"isRead"`
}
