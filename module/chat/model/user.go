package model

import "time"

const UserTableName = "users"

// User is a directory entry owned by the external identity service; the
// gateway only reads it to render the contact list.
type User struct {
	ID       string    `bson:"_id" json:"id"`
	Name     string    `bson:"name" json:"name"`
	Email    string    `bson:"email" json:"email"`
	Avatar   string    `bson:"avatar,omitempty" json:"avatar,omitempty"`
	Bio      string    `bson:"bio,omitempty" json:"bio,omitempty"`
	LastSeen time.Time `bson:"last_seen,omitempty" json:"lastSeen"`

	// Filled by the gateway from presence, never persisted.
	IsOnline bool `bson:"-" json:"isOnline"`

	// Last message preview for the sidebar, filled per caller.
	LastMessage *LastMessage `bson:"-" json:"lastMessage,omitempty"`
}

type LastMessage struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	IsRead    bool      `json:"isRead"`
	IsSent    bool      `json:"isSent"`
}
