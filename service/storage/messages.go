package storage

import (
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

// Hot cache for recent DM traffic, backed by Redis Streams.
//
// Appended best-effort after a message is durably persisted; never read on
// the send path, only by ops tooling and future catch-up endpoints.

// DMKey derives a direction-independent conversation key.
func DMKey(a, b string) string {
	p := []string{a, b}
	sort.Strings(p)
	return fmt.Sprintf("tw:dm:%s:%s", p[0], p[1])
}

func AppendDM(stream string, fields map[string]any) (string, error) {
	if rdb == nil {
		return "", errNotInitialized()
	}
	args := &redis.XAddArgs{Stream: stream, Values: fields, Approx: true, MaxLen: 100_000}
	return rdb.XAdd(ctx, args).Result()
}

// Unread counters, one INCR per delivered message.

func unreadKey(sender, receiver string) string {
	return fmt.Sprintf("tw:unread:%s:%s", receiver, sender)
}

// UnreadIncr bumps receiver's unread count for messages from sender.
func UnreadIncr(sender, receiver string) (int64, error) {
	if rdb == nil {
		return 0, errNotInitialized()
	}
	return rdb.Incr(ctx, unreadKey(sender, receiver)).Result()
}

// UnreadReset clears the counter when the receiver marks the thread read.
func UnreadReset(sender, receiver string) error {
	if rdb == nil {
		return errNotInitialized()
	}
	return rdb.Del(ctx, unreadKey(sender, receiver)).Err()
}

func UnreadCount(sender, receiver string) (int64, error) {
	if rdb == nil {
		return 0, errNotInitialized()
	}
	n, err := rdb.Get(ctx, unreadKey(sender, receiver)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}
