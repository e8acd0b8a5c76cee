package storage

import (
	"strings"
	"time"
)

// Presence mirror: one key per (user, gateway) pair,
// tw:presence:<user>:<gw>, each with its own TTL renewed by the node that
// owns it. A user connected through several gateways holds several keys,
// so a node dropping the user's last local connection only removes its own
// entry and never hides the connections peers still hold. Local registry
// state stays authoritative for connections on this node; the mirror
// exists so peer gateways and the REST layer can answer "is X online, and
// where".

func presenceKey(user, gatewayID string) string {
	return "tw:presence:" + user + ":" + gatewayID
}

func presencePattern(user string) string {
	return "tw:presence:" + user + ":*"
}

// PresenceOnline marks the user online on gatewayID and renews that
// entry's TTL.
func PresenceOnline(user, gatewayID string, ttl time.Duration) error {
	if rdb == nil {
		return errNotInitialized()
	}
	return rdb.Set(ctx, presenceKey(user, gatewayID), "1", ttl).Err()
}

// PresenceOffline removes this gateway's entry (the user's last local
// connection is gone); entries owned by peer nodes are untouched.
func PresenceOffline(user, gatewayID string) error {
	if rdb == nil {
		return errNotInitialized()
	}
	return rdb.Del(ctx, presenceKey(user, gatewayID)).Err()
}

// PresenceLookup returns every gateway node the user currently holds a
// connection on. Empty means offline everywhere.
func PresenceLookup(user string) ([]string, error) {
	if rdb == nil {
		return nil, errNotInitialized()
	}
	prefix := "tw:presence:" + user + ":"
	var (
		gateways []string
		cursor   uint64
	)
	for {
		keys, next, err := rdb.Scan(ctx, cursor, presencePattern(user), 64).Result()
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			gateways = append(gateways, strings.TrimPrefix(k, prefix))
		}
		if next == 0 {
			return gateways, nil
		}
		cursor = next
	}
}

// PresenceAnywhere reports whether any gateway currently holds a
// connection for the user.
func PresenceAnywhere(user string) (bool, error) {
	gateways, err := PresenceLookup(user)
	if err != nil {
		return false, err
	}
	return len(gateways) > 0, nil
}
