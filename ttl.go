package tempuskv

import (
	"encoding/binary"
	"time"
)

/*
ttl.go implements per-collection expiry metadata, lazy invalidation on
read, and the shared helpers the map, list and flat-KV TTL operations are
built from. The background reaper that sweeps expired collections lives
in reaper.go.

EXPIRY ENCODING

Expiry is stored as a signed 64-bit millisecond Unix timestamp, with 0
meaning "no expiry". expireAt > 0 && expireAt <= now means expired.
*/

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

func isExpired(expireAt, now int64) bool {
	return expireAt > 0 && expireAt <= now
}

func putInt64(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

func getInt64(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b))
}

func putUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func getUint64(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

// expireAtFor turns a relative duration into an absolute millisecond
// timestamp: expire_at(now + rel).
func expireAtFor(rel time.Duration) int64 {
	return nowMillis() + rel.Milliseconds()
}

func msDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// ttlRemaining returns the remaining milliseconds until expireAt, or nil
// if the collection never expires.
func ttlRemaining(expireAt, now int64) *int64 {
	if expireAt == 0 {
		return nil
	}
	remaining := expireAt - now
	if remaining < 0 {
		remaining = 0
	}
	return &remaining
}
