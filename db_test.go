package tempuskv

import (
	"testing"
	"time"
)

// waitPastMillis sleeps long enough for a ms-horizon expiry to fall
// behind nowMillis(), padded generously against scheduler jitter.
func waitPastMillis(ms int64) {
	time.Sleep(time.Duration(ms)*time.Millisecond + 20*time.Millisecond)
}

// newTestDB opens an in-memory Db with the reaper disabled, so tests
// control expiry sweeps explicitly rather than racing a background tick.
func newTestDB(t *testing.T) *Db {
	t.Helper()
	db, err := Open(Config{InMemory: true}, WithCleanupHook(func(*Db) {}))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}
