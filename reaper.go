package tempuskv

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

/*
reaper.go implements the background reaper: a ticker that sweeps expired
maps and lists out of metadata and content, trading sweep throughput for
responsiveness under load via the active-handle backpressure signal in
handles.go.

Lazy invalidation (every read in map.go/list.go/db.go already treats an
expired record as absent) means the reaper is an optimization, not a
correctness requirement: a crash between reaper ticks leaves expired
records simply unreachable through the public API, exactly as if the
reaper had run and not yet reclaimed them.

StartReaper runs one goroutine, driven by one ticker, stopped via a
closed channel and tracked with a WaitGroup so Close can block until the
last sweep finishes.
*/

// StartReaper launches the background sweep goroutine. Open calls it once
// through the default CleanupHook. It has no guard against repeated
// calls: each call starts another sweep goroutine on the same Db.
func (db *Db) StartReaper() {
	db.reaperWG.Add(1)
	go db.reaperLoop()
}

func (db *Db) reaperLoop() {
	defer db.reaperWG.Done()

	ticker := time.NewTicker(db.cfg.ReaperInterval)
	defer ticker.Stop()

	gcTicker := time.NewTicker(reaperGCInterval(db.cfg.Mode))
	defer gcTicker.Stop()

	for {
		select {
		case <-db.stopReaper:
			return
		case <-ticker.C:
			db.sweepTick()
		case <-gcTicker.C:
			db.valueLogGCTick()
		}
	}
}

// sweepTick runs repeated bounded passes over map and list metadata,
// reaping anything expired, until a pass comes back short of the
// configured limit (meaning the current backlog is drained), then logs a
// summary if the tick took long enough, or reaped enough, to be worth
// knowing about.
func (db *Db) sweepTick() {
	start := time.Now()
	ctx := context.Background()
	total := 0

	if db.cache != nil {
		db.cache.sweepExpired()
	}

	for {
		reaped, err := db.sweepOnce(ctx, db.cfg.ReaperLimit)
		total += reaped
		if err != nil {
			db.log.Warn("tempuskv: reaper sweep failed", zap.Error(err))
			break
		}
		if reaped < db.cfg.ReaperLimit {
			break
		}
		// A full-limit pass means there may be more backlog: keep going
		// within this tick rather than waiting for the next one, but
		// ease off the per-list locks once enough collections are
		// actively held open.
		if db.handles.count() > db.cfg.ReaperActiveThreshold {
			time.Sleep(500 * time.Millisecond)
		}
	}

	elapsed := time.Since(start)
	if elapsed > 3*time.Second || total > 0 {
		db.log.Info("tempuskv: reaper tick",
			zap.Int("reaped", total),
			zap.Duration("elapsed", elapsed),
			zap.Int("active_handles", db.handles.count()),
		)
	}
}

// sweepOnce scans maps then lists for expired names, dropping every one
// found, and returns the total number reaped. The two scans share one
// limit: the list scan only runs against whatever budget the map scan
// left, so a single call never reaps more than limit records combined.
func (db *Db) sweepOnce(ctx context.Context, limit int) (int, error) {
	reaped := 0

	mapNames, err := db.expiredNames(ctx, mapMetaPrefix(), limit, func(raw []byte) (int64, bool) {
		m, ok := decodeMapMeta(raw)
		return m.expireAt, ok
	})
	if err != nil {
		return reaped, err
	}
	for _, name := range mapNames {
		h := &MapHandle{db: db, name: name}
		if err := h.drop(); err != nil {
			return reaped, err
		}
		reaped++
	}

	remaining := limit - reaped
	if remaining <= 0 {
		return reaped, nil
	}

	listNames, err := db.expiredNames(ctx, listMetaPrefix(), remaining, func(raw []byte) (int64, bool) {
		m, ok := decodeListMeta(raw)
		return m.expireAt, ok
	})
	if err != nil {
		return reaped, err
	}
	for _, name := range listNames {
		h := &ListHandle{db: db, name: name}
		if err := h.drop(); err != nil {
			return reaped, err
		}
		reaped++
	}

	return reaped, nil
}

// expiredNames collects up to limit metadata-record names whose decoded
// expireAt is in the past, stopping early once limit names are found.
func (db *Db) expiredNames(ctx context.Context, prefix []byte, limit int, decodeExpireAt func([]byte) (int64, bool)) ([][]byte, error) {
	var names [][]byte
	now := nowMillis()

	it := db.meta.ScanPrefix(ctx, prefix)
	defer it.Close()
	for it.Next(ctx) {
		if len(names) >= limit {
			break
		}
		k, v := it.Item()
		expireAt, ok := decodeExpireAt(v)
		if !ok || !isExpired(expireAt, now) {
			continue
		}
		name := make([]byte, len(k))
		copy(name, k)
		names = append(names, name)
	}
	return names, it.Err()
}

// reaperGCInterval picks the Badger value-log GC cadence implied by
// Config.Mode: ModeLowSpace reclaims aggressively at the cost of extra
// compaction IO, ModeHighThroughput reclaims rarely so compaction never
// competes with foreground writes.
func reaperGCInterval(mode Mode) time.Duration {
	if mode == ModeHighThroughput {
		return 10 * time.Minute
	}
	return 2 * time.Minute
}

// valueLogGCTick asks Badger to reclaim value-log space, discarding the
// sentinel "nothing to do" error: the reaper only schedules this
// maintenance, it doesn't reimplement what Badger already does itself.
func (db *Db) valueLogGCTick() {
	discardRatio := 0.5
	if db.cfg.Mode == ModeLowSpace {
		discardRatio = 0.3
	}
	err := db.bdb.RunValueLogGC(discardRatio)
	if err != nil && err != badger.ErrNoRewrite {
		db.log.Warn("tempuskv: value log gc failed", zap.Error(err))
	}
}
