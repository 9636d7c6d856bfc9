package tempuskv

import (
	"bytes"
	"context"
)

/*
scan.go implements wildcard key scanning over the flat KV namespace: a
glob pattern with '*' (any run of bytes) and '?' (any single byte), with
'\*' and '\?' as literal escapes.

Every pattern is split into its fixed literal prefix and the remaining
match program, so scanning can seek directly to that prefix and stop once
a key no longer has it, rather than walking the full keyspace — turning
the overwhelmingly common prefix-glob case (e.g. "user:*") into a bounded
Badger seek instead of a linear scan.
*/

type globMatcher struct {
	prefix []byte
	rest   []rune // pattern following the literal prefix, one rune per byte
}

// byteRunes widens every byte of b to its own rune, so matchGlobRunes
// compares bytes rather than UTF-8 decoded characters.
func byteRunes(b []byte) []rune {
	out := make([]rune, len(b))
	for i, c := range b {
		out[i] = rune(c)
	}
	return out
}

// compileGlob parses pattern into a literal prefix and the remaining
// match program. Scanning can seek directly to prefix and stop once a
// key no longer has it, since every match must start with it.
func compileGlob(pattern []byte) globMatcher {
	i := 0
	var prefix []byte
	for i < len(pattern) {
		c := pattern[i]
		if c == '\\' && i+1 < len(pattern) && (pattern[i+1] == '*' || pattern[i+1] == '?') {
			prefix = append(prefix, pattern[i+1])
			i += 2
			continue
		}
		if c == '*' || c == '?' {
			break
		}
		prefix = append(prefix, c)
		i++
	}
	return globMatcher{prefix: prefix, rest: byteRunes(pattern[i:])}
}

// match reports whether key, byte by byte, satisfies the full pattern,
// not just the literal prefix.
func (g globMatcher) match(key []byte) bool {
	if !bytes.HasPrefix(key, g.prefix) {
		return false
	}
	return matchGlobRunes(g.rest, byteRunes(key[len(g.prefix):]))
}

// matchGlobRunes is a standard backtracking glob matcher over the
// pattern/text rune slices: '*' matches any run (including empty), '?'
// matches exactly one rune, everything else must match literally.
func matchGlobRunes(pattern, text []rune) bool {
	var pIdx, tIdx int
	var starIdx, matchIdx = -1, 0

	for tIdx < len(text) {
		if pIdx < len(pattern) && (pattern[pIdx] == '?' || pattern[pIdx] == text[tIdx]) {
			pIdx++
			tIdx++
			continue
		}
		if pIdx < len(pattern) && pattern[pIdx] == '*' {
			starIdx = pIdx
			matchIdx = tIdx
			pIdx++
			continue
		}
		if starIdx != -1 {
			pIdx = starIdx + 1
			matchIdx++
			tIdx = matchIdx
			continue
		}
		return false
	}
	for pIdx < len(pattern) && pattern[pIdx] == '*' {
		pIdx++
	}
	return pIdx == len(pattern)
}

// ScanIterator streams flat-KV (key, value) pairs whose key matches a
// glob pattern, skipping expired entries lazily as it walks, the same
// way Get does.
type ScanIterator struct {
	inner   *Iterator
	db      *Db
	matcher globMatcher
	key     []byte
	val     []byte
}

// newScanIterator seeks to the pattern's literal prefix (within the flat
// KV namespace) and filters every subsequent key through the full glob
// program.
func (db *Db) newScanIterator(ctx context.Context, pattern []byte) *ScanIterator {
	matcher := compileGlob(pattern)
	return &ScanIterator{
		inner:   db.kv.ScanPrefix(ctx, encodeKVKey(matcher.prefix)),
		db:      db,
		matcher: matcher,
	}
}

// Next advances to the next matching, unexpired entry.
func (s *ScanIterator) Next(ctx context.Context) bool {
	for s.inner.Next(ctx) {
		suffix, v := s.inner.Item()
		userKey := join(s.matcher.prefix, suffix)
		if !s.matcher.match(userKey) {
			continue
		}
		expired, err := s.db.kvExpired(userKey)
		if err != nil {
			s.inner.err = err
			return false
		}
		if expired {
			continue
		}
		s.key, s.val = userKey, v
		return true
	}
	return false
}

// Item returns the current (key, value) pair.
func (s *ScanIterator) Item() ([]byte, []byte) {
	return s.key, s.val
}

// Err returns the first error encountered, if any.
func (s *ScanIterator) Err() error {
	return s.inner.Err()
}

// Close releases the underlying transaction.
func (s *ScanIterator) Close() {
	s.inner.Close()
}
