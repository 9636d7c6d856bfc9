package tempuskv

import "github.com/pkg/errors"

/*
errors.go defines the error taxonomy of this package.

CATEGORIES

  - ErrConfig               — empty path (ConfigError). A directory that
    Badger cannot open is reported by Open as Badger's own error, wrapped,
    not as ErrConfig.
  - ErrCorruption           — a metadata record is malformed, e.g. a list's
    head > tail (CorruptionError). Never silently repaired.
  - ErrConflictRetryExhausted — a counter's compare-and-swap loop exceeded
    its retry budget (ConflictRetryExhausted).

NotFound is deliberately absent from this list: every read path models
absence as a zero value plus `false`/`nil`, never as an error.

IoError and SerializationError are not distinct sentinel values here —
engine I/O failures surface from Badger wrapped with errors.Wrap for
context, per the propagation policy: this layer does not swallow or retry
I/O errors. Values are stored as the caller's raw bytes, so this package
performs no (de)serialization of its own.
*/

var (
	// ErrConfig reports an unusable Config (an empty Path without InMemory).
	ErrConfig = errors.New("tempuskv: invalid configuration")

	// ErrCorruption reports a metadata record that violates its own invariants.
	ErrCorruption = errors.New("tempuskv: corrupt metadata record")

	// ErrConflictRetryExhausted reports a counter CAS loop that never converged.
	ErrConflictRetryExhausted = errors.New("tempuskv: counter update retries exhausted")

	// ErrClosed names the closed-Db condition. No operation in this
	// package returns it: after Db.Close, operations return Badger's own
	// error, wrapped.
	ErrClosed = errors.New("tempuskv: db is closed")
)
