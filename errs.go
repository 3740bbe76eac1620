package tkvdb

import "golang.org/x/xerrors"

// Error kinds returned by the engine API, per the on-disk format and
// transaction protocol. Callers should compare with errors.Is.
var (
	ErrIOError    = xerrors.New("tkvdb: i/o error")
	ErrCorrupted  = xerrors.New("tkvdb: corrupted database")
	ErrModified   = xerrors.New("tkvdb: database modified since transaction began")
	ErrNotStarted = xerrors.New("tkvdb: transaction not started")
	ErrEmpty      = xerrors.New("tkvdb: database is empty")
	ErrNotFound   = xerrors.New("tkvdb: key not found")
	ErrENOMEM     = xerrors.New("tkvdb: out of memory")

	// ErrLocked is reserved for future multi-writer support; the core
	// never raises it.
	ErrLocked = xerrors.New("tkvdb: locked")
)

// assert panics on programmer errors - invariant violations that indicate
// a bug in the caller or in the engine itself, never a recoverable
// runtime condition.
func assert(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(xerrors.Errorf(format, args...))
	}
}
