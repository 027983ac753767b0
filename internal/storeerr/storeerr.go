// Package storeerr defines the sentinel errors the store facade returns,
// so a host can distinguish failure modes with errors.Is rather than
// string matching.
package storeerr

import "errors"

var (
	// ErrFileOpenFailed means the log file could not be opened at all.
	ErrFileOpenFailed = errors.New("fwlogstore: failed to open log file")

	// ErrFileReadFailed means the log file was open but a read against it
	// failed partway through (index build, chunk decode, or tail scan).
	ErrFileReadFailed = errors.New("fwlogstore: failed to read log file")

	// ErrIndexUnbuilt means the line index could not be built: Open
	// returns it, together with ErrFileReadFailed, when the index scan
	// fails partway through. A cancelled build reports ErrCancelled
	// instead.
	ErrIndexUnbuilt = errors.New("fwlogstore: line index is not built")

	// ErrPredicateCompile means a filter request's predicate failed to
	// compile: an unknown operator, a bad regex, a malformed time bound,
	// or a mismatched connective count.
	ErrPredicateCompile = errors.New("fwlogstore: predicate failed to compile")

	// ErrCancelled means a long-running operation (index build or filter
	// pass) was aborted via its cancel channel before completion.
	ErrCancelled = errors.New("fwlogstore: operation cancelled")

	// ErrOutOfRange means a Get/Tail request addressed a position outside
	// the store's current line or match count.
	ErrOutOfRange = errors.New("fwlogstore: requested range is out of bounds")
)
