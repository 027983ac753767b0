// Package record defines the immutable parsed firewall log entry produced
// by the grammar decoder and consumed by every layer of the log store.
package record

import (
	"crypto/md5"
	"time"
)

// DefaultHost is used when the syslog host token is not extracted from
// the line (grammar version 1 never negotiates a richer syslog prefix).
const DefaultHost = "opnsense"

// Digest is a 128-bit content hash of a raw log line. It is used for
// equality and de-duplication, never for ordering.
type Digest [md5.Size]byte

// DigestOf hashes a raw line into a Digest.
func DigestOf(rawLine string) Digest {
	return Digest(md5.Sum([]byte(rawLine)))
}

// Timestamp is a tagged variant: either a value successfully Parsed from
// the line, or a Synthetic stand-in recorded at ingest time because the
// line's timestamp token could not be parsed.
type Timestamp struct {
	Instant   time.Time
	Synthetic bool
}

// Parsed builds a Timestamp that was decoded from the line itself.
func Parsed(t time.Time) Timestamp {
	return Timestamp{Instant: t}
}

// SyntheticAt builds a Timestamp standing in for one that failed to parse.
func SyntheticAt(t time.Time) Timestamp {
	return Timestamp{Instant: t, Synthetic: true}
}

// Record is an immutable, successfully decoded firewall log entry.
type Record struct {
	RawLine   string
	Fields    map[string]string
	Timestamp Timestamp
	Host      string
	Digest    Digest
}

// Field returns the named field value, or the empty string if the field
// is unknown or was not present in the original line. Predicate
// evaluation relies on this never-error contract.
func (r Record) Field(name string) string {
	if r.Fields == nil {
		return ""
	}
	return r.Fields[name]
}

// Equal reports whether two records carry identical raw-line content.
// Digest equality is the only defined notion of Record equality; it must
// never be used to order records.
func (r Record) Equal(other Record) bool {
	return r.Digest == other.Digest
}
