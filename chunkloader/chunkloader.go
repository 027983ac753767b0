// Package chunkloader turns a line range of the index into decoded
// records, going through the LRU chunk cache, and is the only place the
// decoder's interface-resolver snapshot lives — so a resolver hot-swap
// is exactly one cache invalidation plus one snapshot refresh, never a
// per-record callback into a mutable resolver.
package chunkloader

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/opnsense-tools/fwlogstore/chunkcache"
	"github.com/opnsense-tools/fwlogstore/fileindex"
	"github.com/opnsense-tools/fwlogstore/internal/bufpool"
	"github.com/opnsense-tools/fwlogstore/logparser"
	"github.com/opnsense-tools/fwlogstore/record"
)

// snapshotter is satisfied by resolver.InterfaceMap (and anything else
// that can hand out a point-in-time copy of its mappings). Declared
// locally rather than imported so chunkloader only depends on the shape
// it needs, not on the resolver package's full surface.
type snapshotter interface {
	Snapshot() map[string]string
}

// Loader decodes lines addressed by a fileindex.FileIndex into chunks of
// record.Record, chunkSize lines at a time, caching decoded chunks.
type Loader struct {
	idx       *fileindex.FileIndex
	chunkSize int
	cache     *chunkcache.Cache

	interfaceSnapshot atomic.Pointer[map[string]string]
}

// New creates a Loader over idx, grouping lines into chunks of chunkSize
// lines (the last chunk may be shorter), and caching decoded chunks in
// cache.
func New(idx *fileindex.FileIndex, chunkSize int, cache *chunkcache.Cache) *Loader {
	if chunkSize <= 0 {
		chunkSize = 1
	}
	return &Loader{idx: idx, chunkSize: chunkSize, cache: cache}
}

// ChunkSize returns the configured lines-per-chunk.
func (l *Loader) ChunkSize() int {
	return l.chunkSize
}

// ChunkCount returns the number of chunks the index is divided into.
func (l *Loader) ChunkCount() int {
	n := l.idx.Count()
	if n == 0 {
		return 0
	}
	return (n + l.chunkSize - 1) / l.chunkSize
}

// ChunkBounds returns the [startLine, endLine) line range covered by
// chunkID. ok is false if chunkID is out of range.
func (l *Loader) ChunkBounds(chunkID int) (startLine, endLine int, ok bool) {
	if chunkID < 0 || chunkID >= l.ChunkCount() {
		return 0, 0, false
	}
	startLine = chunkID * l.chunkSize
	endLine = startLine + l.chunkSize
	if total := l.idx.Count(); endLine > total {
		endLine = total
	}
	return startLine, endLine, true
}

// ChunkOf returns which chunk contains line i, and its offset within
// that chunk.
func (l *Loader) ChunkOf(line int) (chunkID, offsetInChunk int) {
	return line / l.chunkSize, line % l.chunkSize
}

// SetInterfaceResolver installs a new interface-name resolver. The
// resolver's current state is captured into an immutable snapshot right
// away (rather than consulted live on every decode), and every cached
// chunk is dropped: cached records carry interface_display fields baked
// in at decode time against the previous resolver, so they are no
// longer valid once the mapping changes.
func (l *Loader) SetInterfaceResolver(r snapshotter) {
	var snap map[string]string
	if r != nil {
		snap = r.Snapshot()
	}
	l.interfaceSnapshot.Store(&snap)
	l.cache.Invalidate()
}

// InterfaceLookup returns a lookup closure bound to the loader's current
// interface-resolver snapshot, for callers that need to decode lines
// outside the chunk path (the store's tail reader, in particular) using
// the exact same interface mapping the chunk loader itself decodes
// against.
func (l *Loader) InterfaceLookup() logparser.InterfaceLookup {
	return l.interfaceLookup()
}

func (l *Loader) interfaceLookup() logparser.InterfaceLookup {
	p := l.interfaceSnapshot.Load()
	if p == nil || *p == nil {
		return nil
	}
	snap := *p
	return func(physical string) (string, bool) {
		display, ok := snap[physical]
		return display, ok
	}
}

// Load returns the decoded records of chunkID, serving from cache when
// possible and decoding from the underlying file otherwise.
func (l *Loader) Load(chunkID int) ([]record.Record, error) {
	if cached, ok := l.cache.Get(chunkID); ok {
		return cached, nil
	}

	records, err := l.decodeChunk(chunkID)
	if err != nil {
		return nil, err
	}

	l.cache.Put(chunkID, records)
	return records, nil
}

// LoadRange decodes the raw bytes spanning [start, end) of the index
// directly from the file, bypassing the cache entirely. This is the
// entry point the parallel filter engine uses for per-job reads: caching
// every job's byte range would thrash a cache sized for repeated chunk
// access, for records a filter pass will typically visit exactly once.
func (l *Loader) LoadRange(start, end int) ([]record.Record, error) {
	return l.decodeLines(start, end)
}

func (l *Loader) decodeChunk(chunkID int) ([]record.Record, error) {
	start, end, ok := l.ChunkBounds(chunkID)
	if !ok {
		return nil, fmt.Errorf("chunkloader: chunk %d out of range (have %d chunks)", chunkID, l.ChunkCount())
	}
	return l.decodeLines(start, end)
}

func (l *Loader) decodeLines(start, end int) ([]record.Record, error) {
	if start >= end {
		return nil, nil
	}

	rng, ok := l.idx.Range(start, end)
	if !ok {
		return nil, fmt.Errorf("chunkloader: invalid line range [%d, %d)", start, end)
	}

	f, err := os.Open(l.idx.Path())
	if err != nil {
		return nil, fmt.Errorf("chunkloader: open %s: %w", l.idx.Path(), err)
	}
	defer f.Close()

	buf := bufpool.Get(rng.Length)
	defer bufpool.Put(buf)
	if _, err := f.ReadAt(buf, rng.Offset); err != nil {
		return nil, fmt.Errorf("chunkloader: read %s: %w", l.idx.Path(), err)
	}

	lookup := l.interfaceLookup()
	now := time.Now()

	records := make([]record.Record, 0, end-start)
	for i := start; i < end; i++ {
		lineRange, ok := l.idx.Line(i)
		if !ok {
			continue
		}
		relOffset := lineRange.Offset - rng.Offset
		raw := string(buf[relOffset : relOffset+int64(lineRange.Length)])

		if rec, ok := logparser.Decode(raw, now, lookup); ok {
			records = append(records, rec)
		}
	}

	return records, nil
}
