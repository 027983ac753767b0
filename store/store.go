// Package store is the virtual log store facade (spec.md §4.7): it
// composes fileindex, chunkcache, chunkloader, predicate and
// filterengine into a single Open/Close/Total/Get/Tail/ApplyFilter
// surface, and carries the UNFILTERED/FILTERED state machine that
// decides whether a line address is resolved by index arithmetic or by
// indirection through a stored match list.
package store

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/opnsense-tools/fwlogstore/chunkcache"
	"github.com/opnsense-tools/fwlogstore/chunkloader"
	"github.com/opnsense-tools/fwlogstore/fileindex"
	"github.com/opnsense-tools/fwlogstore/filterengine"
	"github.com/opnsense-tools/fwlogstore/internal/bufpool"
	"github.com/opnsense-tools/fwlogstore/internal/storeconfig"
	"github.com/opnsense-tools/fwlogstore/internal/storeerr"
	"github.com/opnsense-tools/fwlogstore/logparser"
	"github.com/opnsense-tools/fwlogstore/predicate"
	"github.com/opnsense-tools/fwlogstore/record"
	"github.com/opnsense-tools/fwlogstore/resolver"
)

// state is which addressing scheme Get/Total currently use.
type state int

const (
	// unfiltered addresses records by position in the file's decoded
	// record stream, computed from the line index.
	unfiltered state = iota
	// filtered addresses records by position in the last ApplyFilter
	// pass's match list.
	filtered
)

// Store is a single open log file: its line index, its chunk loader and
// cache, and whichever of the two addressing states is currently active.
type Store struct {
	cfg storeconfig.Config

	idx    *fileindex.FileIndex
	cache  *chunkcache.Cache
	loader *chunkloader.Loader
	engine *filterengine.Engine

	interfaceResolver *resolver.InterfaceMap
	ruleLabelResolver *resolver.RuleLabelMap
	aliasResolver     *resolver.AliasMap

	mu sync.RWMutex

	st      state
	matches []record.Record
	// duplicateCount counts digest collisions observed across the
	// matches of the last ApplyFilter pass: for every digest value that
	// appears k>1 times, k-1 is added. It resets on every ApplyFilter
	// and ClearFilter.
	duplicateCount int

	// recordOffsets[i] is the total decoded record count across chunks
	// [0, i), so recordOffsets[ChunkCount()] is the unfiltered record
	// total. Built once at Open by a single counting pass: chunks are
	// decoded and discarded, never retained, so this stays within the
	// "index the file once" cost the fileindex scan already pays.
	recordOffsets []int
}

// Progress reports index-build progress while Open is running.
type Progress func(processedBytes, totalBytes int64)

// Open builds a line index over path and prepares a Store ready to
// serve Get/Tail/ApplyFilter. cancel, when non-nil, aborts the index
// build (returning storeerr.ErrCancelled).
func Open(path string, cfg storeconfig.Config, progress Progress, cancel <-chan struct{}) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", storeerr.ErrFileOpenFailed, path, err)
	}

	idx, err := fileindex.Build(path, fileindex.Progress(progress), cancel)
	if err != nil {
		if cancel != nil {
			select {
			case <-cancel:
				return nil, fmt.Errorf("%w: %v", storeerr.ErrCancelled, err)
			default:
			}
		}
		var pathErr *os.PathError
		if errors.As(err, &pathErr) && pathErr.Op == "open" {
			return nil, fmt.Errorf("%w: %v", storeerr.ErrFileOpenFailed, err)
		}
		return nil, fmt.Errorf("%w: %w: %v", storeerr.ErrIndexUnbuilt, storeerr.ErrFileReadFailed, err)
	}

	cache := chunkcache.New(cfg.CacheChunks)
	loader := chunkloader.New(idx, cfg.ChunkSize, cache)
	engine := filterengine.New(loader, cfg.WorkerCount)

	s := &Store{
		cfg:               cfg,
		idx:               idx,
		cache:             cache,
		loader:            loader,
		engine:            engine,
		interfaceResolver: resolver.NewInterfaceMap(),
		ruleLabelResolver: resolver.NewRuleLabelMap(),
		aliasResolver:     resolver.NewAliasMap(),
	}

	if err := s.countRecords(); err != nil {
		return nil, fmt.Errorf("%w: %v", storeerr.ErrFileReadFailed, err)
	}

	return s, nil
}

// countRecords walks every chunk once to learn how many raw lines
// actually decode into records (interleaved non-filterlog lines do not),
// building the prefix-sum table unfiltered Get uses to translate a
// record-space range into chunk + local-offset reads. Decoded slices are
// discarded immediately after counting: this pass costs CPU, not memory.
func (s *Store) countRecords() error {
	n := s.loader.ChunkCount()
	s.recordOffsets = make([]int, n+1)
	total := 0
	for i := 0; i < n; i++ {
		start, end, ok := s.loader.ChunkBounds(i)
		if !ok {
			return fmt.Errorf("store: chunk %d reported out of range during count", i)
		}
		recs, err := s.loader.LoadRange(start, end)
		if err != nil {
			return err
		}
		total += len(recs)
		s.recordOffsets[i+1] = total
	}
	return nil
}

// Close releases the store's resources. The underlying file is only
// opened transiently per read, so Close today is limited to dropping the
// cache; it exists so callers have a stable lifecycle hook even as the
// store's resource footprint grows.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Invalidate()
	return nil
}

// Total returns the number of addressable records in the store's
// current state: every decoded record in the file when unfiltered, or
// the match count of the last filter pass when filtered.
func (s *Store) Total() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.st == filtered {
		return len(s.matches)
	}
	return s.recordOffsets[len(s.recordOffsets)-1]
}

// DuplicateCount reports how many matches of the last ApplyFilter pass
// were digest-duplicates of an earlier match in that same pass (the same
// firewall event logged more than once, a known filterlog behavior under
// some OPNsense rule configurations). It is 0 when unfiltered.
func (s *Store) DuplicateCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.duplicateCount
}

// Get returns up to count records starting at start, addressed in
// whichever space the store is currently in. The returned slice may be
// shorter than count if start+count runs past the end of the store.
func (s *Store) Get(start, count int) ([]record.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if start < 0 || count < 0 {
		return nil, fmt.Errorf("%w: start=%d count=%d", storeerr.ErrOutOfRange, start, count)
	}

	if s.st == filtered {
		return getSlice(s.matches, start, count)
	}
	return s.getUnfiltered(start, count)
}

func getSlice(matches []record.Record, start, count int) ([]record.Record, error) {
	if start > len(matches) {
		return nil, fmt.Errorf("%w: start=%d exceeds %d matches", storeerr.ErrOutOfRange, start, len(matches))
	}
	end := start + count
	if end > len(matches) {
		end = len(matches)
	}
	out := make([]record.Record, end-start)
	copy(out, matches[start:end])
	return out, nil
}

// getUnfiltered resolves a [start, start+count) range of record
// positions against recordOffsets, loading only the chunks the range
// actually spans.
func (s *Store) getUnfiltered(start, count int) ([]record.Record, error) {
	total := s.recordOffsets[len(s.recordOffsets)-1]
	if start > total {
		return nil, fmt.Errorf("%w: start=%d exceeds %d records", storeerr.ErrOutOfRange, start, total)
	}
	end := start + count
	if end > total {
		end = total
	}
	if start >= end {
		return nil, nil
	}

	out := make([]record.Record, 0, end-start)
	pos := start
	for pos < end {
		chunkID := chunkContaining(s.recordOffsets, pos)
		chunkStart := s.recordOffsets[chunkID]
		chunkEnd := s.recordOffsets[chunkID+1]

		recs, err := s.loader.Load(chunkID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", storeerr.ErrFileReadFailed, err)
		}

		localStart := pos - chunkStart
		localEnd := len(recs)
		if end < chunkEnd {
			localEnd = end - chunkStart
		}
		out = append(out, recs[localStart:localEnd]...)
		pos = chunkStart + localEnd
	}
	return out, nil
}

// chunkContaining returns the chunk index i such that
// offsets[i] <= pos < offsets[i+1].
func chunkContaining(offsets []int, pos int) int {
	return sort.Search(len(offsets)-1, func(i int) bool { return offsets[i+1] > pos }) // first chunk whose end exceeds pos
}

// Tail returns the last n decoded records in the file, read backward
// from EOF in growing blocks. It bypasses both the line index and the
// chunk cache entirely: a tail view is read once and thrown away, and
// consulting a prefix-sum table built for forward addressing would gain
// it nothing.
func (s *Store) Tail(n int) ([]record.Record, error) {
	if n <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	path := s.idx.Path()
	lookup := s.loader.InterfaceLookup()
	blockSize := s.cfg.TailBlockSize
	s.mu.RUnlock()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storeerr.ErrFileOpenFailed, err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storeerr.ErrFileReadFailed, err)
	}
	size := stat.Size()
	if size == 0 {
		return nil, nil
	}

	now := time.Now()
	if blockSize <= 0 {
		blockSize = 8 * 1024
	}

	for {
		start := size - blockSize
		if start < 0 {
			start = 0
		}

		buf := bufpool.Get(int(size - start))
		if _, err := f.ReadAt(buf, start); err != nil {
			bufpool.Put(buf)
			return nil, fmt.Errorf("%w: %v", storeerr.ErrFileReadFailed, err)
		}
		text := string(buf)
		bufpool.Put(buf)

		if start > 0 {
			nl := strings.IndexByte(text, '\n')
			if nl < 0 {
				// The whole window is one incomplete line; grow and
				// retry without decoding anything from it.
				if start == 0 {
					break
				}
				blockSize *= 2
				continue
			}
			text = text[nl+1:]
		}

		var decoded []record.Record
		for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
			if line == "" {
				continue
			}
			if rec, ok := logparser.Decode(line, now, lookup); ok {
				decoded = append(decoded, rec)
			}
		}

		if len(decoded) >= n || start == 0 {
			if len(decoded) > n {
				decoded = decoded[len(decoded)-n:]
			}
			return decoded, nil
		}

		blockSize *= 2
	}

	return nil, nil
}

// ApplyFilter compiles spec and runs it across every record in the
// store, switching the store into the filtered state addressed by the
// resulting match list. progress and cancel are forwarded to the filter
// engine's per-chunk job loop.
func (s *Store) ApplyFilter(spec predicate.Spec, progress filterengine.Progress, cancel <-chan struct{}) (int, error) {
	pred, err := predicate.Compile(spec)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", storeerr.ErrPredicateCompile, err)
	}

	s.mu.RLock()
	labelSnap := s.ruleLabelResolver.Snapshot()
	s.mu.RUnlock()

	resolveLabel := func(ruleID string) (string, bool) {
		label, ok := labelSnap[ruleID]
		return label, ok
	}

	matches, err := s.engine.Filter(pred, resolveLabel, progress, cancel)
	if err != nil {
		if errors.Is(err, filterengine.ErrCancelled) {
			return 0, fmt.Errorf("%w: %v", storeerr.ErrCancelled, err)
		}
		return 0, fmt.Errorf("%w: %v", storeerr.ErrFileReadFailed, err)
	}

	duplicates := 0
	seen := make(map[record.Digest]int, len(matches))
	for _, m := range matches {
		seen[m.Digest]++
	}
	for _, count := range seen {
		if count > 1 {
			duplicates += count - 1
		}
	}

	s.mu.Lock()
	s.st = filtered
	s.matches = matches
	s.duplicateCount = duplicates
	s.mu.Unlock()

	return len(matches), nil
}

// ClearFilter returns the store to the unfiltered state, discarding the
// last filter pass's match list.
func (s *Store) ClearFilter() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st = unfiltered
	s.matches = nil
	s.duplicateCount = 0
}

// SetInterfaceResolver installs a new interface display-name resolver.
// Cached chunks are products of the previous resolver's mappings baked
// into decoded fields, so the cache is invalidated via the loader. The
// store's addressing mode and any active filter's matches are left
// untouched: set_resolver preserves mode, and the next ApplyFilter
// picks up the new resolver.
func (s *Store) SetInterfaceResolver(r *resolver.InterfaceMap) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interfaceResolver = r
	s.loader.SetInterfaceResolver(r)
}

// SetRuleLabelResolver installs a new rule-label resolver, consulted by
// the "__label__" pseudo-field at the next ApplyFilter. Mode and any
// active filter's matches are preserved, same as SetInterfaceResolver.
func (s *Store) SetRuleLabelResolver(r *resolver.RuleLabelMap) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ruleLabelResolver = r
}

// SetAliasResolver installs a new alias-expansion resolver. The
// predicate language has no alias-addressable field today, so this is
// plain storage for host-side use (for example, rendering an alias name
// next to a matched src/dst address) rather than something a filter
// pass consults.
func (s *Store) SetAliasResolver(r *resolver.AliasMap) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aliasResolver = r
}

// AliasResolver returns the store's current alias resolver.
func (s *Store) AliasResolver() *resolver.AliasMap {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.aliasResolver
}

// MemoryInfo reports the chunk cache's footprint plus the store's own
// bookkeeping, the data behind a host's memory_info operation.
type MemoryInfo struct {
	chunkcache.MemoryInfo
	TotalLines      int
	TotalRecords    int
	FilteredRecords int
	DuplicateCount  int
	Filtered        bool
}

// MemoryInfo returns the store's current memory footprint summary.
func (s *Store) MemoryInfo() MemoryInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := MemoryInfo{
		MemoryInfo:   s.cache.MemoryInfo(),
		TotalLines:   s.idx.Count(),
		TotalRecords: s.recordOffsets[len(s.recordOffsets)-1],
		Filtered:     s.st == filtered,
	}
	if s.st == filtered {
		info.FilteredRecords = len(s.matches)
		info.DuplicateCount = s.duplicateCount
	}
	return info
}
