// Package fileindex builds and holds the byte-offset index of a log
// file's lines. The index is the addressing scheme every other layer of
// the store builds on: a chunk is a contiguous run of indexed lines, and
// "line N" always means "the Nth entry of this index", never a seek into
// the raw file.
package fileindex

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// LineRange locates one line's bytes within the indexed file. Length
// excludes the trailing newline (and a preceding carriage return, for
// CRLF-terminated files).
type LineRange struct {
	Offset int64
	Length int
}

// FileIndex is the immutable, in-memory map from line number to byte
// range, built by a single linear scan of the file.
type FileIndex struct {
	path  string
	lines []LineRange
	size  int64
}

// Count returns the number of indexed lines.
func (idx *FileIndex) Count() int {
	return len(idx.lines)
}

// Path returns the file path this index was built from.
func (idx *FileIndex) Path() string {
	return idx.path
}

// Size returns the total byte size of the indexed file as observed at
// build time.
func (idx *FileIndex) Size() int64 {
	return idx.size
}

// Line returns the byte range of line i (0-based). ok is false when i is
// out of range.
func (idx *FileIndex) Line(i int) (rng LineRange, ok bool) {
	if i < 0 || i >= len(idx.lines) {
		return LineRange{}, false
	}
	return idx.lines[i], true
}

// Range returns the byte range spanning lines [start, end) — from the
// offset of the first line to the end of the last. ok is false if the
// interval is empty or out of bounds.
func (idx *FileIndex) Range(start, end int) (rng LineRange, ok bool) {
	if start < 0 || end > len(idx.lines) || start >= end {
		return LineRange{}, false
	}
	first := idx.lines[start]
	last := idx.lines[end-1]
	return LineRange{
		Offset: first.Offset,
		Length: int(last.Offset-first.Offset) + last.Length,
	}, true
}

// Progress reports how many bytes of the file have been scanned so far,
// out of the total observed at the start of the scan. It is called at
// most once per checkpointLines lines processed.
type Progress func(processedBytes, totalBytes int64)

// checkpointLines is how often Build reports progress and polls cancel,
// bounding both callback overhead and cancellation latency.
const checkpointLines = 10000

// Build performs one linear scan of the file at path, recording the byte
// range of every line. cancel, when non-nil, is polled at checkpoints;
// a closed cancel channel aborts the scan and returns a non-nil error.
// progress, when non-nil, is invoked at the same checkpoints.
func Build(path string, progress Progress, cancel <-chan struct{}) (*FileIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("fileindex: open %s: %w", path, err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("fileindex: stat %s: %w", path, err)
	}
	totalBytes := stat.Size()

	idx := &FileIndex{path: path, size: totalBytes}

	r := bufio.NewReaderSize(f, 1<<20)
	var offset int64
	var sinceCheckpoint int64

	for {
		raw, err := r.ReadBytes('\n')
		if len(raw) > 0 {
			var length int
			if raw[len(raw)-1] == '\n' {
				length = len(raw) - 1
				if length > 0 && raw[length-1] == '\r' {
					length--
				}
			} else {
				// Final line of the file has no trailing newline.
				length = len(raw)
			}
			idx.lines = append(idx.lines, LineRange{Offset: offset, Length: length})
			offset += int64(len(raw))
			sinceCheckpoint++

			if sinceCheckpoint >= checkpointLines {
				sinceCheckpoint = 0
				if cancel != nil {
					select {
					case <-cancel:
						return nil, fmt.Errorf("fileindex: build of %s cancelled", path)
					default:
					}
				}
				if progress != nil {
					progress(offset, totalBytes)
				}
			}
		}

		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("fileindex: read %s: %w", path, err)
		}
	}

	if progress != nil {
		progress(offset, totalBytes)
	}

	return idx, nil
}
