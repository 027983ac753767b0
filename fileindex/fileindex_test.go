package fileindex

import (
	"os"
	"strings"
	"testing"

	"github.com/opnsense-tools/fwlogstore/internal/testutil"
)

func TestBuild_CountMatchesLineCount(t *testing.T) {
	path, cleanup := testutil.GenerateTestLogFile(t, 500)
	defer cleanup()

	idx, err := Build(path, nil, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if idx.Count() != 500 {
		t.Errorf("Count() = %d, want 500", idx.Count())
	}
}

func TestBuild_LineRangesMatchFileContent(t *testing.T) {
	path, cleanup := testutil.GenerateTestLogFile(t, 50)
	defer cleanup()

	idx, err := Build(path, nil, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	wantLines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")

	if idx.Count() != len(wantLines) {
		t.Fatalf("Count() = %d, want %d", idx.Count(), len(wantLines))
	}

	for i, want := range wantLines {
		rng, ok := idx.Line(i)
		if !ok {
			t.Fatalf("Line(%d) not found", i)
		}
		got := string(raw[rng.Offset : rng.Offset+int64(rng.Length)])
		if got != want {
			t.Errorf("Line(%d) = %q, want %q", i, got, want)
		}
	}
}

func TestBuild_LastLineWithoutTrailingNewline(t *testing.T) {
	path := testutil.TempFilePath(t, "no_trailing_newline_*.log")
	content := "first line\nsecond line\nthird line, no newline"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	defer os.Remove(path)

	idx, err := Build(path, nil, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if idx.Count() != 3 {
		t.Fatalf("Count() = %d, want 3", idx.Count())
	}

	rng, ok := idx.Line(2)
	if !ok {
		t.Fatalf("Line(2) not found")
	}
	got := content[rng.Offset : rng.Offset+int64(rng.Length)]
	want := "third line, no newline"
	if got != want {
		t.Errorf("Line(2) = %q, want %q", got, want)
	}
}

func TestBuild_SingleByteLastLineWithoutTrailingNewline(t *testing.T) {
	path := testutil.TempFilePath(t, "one_byte_no_newline_*.log")
	content := "a\nb"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	defer os.Remove(path)

	idx, err := Build(path, nil, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	rng, ok := idx.Line(1)
	if !ok {
		t.Fatalf("Line(1) not found")
	}
	if rng.Length != 1 {
		t.Errorf("Line(1).Length = %d, want 1", rng.Length)
	}
	got := content[rng.Offset : rng.Offset+int64(rng.Length)]
	if got != "b" {
		t.Errorf("Line(1) = %q, want %q", got, "b")
	}
}

func TestBuild_RangeIsAdditive(t *testing.T) {
	path, cleanup := testutil.GenerateTestLogFile(t, 100)
	defer cleanup()

	idx, err := Build(path, nil, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	whole, ok := idx.Range(0, idx.Count())
	if !ok {
		t.Fatalf("Range(0, Count()) not ok")
	}

	first, ok := idx.Range(0, 40)
	if !ok {
		t.Fatalf("Range(0, 40) not ok")
	}
	second, ok := idx.Range(40, idx.Count())
	if !ok {
		t.Fatalf("Range(40, Count()) not ok")
	}

	if first.Offset != whole.Offset {
		t.Errorf("first.Offset = %d, want %d", first.Offset, whole.Offset)
	}
	combinedLength := second.Offset + int64(second.Length) - first.Offset
	if combinedLength != int64(whole.Length) {
		t.Errorf("combined length = %d, want %d", combinedLength, whole.Length)
	}
}

func TestBuild_ReportsProgressAndReachesTotal(t *testing.T) {
	path, cleanup := testutil.GenerateTestLogFile(t, 50000)
	defer cleanup()

	var calls int
	var lastProcessed, lastTotal int64
	progress := func(processed, total int64) {
		calls++
		lastProcessed, lastTotal = processed, total
	}

	idx, err := Build(path, progress, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if calls == 0 {
		t.Fatalf("progress callback was never invoked")
	}
	if lastProcessed != lastTotal {
		t.Errorf("final progress call: processed=%d total=%d, want equal", lastProcessed, lastTotal)
	}
	if lastTotal != idx.Size() {
		t.Errorf("final total=%d, want idx.Size()=%d", lastTotal, idx.Size())
	}
}

func TestBuild_Cancellation(t *testing.T) {
	path, cleanup := testutil.GenerateTestLogFile(t, 200000)
	defer cleanup()

	cancel := make(chan struct{})
	close(cancel)

	_, err := Build(path, nil, cancel)
	if err == nil {
		t.Fatalf("expected Build to report cancellation, got nil error")
	}
}

func TestBuild_MissingFile(t *testing.T) {
	_, err := Build("/nonexistent/path/to/a/log/file", nil, nil)
	if err == nil {
		t.Fatalf("expected error opening a nonexistent file")
	}
}

func TestLine_OutOfRange(t *testing.T) {
	path, cleanup := testutil.GenerateTestLogFile(t, 5)
	defer cleanup()

	idx, err := Build(path, nil, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if _, ok := idx.Line(-1); ok {
		t.Errorf("Line(-1) reported ok")
	}
	if _, ok := idx.Line(idx.Count()); ok {
		t.Errorf("Line(Count()) reported ok")
	}
}
