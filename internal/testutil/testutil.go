// Package testutil provides shared fixtures for the store's package
// tests: temp file/dir helpers and a generator for synthetic filterlog
// files covering a mix of protocols, interfaces and noise lines.
package testutil

import (
	"fmt"
	"os"
	"strings"
	"testing"
)

// sampleRecords cycles to build variety into a generated log file: TCP,
// UDP and ICMP filterlog lines across two interfaces, plus a non-filterlog
// syslog line that a real firewall log always has interleaved and that a
// correct decoder must skip rather than reject the whole file over.
var sampleRecords = []string{
	"2026-01-01T00:00:%02d opnsense filterlog[53174]: 100,,,1000000103,igb0,match,block,in,4,0x0,0,64,0,0,0,6,tcp,60,203.0.113.5,198.51.100.7,443,1000,40,S,123456789,0,0,mss;sackOK;TS;nop;wscale",
	"2026-01-01T00:00:%02d opnsense filterlog[53174]: 5,,,1000000104,igb1,match,pass,out,4,0x0,0,64,1,0,0,17,udp,80,198.51.100.7,203.0.113.5,53,53210,52",
	"2026-01-01T00:00:%02d opnsense filterlog[53174]: 12,,,1000000110,igb0,match,block,in,4,0x0,0,64,2,0,0,1,icmp,84,203.0.113.9,198.51.100.7",
	"2026-01-01T00:00:%02d opnsense sshd[412]: Accepted publickey for root from 203.0.113.9 port 51022",
}

// GenerateTestLogFile creates a temporary filterlog-style log file with
// numLines lines, cycling through sampleRecords for variety. Returns the
// file path and a cleanup function.
func GenerateTestLogFile(t *testing.T, numLines int) (string, func()) {
	t.Helper()

	if numLines < 1 {
		numLines = 1
	}

	tmpFile, err := os.CreateTemp("", "test_filterlog_*.log")
	if err != nil {
		t.Fatalf("failed to create temp log file: %v", err)
	}

	var content strings.Builder
	for i := 0; i < numLines; i++ {
		line := sampleRecords[i%len(sampleRecords)]
		fmt.Fprintf(&content, line, i%60)
		content.WriteString("\n")
	}

	if _, err := tmpFile.WriteString(content.String()); err != nil {
		t.Fatalf("failed to write temp log file: %v", err)
	}
	tmpFile.Close()

	cleanup := func() {
		os.Remove(tmpFile.Name())
	}

	return tmpFile.Name(), cleanup
}

// TempFilePath returns a path for a file that does not yet exist, in the
// OS temp directory, following pattern (as accepted by os.CreateTemp).
func TempFilePath(t *testing.T, pattern string) string {
	t.Helper()

	tmpFile, err := os.CreateTemp("", pattern)
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}

	path := tmpFile.Name()
	tmpFile.Close()
	os.Remove(path)

	return path
}

// TempDirPath returns a fresh temporary directory removed at test cleanup.
func TempDirPath(t *testing.T) string {
	t.Helper()
	return t.TempDir()
}
