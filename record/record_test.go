package record

import (
	"testing"
	"time"
)

func TestDigestOf(t *testing.T) {
	a := DigestOf("foo")
	b := DigestOf("foo")
	c := DigestOf("bar")

	if a != b {
		t.Fatalf("DigestOf not deterministic: %x != %x", a, b)
	}
	if a == c {
		t.Fatalf("DigestOf collided for distinct input")
	}
}

func TestRecordEqual(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r1 := Record{RawLine: "a", Timestamp: Parsed(now), Digest: DigestOf("a")}
	r2 := Record{RawLine: "a", Timestamp: SyntheticAt(now), Digest: DigestOf("a")}
	r3 := Record{RawLine: "b", Timestamp: Parsed(now), Digest: DigestOf("b")}

	if !r1.Equal(r2) {
		t.Fatalf("records with equal digests should be Equal regardless of timestamp variant")
	}
	if r1.Equal(r3) {
		t.Fatalf("records with distinct digests should not be Equal")
	}
}

func TestFieldMissing(t *testing.T) {
	var r Record
	if got := r.Field("interface"); got != "" {
		t.Fatalf("Field on nil map = %q, want empty", got)
	}

	r.Fields = map[string]string{"interface": "igb0"}
	if got := r.Field("interface"); got != "igb0" {
		t.Fatalf("Field(interface) = %q, want igb0", got)
	}
	if got := r.Field("nope"); got != "" {
		t.Fatalf("Field(nope) = %q, want empty", got)
	}
}

func TestTimestampVariant(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	p := Parsed(now)
	if p.Synthetic {
		t.Fatalf("Parsed timestamp marked Synthetic")
	}

	s := SyntheticAt(now)
	if !s.Synthetic {
		t.Fatalf("SyntheticAt timestamp not marked Synthetic")
	}
}
