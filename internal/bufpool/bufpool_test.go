package bufpool

import "testing"

func TestGet_ReturnsRequestedLength(t *testing.T) {
	buf := Get(128)
	if len(buf) != 128 {
		t.Fatalf("len(buf) = %d, want 128", len(buf))
	}
	Put(buf)
}

func TestGet_ReusesPutBuffers(t *testing.T) {
	first := Get(1024)
	for i := range first {
		first[i] = 0xAB
	}
	Put(first)

	second := Get(1024)
	// Not a correctness requirement of the pool, but exercises the
	// reuse path rather than only the allocate-fresh path.
	if len(second) != 1024 {
		t.Fatalf("len(second) = %d, want 1024", len(second))
	}
}

func TestGet_GrowsBeyondPooledCapacity(t *testing.T) {
	buf := Get(8)
	Put(buf)

	bigger := Get(1 << 20)
	if len(bigger) != 1<<20 {
		t.Fatalf("len(bigger) = %d, want %d", len(bigger), 1<<20)
	}
}

func TestPut_DropsOversizedBuffers(t *testing.T) {
	huge := make([]byte, maxPooled+1)
	// Should not panic and should simply decline to pool it.
	Put(huge)
}
