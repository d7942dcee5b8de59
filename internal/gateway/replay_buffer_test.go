package gateway

import "testing"

func TestReplayBuffer_Since(t *testing.T) {
	rb := NewReplayBuffer(100)

	for i := int64(1); i <= 10; i++ {
		rb.Push(i, []byte("msg"))
	}

	got := rb.Since(3)
	if len(got) != 7 {
		t.Fatalf("Since(3): expected 7, got %d", len(got))
	}

	all := rb.Since(0)
	if len(all) != 10 {
		t.Fatalf("Since(0): expected 10, got %d", len(all))
	}
}

func TestReplayBuffer_Wraparound(t *testing.T) {
	rb := NewReplayBuffer(5) // tiny buffer

	// Push 8 entries; the first 3 should be evicted
	for i := int64(1); i <= 8; i++ {
		rb.Push(i, []byte{byte(i)})
	}

	if rb.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", rb.Len())
	}

	// Should only contain seqs 4-8, oldest first
	got := rb.Since(0)
	if len(got) != 5 {
		t.Fatalf("Since(0): expected 5, got %d", len(got))
	}
	if got[0][0] != 4 {
		t.Errorf("oldest entry = %d, want 4", got[0][0])
	}
	if got[4][0] != 8 {
		t.Errorf("newest entry = %d, want 8", got[4][0])
	}
}

func TestReplayBuffer_Empty(t *testing.T) {
	rb := NewReplayBuffer(10)
	if got := rb.Since(0); len(got) != 0 {
		t.Fatalf("empty buffer Since should return 0, got %d", len(got))
	}
}

func TestReplayBuffer_CopiesData(t *testing.T) {
	rb := NewReplayBuffer(10)
	src := []byte("original")
	rb.Push(1, src)
	src[0] = 'X'

	got := rb.Since(0)
	if string(got[0]) != "original" {
		t.Errorf("buffer shares caller memory: got %q", got[0])
	}
}
