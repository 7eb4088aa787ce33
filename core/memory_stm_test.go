package core

import (
	"testing"
	"time"
)

func newTestSTM(maxEntries int) *ShortTermMemory {
	return NewShortTermMemory(maxEntries, 0, time.Minute, 0.5, 0.05)
}

func TestSTMAttentionBoost(t *testing.T) {
	stm := newTestSTM(10)
	entry := NewMemoryEntry("note", []byte("hi"), nil, nil, 0.5, "test")
	entry.Metadata.Attention = 0.5
	id, err := stm.Store(entry)
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	before, _ := stm.Get(id)
	accessed, ok := stm.GetAndAccess(id)
	if !ok {
		t.Fatalf("expected entry to be found")
	}
	if accessed.Metadata.Attention <= before.Metadata.Attention {
		t.Fatalf("expected attention to strictly increase: before=%v after=%v", before.Metadata.Attention, accessed.Metadata.Attention)
	}
	if accessed.Metadata.AccessCount != before.Metadata.AccessCount+1 {
		t.Fatalf("expected access_count to increase by exactly 1")
	}
}

func TestSTMCapacityEviction(t *testing.T) {
	stm := newTestSTM(2)

	low := NewMemoryEntry("a", []byte("low"), nil, nil, 0.1, "test")
	low.Metadata.Attention = 0.1
	mid := NewMemoryEntry("b", []byte("mid"), nil, nil, 0.5, "test")
	mid.Metadata.Attention = 0.5
	high := NewMemoryEntry("c", []byte("high"), nil, nil, 0.9, "test")
	high.Metadata.Attention = 0.9

	if _, err := stm.Store(low); err != nil {
		t.Fatalf("store low: %v", err)
	}
	if _, err := stm.Store(mid); err != nil {
		t.Fatalf("store mid: %v", err)
	}
	if _, err := stm.Store(high); err != nil {
		t.Fatalf("store high: %v", err)
	}

	if stm.Len() > 2 {
		t.Fatalf("expected STM.len() <= max_entries(2), got %d", stm.Len())
	}
	if _, ok := stm.Get(low.ID); ok {
		t.Fatalf("expected lowest-attention entry to have been evicted")
	}
	if _, ok := stm.Get(high.ID); !ok {
		t.Fatalf("expected highest-attention entry to survive")
	}
}

func TestSTMDecay(t *testing.T) {
	stm := newTestSTM(10)
	entry := NewMemoryEntry("a", []byte("x"), nil, nil, 0.5, "test")
	entry.Metadata.Attention = 0.8
	id, _ := stm.Store(entry)

	stm.Decay()

	got, _ := stm.Get(id)
	want := float32(0.8 * 0.5)
	if diff := got.Metadata.Attention - want; diff > 1e-6 || diff < -1e-6 {
		t.Fatalf("expected attention %v after decay, got %v", want, got.Metadata.Attention)
	}
}

func TestSTMPrune(t *testing.T) {
	stm := newTestSTM(10)
	low := NewMemoryEntry("a", []byte("low"), nil, nil, 0.1, "test")
	low.Metadata.Attention = 0.01
	stm.Store(low)

	removed := stm.Prune()
	if removed != 1 {
		t.Fatalf("expected 1 pruned entry, got %d", removed)
	}
	if _, ok := stm.Get(low.ID); ok {
		t.Fatalf("expected low-attention entry to be pruned")
	}
}

func TestSTMMarkConsolidatedIdempotent(t *testing.T) {
	stm := newTestSTM(10)
	entry := NewMemoryEntry("a", []byte("x"), nil, nil, 0.5, "test")
	id, _ := stm.Store(entry)

	stm.MarkConsolidated(id)
	stm.MarkConsolidated(id)

	got, _ := stm.Get(id)
	if !got.Metadata.Consolidated {
		t.Fatalf("expected entry to be marked consolidated")
	}
}
