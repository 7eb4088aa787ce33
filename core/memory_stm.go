// core/memory_stm.go
package core

// Short-term memory: a bounded, attention-decaying recent-entry store
// (SPEC_FULL §3.5, §4.4). No teacher analogue; grounded directly on
// _examples/original_source/crates/titans_memory/src/stm.rs for the exact
// relevance-score weights, eviction policy, and decay/prune semantics,
// translated from Rust's Arc<Mutex<...>> into a single sync.Mutex-guarded
// struct (SPEC_FULL §5: "STM/LTM: one mutex each").

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	agmerrors "agentmesh/pkg/errors"
	"agentmesh/pkg/primitives"
)

// MemoryId identifies one STM/LTM entry; derived from hash(entry_type |
// timestamp | data) per SPEC_FULL §3.5.
type MemoryId = primitives.Hash

// MemoryMetadata carries the bookkeeping fields every MemoryEntry owns.
type MemoryMetadata struct {
	CreatedAt    time.Time
	LastAccessed time.Time
	AccessCount  int
	Importance   float32
	Attention    float32
	Consolidated bool
	Source       string
}

// MemoryEntry is one STM record (SPEC_FULL §3.5).
type MemoryEntry struct {
	ID        MemoryId
	EntryType string
	Data      []byte // opaque JSON payload; this core does not interpret it
	Tags      map[string]struct{}
	Embedding []float32
	Metadata  MemoryMetadata
}

func computeMemoryID(entryType string, ts time.Time, data []byte) MemoryId {
	buf := []byte(entryType)
	buf = append(buf, []byte(ts.Format(time.RFC3339Nano))...)
	buf = append(buf, data...)
	return primitives.SumHash(buf)
}

// NewMemoryEntry builds a MemoryEntry with a freshly computed id and
// zero-value metadata ready for Store.
func NewMemoryEntry(entryType string, data []byte, tags []string, embedding []float32, importance float32, source string) MemoryEntry {
	now := time.Now()
	tagSet := make(map[string]struct{}, len(tags))
	for _, tg := range tags {
		tagSet[tg] = struct{}{}
	}
	return MemoryEntry{
		ID:        computeMemoryID(entryType, now, data),
		EntryType: entryType,
		Data:      data,
		Tags:      tagSet,
		Embedding: embedding,
		Metadata: MemoryMetadata{
			CreatedAt:    now,
			LastAccessed: now,
			Importance:   importance,
			Attention:    1.0,
			Source:       source,
		},
	}
}

func approxEntrySize(e MemoryEntry) int {
	size := len(e.Data) + len(e.EntryType) + len(e.Metadata.Source)
	size += len(e.Embedding) * 4
	for tg := range e.Tags {
		size += len(tg)
	}
	return size
}

// STMQuery selects and scores entries (SPEC_FULL §4.4).
type STMQuery struct {
	Tags            []string
	TextMatch       string
	QueryEmbedding  []float32
	Limit           int
}

// ShortTermMemory is the bounded recent-memory store.
type ShortTermMemory struct {
	mu sync.Mutex

	entries     map[MemoryId]*MemoryEntry
	accessOrder []MemoryId // oldest first; GetAndAccess moves an id to the tail

	maxEntries            int
	maxMemoryBytes         int
	decayInterval          time.Duration
	decayFactor            float32
	minAttentionThreshold  float32
	lastDecay              time.Time
	memoryBytes            int
}

// NewShortTermMemory wires an STM with the resource limits from
// SPEC_FULL §5 ("Resource limits (configurable): STM: max_entries,
// max_memory_bytes, decay_interval, decay_factor, min_attention_threshold").
func NewShortTermMemory(maxEntries, maxMemoryBytes int, decayInterval time.Duration, decayFactor, minAttentionThreshold float32) *ShortTermMemory {
	return &ShortTermMemory{
		entries:               make(map[MemoryId]*MemoryEntry),
		maxEntries:            maxEntries,
		maxMemoryBytes:        maxMemoryBytes,
		decayInterval:         decayInterval,
		decayFactor:           decayFactor,
		minAttentionThreshold: minAttentionThreshold,
	}
}

// Store inserts entry, evicting lowest-attention non-consolidated entries
// until it fits. Fails Capacity only if even evicting everything cannot
// make room (SPEC_FULL §4.4).
func (s *ShortTermMemory) Store(entry MemoryEntry) (MemoryId, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	size := approxEntrySize(entry)
	if s.maxMemoryBytes > 0 && size > s.maxMemoryBytes {
		return MemoryId{}, agmerrors.New(agmerrors.KindCapacity, "stm.store", "entry larger than max_memory_bytes")
	}

	for s.overCapacity(size) {
		if !s.evictOne() {
			return MemoryId{}, agmerrors.New(agmerrors.KindCapacity, "stm.store", "cannot make room even after evicting all evictable entries")
		}
	}

	s.entries[entry.ID] = &entry
	s.accessOrder = append(s.accessOrder, entry.ID)
	s.memoryBytes += size
	return entry.ID, nil
}

func (s *ShortTermMemory) overCapacity(incomingSize int) bool {
	if s.maxEntries > 0 && len(s.entries) >= s.maxEntries {
		return true
	}
	if s.maxMemoryBytes > 0 && s.memoryBytes+incomingSize > s.maxMemoryBytes {
		return true
	}
	return false
}

// evictOne removes the lowest-attention non-consolidated entry; returns
// false if no evictable entry exists.
func (s *ShortTermMemory) evictOne() bool {
	var victim MemoryId
	found := false
	var lowest float32 = math.MaxFloat32

	for id, e := range s.entries {
		if e.Metadata.Consolidated {
			continue
		}
		if !found || e.Metadata.Attention < lowest {
			victim, lowest, found = id, e.Metadata.Attention, true
		}
	}
	if !found {
		return false
	}
	s.removeLocked(victim)
	return true
}

// Get reads an entry without side effects.
func (s *ShortTermMemory) Get(id MemoryId) (MemoryEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return MemoryEntry{}, false
	}
	return *e, true
}

// GetAndAccess bumps last_accessed, increments access_count, boosts
// attention by +0.2 capped at 1.0, and moves the id to the tail of the
// access-order list (SPEC_FULL §4.4, §8 "STM attention boost").
func (s *ShortTermMemory) GetAndAccess(id MemoryId) (MemoryEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return MemoryEntry{}, false
	}
	e.Metadata.LastAccessed = time.Now()
	e.Metadata.AccessCount++
	e.Metadata.Attention = float32(math.Min(1.0, float64(e.Metadata.Attention)+0.2))

	for i, existing := range s.accessOrder {
		if existing == id {
			s.accessOrder = append(s.accessOrder[:i], s.accessOrder[i+1:]...)
			break
		}
	}
	s.accessOrder = append(s.accessOrder, id)

	return *e, true
}

// Remove drops the entry and its size from the running total.
func (s *ShortTermMemory) Remove(id MemoryId) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(id)
}

func (s *ShortTermMemory) removeLocked(id MemoryId) {
	e, ok := s.entries[id]
	if !ok {
		return
	}
	s.memoryBytes -= approxEntrySize(*e)
	delete(s.entries, id)
	for i, existing := range s.accessOrder {
		if existing == id {
			s.accessOrder = append(s.accessOrder[:i], s.accessOrder[i+1:]...)
			break
		}
	}
}

// Len reports the current entry count.
func (s *ShortTermMemory) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// MemoryBytes reports the current approximate byte occupancy.
func (s *ShortTermMemory) MemoryBytes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.memoryBytes
}

// GetRecent returns the last n entries in access order.
func (s *ShortTermMemory) GetRecent(n int) []MemoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := len(s.accessOrder) - n
	if start < 0 {
		start = 0
	}
	out := make([]MemoryEntry, 0, len(s.accessOrder)-start)
	for _, id := range s.accessOrder[start:] {
		if e, ok := s.entries[id]; ok {
			out = append(out, *e)
		}
	}
	return out
}

// relevanceScore implements SPEC_FULL §4.4's exact weighted formula:
// 0.3·attention + 0.2·importance + 0.2·recency + 0.15·tag_match +
// 0.15·embedding_cosine_similarity + 0.2·text_match, clipped to 1.0.
func relevanceScore(e MemoryEntry, q STMQuery) float32 {
	recency := recencyScore(e.Metadata.LastAccessed)
	tagMatch := tagMatchScore(e.Tags, q.Tags)
	cosine := cosineSimilarity(e.Embedding, q.QueryEmbedding)
	textMatch := textMatchScore(e.Data, q.TextMatch)

	score := 0.3*e.Metadata.Attention +
		0.2*e.Metadata.Importance +
		0.2*recency +
		0.15*tagMatch +
		0.15*cosine +
		0.2*textMatch
	if score > 1.0 {
		score = 1.0
	}
	return score
}

func recencyScore(lastAccessed time.Time) float32 {
	age := time.Since(lastAccessed)
	if age < 0 {
		age = 0
	}
	const halfLife = 10 * time.Minute
	return float32(math.Exp(-float64(age) / float64(halfLife)))
}

func tagMatchScore(have map[string]struct{}, want []string) float32 {
	if len(want) == 0 {
		return 0
	}
	var matched int
	for _, tg := range want {
		if _, ok := have[tg]; ok {
			matched++
		}
	}
	return float32(matched) / float32(len(want))
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

func textMatchScore(data []byte, query string) float32 {
	if query == "" {
		return 0
	}
	if strings.Contains(strings.ToLower(string(data)), strings.ToLower(query)) {
		return 1.0
	}
	return 0
}

// Query performs a linear scan with per-entry relevance scoring, sorts
// descending, and applies Limit.
func (s *ShortTermMemory) Query(q STMQuery) []MemoryEntry {
	s.mu.Lock()
	scored := make([]MemoryEntry, 0, len(s.entries))
	for _, e := range s.entries {
		scored = append(scored, *e)
	}
	s.mu.Unlock()

	type ranked struct {
		entry MemoryEntry
		score float32
	}
	rs := make([]ranked, len(scored))
	for i, e := range scored {
		rs[i] = ranked{entry: e, score: relevanceScore(e, q)}
	}
	sort.Slice(rs, func(i, j int) bool { return rs[i].score > rs[j].score })

	limit := q.Limit
	if limit <= 0 || limit > len(rs) {
		limit = len(rs)
	}
	out := make([]MemoryEntry, limit)
	for i := 0; i < limit; i++ {
		out[i] = rs[i].entry
	}
	return out
}

// Decay multiplies every entry's attention by decay_factor, at most once
// per decay_interval wall-clock.
func (s *ShortTermMemory) Decay() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if !s.lastDecay.IsZero() && now.Sub(s.lastDecay) < s.decayInterval {
		return
	}
	s.lastDecay = now
	for _, e := range s.entries {
		e.Metadata.Attention *= s.decayFactor
	}
}

// Prune removes every entry with attention < min_attention_threshold and
// consolidated == false.
func (s *ShortTermMemory) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int
	for id, e := range s.entries {
		if !e.Metadata.Consolidated && e.Metadata.Attention < s.minAttentionThreshold {
			s.removeLocked(id)
			removed++
		}
	}
	return removed
}

// MarkConsolidated idempotently flags id as consolidated. A consolidated
// entry is skipped by capacity eviction and by Prune; it leaves the STM
// only through Remove.
func (s *ShortTermMemory) MarkConsolidated(id MemoryId) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		e.Metadata.Consolidated = true
	}
}

// Snapshot returns a copy of every entry currently held, for the
// consolidation engine to select candidates from without holding the STM
// mutex across its own processing.
func (s *ShortTermMemory) Snapshot() []MemoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]MemoryEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, *e)
	}
	return out
}
