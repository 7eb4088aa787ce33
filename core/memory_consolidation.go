// core/memory_consolidation.go
package core

// Consolidation moves STM entries into the LTM knowledge graph under one of
// four selection strategies (SPEC_FULL §4.4). Grounded on
// _examples/original_source/crates/titans_memory/src/consolidation.rs for
// the strategy set, the combined-score weights, and the candidate-selection
// thresholds (importance, access_count, age).

import (
	"sort"
	"time"
)

// ConsolidationStrategy selects which STM entries are promoted to LTM first.
type ConsolidationStrategy uint8

const (
	// StrategyImportance ranks candidates by Metadata.Importance alone.
	StrategyImportance ConsolidationStrategy = iota
	// StrategyFrequency ranks candidates by Metadata.AccessCount alone.
	StrategyFrequency
	// StrategyNovelty ranks candidates by how dissimilar their embedding is
	// to the existing LTM population (1 - max cosine similarity).
	StrategyNovelty
	// StrategyCombined blends importance, frequency, recency, and novelty
	// with the fixed weights below.
	StrategyCombined
)

// Combined-strategy weights (SPEC_FULL §4.4): importance 0.35, frequency
// 0.25, recency 0.15, novelty 0.25.
const (
	combinedImportanceWeight = 0.35
	combinedFrequencyWeight  = 0.25
	combinedRecencyWeight    = 0.15
	combinedNoveltyWeight    = 0.25
)

// ConsolidationConfig holds the tunables named in SPEC_FULL §4.4 and §5.
type ConsolidationConfig struct {
	Strategy            ConsolidationStrategy
	MinInterval         time.Duration
	MinImportance       float32
	MinAccessCount      int
	MinAge              time.Duration
	BatchSize           int
	MaxAccessCountNorm  int // access_count value treated as "maximal" when normalizing frequency to [0,1]
}

// DefaultConsolidationConfig returns the consolidation defaults used by
// cmd/agentmeshd.
func DefaultConsolidationConfig() ConsolidationConfig {
	return ConsolidationConfig{
		Strategy:           StrategyCombined,
		MinInterval:        5 * time.Minute,
		MinImportance:      0.3,
		MinAccessCount:     2,
		MinAge:             time.Minute,
		BatchSize:          50,
		MaxAccessCountNorm: 20,
	}
}

// Consolidator runs consolidation passes against one STM/LTM pair.
type Consolidator struct {
	cfg      ConsolidationConfig
	lastRun  time.Time
}

// NewConsolidator wires a Consolidator with the given config.
func NewConsolidator(cfg ConsolidationConfig) *Consolidator {
	return &Consolidator{cfg: cfg}
}

// ShouldRun reports whether MinInterval has elapsed since the last run.
func (c *Consolidator) ShouldRun() bool {
	return c.lastRun.IsZero() || time.Since(c.lastRun) >= c.cfg.MinInterval
}

// ConsolidationResult summarizes one pass (SPEC_FULL §8 consolidation
// scenario: MemoryId must be preserved from STM entry to LTM entity).
type ConsolidationResult struct {
	Promoted     int
	EntityIDs    []EntityId
	SkippedLowRT int // batch entries whose ltm.AddEntity failed (candidates beyond BatchSize are not counted)
}

// Run selects candidates from stm, ranks them by cfg.Strategy, promotes up
// to BatchSize of them into ltm as Entities plus one "tag" Entity and
// TAGGED Link per tag (see extractKnowledge), and marks each promoted
// entry consolidated in stm. Best-effort: if ltm.AddEntity fails for an
// entry (e.g. Capacity), that entry is skipped and counted in SkippedLowRT,
// the remaining batch entries are still attempted, and the entries already
// promoted in this call are kept (SPEC_FULL §4.4, §7: consolidation failure
// is partial-progress, not all-or-nothing).
func (c *Consolidator) Run(stm *ShortTermMemory, ltm *LongTermMemory) ConsolidationResult {
	c.lastRun = time.Now()

	candidates := c.selectCandidates(stm.Snapshot())
	c.rank(candidates, ltm)

	batch := candidates
	if c.cfg.BatchSize > 0 && len(batch) > c.cfg.BatchSize {
		batch = batch[:c.cfg.BatchSize]
	}

	result := ConsolidationResult{}
	for _, entry := range batch {
		entity := entityFromMemory(entry)
		if err := ltm.AddEntity(entity); err != nil {
			result.SkippedLowRT++
			continue
		}
		c.extractKnowledge(entry, entity, ltm)
		stm.MarkConsolidated(entry.ID)
		result.Promoted++
		result.EntityIDs = append(result.EntityIDs, entity.ID)
	}
	return result
}

// selectCandidates filters STM entries against the configured minimums
// (importance, access_count, age) — mirrors consolidation.rs's
// select_candidates.
func (c *Consolidator) selectCandidates(entries []MemoryEntry) []MemoryEntry {
	now := time.Now()
	var out []MemoryEntry
	for _, e := range entries {
		if e.Metadata.Consolidated {
			continue
		}
		if e.Metadata.Importance < c.cfg.MinImportance {
			continue
		}
		if e.Metadata.AccessCount < c.cfg.MinAccessCount {
			continue
		}
		if now.Sub(e.Metadata.CreatedAt) < c.cfg.MinAge {
			continue
		}
		out = append(out, e)
	}
	return out
}

// rank sorts candidates in place, highest-priority first, per cfg.Strategy.
func (c *Consolidator) rank(candidates []MemoryEntry, ltm *LongTermMemory) {
	score := func(e MemoryEntry) float32 {
		switch c.cfg.Strategy {
		case StrategyFrequency:
			return c.normalizedFrequency(e)
		case StrategyNovelty:
			return c.noveltyScore(e, ltm)
		case StrategyCombined:
			recency := recencyScore(e.Metadata.LastAccessed)
			return combinedImportanceWeight*e.Metadata.Importance +
				combinedFrequencyWeight*c.normalizedFrequency(e) +
				combinedRecencyWeight*recency +
				combinedNoveltyWeight*c.noveltyScore(e, ltm)
		default: // StrategyImportance
			return e.Metadata.Importance
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return score(candidates[i]) > score(candidates[j])
	})
}

func (c *Consolidator) normalizedFrequency(e MemoryEntry) float32 {
	norm := c.cfg.MaxAccessCountNorm
	if norm <= 0 {
		norm = 1
	}
	v := float32(e.Metadata.AccessCount) / float32(norm)
	if v > 1.0 {
		v = 1.0
	}
	return v
}

// noveltyScore is 1 minus the highest cosine similarity to any existing LTM
// entity's embedding; an entry with no embedding, or an LTM with no
// embedded entities yet, is maximally novel.
func (c *Consolidator) noveltyScore(e MemoryEntry, ltm *LongTermMemory) float32 {
	if len(e.Embedding) == 0 {
		return 1.0
	}
	nearest := ltm.SemanticSearch(e.Embedding, 1)
	if len(nearest) == 0 {
		return 1.0
	}
	sim := cosineSimilarity(e.Embedding, nearest[0].Embedding)
	novelty := 1.0 - sim
	if novelty < 0 {
		novelty = 0
	}
	return novelty
}

// entityFromMemory converts a promoted STM entry to an LTM Entity,
// preserving its MemoryId as the Entity's id (SPEC_FULL §8: consolidation
// must preserve identity across the STM/LTM boundary). Tags are not folded
// into Properties here — extractKnowledge gives each tag its own Entity and
// a TAGGED link, per consolidation.rs's extract_knowledge.
func entityFromMemory(e MemoryEntry) Entity {
	return Entity{
		ID:         e.ID,
		Type:       e.EntryType,
		Name:       e.ID.String(),
		Properties: map[string]string{"source": e.Metadata.Source},
		Embedding:  e.Embedding,
		Metadata:   e.Metadata,
	}
}

// tagRelation is the relation name consolidation.rs's extract_knowledge
// links a promoted entity to each of its tag entities under.
const tagRelation = "TAGGED"

// extractKnowledge mirrors consolidation.rs's extract_knowledge: for each
// tag on entry, create (or reuse) a "tag"-typed Entity named after the tag
// and link entity to it under the TAGGED relation. Capacity errors adding a
// tag entity are ignored, matching the original's "ignore capacity errors
// for tags" — a full LTM should not block consolidation of the entry itself.
func (c *Consolidator) extractKnowledge(entry MemoryEntry, entity Entity, ltm *LongTermMemory) {
	for tag := range entry.Tags {
		tagEntity := NewEntity("tag", tag, nil, nil)
		if err := ltm.AddEntity(tagEntity); err != nil {
			continue
		}
		_ = ltm.AddLink(LTMLink{
			Source:   entity.ID,
			Target:   tagEntity.ID,
			Relation: tagRelation,
			Weight:   1.0,
		})
	}
}
