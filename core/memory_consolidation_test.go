package core

import "testing"

func testConsolidator(strategy ConsolidationStrategy) *Consolidator {
	cfg := DefaultConsolidationConfig()
	cfg.Strategy = strategy
	cfg.MinInterval = 0
	cfg.MinAge = 0
	cfg.MinAccessCount = 0
	cfg.MinImportance = 0
	cfg.BatchSize = 10
	return NewConsolidator(cfg)
}

func TestConsolidationPreservesMemoryID(t *testing.T) {
	stm := newTestSTM(10)
	ltm := NewLongTermMemory(0, 0)
	c := testConsolidator(StrategyImportance)

	entry := NewMemoryEntry("fact", []byte("go is fast"), []string{"lang"}, nil, 0.9, "test")
	id, err := stm.Store(entry)
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	result := c.Run(stm, ltm)
	if result.Promoted != 1 {
		t.Fatalf("expected 1 promoted entry, got %d", result.Promoted)
	}

	got, ok := ltm.GetEntity(id)
	if !ok {
		t.Fatalf("expected LTM entity with the same id as the STM entry")
	}
	if got.ID != id {
		t.Fatalf("expected MemoryId to be preserved across consolidation")
	}

	entryAfter, _ := stm.Get(id)
	if !entryAfter.Metadata.Consolidated {
		t.Fatalf("expected STM entry to be marked consolidated")
	}
}

func TestConsolidationExtractsTagEntitiesAndTaggedLink(t *testing.T) {
	stm := newTestSTM(10)
	ltm := NewLongTermMemory(0, 0)
	c := testConsolidator(StrategyImportance)

	entry := NewMemoryEntry("fact", []byte("rust is fast"), []string{"lang", "systems"}, nil, 0.9, "test")
	id, err := stm.Store(entry)
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	result := c.Run(stm, ltm)
	if result.Promoted != 1 {
		t.Fatalf("expected 1 promoted entry, got %d", result.Promoted)
	}

	tagEntities := ltm.FindEntitiesByType("tag")
	if len(tagEntities) != 2 {
		t.Fatalf("expected one Entity per tag (2), got %d", len(tagEntities))
	}
	names := map[string]bool{}
	for _, e := range tagEntities {
		names[e.Name] = true
	}
	if !names["lang"] || !names["systems"] {
		t.Fatalf("expected tag entities named %q and %q, got %v", "lang", "systems", names)
	}

	links := ltm.GetLinksFrom(id)
	if len(links) != 2 {
		t.Fatalf("expected 2 TAGGED links from the promoted entity, got %d", len(links))
	}
	for _, l := range links {
		if l.Relation != tagRelation {
			t.Fatalf("expected relation %q, got %q", tagRelation, l.Relation)
		}
	}
}

func TestConsolidationSelectsAboveThresholds(t *testing.T) {
	stm := newTestSTM(10)
	ltm := NewLongTermMemory(0, 0)
	cfg := DefaultConsolidationConfig()
	cfg.MinInterval = 0
	cfg.MinAge = 0
	cfg.MinImportance = 0.5
	cfg.MinAccessCount = 1
	c := NewConsolidator(cfg)

	low := NewMemoryEntry("fact", []byte("low importance"), nil, nil, 0.1, "test")
	low.Metadata.AccessCount = 5
	high := NewMemoryEntry("fact", []byte("high importance"), nil, nil, 0.9, "test")
	high.Metadata.AccessCount = 5

	lowID, _ := stm.Store(low)
	highID, _ := stm.Store(high)

	result := c.Run(stm, ltm)
	if result.Promoted != 1 {
		t.Fatalf("expected exactly 1 promoted entry (only high clears the importance threshold), got %d", result.Promoted)
	}
	if _, ok := ltm.GetEntity(highID); !ok {
		t.Fatalf("expected high-importance entry to be promoted")
	}
	if _, ok := ltm.GetEntity(lowID); ok {
		t.Fatalf("expected low-importance entry to not be promoted")
	}
}

func TestConsolidationRespectsBatchSize(t *testing.T) {
	stm := newTestSTM(100)
	ltm := NewLongTermMemory(0, 0)
	cfg := DefaultConsolidationConfig()
	cfg.MinInterval = 0
	cfg.MinAge = 0
	cfg.MinImportance = 0
	cfg.MinAccessCount = 0
	cfg.BatchSize = 2
	c := NewConsolidator(cfg)

	for i := 0; i < 5; i++ {
		e := NewMemoryEntry("fact", []byte{byte(i)}, nil, nil, 0.8, "test")
		if _, err := stm.Store(e); err != nil {
			t.Fatalf("store %d: %v", i, err)
		}
	}

	result := c.Run(stm, ltm)
	if result.Promoted != 2 {
		t.Fatalf("expected promotion capped at batch_size(2), got %d", result.Promoted)
	}
}

func TestConsolidationShouldRunRespectsMinInterval(t *testing.T) {
	cfg := DefaultConsolidationConfig()
	c := NewConsolidator(cfg)
	if !c.ShouldRun() {
		t.Fatalf("expected ShouldRun true before any run has happened")
	}

	stm := newTestSTM(10)
	ltm := NewLongTermMemory(0, 0)
	c.Run(stm, ltm)

	if c.ShouldRun() {
		t.Fatalf("expected ShouldRun false immediately after a run, within min_interval")
	}
}

func TestConsolidationNoveltyStrategyPrefersDissimilarEntries(t *testing.T) {
	stm := newTestSTM(10)
	ltm := NewLongTermMemory(0, 0)
	// Seed LTM with an entity similar to "similar"'s embedding.
	seed := NewEntity("fact", "seed", nil, []float32{1, 0, 0})
	if err := ltm.AddEntity(seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	cfg := DefaultConsolidationConfig()
	cfg.Strategy = StrategyNovelty
	cfg.MinInterval = 0
	cfg.MinAge = 0
	cfg.MinImportance = 0
	cfg.MinAccessCount = 0
	cfg.BatchSize = 1
	c := NewConsolidator(cfg)

	similar := NewMemoryEntry("fact", []byte("similar"), nil, []float32{1, 0, 0}, 0.5, "test")
	novel := NewMemoryEntry("fact", []byte("novel"), nil, []float32{0, 1, 0}, 0.5, "test")
	similarID, _ := stm.Store(similar)
	novelID, _ := stm.Store(novel)

	result := c.Run(stm, ltm)
	if result.Promoted != 1 {
		t.Fatalf("expected exactly 1 promotion under batch_size=1, got %d", result.Promoted)
	}
	if _, ok := ltm.GetEntity(novelID); !ok {
		t.Fatalf("expected the more novel entry to be promoted first")
	}
	if _, ok := ltm.GetEntity(similarID); ok {
		t.Fatalf("expected the less novel entry to not be promoted in this batch")
	}
}
