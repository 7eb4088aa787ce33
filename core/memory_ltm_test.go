package core

import "testing"

func TestLTMAddAndGetEntity(t *testing.T) {
	ltm := NewLongTermMemory(0, 0)
	e := NewEntity("concept", "rust", map[string]string{"tag": "language"}, nil)
	if err := ltm.AddEntity(e); err != nil {
		t.Fatalf("add entity: %v", err)
	}

	got, ok := ltm.GetEntity(e.ID)
	if !ok {
		t.Fatalf("expected entity to be found")
	}
	if got.Name != "rust" {
		t.Fatalf("expected name %q, got %q", "rust", got.Name)
	}
}

func TestLTMFindEntitiesByType(t *testing.T) {
	ltm := NewLongTermMemory(0, 0)
	a := NewEntity("concept", "rust", nil, nil)
	b := NewEntity("concept", "go", nil, nil)
	c := NewEntity("person", "ada", nil, nil)
	for _, e := range []Entity{a, b, c} {
		if err := ltm.AddEntity(e); err != nil {
			t.Fatalf("add entity: %v", err)
		}
	}

	concepts := ltm.FindEntitiesByType("concept")
	if len(concepts) != 2 {
		t.Fatalf("expected 2 concepts, got %d", len(concepts))
	}
}

func TestLTMTraverseBFS(t *testing.T) {
	ltm := NewLongTermMemory(0, 0)
	a := NewEntity("concept", "a", nil, nil)
	b := NewEntity("concept", "b", nil, nil)
	c := NewEntity("concept", "c", nil, nil)
	for _, e := range []Entity{a, b, c} {
		if err := ltm.AddEntity(e); err != nil {
			t.Fatalf("add entity: %v", err)
		}
	}
	if err := ltm.AddLink(LTMLink{Source: a.ID, Target: b.ID, Relation: "related_to", Weight: 1.0}); err != nil {
		t.Fatalf("add link a->b: %v", err)
	}
	if err := ltm.AddLink(LTMLink{Source: b.ID, Target: c.ID, Relation: "related_to", Weight: 1.0}); err != nil {
		t.Fatalf("add link b->c: %v", err)
	}
	// A cycle back to a must not cause Traverse to loop forever.
	if err := ltm.AddLink(LTMLink{Source: c.ID, Target: a.ID, Relation: "related_to", Weight: 1.0}); err != nil {
		t.Fatalf("add link c->a: %v", err)
	}

	results := ltm.Traverse(a.ID, 10)
	if len(results) != 2 {
		t.Fatalf("expected 2 reachable entities (b, c), got %d", len(results))
	}
	depths := map[EntityId]int{}
	for _, r := range results {
		depths[r.Entity.ID] = r.Depth
	}
	if depths[b.ID] != 1 {
		t.Fatalf("expected b at depth 1, got %d", depths[b.ID])
	}
	if depths[c.ID] != 2 {
		t.Fatalf("expected c at depth 2, got %d", depths[c.ID])
	}
}

func TestLTMSemanticSearchRanksByCosine(t *testing.T) {
	ltm := NewLongTermMemory(0, 0)
	near := NewEntity("concept", "near", nil, []float32{1, 0, 0})
	far := NewEntity("concept", "far", nil, []float32{0, 1, 0})
	if err := ltm.AddEntity(near); err != nil {
		t.Fatalf("add near: %v", err)
	}
	if err := ltm.AddEntity(far); err != nil {
		t.Fatalf("add far: %v", err)
	}

	top := ltm.SemanticSearch([]float32{1, 0, 0}, 1)
	if len(top) != 1 || top[0].Name != "near" {
		t.Fatalf("expected top result %q, got %+v", "near", top)
	}
}

func TestLTMForgetHidesEntity(t *testing.T) {
	ltm := NewLongTermMemory(0, 0)
	e := NewEntity("concept", "ephemeral", nil, nil)
	if err := ltm.AddEntity(e); err != nil {
		t.Fatalf("add entity: %v", err)
	}
	ltm.Forget(e.ID)

	if _, ok := ltm.GetEntity(e.ID); ok {
		t.Fatalf("expected forgotten entity to be hidden")
	}
	if found := ltm.FindEntitiesByType("concept"); len(found) != 0 {
		t.Fatalf("expected forgotten entity excluded from type index lookups, got %d", len(found))
	}
}

func TestLTMAddEntityCapacity(t *testing.T) {
	ltm := NewLongTermMemory(1, 0)
	a := NewEntity("concept", "a", nil, nil)
	b := NewEntity("concept", "b", nil, nil)
	if err := ltm.AddEntity(a); err != nil {
		t.Fatalf("add a: %v", err)
	}
	if err := ltm.AddEntity(b); err == nil {
		t.Fatalf("expected capacity error adding beyond max_entities")
	}
	// Re-adding the same id (an update) must still succeed at capacity.
	if err := ltm.AddEntity(a); err != nil {
		t.Fatalf("expected update of existing entity to succeed at capacity: %v", err)
	}
}
