package core

import "testing"

func TestGraphSetSemantics(t *testing.T) {
	g := NewGraphStore()
	tr := Triple{Subject: NamedNode("A"), Predicate: "knows", Object: NodeValue(NamedNode("B"))}

	g.Insert(tr)
	g.Insert(tr)

	got := g.GetSubject(NamedNode("A"))
	if len(got) != 1 {
		t.Fatalf("expected exactly one triple after duplicate insert, got %d", len(got))
	}
}

func TestGraphRemove(t *testing.T) {
	g := NewGraphStore()
	tr := Triple{Subject: NamedNode("A"), Predicate: "knows", Object: NodeValue(NamedNode("B"))}
	g.Insert(tr)

	if !g.Remove(tr) {
		t.Fatalf("expected Remove to report true")
	}
	if g.Remove(tr) {
		t.Fatalf("expected second Remove to report false")
	}
	if len(g.GetSubject(NamedNode("A"))) != 0 {
		t.Fatalf("expected no triples after remove")
	}
}

func TestPatternMatching(t *testing.T) {
	g := NewGraphStore()
	triples := []Triple{
		{Subject: NamedNode("A"), Predicate: "has_type", Object: StringValue("user")},
		{Subject: NamedNode("B"), Predicate: "has_type", Object: StringValue("admin")},
		{Subject: NamedNode("C"), Predicate: "knows", Object: NodeValue(NamedNode("A"))},
	}
	for _, tr := range triples {
		g.Insert(tr)
	}

	pred := Predicate("has_type")
	pattern := TriplePattern{Predicate: &pred}
	found := g.Find(pattern)

	for _, tr := range triples {
		want := pattern.Matches(tr)
		var in bool
		for _, f := range found {
			if f == tr {
				in = true
				break
			}
		}
		if want != in {
			t.Fatalf("pattern.Matches(%v)=%v but membership in find()=%v", tr, want, in)
		}
	}
}

func TestQueryBuilderLimitOffset(t *testing.T) {
	g := NewGraphStore()
	pred := Predicate("has_type")
	for i := 0; i < 20; i++ {
		g.Insert(Triple{Subject: NamedNode(string(rune('a' + i))), Predicate: pred, Object: StringValue("user")})
	}

	res := g.Query().Predicate(pred).Limit(10).Offset(5).Execute()
	if res.TotalCount != 20 {
		t.Fatalf("expected total_count=20, got %d", res.TotalCount)
	}
	if len(res.Triples) != 10 {
		t.Fatalf("expected 10 triples, got %d", len(res.Triples))
	}
	if !res.HasMore {
		t.Fatalf("expected has_more=true")
	}
}

func TestGraphTraversal(t *testing.T) {
	g := NewGraphStore()
	knows := Predicate("knows")
	g.Insert(Triple{Subject: NamedNode("A"), Predicate: knows, Object: NodeValue(NamedNode("B"))})
	g.Insert(Triple{Subject: NamedNode("B"), Predicate: knows, Object: NodeValue(NamedNode("C"))})

	reached := g.Traverse(NamedNode("A"), []Predicate{knows}, 2)
	if len(reached) != 2 {
		t.Fatalf("expected 2 reachable nodes, got %d: %v", len(reached), reached)
	}
	seen := map[NodeId]bool{}
	for _, n := range reached {
		seen[n] = true
	}
	if !seen[NamedNode("B")] || !seen[NamedNode("C")] {
		t.Fatalf("expected B and C reachable, got %v", reached)
	}
}

func TestTraversalTerminatesOnCycle(t *testing.T) {
	g := NewGraphStore()
	knows := Predicate("knows")
	g.Insert(Triple{Subject: NamedNode("A"), Predicate: knows, Object: NodeValue(NamedNode("B"))})
	g.Insert(Triple{Subject: NamedNode("B"), Predicate: knows, Object: NodeValue(NamedNode("A"))})

	reached := g.Traverse(NamedNode("A"), []Predicate{knows}, 50)
	if len(reached) != 1 {
		t.Fatalf("expected exactly one reachable node in a 2-cycle, got %d: %v", len(reached), reached)
	}
}

func TestValueSortKeyOrderingStable(t *testing.T) {
	a := IntegerValue(1)
	b := IntegerValue(2)
	if string(a.SortKey()) >= string(b.SortKey()) {
		t.Fatalf("expected SortKey(1) < SortKey(2)")
	}
}
