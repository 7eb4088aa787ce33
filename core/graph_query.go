// core/graph_query.go
package core

// TriplePattern wildcard matching and the chainable query builder
// (SPEC_FULL §4.2). Grounded on
// _examples/original_source/crates/aingle_graph/src/query.rs's
// TriplePattern builder and selectivity-driven planner, translated from
// Rust's Option<T> wildcards into Go pointer/zero-value wildcards.

// TriplePattern is a wildcard query over (subject, predicate, object); a nil
// component matches anything.
type TriplePattern struct {
	Subject   *NodeId
	Predicate *Predicate
	Object    *Value
}

// Matches reports whether t satisfies every bound component of p.
func (p TriplePattern) Matches(t Triple) bool {
	if p.Subject != nil && *p.Subject != t.Subject {
		return false
	}
	if p.Predicate != nil && *p.Predicate != t.Predicate {
		return false
	}
	if p.Object != nil && string(p.Object.SortKey()) != string(t.Object.SortKey()) {
		return false
	}
	return true
}

// Find returns all triples matching pattern, picking the most selective
// bound index first (fewest candidate ids) before filtering the remaining
// components, per SPEC_FULL §4.2's planner requirement. Never errors on an
// empty result.
func (g *GraphStore) Find(pattern TriplePattern) []Triple {
	g.mu.RLock()
	defer g.mu.RUnlock()

	candidates, haveCandidates := g.selectCandidates(pattern)
	if !haveCandidates {
		out := make([]Triple, 0, len(g.triples))
		for _, t := range g.triples {
			if pattern.Matches(t) {
				out = append(out, t)
			}
		}
		return out
	}

	out := make([]Triple, 0, len(candidates))
	for id := range candidates {
		t := g.triples[id]
		if pattern.Matches(t) {
			out = append(out, t)
		}
	}
	return out
}

// selectCandidates picks the smallest bound-index candidate set among the
// pattern's bound components, implementing the "most selective bound
// component first" planner rule.
func (g *GraphStore) selectCandidates(pattern TriplePattern) (map[TripleId]struct{}, bool) {
	var best map[TripleId]struct{}
	consider := func(set map[TripleId]struct{}) {
		if best == nil || len(set) < len(best) {
			best = set
		}
	}
	any := false
	if pattern.Subject != nil {
		consider(g.bySubject[*pattern.Subject])
		any = true
	}
	if pattern.Predicate != nil {
		consider(g.byPredicate[*pattern.Predicate])
		any = true
	}
	if pattern.Object != nil {
		consider(g.byObject[objectIndexKey(*pattern.Object)])
		any = true
	}
	return best, any
}

// QueryResult is the output of QueryBuilder.Execute.
type QueryResult struct {
	Triples    []Triple
	TotalCount int
	HasMore    bool
}

// QueryBuilder is the chainable subject/predicate/object/limit/offset query
// surface (SPEC_FULL §4.2).
type QueryBuilder struct {
	store   *GraphStore
	pattern TriplePattern
	limit   int
	offset  int
}

// Query starts a new chainable query against g.
func (g *GraphStore) Query() *QueryBuilder {
	return &QueryBuilder{store: g}
}

func (q *QueryBuilder) Subject(s NodeId) *QueryBuilder {
	q.pattern.Subject = &s
	return q
}

func (q *QueryBuilder) Predicate(p Predicate) *QueryBuilder {
	q.pattern.Predicate = &p
	return q
}

func (q *QueryBuilder) Object(v Value) *QueryBuilder {
	q.pattern.Object = &v
	return q
}

func (q *QueryBuilder) Limit(n int) *QueryBuilder {
	q.limit = n
	return q
}

func (q *QueryBuilder) Offset(k int) *QueryBuilder {
	q.offset = k
	return q
}

// Execute runs the built query, returning total_count pre-limit and
// has_more = total_count > offset+limit; has_more is false when no limit is
// set.
func (q *QueryBuilder) Execute() QueryResult {
	matched := sortTriples(q.store.Find(q.pattern))
	total := len(matched)

	start := q.offset
	if start > total {
		start = total
	}
	end := total
	if q.limit > 0 && start+q.limit < end {
		end = start + q.limit
	}

	return QueryResult{
		Triples:    matched[start:end],
		TotalCount: total,
		HasMore:    total > q.offset+q.limit && q.limit > 0,
	}
}
