// core/memory_ltm.go
package core

// Long-term memory: a persistent knowledge graph of Entities and Links
// (SPEC_FULL §3.5, §4.4). Grounded on
// _examples/original_source/crates/titans_memory/src/ltm.rs for the
// tag/type index shape, BFS traversal, and semantic-search-by-cosine
// algorithm. In-memory by default (Open Question (c), see DESIGN.md); one
// sync.Mutex guards all state, matching SPEC_FULL §5.

import (
	"sort"
	"sync"
	"time"

	agmerrors "agentmesh/pkg/errors"
	"agentmesh/pkg/primitives"
)

// EntityId identifies an LTM node; derived from hash(type|name).
type EntityId = primitives.Hash

// Entity is one LTM node (SPEC_FULL §3.5).
type Entity struct {
	ID         EntityId
	Type       string
	Name       string
	Properties map[string]string
	Embedding  []float32
	Metadata   MemoryMetadata
	forgotten  bool
}

func computeEntityID(entityType, name string) EntityId {
	return primitives.SumHash([]byte(entityType + "|" + name))
}

// NewEntity builds an Entity with a freshly computed id.
func NewEntity(entityType, name string, properties map[string]string, embedding []float32) Entity {
	now := time.Now()
	return Entity{
		ID:         computeEntityID(entityType, name),
		Type:       entityType,
		Name:       name,
		Properties: properties,
		Embedding:  embedding,
		Metadata: MemoryMetadata{
			CreatedAt:    now,
			LastAccessed: now,
			Attention:    1.0,
		},
	}
}

// LTMLink is a typed, weighted directed edge between two Entities
// (SPEC_FULL §3.5 — "Link (LTM)").
type LTMLink struct {
	Source     EntityId
	Target     EntityId
	Relation   string
	Weight     float32
	Properties map[string]string
	CreatedAt  time.Time
}

// LongTermMemory is the persistent knowledge graph.
type LongTermMemory struct {
	mu sync.Mutex

	entities map[EntityId]*Entity
	linksOut map[EntityId][]LTMLink
	linksIn  map[EntityId][]LTMLink

	byTag  map[string]map[EntityId]struct{}
	byType map[string]map[EntityId]struct{}

	maxEntities int
	maxLinks    int
	linkCount   int
}

// NewLongTermMemory wires an LTM with the resource limits from
// SPEC_FULL §5 ("LTM: max_entities, max_links").
func NewLongTermMemory(maxEntities, maxLinks int) *LongTermMemory {
	return &LongTermMemory{
		entities:    make(map[EntityId]*Entity),
		linksOut:    make(map[EntityId][]LTMLink),
		linksIn:     make(map[EntityId][]LTMLink),
		byTag:       make(map[string]map[EntityId]struct{}),
		byType:      make(map[string]map[EntityId]struct{}),
		maxEntities: maxEntities,
		maxLinks:    maxLinks,
	}
}

// AddEntity inserts or replaces an entity, maintaining the type index (and
// the tag index, from the values of properties keyed "tag" or "tags").
func (l *LongTermMemory) AddEntity(e Entity) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.maxEntities > 0 && len(l.entities) >= l.maxEntities {
		if _, exists := l.entities[e.ID]; !exists {
			return agmerrors.New(agmerrors.KindCapacity, "ltm.add_entity", "max_entities reached")
		}
	}

	l.entities[e.ID] = &e
	ltmIndexAdd(l.byType, e.Type, e.ID)
	for tag := range entityTags(e) {
		ltmIndexAdd(l.byTag, tag, e.ID)
	}
	return nil
}

// ltmIndexAdd mirrors graph.go's indexAdd generic, specialized to
// EntityId-valued index sets (indexAdd's sets are fixed to TripleId, so the
// generic can't be shared directly).
func ltmIndexAdd(idx map[string]map[EntityId]struct{}, key string, id EntityId) {
	set, ok := idx[key]
	if !ok {
		set = make(map[EntityId]struct{})
		idx[key] = set
	}
	set[id] = struct{}{}
}

func entityTags(e Entity) map[string]struct{} {
	tags := make(map[string]struct{})
	for k, v := range e.Properties {
		if k == "tag" || k == "tags" {
			tags[v] = struct{}{}
		}
	}
	return tags
}

// AddLink adds a weighted relation between two entities.
func (l *LongTermMemory) AddLink(link LTMLink) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.maxLinks > 0 && l.linkCount >= l.maxLinks {
		return agmerrors.New(agmerrors.KindCapacity, "ltm.add_link", "max_links reached")
	}
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now()
	}
	l.linksOut[link.Source] = append(l.linksOut[link.Source], link)
	l.linksIn[link.Target] = append(l.linksIn[link.Target], link)
	l.linkCount++
	return nil
}

// GetEntity looks up an entity by id.
func (l *LongTermMemory) GetEntity(id EntityId) (Entity, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entities[id]
	if !ok || e.forgotten {
		return Entity{}, false
	}
	return *e, true
}

// GetLinksFrom returns every link whose source is id.
func (l *LongTermMemory) GetLinksFrom(id EntityId) []LTMLink {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]LTMLink(nil), l.linksOut[id]...)
}

// GetLinksTo returns every link whose target is id.
func (l *LongTermMemory) GetLinksTo(id EntityId) []LTMLink {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]LTMLink(nil), l.linksIn[id]...)
}

// FindEntitiesByType returns every non-forgotten entity of the given type.
func (l *LongTermMemory) FindEntitiesByType(entityType string) []Entity {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Entity
	for _, e := range l.entities {
		if e.Type == entityType && !e.forgotten {
			out = append(out, *e)
		}
	}
	return out
}

// FindRelated returns every entity linked to id, optionally filtered by
// relation.
func (l *LongTermMemory) FindRelated(id EntityId, relation *string) []Entity {
	l.mu.Lock()
	links := append([]LTMLink(nil), l.linksOut[id]...)
	l.mu.Unlock()

	var out []Entity
	for _, link := range links {
		if relation != nil && link.Relation != *relation {
			continue
		}
		if e, ok := l.GetEntity(link.Target); ok {
			out = append(out, e)
		}
	}
	return out
}

// TraverseResult pairs an entity with its BFS depth from the start node.
type TraverseResult struct {
	Entity Entity
	Depth  int
}

// Traverse performs a BFS from start up to maxDepth hops, with a visited
// set guaranteeing termination (SPEC_FULL §4.4, §8).
func (l *LongTermMemory) Traverse(start EntityId, maxDepth int) []TraverseResult {
	if maxDepth <= 0 {
		maxDepth = 10
	}
	visited := map[EntityId]struct{}{start: {}}
	var out []TraverseResult
	frontier := []EntityId{start}

	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		var next []EntityId
		for _, id := range frontier {
			for _, link := range l.GetLinksFrom(id) {
				if _, seen := visited[link.Target]; seen {
					continue
				}
				visited[link.Target] = struct{}{}
				if e, ok := l.GetEntity(link.Target); ok {
					out = append(out, TraverseResult{Entity: e, Depth: depth})
				}
				next = append(next, link.Target)
			}
		}
		frontier = next
	}
	return out
}

// SemanticSearch returns the top-k entities by cosine similarity of their
// embedding to queryEmbedding.
func (l *LongTermMemory) SemanticSearch(queryEmbedding []float32, k int) []Entity {
	l.mu.Lock()
	candidates := make([]Entity, 0, len(l.entities))
	for _, e := range l.entities {
		if !e.forgotten && len(e.Embedding) > 0 {
			candidates = append(candidates, *e)
		}
	}
	l.mu.Unlock()

	type scored struct {
		entity Entity
		score  float32
	}
	rs := make([]scored, len(candidates))
	for i, e := range candidates {
		rs[i] = scored{entity: e, score: cosineSimilarity(e.Embedding, queryEmbedding)}
	}
	sort.Slice(rs, func(i, j int) bool { return rs[i].score > rs[j].score })

	if k <= 0 || k > len(rs) {
		k = len(rs)
	}
	out := make([]Entity, k)
	for i := 0; i < k; i++ {
		out[i] = rs[i].entity
	}
	return out
}

// LTMQuery mirrors STMQuery's relevance-scoring shape, applied over the
// tag or type index as the candidate set (SPEC_FULL §4.4: "uses indices to
// pick candidate set (tag preferred, else type)").
type LTMQuery struct {
	Tag            string
	Type           string
	TextMatch      string
	QueryEmbedding []float32
	Limit          int
}

// Query picks a candidate set via the tag index (preferred) or the type
// index, then scores and filters analogously to STM.Query.
func (l *LongTermMemory) Query(q LTMQuery) []Entity {
	l.mu.Lock()
	var candidates []Entity
	switch {
	case q.Tag != "":
		for id := range l.byTag[q.Tag] {
			if e, ok := l.entities[id]; ok && !e.forgotten {
				candidates = append(candidates, *e)
			}
		}
	case q.Type != "":
		for id := range l.byType[q.Type] {
			if e, ok := l.entities[id]; ok && !e.forgotten {
				candidates = append(candidates, *e)
			}
		}
	default:
		for _, e := range l.entities {
			if !e.forgotten {
				candidates = append(candidates, *e)
			}
		}
	}
	l.mu.Unlock()

	type scored struct {
		entity Entity
		score  float32
	}
	rs := make([]scored, len(candidates))
	for i, e := range candidates {
		recency := recencyScore(e.Metadata.LastAccessed)
		textMatch := textMatchScore([]byte(e.Name), q.TextMatch)
		cosine := cosineSimilarity(e.Embedding, q.QueryEmbedding)
		score := 0.3*e.Metadata.Attention + 0.2*e.Metadata.Importance + 0.2*recency + 0.15*cosine + 0.15*textMatch
		rs[i] = scored{entity: e, score: score}
	}
	sort.Slice(rs, func(i, j int) bool { return rs[i].score > rs[j].score })

	limit := q.Limit
	if limit <= 0 || limit > len(rs) {
		limit = len(rs)
	}
	out := make([]Entity, limit)
	for i := 0; i < limit; i++ {
		out[i] = rs[i].entity
	}
	return out
}

// Forget tombstones an entity (SPEC_FULL §4 supplemented feature: symmetric
// with STM's Remove, since a persistent knowledge graph without any
// deletion path is not realistic in production).
func (l *LongTermMemory) Forget(id EntityId) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entities[id]; ok {
		e.forgotten = true
	}
}
