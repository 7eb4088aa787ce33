// core/graph.go
package core

// Semantic graph store: an in-memory triple store with three hash indices
// (SPEC_FULL §4.2). No teacher file covers this; grounded on
// _examples/original_source/crates/aingle_graph/src/value.rs for the Value
// sum type and its sort_key byte-tag scheme, translated from a Rust enum
// into a Go tagged struct. Canonical-encoding hashing uses xxhash (teacher's
// indirect dependency via libp2p/badger, promoted to direct use here) to
// intern each Triple under one TripleId, mirroring value.rs's reliance on a
// stable byte-ordering for deterministic identity.

import (
	"encoding/binary"
	"math"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// NodeId is either a named identifier or an anonymous blank node.
type NodeId struct {
	Blank bool
	Name  string
}

// NamedNode builds a named NodeId.
func NamedNode(name string) NodeId { return NodeId{Name: name} }

// BlankNode builds an anonymous NodeId distinguished by an opaque label
// (typically a generated token; equality is by label like any other NodeId).
func BlankNode(label string) NodeId { return NodeId{Blank: true, Name: label} }

// Predicate is a named identifier relating a subject to an object.
type Predicate string

// valueKind tags Value's active variant.
type valueKind byte

const (
	kindNode valueKind = iota
	kindString
	kindInteger
	kindFloat
	kindBoolean
	kindDateTime
	kindTypedLiteral
	kindLangString
	kindBytes
	kindJSON
	kindNull
)

// Value is the sum type {Node, String, Integer, Float, Boolean, DateTime,
// TypedLiteral, LangString, Bytes, Json, Null} from SPEC_FULL §3.3. Exactly
// the field(s) relevant to Kind are meaningful; constructors below are the
// supported way to build one.
type Value struct {
	kind     valueKind
	node     NodeId
	str      string
	integer  int64
	float    float64
	boolean  bool
	datatype string // TypedLiteral's datatype, or LangString's lang tag
	bytes    string // Bytes payload, held as a string so Value stays comparable
	json     string // pre-serialized JSON text; this core does not interpret it
}

func NodeValue(n NodeId) Value           { return Value{kind: kindNode, node: n} }
func StringValue(s string) Value         { return Value{kind: kindString, str: s} }
func IntegerValue(i int64) Value         { return Value{kind: kindInteger, integer: i} }
func FloatValue(f float64) Value         { return Value{kind: kindFloat, float: f} }
func BooleanValue(b bool) Value          { return Value{kind: kindBoolean, boolean: b} }
func DateTimeValue(s string) Value       { return Value{kind: kindDateTime, str: s} }
func BytesValue(b []byte) Value          { return Value{kind: kindBytes, bytes: string(b)} }
func JSONValue(serialized string) Value  { return Value{kind: kindJSON, json: serialized} }
func NullValue() Value                   { return Value{kind: kindNull} }
func TypedLiteralValue(value, datatype string) Value {
	return Value{kind: kindTypedLiteral, str: value, datatype: datatype}
}
func LangStringValue(value, lang string) Value {
	return Value{kind: kindLangString, str: value, datatype: lang}
}

// SortKey produces a total ordering: a type-tag byte followed by a
// canonical per-variant encoding, per value.rs's sort_key scheme. Two
// Values compare equal (via Go's == on Value) iff their SortKeys are equal,
// since Value embeds no incomparable field participating in equality beyond
// what SortKey already captures.
func (v Value) SortKey() []byte {
	buf := []byte{byte(v.kind)}
	switch v.kind {
	case kindNode:
		if v.node.Blank {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
		buf = append(buf, v.node.Name...)
	case kindString, kindDateTime:
		buf = append(buf, v.str...)
	case kindInteger:
		var be [8]byte
		binary.BigEndian.PutUint64(be[:], uint64(v.integer)^(1<<63)) // flip sign bit for correct ordering
		buf = append(buf, be[:]...)
	case kindFloat:
		bits := math.Float64bits(v.float)
		if v.float < 0 {
			bits = ^bits
		} else {
			bits |= 1 << 63
		}
		var be [8]byte
		binary.BigEndian.PutUint64(be[:], bits)
		buf = append(buf, be[:]...)
	case kindBoolean:
		if v.boolean {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	case kindTypedLiteral, kindLangString:
		buf = append(buf, byte(len(v.str)))
		buf = append(buf, v.str...)
		buf = append(buf, v.datatype...)
	case kindBytes:
		buf = append(buf, v.bytes...)
	case kindJSON:
		buf = append(buf, v.json...)
	case kindNull:
		// tag byte alone is the full encoding
	}
	return buf
}

// Triple is a set-valued (subject, predicate, object) fact.
type Triple struct {
	Subject   NodeId
	Predicate Predicate
	Object    Value
}

// TripleId is the canonical interning id for a Triple, derived from its
// SortKey-based canonical bytes via xxhash (64-bit, non-cryptographic —
// collisions are handled by storing the full Triple alongside its id).
type TripleId uint64

func tripleID(t Triple) TripleId {
	h := xxhash.New()
	tag := byte(0)
	if t.Subject.Blank {
		tag = 1
	}
	_, _ = h.Write([]byte{tag})
	_, _ = h.Write([]byte(t.Subject.Name))
	_, _ = h.Write([]byte(t.Predicate))
	_, _ = h.Write(t.Object.SortKey())
	return TripleId(h.Sum64())
}

func objectIndexKey(v Value) string { return string(v.SortKey()) }

// GraphStore exclusively owns its triples; every query returns copies
// (SPEC_FULL §3.3).
type GraphStore struct {
	mu sync.RWMutex

	triples map[TripleId]Triple

	bySubject   map[NodeId]map[TripleId]struct{}
	byPredicate map[Predicate]map[TripleId]struct{}
	byObject    map[string]map[TripleId]struct{}
}

// NewGraphStore returns an empty GraphStore.
func NewGraphStore() *GraphStore {
	return &GraphStore{
		triples:     make(map[TripleId]Triple),
		bySubject:   make(map[NodeId]map[TripleId]struct{}),
		byPredicate: make(map[Predicate]map[TripleId]struct{}),
		byObject:    make(map[string]map[TripleId]struct{}),
	}
}

// Insert adds t; duplicates are no-ops (set semantics).
func (g *GraphStore) Insert(t Triple) {
	id := tripleID(t)

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.triples[id]; exists {
		return
	}
	g.triples[id] = t
	indexAdd(g.bySubject, t.Subject, id)
	indexAdd(g.byPredicate, t.Predicate, id)
	indexAdd(g.byObject, objectIndexKey(t.Object), id)
}

// Remove deletes t if present, returning whether it was removed.
func (g *GraphStore) Remove(t Triple) bool {
	id := tripleID(t)

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.triples[id]; !exists {
		return false
	}
	delete(g.triples, id)
	indexRemove(g.bySubject, t.Subject, id)
	indexRemove(g.byPredicate, t.Predicate, id)
	indexRemove(g.byObject, objectIndexKey(t.Object), id)
	return true
}

func indexAdd[K comparable](idx map[K]map[TripleId]struct{}, key K, id TripleId) {
	set, ok := idx[key]
	if !ok {
		set = make(map[TripleId]struct{})
		idx[key] = set
	}
	set[id] = struct{}{}
}

func indexRemove[K comparable](idx map[K]map[TripleId]struct{}, key K, id TripleId) {
	set, ok := idx[key]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(idx, key)
	}
}

// GetSubject returns all triples with the given subject.
func (g *GraphStore) GetSubject(s NodeId) []Triple {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.collect(g.bySubject[s])
}

// GetPredicate returns all triples with the given predicate.
func (g *GraphStore) GetPredicate(p Predicate) []Triple {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.collect(g.byPredicate[p])
}

// GetObject returns all triples with the given object.
func (g *GraphStore) GetObject(v Value) []Triple {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.collect(g.byObject[objectIndexKey(v)])
}

func (g *GraphStore) collect(ids map[TripleId]struct{}) []Triple {
	out := make([]Triple, 0, len(ids))
	for id := range ids {
		out = append(out, g.triples[id])
	}
	return out
}

// Describe returns every triple touching subject as a subject, predicate, or
// object (SPEC_FULL §4 supplemented feature, composed from existing
// indices — not a new index).
func (g *GraphStore) Describe(subject NodeId) []Triple {
	g.mu.RLock()
	defer g.mu.RUnlock()

	seen := make(map[TripleId]struct{})
	var out []Triple
	for id := range g.bySubject[subject] {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, g.triples[id])
		}
	}
	if !subject.Blank {
		for id := range g.byPredicate[Predicate(subject.Name)] {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				out = append(out, g.triples[id])
			}
		}
	}
	asObject := objectIndexKey(NodeValue(subject))
	for id := range g.byObject[asObject] {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, g.triples[id])
		}
	}
	return out
}

// Traverse performs a breadth-first walk from start following the listed
// predicates (object must be a Node); returns reachable nodes in visit
// order. Terminates in bounded time via the visited set and depth cap
// (SPEC_FULL §4.2, §8 "Traversal termination").
func (g *GraphStore) Traverse(start NodeId, predicates []Predicate, maxDepth int) []NodeId {
	if maxDepth <= 0 {
		maxDepth = 10
	}
	allowed := make(map[Predicate]struct{}, len(predicates))
	for _, p := range predicates {
		allowed[p] = struct{}{}
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	visited := map[NodeId]struct{}{start: {}}
	var out []NodeId
	frontier := []NodeId{start}

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []NodeId
		for _, node := range frontier {
			for id := range g.bySubject[node] {
				t := g.triples[id]
				if len(allowed) > 0 {
					if _, ok := allowed[t.Predicate]; !ok {
						continue
					}
				}
				if t.Object.kind != kindNode {
					continue
				}
				target := t.Object.node
				if _, seen := visited[target]; seen {
					continue
				}
				visited[target] = struct{}{}
				out = append(out, target)
				next = append(next, target)
			}
		}
		frontier = next
	}
	return out
}

// sortTriples orders a triple slice deterministically for tests and for any
// caller wanting stable iteration order; GraphStore itself makes no
// ordering guarantee on map-backed lookups before this is applied.
func sortTriples(ts []Triple) []Triple {
	sort.Slice(ts, func(i, j int) bool {
		if ts[i].Subject != ts[j].Subject {
			return ts[i].Subject.Name < ts[j].Subject.Name
		}
		if ts[i].Predicate != ts[j].Predicate {
			return ts[i].Predicate < ts[j].Predicate
		}
		return string(ts[i].Object.SortKey()) < string(ts[j].Object.SortKey())
	})
	return ts
}
