// core/storage.go
package core

// Storage subsystem — content-addressed persistence of records and links
// with secondary indices, behind one backend-agnostic contract. Three
// backends share this file's types and validation logic; only byte
// layout differs (see storage_memory.go, storage_btree.go, storage_lsm.go).

import (
	"sync"
	"sync/atomic"

	"agentmesh/pkg/codec"
	agmerrors "agentmesh/pkg/errors"
	"agentmesh/pkg/primitives"

	logrus "github.com/sirupsen/logrus"
)

// storageLogger defaults to discarding output, matching core/security.go's
// secLogger convention; callers that want visibility inject their own via
// NewEngine's logger parameter.
var storageLogger = logrus.New()

func init() {
	storageLogger.SetLevel(logrus.PanicLevel)
}

// Namespace names mirrored across every backend's column-family / key-prefix
// layout (SPEC_FULL §4.1, §6.1).
const (
	nsActions   = "actions"
	nsEntries   = "entries"
	nsLinks     = "links"
	nsMetadata  = "metadata"
	nsSequences = "sequences"
)

// Entry is an opaque content-typed byte blob, content-addressed by its hash.
type Entry struct {
	EntryType string
	Content   []byte
}

// Hash computes the Entry's canonical-encoding hash.
func (e Entry) Hash() primitives.Hash {
	enc := codec.NewEncoder().String(e.EntryType).Field(e.Content)
	return primitives.SumHash(enc.Bytes())
}

// Action is one signed node in a per-author append-only chain.
type Action struct {
	ActionType string
	Author     primitives.AgentKey
	Timestamp  primitives.Timestamp
	Seq        uint32
	PrevAction *primitives.Hash // nil iff Seq == 0
	EntryHash  *primitives.Hash // nil iff this action carries no entry
	Signature  primitives.Signature
}

// signingBytes is the canonical encoding signed by the author; it excludes
// the signature itself.
func (a Action) signingBytes() []byte {
	enc := codec.NewEncoder().
		String(a.ActionType).
		Field(a.Author.Bytes()).
		Uvarint(uint64(a.Timestamp)).
		Uvarint(uint64(a.Seq))
	if a.PrevAction != nil {
		enc.Byte(1).Field(a.PrevAction.Bytes())
	} else {
		enc.Byte(0)
	}
	if a.EntryHash != nil {
		enc.Byte(1).Field(a.EntryHash.Bytes())
	} else {
		enc.Byte(0)
	}
	return enc.Bytes()
}

// Hash computes the Action's canonical-encoding hash, including its signature
// so that two actions that differ only by signature never collide.
func (a Action) Hash() primitives.Hash {
	full := append(append([]byte{}, a.signingBytes()...), a.Signature.Bytes()...)
	return primitives.SumHash(full)
}

// Verify reports whether Signature validates under Author for this Action's
// signing bytes.
func (a Action) Verify() bool {
	return primitives.Verify(a.Author, a.signingBytes(), a.Signature)
}

// Record is the pair (action, optional entry) written atomically.
type Record struct {
	Action Action
	Entry  *Entry
}

// Link is a typed directed edge between two Hashes in the storage engine.
type Link struct {
	ID        int64
	Base      primitives.Hash
	Target    primitives.Hash
	LinkType  uint8
	Tag       []byte
	Timestamp primitives.Timestamp
	tombstone bool
}

// Stats reports approximate engine size, supplementing the spec's stats()
// contract the way the teacher's diskLRU reported cache occupancy.
type Stats struct {
	ActionCount int64
	EntryCount  int64
	LinkCount   int64
	ApproxBytes int64
}

// Backend is the single contract implemented identically by the memory,
// B-tree, and LSM backends (SPEC_FULL §4.1).
type Backend interface {
	PutAction(a Action) error
	GetAction(h primitives.Hash) (Action, bool, error)
	PutEntry(e Entry) error
	GetEntry(h primitives.Hash) (Entry, bool, error)
	GetLatestSeq() (uint32, error)
	SetLatestSeq(seq uint32) error
	RecordsBySeqRange(from, to uint32, limit int) ([]Record, error)
	NextLinkID() (int64, error)
	PutLink(l Link) error
	GetLink(base primitives.Hash, id int64) (Link, bool, error)
	GetLinks(base primitives.Hash, linkType *uint8) ([]Link, error)
	TombstoneLink(id int64, base primitives.Hash) error
	SetMetadata(k, v string) error
	GetMetadata(k string) (string, bool, error)
	Stats() (Stats, error)
	Vacuum() error
	Close() error
}

// Engine is the backend-agnostic storage contract (SPEC_FULL §4.1). It owns
// no lock of its own beyond what each action requires to keep get_latest_seq
// monotonic; backends are expected to be internally synchronized.
type Engine struct {
	mu         sync.Mutex // guards latest-seq read-modify-write across PutAction calls
	backend    Backend
	maxBytes   int64
	logger     *logrus.Logger
	writeCount int64
}

// NewEngine wires an Engine over the given Backend. maxBytes <= 0 means
// unbounded; check_limits then always reports true.
func NewEngine(backend Backend, maxBytes int64, logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = storageLogger
	}
	return &Engine{backend: backend, maxBytes: maxBytes, logger: logger}
}

// PutAction validates and persists a, updating the latest-seq index.
// Idempotent: re-inserting identical bytes is a no-op.
func (e *Engine) PutAction(a Action) (primitives.Hash, error) {
	if !a.Verify() {
		return primitives.Hash{}, agmerrors.New(agmerrors.KindInvalid, "storage.put_action", "signature verification failed")
	}
	h := a.Hash()

	e.mu.Lock()
	defer e.mu.Unlock()

	if existing, ok, err := e.backend.GetAction(h); err != nil {
		return primitives.Hash{}, agmerrors.Wrap(agmerrors.KindStorage, "storage.put_action", err)
	} else if ok {
		_ = existing
		return h, nil // idempotent re-insert
	}

	if err := e.backend.PutAction(a); err != nil {
		return primitives.Hash{}, agmerrors.Wrap(agmerrors.KindStorage, "storage.put_action", err)
	}
	latest, err := e.backend.GetLatestSeq()
	if err != nil {
		return primitives.Hash{}, agmerrors.Wrap(agmerrors.KindStorage, "storage.put_action", err)
	}
	if a.Seq > latest {
		if err := e.backend.SetLatestSeq(a.Seq); err != nil {
			return primitives.Hash{}, agmerrors.Wrap(agmerrors.KindStorage, "storage.put_action", err)
		}
	}
	atomic.AddInt64(&e.writeCount, 1)
	return h, nil
}

// PutEntry persists canonical entry bytes keyed by their Hash. Idempotent.
func (e *Engine) PutEntry(entry Entry) (primitives.Hash, error) {
	h := entry.Hash()
	if _, ok, err := e.backend.GetEntry(h); err != nil {
		return primitives.Hash{}, agmerrors.Wrap(agmerrors.KindStorage, "storage.put_entry", err)
	} else if ok {
		return h, nil
	}
	if err := e.backend.PutEntry(entry); err != nil {
		return primitives.Hash{}, agmerrors.Wrap(agmerrors.KindStorage, "storage.put_entry", err)
	}
	return h, nil
}

// PutRecord writes entry then action, so a reader never observes an action
// whose referenced entry is absent (Open Question (a): entry-first ordering,
// never reversed).
func (e *Engine) PutRecord(r Record) (primitives.Hash, error) {
	if (r.Entry != nil) != (r.Action.EntryHash != nil) {
		return primitives.Hash{}, agmerrors.New(agmerrors.KindInvalid, "storage.put_record", "entry presence must match action.entry_hash")
	}
	if r.Entry != nil {
		entryHash, err := e.PutEntry(*r.Entry)
		if err != nil {
			return primitives.Hash{}, err
		}
		if entryHash != *r.Action.EntryHash {
			return primitives.Hash{}, agmerrors.New(agmerrors.KindInvalid, "storage.put_record", "entry hash mismatch with action.entry_hash")
		}
	}
	return e.PutAction(r.Action)
}

// PutRecordsBatch applies PutRecord to each record, grouped for throughput.
// Visibility atomicity is per-record, same as a single PutRecord call.
func (e *Engine) PutRecordsBatch(rs []Record) ([]primitives.Hash, error) {
	out := make([]primitives.Hash, 0, len(rs))
	for _, r := range rs {
		h, err := e.PutRecord(r)
		if err != nil {
			return out, err
		}
		out = append(out, h)
	}
	return out, nil
}

func (e *Engine) GetAction(h primitives.Hash) (Action, bool, error) {
	a, ok, err := e.backend.GetAction(h)
	if err != nil {
		return Action{}, false, agmerrors.Wrap(agmerrors.KindStorage, "storage.get_action", err)
	}
	return a, ok, nil
}

func (e *Engine) GetEntry(h primitives.Hash) (Entry, bool, error) {
	entry, ok, err := e.backend.GetEntry(h)
	if err != nil {
		return Entry{}, false, agmerrors.Wrap(agmerrors.KindStorage, "storage.get_entry", err)
	}
	return entry, ok, nil
}

func (e *Engine) GetLatestSeq() (uint32, error) {
	seq, err := e.backend.GetLatestSeq()
	if err != nil {
		return 0, agmerrors.Wrap(agmerrors.KindStorage, "storage.get_latest_seq", err)
	}
	return seq, nil
}

// GetRecordsBySeqRange returns records ordered by seq ascending, for chain
// sync (SPEC_FULL §6.3).
func (e *Engine) GetRecordsBySeqRange(from, to uint32, limit int) ([]Record, error) {
	recs, err := e.backend.RecordsBySeqRange(from, to, limit)
	if err != nil {
		return nil, agmerrors.Wrap(agmerrors.KindStorage, "storage.get_records_by_seq_range", err)
	}
	return recs, nil
}

// AddLink allocates a new monotonically increasing LinkId and persists l.
func (e *Engine) AddLink(l Link) (int64, error) {
	id, err := e.backend.NextLinkID()
	if err != nil {
		return 0, agmerrors.Wrap(agmerrors.KindStorage, "storage.add_link", err)
	}
	l.ID = id
	if err := e.backend.PutLink(l); err != nil {
		return 0, agmerrors.Wrap(agmerrors.KindStorage, "storage.add_link", err)
	}
	return id, nil
}

// DeleteLink tombstones id; GetLinks filters tombstones.
func (e *Engine) DeleteLink(base primitives.Hash, id int64) error {
	if err := e.backend.TombstoneLink(id, base); err != nil {
		return agmerrors.Wrap(agmerrors.KindStorage, "storage.delete_link", err)
	}
	return nil
}

// GetLinks returns non-tombstoned links with the given base, optionally
// filtered by linkType.
func (e *Engine) GetLinks(base primitives.Hash, linkType *uint8) ([]Link, error) {
	links, err := e.backend.GetLinks(base, linkType)
	if err != nil {
		return nil, agmerrors.Wrap(agmerrors.KindStorage, "storage.get_links", err)
	}
	return links, nil
}

func (e *Engine) SetMetadata(k, v string) error {
	if err := e.backend.SetMetadata(k, v); err != nil {
		return agmerrors.Wrap(agmerrors.KindStorage, "storage.set_metadata", err)
	}
	return nil
}

func (e *Engine) GetMetadata(k string) (string, bool, error) {
	v, ok, err := e.backend.GetMetadata(k)
	if err != nil {
		return "", false, agmerrors.Wrap(agmerrors.KindStorage, "storage.get_metadata", err)
	}
	return v, ok, nil
}

// Stats returns counts and approximate byte size.
func (e *Engine) Stats() (Stats, error) {
	s, err := e.backend.Stats()
	if err != nil {
		return Stats{}, agmerrors.Wrap(agmerrors.KindStorage, "storage.stats", err)
	}
	return s, nil
}

// Vacuum runs backend-specific compaction, best-effort.
func (e *Engine) Vacuum() error {
	return e.backend.Vacuum()
}

// CheckLimits reports whether current size is within the configured maximum.
// The engine never refuses writes itself; callers decide what to do with a
// false result.
func (e *Engine) CheckLimits() (bool, error) {
	if e.maxBytes <= 0 {
		return true, nil
	}
	s, err := e.Stats()
	if err != nil {
		return false, err
	}
	return s.ApproxBytes <= e.maxBytes, nil
}

// Close releases backend resources.
func (e *Engine) Close() error {
	return e.backend.Close()
}
