// core/storage_memory.go
package core

// In-ephemeral storage backend: maps guarded by a mutex, mirroring the
// map+mutex shape of the teacher's diskLRU (core/storage.go, pre-transform)
// generalized from "cache in front of a gateway" to "the whole backend".
// Used for tests and the config.BackendMemory deployment mode.

import (
	"encoding/binary"
	"sort"
	"sync"

	"agentmesh/pkg/primitives"
)

type memoryBackend struct {
	mu sync.Mutex

	actions map[primitives.Hash]Action
	entries map[primitives.Hash]Entry
	links   map[primitives.Hash]map[int64]Link
	meta    map[string]string

	latestSeq  uint32
	nextLinkID int64
}

// NewMemoryBackend returns an in-process Backend with no persistence.
func NewMemoryBackend() Backend {
	return &memoryBackend{
		actions: make(map[primitives.Hash]Action),
		entries: make(map[primitives.Hash]Entry),
		links:   make(map[primitives.Hash]map[int64]Link),
		meta:    make(map[string]string),
	}
}

func (m *memoryBackend) PutAction(a Action) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions[a.Hash()] = a
	return nil
}

func (m *memoryBackend) GetAction(h primitives.Hash) (Action, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.actions[h]
	return a, ok, nil
}

func (m *memoryBackend) PutEntry(e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.Hash()] = e
	return nil
}

func (m *memoryBackend) GetEntry(h primitives.Hash) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[h]
	return e, ok, nil
}

func (m *memoryBackend) GetLatestSeq() (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latestSeq, nil
}

func (m *memoryBackend) SetLatestSeq(seq uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if seq > m.latestSeq {
		m.latestSeq = seq
	}
	return nil
}

func (m *memoryBackend) RecordsBySeqRange(from, to uint32, limit int) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	matched := make([]Action, 0)
	for _, a := range m.actions {
		if a.Seq >= from && a.Seq <= to {
			matched = append(matched, a)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Seq < matched[j].Seq })
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]Record, 0, len(matched))
	for _, a := range matched {
		rec := Record{Action: a}
		if a.EntryHash != nil {
			if entry, ok := m.entries[*a.EntryHash]; ok {
				rec.Entry = &entry
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

func (m *memoryBackend) NextLinkID() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextLinkID++
	return m.nextLinkID, nil
}

func (m *memoryBackend) PutLink(l Link) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.links[l.Base] == nil {
		m.links[l.Base] = make(map[int64]Link)
	}
	m.links[l.Base][l.ID] = l
	return nil
}

func (m *memoryBackend) GetLink(base primitives.Hash, id int64) (Link, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[base][id]
	return l, ok, nil
}

func (m *memoryBackend) GetLinks(base primitives.Hash, linkType *uint8) ([]Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byID := m.links[base]
	ids := make([]int64, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]Link, 0, len(ids))
	for _, id := range ids {
		l := byID[id]
		if l.tombstone {
			continue
		}
		if linkType != nil && l.LinkType != *linkType {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (m *memoryBackend) TombstoneLink(id int64, base primitives.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if byID, ok := m.links[base]; ok {
		if l, ok := byID[id]; ok {
			l.tombstone = true
			byID[id] = l
		}
	}
	return nil
}

func (m *memoryBackend) SetMetadata(k, v string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meta[k] = v
	return nil
}

func (m *memoryBackend) GetMetadata(k string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.meta[k]
	return v, ok, nil
}

func (m *memoryBackend) Stats() (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var approxBytes int64
	for _, e := range m.entries {
		approxBytes += int64(len(e.Content))
	}
	var linkCount int64
	for _, byID := range m.links {
		linkCount += int64(len(byID))
	}
	return Stats{
		ActionCount: int64(len(m.actions)),
		EntryCount:  int64(len(m.entries)),
		LinkCount:   linkCount,
		ApproxBytes: approxBytes,
	}, nil
}

func (m *memoryBackend) Vacuum() error { return nil }
func (m *memoryBackend) Close() error  { return nil }

// linkKey is unused by the memory backend (plain maps suffice) but is kept
// available for backends that need the be64-suffixed byte layout the spec
// describes for prefix iteration (see storage_btree.go, storage_lsm.go).
func linkKey(base primitives.Hash, id int64) []byte {
	key := make([]byte, len(base), len(base)+8)
	copy(key, base[:])
	return binary.BigEndian.AppendUint64(key, uint64(id))
}
