// core/storage_btree.go
package core

// B-tree storage backend over go.etcd.io/bbolt, the equivalent-semantics
// counterpart to storage_lsm.go's badger backend (SPEC_FULL §4.1). Grounded
// on the ecosystem pack's bbolt usage (cuemby-warren manifest); bucket
// layout follows the five logical namespaces named in SPEC_FULL §6.1, one
// bbolt bucket per namespace.

import (
	"encoding/binary"
	"fmt"
	"sort"

	agmerrors "agentmesh/pkg/errors"
	"agentmesh/pkg/primitives"

	bolt "go.etcd.io/bbolt"
)

const (
	metaLatestSeqKey  = "latest_seq"
	metaNextLinkIDKey = "next_link_id"
)

type btreeBackend struct {
	db *bolt.DB
}

// NewBTreeBackend opens (creating if absent) a bbolt database at path with
// one bucket per namespace.
func NewBTreeBackend(path string) (Backend, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("storage_btree: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, ns := range []string{nsActions, nsEntries, nsLinks, nsMetadata, nsSequences} {
			if _, err := tx.CreateBucketIfNotExists([]byte(ns)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage_btree: init buckets: %w", err)
	}
	return &btreeBackend{db: db}, nil
}

func (b *btreeBackend) PutAction(a Action) error {
	enc := encodeAction(a)
	h := a.Hash()
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(nsActions)).Put(h[:], enc)
	})
}

func (b *btreeBackend) GetAction(h primitives.Hash) (Action, bool, error) {
	var a Action
	var found bool
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(nsActions)).Get(h[:])
		if v == nil {
			return nil
		}
		decoded, err := decodeAction(v)
		if err != nil {
			return agmerrors.Wrap(agmerrors.KindInvalid, "storage_btree.get_action", err)
		}
		a, found = decoded, true
		return nil
	})
	return a, found, err
}

func (b *btreeBackend) PutEntry(e Entry) error {
	h := e.Hash()
	enc := encodeEntry(e)
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(nsEntries)).Put(h[:], enc)
	})
}

func (b *btreeBackend) GetEntry(h primitives.Hash) (Entry, bool, error) {
	var e Entry
	var found bool
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(nsEntries)).Get(h[:])
		if v == nil {
			return nil
		}
		decoded, err := decodeEntry(v)
		if err != nil {
			return agmerrors.Wrap(agmerrors.KindInvalid, "storage_btree.get_entry", err)
		}
		e, found = decoded, true
		return nil
	})
	return e, found, err
}

func (b *btreeBackend) GetLatestSeq() (uint32, error) {
	var seq uint32
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(nsSequences)).Get([]byte(metaLatestSeqKey))
		if v != nil {
			seq = uint32(binary.BigEndian.Uint32(v))
		}
		return nil
	})
	return seq, err
}

func (b *btreeBackend) SetLatestSeq(seq uint32) error {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, seq)
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(nsSequences)).Put([]byte(metaLatestSeqKey), buf)
	})
}

func (b *btreeBackend) RecordsBySeqRange(from, to uint32, limit int) ([]Record, error) {
	var matched []Action
	err := b.db.View(func(tx *bolt.Tx) error {
		actions := tx.Bucket([]byte(nsActions))
		return actions.ForEach(func(_, v []byte) error {
			a, err := decodeAction(v)
			if err != nil {
				return nil // skip corrupt entries rather than aborting the scan
			}
			if a.Seq >= from && a.Seq <= to {
				matched = append(matched, a)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Seq < matched[j].Seq })
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]Record, 0, len(matched))
	for _, a := range matched {
		rec := Record{Action: a}
		if a.EntryHash != nil {
			entry, ok, err := b.GetEntry(*a.EntryHash)
			if err != nil {
				return nil, err
			}
			if ok {
				rec.Entry = &entry
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

func (b *btreeBackend) NextLinkID() (int64, error) {
	var id int64
	err := b.db.Update(func(tx *bolt.Tx) error {
		seqBucket := tx.Bucket([]byte(nsSequences))
		v := seqBucket.Get([]byte(metaNextLinkIDKey))
		if v != nil {
			id = int64(binary.BigEndian.Uint64(v))
		}
		id++
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(id))
		return seqBucket.Put([]byte(metaNextLinkIDKey), buf)
	})
	return id, err
}

func (b *btreeBackend) PutLink(l Link) error {
	key := linkKey(l.Base, l.ID)
	enc := encodeLink(l)
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(nsLinks)).Put(key, enc)
	})
}

func (b *btreeBackend) GetLink(base primitives.Hash, id int64) (Link, bool, error) {
	var l Link
	var found bool
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(nsLinks)).Get(linkKey(base, id))
		if v == nil {
			return nil
		}
		decoded, err := decodeLink(v)
		if err != nil {
			return err
		}
		l, found = decoded, true
		return nil
	})
	return l, found, err
}

func (b *btreeBackend) GetLinks(base primitives.Hash, linkType *uint8) ([]Link, error) {
	var out []Link
	prefix := base[:]
	err := b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(nsLinks)).Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			l, err := decodeLink(v)
			if err != nil {
				continue
			}
			if l.tombstone {
				continue
			}
			if linkType != nil && l.LinkType != *linkType {
				continue
			}
			out = append(out, l)
		}
		return nil
	})
	return out, err
}

func (b *btreeBackend) TombstoneLink(id int64, base primitives.Hash) error {
	key := linkKey(base, id)
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(nsLinks))
		v := bucket.Get(key)
		if v == nil {
			return nil
		}
		l, err := decodeLink(v)
		if err != nil {
			return err
		}
		l.tombstone = true
		return bucket.Put(key, encodeLink(l))
	})
}

func (b *btreeBackend) SetMetadata(k, v string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(nsMetadata)).Put([]byte(k), []byte(v))
	})
}

func (b *btreeBackend) GetMetadata(k string) (string, bool, error) {
	var v string
	var found bool
	err := b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(nsMetadata)).Get([]byte(k))
		if raw != nil {
			v, found = string(raw), true
		}
		return nil
	})
	return v, found, err
}

func (b *btreeBackend) Stats() (Stats, error) {
	var s Stats
	err := b.db.View(func(tx *bolt.Tx) error {
		s.ActionCount = int64(tx.Bucket([]byte(nsActions)).Stats().KeyN)
		s.EntryCount = int64(tx.Bucket([]byte(nsEntries)).Stats().KeyN)
		s.LinkCount = int64(tx.Bucket([]byte(nsLinks)).Stats().KeyN)
		s.ApproxBytes = int64(tx.Size())
		return nil
	})
	return s, err
}

func (b *btreeBackend) Vacuum() error {
	return nil // bbolt reclaims free pages automatically; no explicit compaction API
}

func (b *btreeBackend) Close() error { return b.db.Close() }

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}
