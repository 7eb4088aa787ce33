// core/storage_codec.go
package core

// Canonical on-disk encodings for Action/Entry/Link, shared by the B-tree
// and LSM backends (the memory backend keeps Go values directly). Built on
// pkg/codec's versioned length-prefixed scheme so persisted bytes are stable
// across backend swaps.

import (
	"agentmesh/pkg/codec"
	"agentmesh/pkg/primitives"
)

func encodeAction(a Action) []byte {
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
	enc.Field(a.Signature.Bytes())
	return enc.Bytes()
}

func decodeAction(b []byte) (Action, error) {
	d, err := codec.NewDecoder(b)
	if err != nil {
		return Action{}, err
	}
	var a Action
	if a.ActionType, err = d.String(); err != nil {
		return Action{}, err
	}
	authorBytes, err := d.Field()
	if err != nil {
		return Action{}, err
	}
	var author primitives.AgentKey
	copy(author[:], authorBytes)
	a.Author = author

	ts, err := d.Uvarint()
	if err != nil {
		return Action{}, err
	}
	a.Timestamp = primitives.Timestamp(ts)

	seq, err := d.Uvarint()
	if err != nil {
		return Action{}, err
	}
	a.Seq = uint32(seq)

	hasPrev, err := d.Byte()
	if err != nil {
		return Action{}, err
	}
	if hasPrev == 1 {
		prevBytes, err := d.Field()
		if err != nil {
			return Action{}, err
		}
		h, err := primitives.HashFromBytes(prevBytes)
		if err != nil {
			return Action{}, err
		}
		a.PrevAction = &h
	}

	hasEntry, err := d.Byte()
	if err != nil {
		return Action{}, err
	}
	if hasEntry == 1 {
		entryBytes, err := d.Field()
		if err != nil {
			return Action{}, err
		}
		h, err := primitives.HashFromBytes(entryBytes)
		if err != nil {
			return Action{}, err
		}
		a.EntryHash = &h
	}

	sigBytes, err := d.Field()
	if err != nil {
		return Action{}, err
	}
	var sig primitives.Signature
	copy(sig[:], sigBytes)
	a.Signature = sig

	return a, nil
}

func encodeEntry(e Entry) []byte {
	return codec.NewEncoder().String(e.EntryType).Field(e.Content).Bytes()
}

func decodeEntry(b []byte) (Entry, error) {
	d, err := codec.NewDecoder(b)
	if err != nil {
		return Entry{}, err
	}
	entryType, err := d.String()
	if err != nil {
		return Entry{}, err
	}
	content, err := d.Field()
	if err != nil {
		return Entry{}, err
	}
	return Entry{EntryType: entryType, Content: content}, nil
}

func encodeLink(l Link) []byte {
	tomb := byte(0)
	if l.tombstone {
		tomb = 1
	}
	return codec.NewEncoder().
		Uvarint(uint64(l.ID)).
		Field(l.Base.Bytes()).
		Field(l.Target.Bytes()).
		Byte(l.LinkType).
		Field(l.Tag).
		Uvarint(uint64(l.Timestamp)).
		Byte(tomb).
		Bytes()
}

func decodeLink(b []byte) (Link, error) {
	d, err := codec.NewDecoder(b)
	if err != nil {
		return Link{}, err
	}
	id, err := d.Uvarint()
	if err != nil {
		return Link{}, err
	}
	baseBytes, err := d.Field()
	if err != nil {
		return Link{}, err
	}
	base, err := primitives.HashFromBytes(baseBytes)
	if err != nil {
		return Link{}, err
	}
	targetBytes, err := d.Field()
	if err != nil {
		return Link{}, err
	}
	target, err := primitives.HashFromBytes(targetBytes)
	if err != nil {
		return Link{}, err
	}
	linkType, err := d.Byte()
	if err != nil {
		return Link{}, err
	}
	tag, err := d.Field()
	if err != nil {
		return Link{}, err
	}
	ts, err := d.Uvarint()
	if err != nil {
		return Link{}, err
	}
	tomb, err := d.Byte()
	if err != nil {
		return Link{}, err
	}
	return Link{
		ID:        int64(id),
		Base:      base,
		Target:    target,
		LinkType:  linkType,
		Tag:       tag,
		Timestamp: primitives.Timestamp(ts),
		tombstone: tomb == 1,
	}, nil
}
