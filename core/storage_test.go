package core

import (
	"testing"

	agmerrors "agentmesh/pkg/errors"
	"agentmesh/pkg/primitives"

	"agentmesh/internal/testutil"
)

func signedAction(t *testing.T, kp primitives.KeyPair, seq uint32, prev *primitives.Hash, entryHash *primitives.Hash) Action {
	t.Helper()
	a := Action{
		ActionType: "create",
		Author:     kp.Public,
		Timestamp:  primitives.Now(),
		Seq:        seq,
		PrevAction: prev,
		EntryHash:  entryHash,
	}
	a.Signature = kp.Sign(a.signingBytes())
	return a
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(NewMemoryBackend(), 0, nil)
}

func TestStorageRoundtrip(t *testing.T) {
	eng := newTestEngine(t)
	kp, err := primitives.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}

	entry := Entry{EntryType: "greeting", Content: []byte("hello")}
	entryHash := entry.Hash()
	a := signedAction(t, kp, 0, nil, &entryHash)

	h, err := eng.PutRecord(Record{Action: a, Entry: &entry})
	if err != nil {
		t.Fatalf("put_record: %v", err)
	}

	got, ok, err := eng.GetAction(h)
	if err != nil || !ok {
		t.Fatalf("get_action: ok=%v err=%v", ok, err)
	}
	if got.Hash() != a.Hash() {
		t.Fatalf("action hash mismatch")
	}

	gotEntry, ok, err := eng.GetEntry(entryHash)
	if err != nil || !ok {
		t.Fatalf("get_entry: ok=%v err=%v", ok, err)
	}
	if string(gotEntry.Content) != "hello" {
		t.Fatalf("entry content mismatch: %q", gotEntry.Content)
	}
}

func TestStorageIdempotence(t *testing.T) {
	eng := newTestEngine(t)
	kp, _ := primitives.GenerateKeyPair()
	a := signedAction(t, kp, 0, nil, nil)

	h1, err := eng.PutAction(a)
	if err != nil {
		t.Fatalf("put_action #1: %v", err)
	}
	h2, err := eng.PutAction(a)
	if err != nil {
		t.Fatalf("put_action #2: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("expected identical hash on re-insert")
	}
	s, err := eng.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if s.ActionCount != 1 {
		t.Fatalf("expected exactly one action, got %d", s.ActionCount)
	}
}

func TestStorageInvalidSignatureRejected(t *testing.T) {
	eng := newTestEngine(t)
	kp, _ := primitives.GenerateKeyPair()
	a := signedAction(t, kp, 0, nil, nil)
	a.ActionType = "tampered" // invalidates the signature over signingBytes

	_, err := eng.PutAction(a)
	if err == nil {
		t.Fatalf("expected invalid-signature error")
	}
	if agmerrors.GetKind(err) != agmerrors.KindInvalid {
		t.Fatalf("expected KindInvalid, got %v", agmerrors.GetKind(err))
	}
}

func TestChainContinuity(t *testing.T) {
	eng := newTestEngine(t)
	kp, _ := primitives.GenerateKeyPair()

	var prevHash *primitives.Hash
	const n = 5
	for seq := uint32(0); seq <= n; seq++ {
		a := signedAction(t, kp, seq, prevHash, nil)
		h, err := eng.PutAction(a)
		if err != nil {
			t.Fatalf("put_action seq=%d: %v", seq, err)
		}
		hc := h
		prevHash = &hc
	}

	latest, err := eng.GetLatestSeq()
	if err != nil {
		t.Fatalf("get_latest_seq: %v", err)
	}
	if latest < n {
		t.Fatalf("expected latest seq >= %d, got %d", n, latest)
	}

	recs, err := eng.GetRecordsBySeqRange(0, n, n+1)
	if err != nil {
		t.Fatalf("get_records_by_seq_range: %v", err)
	}
	if len(recs) != n+1 {
		t.Fatalf("expected %d records, got %d", n+1, len(recs))
	}
	for i, r := range recs {
		if r.Action.Seq != uint32(i) {
			t.Fatalf("records out of order at %d: seq=%d", i, r.Action.Seq)
		}
	}
}

func TestLinkTombstoning(t *testing.T) {
	eng := newTestEngine(t)
	base := primitives.SumHash([]byte("A"))
	target := primitives.SumHash([]byte("B"))

	id, err := eng.AddLink(Link{Base: base, Target: target, LinkType: 1, Tag: []byte{1, 2, 3}, Timestamp: primitives.Now()})
	if err != nil {
		t.Fatalf("add_link: %v", err)
	}
	if id != 1 {
		t.Fatalf("expected first link id == 1, got %d", id)
	}

	one := uint8(1)
	links, err := eng.GetLinks(base, &one)
	if err != nil || len(links) != 1 {
		t.Fatalf("get_links(type=1): %v links=%v", err, links)
	}

	two := uint8(2)
	links, err = eng.GetLinks(base, &two)
	if err != nil || len(links) != 0 {
		t.Fatalf("get_links(type=2) should be empty: %v links=%v", err, links)
	}

	if err := eng.DeleteLink(base, id); err != nil {
		t.Fatalf("delete_link: %v", err)
	}
	links, err = eng.GetLinks(base, nil)
	if err != nil || len(links) != 0 {
		t.Fatalf("expected no links after delete: %v links=%v", err, links)
	}
}

func TestPutRecordRejectsMismatchedEntry(t *testing.T) {
	eng := newTestEngine(t)
	kp, _ := primitives.GenerateKeyPair()

	entry := Entry{EntryType: "x", Content: []byte("data")}
	wrongHash := primitives.SumHash([]byte("not the entry"))
	a := signedAction(t, kp, 0, nil, &wrongHash)

	_, err := eng.PutRecord(Record{Action: a, Entry: &entry})
	if err == nil {
		t.Fatalf("expected mismatch error")
	}
}

// TestStorageBTreeBackendRoundtrip exercises the bbolt-backed Engine over a
// real on-disk database, using testutil.Sandbox for an isolated temp dir so
// parallel test runs never collide on the same bbolt file.
func TestStorageBTreeBackendRoundtrip(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("new sandbox: %v", err)
	}
	defer sb.Cleanup()

	backend, err := NewBTreeBackend(sb.Path("btree.db"))
	if err != nil {
		t.Fatalf("new btree backend: %v", err)
	}
	defer backend.Close()

	eng := NewEngine(backend, 0, nil)
	kp, err := primitives.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}

	entry := Entry{EntryType: "greeting", Content: []byte("hello")}
	entryHash := entry.Hash()
	a := signedAction(t, kp, 0, nil, &entryHash)

	if _, err := eng.PutRecord(Record{Action: a, Entry: &entry}); err != nil {
		t.Fatalf("put_record: %v", err)
	}

	gotEntry, ok, err := eng.GetEntry(entryHash)
	if err != nil || !ok {
		t.Fatalf("get_entry: ok=%v err=%v", ok, err)
	}
	if string(gotEntry.Content) != "hello" {
		t.Fatalf("entry content mismatch: %q", gotEntry.Content)
	}
}

// TestStorageLSMBackendRoundtrip mirrors the bbolt test above against the
// badger-backed LSM backend, again rooted in a testutil.Sandbox temp dir.
func TestStorageLSMBackendRoundtrip(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("new sandbox: %v", err)
	}
	defer sb.Cleanup()

	backend, err := NewLSMBackend(sb.Path("lsmdata"))
	if err != nil {
		t.Fatalf("new lsm backend: %v", err)
	}
	defer backend.Close()

	eng := NewEngine(backend, 0, nil)
	kp, err := primitives.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}

	entry := Entry{EntryType: "greeting", Content: []byte("hello")}
	entryHash := entry.Hash()
	a := signedAction(t, kp, 0, nil, &entryHash)

	if _, err := eng.PutRecord(Record{Action: a, Entry: &entry}); err != nil {
		t.Fatalf("put_record: %v", err)
	}

	gotEntry, ok, err := eng.GetEntry(entryHash)
	if err != nil || !ok {
		t.Fatalf("get_entry: ok=%v err=%v", ok, err)
	}
	if string(gotEntry.Content) != "hello" {
		t.Fatalf("entry content mismatch: %q", gotEntry.Content)
	}
}

func TestCheckLimitsUnbounded(t *testing.T) {
	eng := newTestEngine(t)
	ok, err := eng.CheckLimits()
	if err != nil || !ok {
		t.Fatalf("expected unbounded engine to report within limits: ok=%v err=%v", ok, err)
	}
}
