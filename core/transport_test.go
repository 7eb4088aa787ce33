package core

import (
	"context"
	"testing"
	"time"
)

func testTuning() TransportTuning {
	return TransportTuning{
		MaxIdleTimeout:          5 * time.Second,
		MaxConcurrentUniStreams: 64,
	}
}

func TestTransportIdentityAndFraming(t *testing.T) {
	idA, err := GenerateIdentity()
	if err != nil {
		t.Fatalf("generate identity A: %v", err)
	}
	idB, err := GenerateIdentity()
	if err != nil {
		t.Fatalf("generate identity B: %v", err)
	}

	epA, err := Bind("127.0.0.1:0", idA, "agentmesh/1", testTuning(), true)
	if err != nil {
		t.Fatalf("bind A: %v", err)
	}
	defer epA.Close()

	epB, err := Bind("127.0.0.1:0", idB, "agentmesh/1", testTuning(), true)
	if err != nil {
		t.Fatalf("bind B: %v", err)
	}
	defer epB.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connA, err := epA.Dial(ctx, epB.LocalAddr())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	var connB *Connection
	select {
	case connB = <-epB.Incoming():
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for B to accept connection")
	}

	if connA.PeerCert() != epB.Digest() {
		t.Fatalf("transport identity mismatch: A saw %x, B is %x", connA.PeerCert(), epB.Digest())
	}
	if connB.PeerCert() != epA.Digest() {
		t.Fatalf("transport identity mismatch: B saw %x, A is %x", connB.PeerCert(), epA.Digest())
	}

	outCh, err := connA.OpenChannel(ctx, time.Second)
	if err != nil {
		t.Fatalf("open_channel: %v", err)
	}
	payload := []byte("hello")
	if err := outCh.Write(ctx, 0, payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = outCh.Finish()

	inCh, err := connB.AcceptChannel(ctx)
	if err != nil {
		t.Fatalf("accept_channel: %v", err)
	}
	tag, body, err := inCh.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if tag != 0 {
		t.Fatalf("expected tag=0, got %d", tag)
	}
	if string(body) != "hello" {
		t.Fatalf("expected payload %q, got %q", "hello", body)
	}
}

func TestEncodeDecodeFrameRoundtrip(t *testing.T) {
	frame := encodeFrame(7, []byte("payload"))
	// frame[0:4] is the big-endian length prefix covering tag+payload.
	n := uint32(frame[0])<<24 | uint32(frame[1])<<16 | uint32(frame[2])<<8 | uint32(frame[3])
	if int(n) != len(frame)-4 {
		t.Fatalf("length prefix %d does not match frame body length %d", n, len(frame)-4)
	}
	if frame[4] != 7 {
		t.Fatalf("expected tag byte 7, got %d", frame[4])
	}
}
