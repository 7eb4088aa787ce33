// Package primitives defines the types shared by every subsystem of the
// agent mesh core: the content-addressed Hash, the Ed25519-based AgentKey /
// Signature pair, and the microsecond Timestamp. Grounded on the teacher
// codebase's crypto conventions (its core/security.go Sign/Verify over
// Ed25519 and SHA-256 Merkle roots) and generalized to the spec's plain
// 32-byte hash and 64-byte signature.
package primitives

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// HashSize is the fixed width of a Hash in bytes.
const HashSize = 32

// Hash is a 32-byte collision-resistant digest. Equality and ordering are
// bytewise, matching the spec's requirement that Hash be a plain fixed-size
// value with no algorithm-specific framing.
type Hash [HashSize]byte

// SumHash hashes arbitrary bytes with SHA-256, the collision-resistant
// function the teacher codebase used for Merkle roots and block hashing.
func SumHash(data []byte) Hash {
	return Hash(sha256.Sum256(data))
}

// IsZero reports whether h is the all-zero Hash. (core.Action marks "no
// previous action" on seq 0 with a nil PrevAction, not with a zero Hash.)
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// Compare returns -1, 0, or 1 comparing h to other bytewise.
func (h Hash) Compare(other Hash) int {
	return bytes.Compare(h[:], other[:])
}

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// Bytes returns a copy of the hash as a byte slice.
func (h Hash) Bytes() []byte {
	out := make([]byte, HashSize)
	copy(out, h[:])
	return out
}

// HashFromBytes builds a Hash from exactly HashSize bytes.
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashSize {
		return h, fmt.Errorf("primitives: hash must be %d bytes, got %d", HashSize, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// AgentKeySize is the width of an Ed25519 public key.
const AgentKeySize = ed25519.PublicKeySize // 32

// AgentKey is an agent's Ed25519 public key, and doubles as its identity.
type AgentKey [AgentKeySize]byte

func (k AgentKey) String() string { return hex.EncodeToString(k[:]) }

// Bytes returns a copy of the key as a byte slice.
func (k AgentKey) Bytes() []byte {
	out := make([]byte, AgentKeySize)
	copy(out, k[:])
	return out
}

// SignatureSize is the width of an Ed25519 signature.
const SignatureSize = ed25519.SignatureSize // 64

// Signature is a 64-byte Ed25519 signature over a message.
type Signature [SignatureSize]byte

func (s Signature) Bytes() []byte {
	out := make([]byte, SignatureSize)
	copy(out, s[:])
	return out
}

// Timestamp is an unsigned count of microseconds since the Unix epoch.
// Timestamps are not assumed monotonic across agents; per-chain ordering
// instead relies on the seq counter (see core.Action).
type Timestamp uint64

// Now returns the current wall-clock time as a Timestamp.
func Now() Timestamp {
	return Timestamp(time.Now().UnixMicro())
}

func (t Timestamp) Time() time.Time {
	return time.UnixMicro(int64(t))
}

// KeyPair is a generated Ed25519 signing identity (see GenerateKeyPair). It is
// the counterpart to AgentKey: it owns the private half and can Sign.
type KeyPair struct {
	Public  AgentKey
	private ed25519.PrivateKey
}

// GenerateKeyPair creates a new random Ed25519 identity.
func GenerateKeyPair() (KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("primitives: generate key: %w", err)
	}
	var ak AgentKey
	copy(ak[:], pub)
	return KeyPair{Public: ak, private: priv}, nil
}

// Sign signs msg and returns the 64-byte Ed25519 signature.
func (kp KeyPair) Sign(msg []byte) Signature {
	sig := ed25519.Sign(kp.private, msg)
	var out Signature
	copy(out[:], sig)
	return out
}

// Verify checks sig against msg under the given public key.
func Verify(pub AgentKey, msg []byte, sig Signature) bool {
	return ed25519.Verify(ed25519.PublicKey(pub[:]), msg, sig[:])
}
