// SPDX-License-Identifier: Apache-2.0
// core/security.go — certificate identity helpers for the P2P transport
// layer: self-signed development certificate generation and the
// certificate-digest peer identity scheme (SPEC_FULL §3.4, §6.2).
//
// Grounded on this codebase's former TLS loader (NewTLSConfig /
// CertFingerprint): TLS 1.3 minimum version, X25519-preferred curves, and a
// SHA-256 fingerprint of the DER certificate, generalized from "load a cert
// off disk" to "mint one in-process for an Endpoint" since the spec treats
// self-signed certs as the default development mode.
package core

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"io"
	"log"
	"math/big"
	"time"

	"agentmesh/pkg/primitives"
)

var secLogger = log.New(io.Discard, "[security] ", log.LstdFlags)

// SetSecurityLogger redirects this package's diagnostic logging.
func SetSecurityLogger(l *log.Logger) { secLogger = l }

// CertDigest is the 32-byte SHA-256 digest of a peer's DER-encoded
// certificate; it is that peer's identity (SPEC_FULL §3.4, §6.2).
type CertDigest [32]byte

func (c CertDigest) Bytes() []byte { return c[:] }

// DigestCertificate computes the CertDigest of a DER-encoded certificate.
func DigestCertificate(der []byte) CertDigest {
	return CertDigest(sha256.Sum256(der))
}

// Identity bundles a self-signed TLS certificate with an Ed25519 signing
// KeyPair, and exposes the certificate's digest as the Endpoint's identity.
// KeyPair is generated independently of the certificate's own key; it is not
// the key the certificate is signed with.
type Identity struct {
	Cert   tls.Certificate
	Digest CertDigest
	KeyPair primitives.KeyPair
}

// GenerateIdentity mints a fresh self-signed Ed25519 certificate suitable
// for development and test use (SPEC_FULL §4.3: "certificates may be
// self-signed in development").
func GenerateIdentity() (Identity, error) {
	kp, err := primitives.GenerateKeyPair()
	if err != nil {
		return Identity{}, err
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Identity{}, err
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return Identity{}, err
	}
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "agentmesh-node"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, pub, priv)
	if err != nil {
		return Identity{}, err
	}

	tlsCert := tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  priv,
	}

	return Identity{Cert: tlsCert, Digest: DigestCertificate(der), KeyPair: kp}, nil
}

// NewTLSConfig builds a mutual-TLS 1.3 config for one Identity. ALPN pins
// the protocol identifier (SPEC_FULL §4.3, §6.2); insecureSkipVerify must be
// off by default in production (see pkg/config.Config.Transport).
func NewTLSConfig(id Identity, alpn string, insecureSkipVerify bool) *tls.Config {
	return &tls.Config{
		MinVersion:         tls.VersionTLS13,
		Certificates:       []tls.Certificate{id.Cert},
		CurvePreferences:   []tls.CurveID{tls.X25519, tls.CurveP256},
		NextProtos:         []string{alpn},
		ClientAuth:         tls.RequireAnyClientCert,
		InsecureSkipVerify: insecureSkipVerify,
	}
}

// PeerDigestFromConnState extracts the CertDigest of the peer certificate
// presented during the handshake.
func PeerDigestFromConnState(state tls.ConnectionState) (CertDigest, error) {
	if len(state.PeerCertificates) == 0 {
		return CertDigest{}, errors.New("security: no peer certificate presented")
	}
	return DigestCertificate(state.PeerCertificates[0].Raw), nil
}
