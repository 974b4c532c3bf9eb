package session

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// fingerprintDomain separates fingerprint digests from every other blake3 use.
var fingerprintDomain = []byte("relayclient-session-fingerprint")

// Fingerprint is the cache key for a (credential, chain) pair.
// It is only a lookup key and carries no trust.
type Fingerprint [32]byte

// String returns the hex encoding of the fingerprint.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// Short returns the first 8 hex characters, for logging.
func (f Fingerprint) Short() string {
	return hex.EncodeToString(f[:4])
}

// FingerprintOf computes the fingerprint of a credential and chain.
// Digest = BLAKE3(domain || canonical(credential) || len(chain) || chain)
func FingerprintOf(cred Credential, chain string) Fingerprint {
	h := blake3.New()
	h.Write(fingerprintDomain)
	h.Write(cred.Canonical())
	writeField(h, []byte(chain))

	var fp Fingerprint
	h.Sum(fp[:0])

	return fp
}

// Canonical returns the canonical serialization of the credential.
// Each field is written as [4B big-endian length][bytes] in declaration order.
func (c Credential) Canonical() []byte {
	size := 16 + len(c.Version) + len(c.AppPublicKey) + len(c.ClientPublicKey) + len(c.Signature)
	buf := make([]byte, 0, size)

	buf = appendField(buf, []byte(c.Version))
	buf = appendField(buf, c.AppPublicKey)
	buf = appendField(buf, c.ClientPublicKey)
	buf = appendField(buf, c.Signature)

	return buf
}

// appendField appends a length-prefixed field to buf.
func appendField(buf, field []byte) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(field)))
	return append(buf, field...)
}

// writeField writes a length-prefixed field to the hasher.
func writeField(h *blake3.Hasher, field []byte) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(field)))
	h.Write(lenBuf[:])
	h.Write(field)
}
