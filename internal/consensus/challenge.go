package consensus

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/zeebo/blake3"
)

// challengeDomain separates challenge digests from other blake3 digests.
const challengeDomain = "relayclient-challenge"

var (
	// ErrNoMinority is returned when a result has no dissent to challenge.
	ErrNoMinority = errors.New("result has no minority response")

	// ErrDigestMismatch is returned when a challenge digest does not match its responses.
	ErrDigestMismatch = errors.New("challenge digest mismatch")

	// ErrBadSignature is returned when a challenge signature does not verify.
	ErrBadSignature = errors.New("invalid challenge signature")

	// ErrMissingResponse is returned when a challenge side holds a nil response.
	ErrMissingResponse = errors.New("challenge references a missing response")
)

// Challenge is a signed dispute artifact built from a validation result.
type Challenge struct {
	Majority  []*RelayResponse // Majority is the winning side
	Minority  *RelayResponse   // Minority is the disputed response
	Digest    [32]byte         // Digest commits to Majority and Minority
	Signature []byte           // Signature is a BLS signature over Digest
	PublicKey []byte           // PublicKey is the signer's BLS public key
}

// BuildChallenge signs the majority and minority of result.
func BuildChallenge(result Result, signer *BLSSigner) (*Challenge, error) {
	if result.Minority == nil || result.Minority.Response == nil {
		return nil, ErrNoMinority
	}

	if len(result.Majority.Responses) == 0 {
		return nil, fmt.Errorf("build challenge: empty majority")
	}

	if err := checkResponses(result.Majority.Responses); err != nil {
		return nil, fmt.Errorf("build challenge:\n%w", err)
	}

	c := &Challenge{
		Majority:  result.Majority.Responses,
		Minority:  result.Minority.Response,
		PublicKey: signer.PublicKey(),
	}

	c.Digest = challengeDigest(c.Majority, c.Minority)
	c.Signature = signer.Sign(c.Digest[:])

	return c, nil
}

// VerifyChallenge checks the digest and signature of c.
func VerifyChallenge(c *Challenge) error {
	if c.Minority == nil {
		return ErrNoMinority
	}

	if err := checkResponses(c.Majority); err != nil {
		return err
	}

	if challengeDigest(c.Majority, c.Minority) != c.Digest {
		return ErrDigestMismatch
	}

	if !VerifyBLS(c.Signature, c.Digest[:], c.PublicKey) {
		return ErrBadSignature
	}

	return nil
}

// checkResponses rejects nil entries.
func checkResponses(responses []*RelayResponse) error {
	for i, r := range responses {
		if r == nil {
			return fmt.Errorf("%w: majority entry %d", ErrMissingResponse, i)
		}
	}

	return nil
}

// challengeDigest hashes the canonical forms of the responses.
// Format: domain || [4B count] { [4B len] [canonical] } || [4B len] [minority canonical]
func challengeDigest(majority []*RelayResponse, minority *RelayResponse) [32]byte {
	h := blake3.New()
	h.Write([]byte(challengeDomain))

	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(majority)))
	h.Write(n[:])

	for _, r := range majority {
		writeCanonical(h, r)
	}

	writeCanonical(h, minority)

	var out [32]byte
	h.Sum(out[:0])

	return out
}

// writeCanonical writes a length-prefixed canonical response.
func writeCanonical(h *blake3.Hasher, r *RelayResponse) {
	canonical := r.Canonical()

	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(canonical)))
	h.Write(n[:])
	h.Write(canonical)
}
