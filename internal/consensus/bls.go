package consensus

import (
	"crypto/rand"
	"fmt"

	blst "github.com/supranational/blst/bindings/go"
	"github.com/zeebo/blake3"
)

const (
	// BLSPublicKeySize is the size of a compressed BLS public key in bytes.
	BLSPublicKeySize = 48

	// BLSSignatureSize is the size of a compressed BLS signature in bytes.
	BLSSignatureSize = 96
)

// blsDST is the domain separation tag for challenge signatures.
var blsDST = []byte("BLS_SIG_BLS12381G2_XMD:SHA-256_SSWU_RO_NUL_")

// BLSSigner signs challenge digests.
type BLSSigner struct {
	secret *blst.SecretKey // secret is the private key
	public *blst.P1Affine  // public is the public key
}

// GenerateBLSSigner creates a signer from a random seed.
func GenerateBLSSigner() (*BLSSigner, error) {
	var ikm [32]byte
	if _, err := rand.Read(ikm[:]); err != nil {
		return nil, fmt.Errorf("generate random seed:\n%w", err)
	}

	return BLSSignerFromSeed(ikm[:])
}

// DeriveBLSSigner derives a deterministic signer bound to a client key.
// The seed is BLAKE3("relayclient-bls-keygen" || clientKey).
func DeriveBLSSigner(clientKey []byte) (*BLSSigner, error) {
	h := blake3.New()
	h.Write([]byte("relayclient-bls-keygen"))
	h.Write(clientKey)

	var derived [32]byte
	h.Sum(derived[:0])

	return BLSSignerFromSeed(derived[:])
}

// BLSSignerFromSeed creates a signer from a deterministic seed of at least 32 bytes.
func BLSSignerFromSeed(seed []byte) (*BLSSigner, error) {
	if len(seed) < 32 {
		return nil, fmt.Errorf("seed must be at least 32 bytes")
	}

	secret := blst.KeyGen(seed)
	if secret == nil {
		return nil, fmt.Errorf("failed to generate BLS key")
	}

	return &BLSSigner{
		secret: secret,
		public: new(blst.P1Affine).From(secret),
	}, nil
}

// Sign creates a BLS signature over message.
func (s *BLSSigner) Sign(message []byte) []byte {
	return new(blst.P2Affine).Sign(s.secret, message, blsDST).Compress()
}

// PublicKey returns the compressed public key.
func (s *BLSSigner) PublicKey() []byte {
	return s.public.Compress()
}

// VerifyBLS checks a signature against a message and public key.
func VerifyBLS(signature, message, publicKey []byte) bool {
	if len(signature) != BLSSignatureSize || len(publicKey) != BLSPublicKeySize {
		return false
	}

	sig := new(blst.P2Affine).Uncompress(signature)
	if sig == nil {
		return false
	}

	pk := new(blst.P1Affine).Uncompress(publicKey)
	if pk == nil {
		return false
	}

	return sig.Verify(true, pk, true, message, blsDST)
}
