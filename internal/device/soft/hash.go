package soft

import (
	"crypto/sha256"

	// RIPEMD160 is required for BIP32 key fingerprints.
	//nolint:gosec,staticcheck // G507,SA1019: RIPEMD160 required by BIP32
	"golang.org/x/crypto/ripemd160"
)

// hash160 computes RIPEMD160(SHA256(data)).
//
//nolint:gosec // G406: RIPEMD160 usage required by BIP32
func hash160(data []byte) []byte {
	sum := sha256.Sum256(data)
	h := ripemd160.New()
	h.Write(sum[:])
	return h.Sum(nil)
}
