// Package hashing computes the evidence content digest and its ledger anchor
// form. Both functions are pure and must behave identically at seal and
// verify time; any drift between the two call sites shows up as a false
// tamper report.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

// Digest returns the lowercase hex SHA-256 of b.
func Digest(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

// AnchorDigest converts a hex file digest into the ledger's fixed-width
// commitment: keccak256 over the UTF-8 bytes of the hex string, rendered as
// 0x-prefixed lowercase hex. The ledger only ever stores this commitment,
// never the file bytes or the raw digest.
func AnchorDigest(hexDigest string) string {
	k := sha3.NewLegacyKeccak256()
	k.Write([]byte(hexDigest))
	return "0x" + hex.EncodeToString(k.Sum(nil))
}
