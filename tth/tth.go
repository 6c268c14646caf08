package tth

import "fmt"

// LeafSize is the granularity (in bytes) of one leaf in a TTH hash tree.
const LeafSize = 1024

// Digest is a 24-byte Tiger Tree Hash content digest.
type Digest [HashLen]byte

// String renders the digest as its 39-character base32 form.
func (d Digest) String() string {
	return Encode(d[:])
}

// ParseDigest decodes a base32 string into a Digest.
func ParseDigest(s string) (Digest, error) {
	b, err := Decode(s)
	if err != nil {
		return Digest{}, err
	}
	return Digest(b), nil
}

// LeafCount returns the number of LeafSize-byte leaves a file of the
// given size is divided into by the hash tree (at least one, even for
// an empty file, matching the hasher's out-of-band convention).
func LeafCount(size uint64) int64 {
	if size == 0 {
		return 1
	}
	n := size / LeafSize
	if size%LeafSize != 0 {
		n++
	}
	return int64(n)
}

// VerifyTreeShape checks that a stored hash-tree blob ("tthl") is
// structurally consistent with a file of the given size: its length must
// be a multiple of HashLen, and it must carry at least as many leaf
// digests as LeafCount(size) demands. This module never computes hash
// trees itself (that is the out-of-scope background hasher) — it only
// validates the shape of a tree supplied by the database or a peer
// before serving it over ADCGET tthl.
func VerifyTreeShape(size uint64, blob []byte) error {
	if len(blob) == 0 {
		return fmt.Errorf("tth: empty hash-tree blob")
	}
	if len(blob)%HashLen != 0 {
		return fmt.Errorf("tth: hash-tree blob length %d is not a multiple of %d", len(blob), HashLen)
	}
	leaves := len(blob) / HashLen
	want := LeafCount(size)
	if int64(leaves) < want {
		return fmt.Errorf("tth: hash-tree blob has %d leaves, want at least %d for size %d", leaves, want, size)
	}
	return nil
}
