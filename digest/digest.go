// Package digest provides the fixed-output content hash (C1) used
// throughout a Wax store for checksums and content addressing.
//
// It wraps github.com/minio/sha256-simd, a hardware-accelerated
// implementation with the exact same API shape and test vectors as the
// standard library's crypto/sha256, so checksums committed to disk
// remain byte-identical across implementations and platforms.
package digest

import (
	"hash"

	"github.com/minio/sha256-simd"
)

// Size is the fixed output length of the digest, in bytes.
const Size = 32

// Hasher is a streaming digest. The zero value is not usable; construct
// one with New.
type Hasher struct {
	h hash.Hash
}

// New returns a new streaming Hasher.
func New() *Hasher {
	return &Hasher{h: sha256.New()}
}

// Write adds more data to the running hash. It never returns an error.
func (d *Hasher) Write(p []byte) (int, error) {
	return d.h.Write(p)
}

// Sum returns the digest of all data written so far, without modifying
// the underlying hash state.
func (d *Hasher) Sum() [Size]byte {
	var out [Size]byte
	copy(out[:], d.h.Sum(nil))
	return out
}

// Reset clears the Hasher back to its initial state so it can be reused.
func (d *Hasher) Reset() {
	d.h.Reset()
}

// Sum computes the one-shot digest of data.
func Sum(data []byte) [Size]byte {
	var out [Size]byte
	sum := sha256.Sum256(data)
	copy(out[:], sum[:])
	return out
}

// Zero is the all-zero digest, used as a placeholder (e.g. an
// unverified merkle root).
var Zero [Size]byte
