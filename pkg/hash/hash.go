package hash

import (
	"github.com/cespare/xxhash/v2"
)

// Checksum returns the xxhash of the concatenation of parts. It is stable
// across processes and platforms, so it can be persisted.
func Checksum(parts ...[]byte) uint64 {
	d := xxhash.New()
	for _, p := range parts {
		_, _ = d.Write(p)
	}
	return d.Sum64()
}

// Verify reports whether parts hash to want.
func Verify(want uint64, parts ...[]byte) bool {
	return Checksum(parts...) == want
}
