package contenthash

import (
	"hash/fnv"
	"strconv"
)

// Sum digests the given parts into a short base-36 string. It is a fast,
// non-cryptographic FNV-1a hash: equal inputs always produce equal output,
// different inputs collide only with negligible probability. A collision
// surfaces as a wrong cache hit, never as a crash, so this is acceptable
// for cache keying.
func Sum(parts ...string) string {
	h := fnv.New64a()
	for _, p := range parts {
		_, _ = h.Write([]byte(p))
		// length-fold so ("ab","c") and ("a","bc") hash differently
		_, _ = h.Write([]byte(strconv.Itoa(len(p))))
		_, _ = h.Write([]byte{0x1f})
	}
	return strconv.FormatUint(h.Sum64(), 36)
}
