// Package trigram extracts the distinct 3-byte windows of a buffer, the unit
// the index store and query evaluator both key on. Extraction is byte-exact:
// no case folding, no whitespace collapsing, no Unicode awareness. A trigram
// is packed into a 24-bit integer (b0<<16)|(b1<<8)|b2 so it fits as a table
// key without allocation.
package trigram

import "sort"

// Max is the number of distinct 3-byte sequences, and therefore an upper
// bound on the number of trigram keys that can ever exist.
const Max = 1 << 24

// Pack encodes three bytes into their 24-bit trigram key.
func Pack(b0, b1, b2 byte) uint32 {
	return uint32(b0)<<16 | uint32(b1)<<8 | uint32(b2)
}

// Unpack decodes a trigram key back into its three constituent bytes.
func Unpack(t uint32) (b0, b1, b2 byte) {
	return byte(t >> 16), byte(t >> 8), byte(t)
}

// Extract returns the set of distinct trigrams occurring in buf. For len(buf)
// < 3 it returns an empty, non-nil set.
func Extract(buf []byte) map[uint32]struct{} {
	n := len(buf)
	if n < 3 {
		return map[uint32]struct{}{}
	}

	set := make(map[uint32]struct{}, n)
	for i := 0; i <= n-3; i++ {
		set[Pack(buf[i], buf[i+1], buf[i+2])] = struct{}{}
	}
	return set
}

// ExtractSorted returns the distinct trigrams of buf as a sorted slice,
// suitable for serializing as a file's reverse trigram_set.
func ExtractSorted(buf []byte) []uint32 {
	set := Extract(buf)
	out := make([]uint32, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// TooShort reports whether the trigram set of a query would be empty, i.e.
// the query has fewer than 3 bytes and cannot drive a trigram lookup.
func TooShort(query []byte) bool {
	return len(query) < 3
}
