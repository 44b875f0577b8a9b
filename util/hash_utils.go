package util

import (
	"github.com/OneOfOne/xxhash"
)

// ChecksumSize is the number of leading page bytes reserved for the checksum.
const ChecksumSize = 8

// PageChecksum hashes everything after the checksum slot. The result is never
// zero, so a zero slot always means "never stamped".
func PageChecksum(page []byte) uint64 {
	sum := xxhash.Checksum64(page[ChecksumSize:])
	if sum == 0 {
		sum = 1
	}
	return sum
}

// StampPageChecksum writes the checksum into the leading slot.
func StampPageChecksum(page []byte) {
	PutUB8(page, 0, PageChecksum(page))
}

// VerifyPageChecksum reports whether the page is intact. An all-zero page
// (freshly allocated, never flushed) is treated as intact.
func VerifyPageChecksum(page []byte) bool {
	stored := GetUB8(page, 0)
	if stored == 0 {
		return IsZero(page)
	}
	return stored == PageChecksum(page)
}

// IsZero reports whether every byte of buf is zero.
func IsZero(buf []byte) bool {
	for _, b := range buf {
		if b != 0 {
			return false
		}
	}
	return true
}
