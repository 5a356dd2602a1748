package mst

import (
	"strings"

	sha256 "github.com/minio/sha256-simd"
)

// Maximum length of a key, in bytes.
const MaxKeyLength = 256

// Computes the MST layer for a key. Layers are counted from the "bottom" of the tree, starting with zero.
//
// Hashes the key with SHA-256 and counts leading zero bits two at a time, for an MST "fanout" of 4.
func LeadingZerosOnHash(key string) (layer int) {
	hv := sha256.Sum256([]byte(key))
	for _, b := range hv {
		if b&0xC0 != 0 {
			// Common case. No leading pair of zero bits.
			break
		}
		if b == 0x00 {
			layer += 4
			continue
		}
		if b&0xFC == 0x00 {
			layer += 3
		} else if b&0xF0 == 0x00 {
			layer += 2
		} else {
			layer += 1
		}
		break
	}
	return layer
}

// Length of the common byte prefix of two strings.
func CountPrefixLen(a, b string) int {
	var i int
	for i = 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return i
}

// Checks that a key is a "<collection>/<record-key>" path: exactly one slash, both segments non-empty, only allowed characters, and at most 256 bytes.
func IsValidKey(key string) bool {
	if len(key) == 0 || len(key) > MaxKeyLength {
		return false
	}
	coll, rkey, ok := strings.Cut(key, "/")
	if !ok {
		return false
	}
	return isValidSegment(coll) && isValidSegment(rkey)
}

func isValidSegment(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	for i := 0; i < len(s); i++ {
		b := s[i]
		if 'a' <= b && b <= 'z' ||
			'A' <= b && b <= 'Z' ||
			'0' <= b && b <= '9' {
			continue
		}
		switch b {
		case '_', ':', '.', '-':
			continue
		default:
			return false
		}
	}
	return true
}

// Like [IsValidKey], but returns a [KeyFormatError].
func EnsureValidKey(key string) error {
	if !IsValidKey(key) {
		return &KeyFormatError{Key: key}
	}
	return nil
}
