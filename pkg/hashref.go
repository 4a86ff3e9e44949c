package nanodc

import (
	"bytes"
	"encoding/base32"
	"fmt"
	"strings"
)

// HashRefSize is the width of a content hash in bytes (192 bits).
const HashRefSize = 24

// HashRef is a content digest. The zero value means "not yet known".
type HashRef [HashRefSize]byte

var hashEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// String returns the unpadded base32 form used in file lists and searches.
func (h HashRef) String() string {
	return hashEncoding.EncodeToString(h[:])
}

// IsZero reports whether the hash is still unknown.
func (h HashRef) IsZero() bool {
	return h == HashRef{}
}

// Compare orders hashes bytewise.
func (h HashRef) Compare(other HashRef) int {
	return bytes.Compare(h[:], other[:])
}

// ParseHashRef parses the base32 form produced by String.
func ParseHashRef(s string) (HashRef, error) {
	var h HashRef
	decoded, err := hashEncoding.DecodeString(strings.ToUpper(strings.TrimSpace(s)))
	if err != nil {
		return h, fmt.Errorf("parsing hash %q: %w", s, err)
	}
	if len(decoded) != HashRefSize {
		return h, fmt.Errorf("hash %q is %d bytes, want %d", s, len(decoded), HashRefSize)
	}
	copy(h[:], decoded)
	return h, nil
}

// HashRefFromBytes truncates or zero-pads a digest to HashRefSize.
func HashRefFromBytes(b []byte) HashRef {
	var h HashRef
	copy(h[:], b)
	return h
}
