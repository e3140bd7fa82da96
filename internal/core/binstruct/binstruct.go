// Package binstruct reads and writes the little-endian byte layouts used by
// the game's wire protocol through a sequential Reader/Writer cursor, plus
// the UTF-16LE string helpers that cursor uses.
package binstruct

import (
	"bytes"
	"unicode/utf16"
)

// ToUTF16 converts a UTF-8 string to UTF-16LE bytes, unterminated.
func ToUTF16(str string) []byte {
	runes := bytes.Runes([]byte(str))
	encoded := utf16.Encode(runes)

	out := make([]byte, 2*len(encoded))
	for i, v := range encoded {
		idx := i * 2
		out[idx] = byte(v)
		out[idx+1] = byte(v >> 8)
	}
	return out
}

// FromUTF16 converts UTF-16LE bytes back to a UTF-8 string.
func FromUTF16(b []byte) string {
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = uint16(b[2*i]) | uint16(b[2*i+1])<<8
	}
	return string(utf16.Decode(units))
}
