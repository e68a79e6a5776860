// Package encoding provides text helpers for fixed-size and free-form string
// fields in binary asset files.
package encoding

import (
	"bytes"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// TrimNullBytes removes trailing null bytes from a byte slice.
func TrimNullBytes(data []byte) []byte {
	return bytes.TrimRight(data, "\x00")
}

// Text converts raw bytes to a UTF-8 string. Valid UTF-8 is returned as-is;
// anything else is assumed to be Windows-1252, which is what older asset
// tools wrote for comments.
func Text(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	result, _, err := transform.Bytes(charmap.Windows1252.NewDecoder(), data)
	if err != nil {
		return string(bytes.ToValidUTF8(data, []byte("�")))
	}
	return string(result)
}

// FixedString converts a fixed-size string field to a Go string. The first
// NUL ends the string; whatever follows it is padding.
func FixedString(data []byte) string {
	if i := bytes.IndexByte(data, 0); i >= 0 {
		data = data[:i]
	}
	return Text(data)
}

// PutFixedString writes s into dst, truncating or NUL-padding to len(dst).
func PutFixedString(dst []byte, s string) {
	n := copy(dst, s)
	clear(dst[n:])
}
