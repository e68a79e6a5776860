// Package formats provides decoders for the binary asset formats used by the
// sample programs: KTX textures and SBM6 meshes.
//
// Decoders are pure functions from bytes to immutable values. They never touch
// the GPU; the upload side lives in internal/engine.
package formats

import "errors"

// Error taxonomy shared by all decoders. Format specific errors wrap one of
// these, so errors.Is works at either granularity.
var (
	ErrInvalidFormat = errors.New("invalid format")
	ErrTruncated     = errors.New("truncated data")
	ErrUnknownChunk  = errors.New("unknown chunk")
	ErrIO            = errors.New("i/o error")
)

// OpenGL enumerants the decoders need to interpret header fields.
// Values match the GL registry; the decoders do not import a GL binding.
const (
	glUnsignedByte  = 0x1401
	glUnsignedShort = 0x1403
	glUnsignedInt   = 0x1405
	glFloat         = 0x1406

	glRed  = 0x1903
	glRG   = 0x8227
	glRGB  = 0x1907
	glBGR  = 0x80E0
	glRGBA = 0x1908
	glBGRA = 0x80E1
)

// Channels returns the number of color channels for a base internal format.
// Unknown formats yield 0.
func Channels(format uint32) int {
	switch format {
	case glRed:
		return 1
	case glRG:
		return 2
	case glRGB, glBGR:
		return 3
	case glRGBA, glBGRA:
		return 4
	default:
		return 0
	}
}

// align rounds n up to a multiple of pad (pad must be a power of two).
func align(n, pad int) int {
	return (n + pad - 1) &^ (pad - 1)
}
