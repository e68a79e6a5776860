// KTX (Khronos Texture) container parser.
package formats

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math/bits"
	"os"

	"github.com/Faultbox/sb6go/pkg/encoding"
)

// KTXHeaderSize is the size of the fixed KTX header in bytes.
const KTXHeaderSize = 64

// Endianness markers as read little-endian from the file.
const (
	KTXEndianNative  uint32 = 0x04030201
	KTXEndianSwapped uint32 = 0x01020304
)

// ktxIdentifier is the 12-byte magic every KTX file starts with.
var ktxIdentifier = [12]byte{0xAB, 'K', 'T', 'X', ' ', '1', '1', 0xBB, '\r', '\n', 0x1A, '\n'}

// KTX format errors.
var (
	ErrInvalidKTXIdentifier = fmt.Errorf("%w: bad KTX identifier", ErrInvalidFormat)
	ErrInvalidKTXEndianness = fmt.Errorf("%w: unknown KTX endianness marker", ErrInvalidFormat)
	ErrInvalidKTXTarget     = fmt.Errorf("%w: KTX dimensions match no texture target", ErrInvalidFormat)
	ErrInvalidKTXChannels   = fmt.Errorf("%w: unsupported KTX base internal format", ErrInvalidFormat)
	ErrInvalidKTXLayout     = fmt.Errorf("%w: KTX pixel layout", ErrInvalidFormat)
	ErrTruncatedKTXData     = fmt.Errorf("%w: KTX", ErrTruncated)
)

// KTXTarget identifies the kind of texture a KTX file holds.
// Values are the matching GL texture target enumerants.
type KTXTarget uint32

// Texture targets.
const (
	KTXTarget1D           KTXTarget = 0x0DE0
	KTXTarget2D           KTXTarget = 0x0DE1
	KTXTarget3D           KTXTarget = 0x806F
	KTXTarget1DArray      KTXTarget = 0x8C18
	KTXTarget2DArray      KTXTarget = 0x8C1A
	KTXTargetCubeMap      KTXTarget = 0x8513
	KTXTargetCubeMapArray KTXTarget = 0x9009
)

// String returns the GL name of the target.
func (t KTXTarget) String() string {
	switch t {
	case KTXTarget1D:
		return "TEXTURE_1D"
	case KTXTarget2D:
		return "TEXTURE_2D"
	case KTXTarget3D:
		return "TEXTURE_3D"
	case KTXTarget1DArray:
		return "TEXTURE_1D_ARRAY"
	case KTXTarget2DArray:
		return "TEXTURE_2D_ARRAY"
	case KTXTargetCubeMap:
		return "TEXTURE_CUBE_MAP"
	case KTXTargetCubeMapArray:
		return "TEXTURE_CUBE_MAP_ARRAY"
	default:
		return fmt.Sprintf("Unknown(0x%04X)", uint32(t))
	}
}

// KTXHeader is the fixed 64-byte KTX header. All fields except Identifier and
// Endianness are held in native order after decoding.
type KTXHeader struct {
	Identifier           [12]byte
	Endianness           uint32 // raw marker, KTXEndianNative or KTXEndianSwapped
	GLType               uint32 // 0 for compressed data
	GLTypeSize           uint32
	GLFormat             uint32
	GLInternalFormat     uint32
	GLBaseInternalFormat uint32
	PixelWidth           uint32
	PixelHeight          uint32 // 0 for 1D textures
	PixelDepth           uint32 // 0 for 1D and 2D textures
	ArrayElements        uint32 // 0 when not an array
	Faces                uint32 // 0 (or 1) when not a cube map
	MipLevels            uint32
	KeyValueBytes        uint32
}

// Swapped reports whether the file was written in the opposite byte order.
func (h *KTXHeader) Swapped() bool {
	return h.Endianness == KTXEndianSwapped
}

// Compressed reports whether pixel data is block compressed.
func (h *KTXHeader) Compressed() bool {
	return h.GLType == 0
}

// isCube treats a face count of 1 the same as 0; writers following the
// Khronos KTX 1.1 rules store 1 for non-cube textures.
func (h *KTXHeader) isCube() bool {
	return h.Faces > 1
}

// Target derives the texture target from the header dimensions.
func (h *KTXHeader) Target() (KTXTarget, error) {
	if h.PixelWidth == 0 {
		return 0, fmt.Errorf("%w: zero width", ErrInvalidKTXTarget)
	}

	switch {
	case h.PixelHeight == 0:
		if h.PixelDepth != 0 {
			return 0, fmt.Errorf("%w: depth %d without height", ErrInvalidKTXTarget, h.PixelDepth)
		}
		if h.isCube() {
			return 0, fmt.Errorf("%w: 1D cube map", ErrInvalidKTXTarget)
		}
		if h.ArrayElements == 0 {
			return KTXTarget1D, nil
		}
		return KTXTarget1DArray, nil

	case h.PixelDepth == 0:
		if h.ArrayElements == 0 {
			if h.isCube() {
				return KTXTargetCubeMap, nil
			}
			return KTXTarget2D, nil
		}
		if h.isCube() {
			return KTXTargetCubeMapArray, nil
		}
		return KTXTarget2DArray, nil

	default:
		if h.ArrayElements != 0 || h.isCube() {
			return 0, fmt.Errorf("%w: 3D array or cube", ErrInvalidKTXTarget)
		}
		return KTXTarget3D, nil
	}
}

// checkLayout rejects element sizes and mip counts no real pixel data can
// have. Uncompressed elements are 1, 2 or 4 bytes (1 for GL_UNSIGNED_BYTE),
// and a mip chain ends at 1x1x1.
func (h *KTXHeader) checkLayout() error {
	if !h.Compressed() {
		switch h.GLTypeSize {
		case 1, 2, 4:
		default:
			return fmt.Errorf("%w: element size %d", ErrInvalidKTXLayout, h.GLTypeSize)
		}
		if h.GLType == glUnsignedByte && h.GLTypeSize != 1 {
			return fmt.Errorf("%w: GL_UNSIGNED_BYTE with element size %d", ErrInvalidKTXLayout, h.GLTypeSize)
		}
	}
	if limit := bits.Len32(max(h.PixelWidth, h.PixelHeight, h.PixelDepth)); h.MipLevels > uint32(limit) {
		return fmt.Errorf("%w: %d mip levels for %dx%dx%d",
			ErrInvalidKTXLayout, h.MipLevels, h.PixelWidth, h.PixelHeight, h.PixelDepth)
	}
	return nil
}

// stride returns the byte length of one scanline of the given width,
// rounded up to pad (a power of two). It is computed in 64 bits so that
// any 32-bit width and element size fit.
func (h *KTXHeader) stride(width uint32, pad int) uint64 {
	n := uint64(Channels(h.GLBaseInternalFormat)) * uint64(h.GLTypeSize) * uint64(width)
	p := uint64(pad)
	return (n + p - 1) &^ (p - 1)
}

// appendTo serializes the header in the given byte order. The endianness
// marker is always written as the native constant, so writing big-endian
// produces a file that reads back as swapped.
func (h *KTXHeader) appendTo(b []byte, order binary.AppendByteOrder) []byte {
	b = append(b, ktxIdentifier[:]...)
	for _, v := range [...]uint32{
		KTXEndianNative,
		h.GLType,
		h.GLTypeSize,
		h.GLFormat,
		h.GLInternalFormat,
		h.GLBaseInternalFormat,
		h.PixelWidth,
		h.PixelHeight,
		h.PixelDepth,
		h.ArrayElements,
		h.Faces,
		h.MipLevels,
		h.KeyValueBytes,
	} {
		b = order.AppendUint32(b, v)
	}
	return b
}

// decodeKTXHeader reads and validates the fixed header. The identifier is
// checked before any other field is looked at.
func decodeKTXHeader(data []byte) (KTXHeader, error) {
	var h KTXHeader

	if len(data) < len(ktxIdentifier) {
		return h, fmt.Errorf("%w: %d bytes, need identifier", ErrTruncatedKTXData, len(data))
	}
	if !bytes.Equal(data[:12], ktxIdentifier[:]) {
		return h, ErrInvalidKTXIdentifier
	}
	if len(data) < KTXHeaderSize {
		return h, fmt.Errorf("%w: %d bytes, need %d byte header", ErrTruncatedKTXData, len(data), KTXHeaderSize)
	}

	copy(h.Identifier[:], data[:12])
	h.Endianness = binary.LittleEndian.Uint32(data[12:])

	var swap bool
	switch h.Endianness {
	case KTXEndianNative:
	case KTXEndianSwapped:
		swap = true
	default:
		return h, fmt.Errorf("%w: 0x%08X", ErrInvalidKTXEndianness, h.Endianness)
	}

	fields := [...]*uint32{
		&h.GLType,
		&h.GLTypeSize,
		&h.GLFormat,
		&h.GLInternalFormat,
		&h.GLBaseInternalFormat,
		&h.PixelWidth,
		&h.PixelHeight,
		&h.PixelDepth,
		&h.ArrayElements,
		&h.Faces,
		&h.MipLevels,
		&h.KeyValueBytes,
	}
	off := 16
	for _, f := range fields {
		v := binary.LittleEndian.Uint32(data[off:])
		if swap {
			v = swap32(v)
		}
		*f = v
		off += 4
	}

	return h, nil
}

// swap32 reverses the byte order of a 32-bit value.
func swap32(v uint32) uint32 {
	return bits.ReverseBytes32(v)
}

// swap16 reverses the byte order of a 16-bit value.
// The KTX 1.1 header has no 16-bit fields; pixel data of 16-bit types may.
func swap16(v uint16) uint16 {
	return bits.ReverseBytes16(v)
}

// KTXSubImage is one addressable region of the pixel data: a mip level of a
// 2D texture, a face of a cube map, or the whole payload for other targets.
type KTXSubImage struct {
	Level  int
	Face   int
	Width  uint32
	Height uint32
	Depth  uint32
	Data   []byte
}

// KTXImage is a decoded KTX file. It is not modified after ParseKTX returns.
type KTXImage struct {
	Header       KTXHeader
	KeyValueData []byte // raw metadata block, see Metadata
	PixelData    []byte
	SubImages    []KTXSubImage
}

// Target returns the texture target. The header was validated on decode.
func (img *KTXImage) Target() KTXTarget {
	t, _ := img.Header.Target()
	return t
}

// Metadata decodes the key/value block.
func (img *KTXImage) Metadata() (map[string][]byte, error) {
	return ParseKTXMetadata(img.KeyValueData, img.Header.Swapped())
}

// NativePixelData returns the pixel data in host (little-endian) element
// order. For files written in the native order, or with 1-byte element
// types, it returns PixelData itself; otherwise a swapped copy.
func (img *KTXImage) NativePixelData() []byte {
	if !img.Header.Swapped() {
		return img.PixelData
	}
	return swapElements(img.PixelData, img.Header.GLTypeSize)
}

// swapElements returns a copy of data with each size-byte element reversed.
// Sizes other than 2 and 4 return data unchanged. A trailing partial
// element is copied as-is.
func swapElements(data []byte, size uint32) []byte {
	switch size {
	case 2:
		out := make([]byte, len(data))
		n := len(out) &^ 1
		for i := 0; i < n; i += 2 {
			binary.LittleEndian.PutUint16(out[i:], swap16(binary.LittleEndian.Uint16(data[i:])))
		}
		copy(out[n:], data[n:])
		return out
	case 4:
		out := make([]byte, len(data))
		n := len(out) &^ 3
		for i := 0; i < n; i += 4 {
			binary.LittleEndian.PutUint32(out[i:], swap32(binary.LittleEndian.Uint32(data[i:])))
		}
		copy(out[n:], data[n:])
		return out
	default:
		return data
	}
}

// ParseKTX parses a KTX file from raw bytes. The returned image references
// data; callers must not modify it afterwards.
func ParseKTX(data []byte) (*KTXImage, error) {
	h, err := decodeKTXHeader(data)
	if err != nil {
		return nil, err
	}

	target, err := h.Target()
	if err != nil {
		return nil, err
	}
	if err := h.checkLayout(); err != nil {
		return nil, err
	}

	rest := data[KTXHeaderSize:]
	if uint64(h.KeyValueBytes) > uint64(len(rest)) {
		return nil, fmt.Errorf("%w: key/value block of %d bytes, %d available",
			ErrTruncatedKTXData, h.KeyValueBytes, len(rest))
	}
	kv := rest[:h.KeyValueBytes:h.KeyValueBytes]
	pixels := rest[h.KeyValueBytes:]

	if h.MipLevels == 0 {
		h.MipLevels = 1
	}

	subs, err := sliceKTX(&h, target, pixels)
	if err != nil {
		return nil, err
	}

	return &KTXImage{
		Header:       h,
		KeyValueData: kv,
		PixelData:    pixels,
		SubImages:    subs,
	}, nil
}

// sliceKTX splits pixel data into sub-images. Uncompressed 2D textures are
// split per mip level, uncompressed cube maps per face (level 0 only).
// Everything else is returned as a single region.
func sliceKTX(h *KTXHeader, target KTXTarget, data []byte) ([]KTXSubImage, error) {
	switch {
	case target == KTXTarget2D && !h.Compressed():
		if Channels(h.GLBaseInternalFormat) == 0 {
			return nil, fmt.Errorf("%w: 0x%04X", ErrInvalidKTXChannels, h.GLBaseInternalFormat)
		}

		subs := make([]KTXSubImage, 0, h.MipLevels)
		width, height := h.PixelWidth, h.PixelHeight
		off := 0
		for level := 0; level < int(h.MipLevels); level++ {
			size, err := regionSize(h.stride(width, 4), height, len(data)-off)
			if err != nil {
				return nil, fmt.Errorf("mip level %d: %w", level, err)
			}
			subs = append(subs, KTXSubImage{
				Level:  level,
				Width:  width,
				Height: height,
				Data:   data[off : off+size : off+size],
			})
			off += size
			width = max(width>>1, 1)
			height = max(height>>1, 1)
		}
		return subs, nil

	case target == KTXTargetCubeMap && !h.Compressed():
		if Channels(h.GLBaseInternalFormat) == 0 {
			return nil, fmt.Errorf("%w: 0x%04X", ErrInvalidKTXChannels, h.GLBaseInternalFormat)
		}

		faceSize, err := regionSize(h.stride(h.PixelWidth, 1), h.PixelHeight, len(data))
		if err != nil {
			return nil, fmt.Errorf("cube face: %w", err)
		}
		if uint64(faceSize)*uint64(h.Faces) > uint64(len(data)) {
			return nil, fmt.Errorf("%w: %d faces of %d bytes, %d available",
				ErrTruncatedKTXData, h.Faces, faceSize, len(data))
		}

		subs := make([]KTXSubImage, 0, h.Faces)
		off := 0
		for face := 0; face < int(h.Faces); face++ {
			subs = append(subs, KTXSubImage{
				Face:   face,
				Width:  h.PixelWidth,
				Height: h.PixelHeight,
				Data:   data[off : off+faceSize : off+faceSize],
			})
			off += faceSize
		}
		return subs, nil

	default:
		return []KTXSubImage{{
			Width:  h.PixelWidth,
			Height: h.PixelHeight,
			Depth:  h.PixelDepth,
			Data:   data,
		}}, nil
	}
}

// regionSize returns stride*rows, failing when it would exceed avail.
func regionSize(stride uint64, rows uint32, avail int) (int, error) {
	if rows != 0 && stride > uint64(avail)/uint64(rows) {
		return 0, fmt.Errorf("%w: need %d x %d bytes, %d available", ErrTruncatedKTXData, stride, rows, avail)
	}
	return int(stride * uint64(rows)), nil
}

// ReadKTX reads and parses a KTX file from r.
func ReadKTX(r io.Reader) (*KTXImage, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: reading KTX: %w", ErrIO, err)
	}
	return ParseKTX(data)
}

// ParseKTXFile parses a KTX file from disk.
func ParseKTXFile(path string) (*KTXImage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading KTX file: %w", ErrIO, err)
	}
	return ParseKTX(data)
}

// EncodeKTX serializes an image in the given byte order. Header fields are
// taken from img.Header; KeyValueBytes is recomputed from KeyValueData.
// Multi-byte metadata sizes and pixel data are written as-is.
func EncodeKTX(img *KTXImage, order binary.AppendByteOrder) []byte {
	h := img.Header
	h.KeyValueBytes = uint32(len(img.KeyValueData))

	b := make([]byte, 0, KTXHeaderSize+len(img.KeyValueData)+len(img.PixelData))
	b = h.appendTo(b, order)
	b = append(b, img.KeyValueData...)
	b = append(b, img.PixelData...)
	return b
}

// WriteKTX writes an image to w in the given byte order.
func WriteKTX(w io.Writer, img *KTXImage, order binary.AppendByteOrder) error {
	if _, err := w.Write(EncodeKTX(img, order)); err != nil {
		return fmt.Errorf("%w: writing KTX: %w", ErrIO, err)
	}
	return nil
}

// ConvertKTX serializes img in the given byte order. Unlike EncodeKTX it
// rewrites metadata lengths and multi-byte pixel elements from the image's
// own order, so the result decodes to the same texels.
func ConvertKTX(img *KTXImage, order binary.AppendByteOrder) ([]byte, error) {
	srcSwapped := img.Header.Swapped()

	kv := make([]byte, 0, len(img.KeyValueData))
	off := 0
	for off < len(img.KeyValueData) {
		if len(img.KeyValueData)-off < 4 {
			return nil, fmt.Errorf("%w: key/value length at offset %d", ErrTruncatedKTXData, off)
		}
		size := binary.LittleEndian.Uint32(img.KeyValueData[off:])
		if srcSwapped {
			size = swap32(size)
		}
		end := off + 4 + align(int(size), 4)
		if uint64(off)+4+uint64(size) > uint64(len(img.KeyValueData)) {
			return nil, fmt.Errorf("%w: key/value pair of %d bytes at offset %d", ErrTruncatedKTXData, size, off)
		}
		kv = order.AppendUint32(kv, size)
		kv = append(kv, img.KeyValueData[off+4:min(end, len(img.KeyValueData))]...)
		off = end
	}

	pixels := img.NativePixelData()
	if bigEndian(order) {
		pixels = swapElements(pixels, img.Header.GLTypeSize)
	}

	return EncodeKTX(&KTXImage{Header: img.Header, KeyValueData: kv, PixelData: pixels}, order), nil
}

func bigEndian(order binary.AppendByteOrder) bool {
	return order.AppendUint16(nil, 1)[0] == 0
}

// ParseKTXMetadata decodes a KTX key/value block. Each entry is a 32-bit
// length, a NUL-terminated UTF-8 key, the value bytes, and padding to a
// 4-byte boundary. Lengths are byte-swapped when swapped is set.
func ParseKTXMetadata(kv []byte, swapped bool) (map[string][]byte, error) {
	result := make(map[string][]byte)

	off := 0
	for off < len(kv) {
		if len(kv)-off < 4 {
			return nil, fmt.Errorf("%w: key/value length at offset %d", ErrTruncatedKTXData, off)
		}
		size := binary.LittleEndian.Uint32(kv[off:])
		if swapped {
			size = swap32(size)
		}
		off += 4

		if uint64(size) > uint64(len(kv)-off) {
			return nil, fmt.Errorf("%w: key/value pair of %d bytes at offset %d", ErrTruncatedKTXData, size, off)
		}
		pair := kv[off : off+int(size)]

		key, value, ok := bytes.Cut(pair, []byte{0})
		if !ok {
			return nil, fmt.Errorf("%w: key/value pair at offset %d has no key terminator", ErrInvalidFormat, off)
		}
		result[encoding.FixedString(key)] = value

		off = min(off+align(int(size), 4), len(kv))
	}

	return result, nil
}

// AppendKTXMetadata appends one key/value entry in the given byte order.
func AppendKTXMetadata(b []byte, key string, value []byte, order binary.AppendByteOrder) []byte {
	size := len(key) + 1 + len(value)
	b = order.AppendUint32(b, uint32(size))
	b = append(b, key...)
	b = append(b, 0)
	b = append(b, value...)
	for i := size; i < align(size, 4); i++ {
		b = append(b, 0)
	}
	return b
}
