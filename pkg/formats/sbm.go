// SBM6 chunked mesh format parser.
package formats

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/Faultbox/sb6go/pkg/encoding"
)

// FourCC is a four character code packed little-endian into a uint32.
type FourCC uint32

// String returns the four characters.
func (f FourCC) String() string {
	b := [4]byte{byte(f), byte(f >> 8), byte(f >> 16), byte(f >> 24)}
	for _, c := range b {
		if c < 0x20 || c > 0x7E {
			return fmt.Sprintf("0x%08X", uint32(f))
		}
	}
	return string(b[:])
}

// File magic and chunk tags.
const (
	SBMMagic FourCC = 'S' | 'B'<<8 | '6'<<16 | 'M'<<24

	SBMChunkIndexData     FourCC = 'I' | 'N'<<8 | 'D'<<16 | 'X'<<24
	SBMChunkVertexData    FourCC = 'V' | 'R'<<8 | 'T'<<16 | 'X'<<24
	SBMChunkVertexAttribs FourCC = 'A' | 'T'<<8 | 'R'<<16 | 'B'<<24
	SBMChunkSubObjectList FourCC = 'O' | 'L'<<8 | 'S'<<16 | 'T'<<24
	SBMChunkComment       FourCC = 'C' | 'M'<<8 | 'N'<<16 | 'T'<<24
)

// Record sizes.
const (
	SBMHeaderSize        = 16
	sbmChunkHeaderSize   = 8
	sbmAttribNameSize    = 64
	sbmAttribRecordSize  = sbmAttribNameSize + 5*4
	sbmVertexChunkSize   = sbmChunkHeaderSize + 3*4
	sbmIndexChunkSize    = sbmChunkHeaderSize + 3*4
	sbmSubObjectDeclSize = 8
)

// SBMMaxSubObjects caps the sub-object list; larger counts are clamped.
const SBMMaxSubObjects = 256

// Vertex attribute flags.
const (
	SBMAttribNormalized uint32 = 0x1
	SBMAttribInteger    uint32 = 0x2
)

// SBM format errors.
var (
	ErrInvalidSBMMagic      = fmt.Errorf("%w: bad SBM magic, expected 'SB6M'", ErrInvalidFormat)
	ErrInvalidSBMHeaderSize = fmt.Errorf("%w: SBM header size", ErrInvalidFormat)
	ErrInvalidSBMChunkSize  = fmt.Errorf("%w: SBM chunk size", ErrInvalidFormat)
	ErrInvalidSBMIndexType  = fmt.Errorf("%w: SBM index type", ErrInvalidFormat)
	ErrTruncatedSBMData     = fmt.Errorf("%w: SBM", ErrTruncated)
)

// ChunkError reports a failure inside one chunk of an SBM file.
type ChunkError struct {
	Index  int
	Type   FourCC
	Offset int
	Err    error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %d (%s) at offset %d: %v", e.Index, e.Type, e.Offset, e.Err)
}

func (e *ChunkError) Unwrap() error {
	return e.Err
}

// SBMHeader is the 16-byte file header.
type SBMHeader struct {
	Magic     FourCC
	Size      uint32 // header length; the first chunk starts here
	NumChunks uint32
	Flags     uint32
}

func (h *SBMHeader) appendTo(b []byte) []byte {
	b = binary.LittleEndian.AppendUint32(b, uint32(h.Magic))
	b = binary.LittleEndian.AppendUint32(b, h.Size)
	b = binary.LittleEndian.AppendUint32(b, h.NumChunks)
	return binary.LittleEndian.AppendUint32(b, h.Flags)
}

func decodeSBMHeader(data []byte) (SBMHeader, error) {
	if len(data) < SBMHeaderSize {
		return SBMHeader{}, fmt.Errorf("%w: %d bytes, need %d byte header", ErrTruncatedSBMData, len(data), SBMHeaderSize)
	}
	return SBMHeader{
		Magic:     FourCC(binary.LittleEndian.Uint32(data[0:])),
		Size:      binary.LittleEndian.Uint32(data[4:]),
		NumChunks: binary.LittleEndian.Uint32(data[8:]),
		Flags:     binary.LittleEndian.Uint32(data[12:]),
	}, nil
}

// SBMChunkHeader starts every chunk. Size includes the chunk header.
type SBMChunkHeader struct {
	Type FourCC
	Size uint32
}

func (h *SBMChunkHeader) appendTo(b []byte) []byte {
	b = binary.LittleEndian.AppendUint32(b, uint32(h.Type))
	return binary.LittleEndian.AppendUint32(b, h.Size)
}

func decodeSBMChunkHeader(data []byte) (SBMChunkHeader, error) {
	if len(data) < sbmChunkHeaderSize {
		return SBMChunkHeader{}, fmt.Errorf("%w: chunk header", ErrTruncatedSBMData)
	}
	return SBMChunkHeader{
		Type: FourCC(binary.LittleEndian.Uint32(data[0:])),
		Size: binary.LittleEndian.Uint32(data[4:]),
	}, nil
}

// SBMChunkInfo records where a chunk was found.
type SBMChunkInfo struct {
	SBMChunkHeader
	Offset int
}

// SBMVertexAttrib declares one vertex attribute.
type SBMVertexAttrib struct {
	Name       string
	Size       uint32 // component count
	Type       uint32 // GL component type
	Stride     uint32
	Flags      uint32
	DataOffset uint32 // byte offset into the vertex data
}

// Normalized reports whether fixed-point values are normalized.
func (a *SBMVertexAttrib) Normalized() bool {
	return a.Flags&SBMAttribNormalized != 0
}

// Integer reports whether the attribute is read as integers.
func (a *SBMVertexAttrib) Integer() bool {
	return a.Flags&SBMAttribInteger != 0
}

func (a *SBMVertexAttrib) appendTo(b []byte) []byte {
	var name [sbmAttribNameSize]byte
	encoding.PutFixedString(name[:], a.Name)
	b = append(b, name[:]...)
	b = binary.LittleEndian.AppendUint32(b, a.Size)
	b = binary.LittleEndian.AppendUint32(b, a.Type)
	b = binary.LittleEndian.AppendUint32(b, a.Stride)
	b = binary.LittleEndian.AppendUint32(b, a.Flags)
	return binary.LittleEndian.AppendUint32(b, a.DataOffset)
}

// decodeSBMVertexAttrib reads one record; data must hold sbmAttribRecordSize bytes.
func decodeSBMVertexAttrib(data []byte) SBMVertexAttrib {
	f := data[sbmAttribNameSize:]
	return SBMVertexAttrib{
		Name:       encoding.FixedString(data[:sbmAttribNameSize]),
		Size:       binary.LittleEndian.Uint32(f[0:]),
		Type:       binary.LittleEndian.Uint32(f[4:]),
		Stride:     binary.LittleEndian.Uint32(f[8:]),
		Flags:      binary.LittleEndian.Uint32(f[12:]),
		DataOffset: binary.LittleEndian.Uint32(f[16:]),
	}
}

// SBMVertexData locates the raw vertex bytes within the file.
type SBMVertexData struct {
	DataSize      uint32
	DataOffset    uint32 // from the start of the file
	TotalVertices uint32
}

func (v *SBMVertexData) appendTo(b []byte) []byte {
	b = binary.LittleEndian.AppendUint32(b, v.DataSize)
	b = binary.LittleEndian.AppendUint32(b, v.DataOffset)
	return binary.LittleEndian.AppendUint32(b, v.TotalVertices)
}

// SBMIndexData locates the index buffer within the file.
type SBMIndexData struct {
	IndexType       uint32 // GL_UNSIGNED_BYTE, GL_UNSIGNED_SHORT or GL_UNSIGNED_INT
	IndexCount      uint32
	IndexDataOffset uint32 // from the start of the file
}

// ElementSize returns the byte width of one index, or 0 for an unknown type.
func (d *SBMIndexData) ElementSize() int {
	switch d.IndexType {
	case glUnsignedByte:
		return 1
	case glUnsignedShort:
		return 2
	case glUnsignedInt:
		return 4
	default:
		return 0
	}
}

func (d *SBMIndexData) appendTo(b []byte) []byte {
	b = binary.LittleEndian.AppendUint32(b, d.IndexType)
	b = binary.LittleEndian.AppendUint32(b, d.IndexCount)
	return binary.LittleEndian.AppendUint32(b, d.IndexDataOffset)
}

// SBMSubObject is a contiguous range of vertices (or indices) drawn together.
type SBMSubObject struct {
	First uint32
	Count uint32
}

func (s *SBMSubObject) appendTo(b []byte) []byte {
	b = binary.LittleEndian.AppendUint32(b, s.First)
	return binary.LittleEndian.AppendUint32(b, s.Count)
}

// sbmChunk is the decoded body of one chunk.
type sbmChunk interface {
	apply(m *SBM)
}

type attribChunk struct{ attribs []SBMVertexAttrib }
type vertexChunk struct{ data SBMVertexData }
type indexChunk struct{ data SBMIndexData }
type subObjectChunk struct{ objects []SBMSubObject }
type commentChunk struct{ text []byte }

func (c attribChunk) apply(m *SBM)    { m.Attributes = c.attribs }
func (c vertexChunk) apply(m *SBM)    { m.VertexData = c.data }
func (c indexChunk) apply(m *SBM)     { d := c.data; m.IndexData = &d }
func (c subObjectChunk) apply(m *SBM) { m.SubObjects = c.objects }
func (c commentChunk) apply(m *SBM)   { m.Comments = append(m.Comments, c.text) }

// SBM is a decoded SBM6 file. Vertex and index bytes are not copied; they are
// sliced out of the original buffer on demand.
type SBM struct {
	Header     SBMHeader
	Chunks     []SBMChunkInfo
	Attributes []SBMVertexAttrib
	VertexData SBMVertexData
	IndexData  *SBMIndexData // nil when the mesh is not indexed
	SubObjects []SBMSubObject
	Comments   [][]byte

	raw []byte
}

// NumSubObjects returns the number of sub-objects.
func (m *SBM) NumSubObjects() int {
	return len(m.SubObjects)
}

// VertexBytes returns the raw vertex buffer.
func (m *SBM) VertexBytes() ([]byte, error) {
	return m.region(uint64(m.VertexData.DataOffset), uint64(m.VertexData.DataSize), "vertex data")
}

// IndexBytes returns the raw index buffer, or nil for non-indexed meshes.
func (m *SBM) IndexBytes() ([]byte, error) {
	if m.IndexData == nil {
		return nil, nil
	}
	size := uint64(m.IndexData.IndexCount) * uint64(m.IndexData.ElementSize())
	return m.region(uint64(m.IndexData.IndexDataOffset), size, "index data")
}

// CommentStrings returns the comments as text.
func (m *SBM) CommentStrings() []string {
	out := make([]string, len(m.Comments))
	for i, c := range m.Comments {
		out[i] = encoding.Text(encoding.TrimNullBytes(c))
	}
	return out
}

// Bounds returns the axis-aligned box of the first attribute, taken as the
// position. ok is false unless that attribute is at least three non-integer
// GL_FLOAT components and the model has vertices.
func (m *SBM) Bounds() (lo, hi [3]float32, ok bool) {
	if len(m.Attributes) == 0 || m.VertexData.TotalVertices == 0 {
		return lo, hi, false
	}
	a := m.Attributes[0]
	if a.Type != glFloat || a.Size < 3 || a.Integer() {
		return lo, hi, false
	}
	data, err := m.VertexBytes()
	if err != nil {
		return lo, hi, false
	}

	stride := int(a.Stride)
	if stride == 0 {
		stride = int(a.Size) * 4
	}
	for i := 0; i < int(m.VertexData.TotalVertices); i++ {
		off := int(a.DataOffset) + i*stride
		if off < 0 || off+12 > len(data) {
			break
		}
		var p [3]float32
		for c := range p {
			p[c] = math.Float32frombits(binary.LittleEndian.Uint32(data[off+c*4:]))
		}
		if !ok {
			lo, hi, ok = p, p, true
			continue
		}
		for c := range p {
			lo[c] = min(lo[c], p[c])
			hi[c] = max(hi[c], p[c])
		}
	}
	return lo, hi, ok
}

func (m *SBM) region(off, size uint64, what string) ([]byte, error) {
	if off+size > uint64(len(m.raw)) {
		return nil, fmt.Errorf("%w: %s [%d, %d) beyond %d byte file", ErrTruncatedSBMData, what, off, off+size, len(m.raw))
	}
	return m.raw[off : off+size : off+size], nil
}

// ParseSBM parses an SBM6 file from raw bytes. The returned model references
// data; callers must not modify it afterwards.
func ParseSBM(data []byte) (*SBM, error) {
	h, err := decodeSBMHeader(data)
	if err != nil {
		return nil, err
	}
	if h.Magic != SBMMagic {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidSBMMagic, h.Magic)
	}
	if h.Size < SBMHeaderSize {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSBMHeaderSize, h.Size)
	}

	m := &SBM{
		Header: h,
		raw:    data,
	}

	var sawSubObjects bool
	off := uint64(h.Size)
	for i := 0; i < int(h.NumChunks); i++ {
		if off > uint64(len(data)) {
			return nil, &ChunkError{Index: i, Offset: int(off), Err: fmt.Errorf("%w: chunk starts past end of file", ErrTruncatedSBMData)}
		}
		start := int(off)

		chunk, ch, n, err := readSBMChunk(data, start)
		if err != nil {
			return nil, &ChunkError{Index: i, Type: ch.Type, Offset: start, Err: err}
		}
		if n != int(ch.Size) {
			return nil, &ChunkError{Index: i, Type: ch.Type, Offset: start,
				Err: fmt.Errorf("%w: consumed %d bytes, declared %d", ErrInvalidSBMChunkSize, n, ch.Size)}
		}

		chunk.apply(m)
		if _, ok := chunk.(subObjectChunk); ok {
			sawSubObjects = true
		}
		m.Chunks = append(m.Chunks, SBMChunkInfo{SBMChunkHeader: ch, Offset: start})
		off += uint64(n)
	}

	if !sawSubObjects {
		m.SubObjects = []SBMSubObject{{First: 0, Count: m.VertexData.TotalVertices}}
	}

	return m, nil
}

// readSBMChunk peeks the chunk header at off and dispatches to the reader for
// its type. It returns the decoded chunk and the number of bytes consumed,
// header included.
func readSBMChunk(data []byte, off int) (sbmChunk, SBMChunkHeader, int, error) {
	ch, err := decodeSBMChunkHeader(data[off:])
	if err != nil {
		return nil, ch, 0, err
	}
	switch ch.Type {
	case SBMChunkVertexAttribs, SBMChunkVertexData, SBMChunkIndexData, SBMChunkSubObjectList, SBMChunkComment:
	default:
		return nil, ch, 0, fmt.Errorf("%w: %s", ErrUnknownChunk, ch.Type)
	}
	if ch.Size < sbmChunkHeaderSize {
		return nil, ch, 0, fmt.Errorf("%w: %d is smaller than the chunk header", ErrInvalidSBMChunkSize, ch.Size)
	}
	if uint64(ch.Size) > uint64(len(data)-off) {
		return nil, ch, 0, fmt.Errorf("%w: %d byte chunk, %d bytes left", ErrTruncatedSBMData, ch.Size, len(data)-off)
	}
	body := data[off : off+int(ch.Size)]

	var (
		chunk sbmChunk
		n     int
	)
	switch ch.Type {
	case SBMChunkVertexAttribs:
		chunk, n, err = readAttribChunk(body)
	case SBMChunkVertexData:
		chunk, n, err = readVertexChunk(body)
	case SBMChunkIndexData:
		chunk, n, err = readIndexChunk(body)
	case SBMChunkSubObjectList:
		chunk, n, err = readSubObjectChunk(body)
	case SBMChunkComment:
		chunk, n, err = readCommentChunk(body)
	}
	return chunk, ch, n, err
}

// need fails when a chunk body is shorter than its fixed content.
func need(body []byte, size uint64, what string) error {
	if size > uint64(len(body)) {
		return fmt.Errorf("%w: %s needs %d bytes, chunk holds %d", ErrInvalidSBMChunkSize, what, size, len(body))
	}
	return nil
}

func readAttribChunk(body []byte) (sbmChunk, int, error) {
	if err := need(body, sbmChunkHeaderSize+4, "attribute count"); err != nil {
		return nil, 0, err
	}
	count := binary.LittleEndian.Uint32(body[sbmChunkHeaderSize:])
	size := sbmChunkHeaderSize + 4 + uint64(count)*sbmAttribRecordSize
	if err := need(body, size, "attribute records"); err != nil {
		return nil, 0, err
	}

	attribs := make([]SBMVertexAttrib, count)
	rec := body[sbmChunkHeaderSize+4:]
	for i := range attribs {
		attribs[i] = decodeSBMVertexAttrib(rec[i*sbmAttribRecordSize:])
	}
	return attribChunk{attribs: attribs}, int(size), nil
}

func readVertexChunk(body []byte) (sbmChunk, int, error) {
	if err := need(body, sbmVertexChunkSize, "vertex data record"); err != nil {
		return nil, 0, err
	}
	f := body[sbmChunkHeaderSize:]
	return vertexChunk{data: SBMVertexData{
		DataSize:      binary.LittleEndian.Uint32(f[0:]),
		DataOffset:    binary.LittleEndian.Uint32(f[4:]),
		TotalVertices: binary.LittleEndian.Uint32(f[8:]),
	}}, sbmVertexChunkSize, nil
}

func readIndexChunk(body []byte) (sbmChunk, int, error) {
	if err := need(body, sbmIndexChunkSize, "index data record"); err != nil {
		return nil, 0, err
	}
	f := body[sbmChunkHeaderSize:]
	d := SBMIndexData{
		IndexType:       binary.LittleEndian.Uint32(f[0:]),
		IndexCount:      binary.LittleEndian.Uint32(f[4:]),
		IndexDataOffset: binary.LittleEndian.Uint32(f[8:]),
	}
	if d.ElementSize() == 0 {
		return nil, 0, fmt.Errorf("%w: 0x%04X", ErrInvalidSBMIndexType, d.IndexType)
	}
	return indexChunk{data: d}, sbmIndexChunkSize, nil
}

func readSubObjectChunk(body []byte) (sbmChunk, int, error) {
	if err := need(body, sbmChunkHeaderSize+4, "sub-object count"); err != nil {
		return nil, 0, err
	}
	// The whole declared list is consumed; entries past the cap are dropped.
	declared := binary.LittleEndian.Uint32(body[sbmChunkHeaderSize:])
	size := sbmChunkHeaderSize + 4 + uint64(declared)*sbmSubObjectDeclSize
	if err := need(body, size, "sub-object list"); err != nil {
		return nil, 0, err
	}

	objects := make([]SBMSubObject, min(declared, SBMMaxSubObjects))
	decl := body[sbmChunkHeaderSize+4:]
	for i := range objects {
		objects[i] = SBMSubObject{
			First: binary.LittleEndian.Uint32(decl[i*sbmSubObjectDeclSize:]),
			Count: binary.LittleEndian.Uint32(decl[i*sbmSubObjectDeclSize+4:]),
		}
	}
	return subObjectChunk{objects: objects}, int(size), nil
}

func readCommentChunk(body []byte) (sbmChunk, int, error) {
	text := body[sbmChunkHeaderSize:]
	return commentChunk{text: text[:len(text):len(text)]}, len(body), nil
}

// ReadSBM reads and parses an SBM6 file from r.
func ReadSBM(r io.Reader) (*SBM, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: reading SBM: %w", ErrIO, err)
	}
	return ParseSBM(data)
}

// ParseSBMFile parses an SBM6 file from disk.
func ParseSBMFile(path string) (*SBM, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading SBM file: %w", ErrIO, err)
	}
	return ParseSBM(data)
}
