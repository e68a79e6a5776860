package formats

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"testing/iotest"
)

// makeChunk wraps body in a chunk header sized to fit it.
func makeChunk(tag FourCC, body []byte) []byte {
	ch := SBMChunkHeader{Type: tag, Size: uint32(sbmChunkHeaderSize + len(body))}
	return append(ch.appendTo(nil), body...)
}

func makeAttribChunk(attrs ...SBMVertexAttrib) []byte {
	body := binary.LittleEndian.AppendUint32(nil, uint32(len(attrs)))
	for i := range attrs {
		body = attrs[i].appendTo(body)
	}
	return makeChunk(SBMChunkVertexAttribs, body)
}

func makeVertexChunk(v SBMVertexData) []byte {
	return makeChunk(SBMChunkVertexData, v.appendTo(nil))
}

func makeIndexChunk(d SBMIndexData) []byte {
	return makeChunk(SBMChunkIndexData, d.appendTo(nil))
}

// makeSubObjectChunk writes count followed by objs; count may differ from len(objs).
func makeSubObjectChunk(count uint32, objs ...SBMSubObject) []byte {
	body := binary.LittleEndian.AppendUint32(nil, count)
	for i := range objs {
		body = objs[i].appendTo(body)
	}
	return makeChunk(SBMChunkSubObjectList, body)
}

func makeCommentChunk(text string) []byte {
	return makeChunk(SBMChunkComment, []byte(text))
}

// createTestSBM builds a file from chunks followed by payload bytes.
func createTestSBM(payload []byte, chunks ...[]byte) []byte {
	h := SBMHeader{
		Magic:     SBMMagic,
		Size:      SBMHeaderSize,
		NumChunks: uint32(len(chunks)),
	}
	buf := h.appendTo(nil)
	for _, c := range chunks {
		buf = append(buf, c...)
	}
	return append(buf, payload...)
}

func TestParseSBM_NoChunks(t *testing.T) {
	m, err := ParseSBM(createTestSBM(nil))
	if err != nil {
		t.Fatalf("ParseSBM failed: %v", err)
	}

	if m.NumSubObjects() != 1 {
		t.Fatalf("expected 1 synthetic sub-object, got %d", m.NumSubObjects())
	}
	if m.SubObjects[0] != (SBMSubObject{First: 0, Count: 0}) {
		t.Errorf("expected {0, 0}, got %+v", m.SubObjects[0])
	}
	if m.IndexData != nil {
		t.Error("expected no index data")
	}
	if len(m.Chunks) != 0 {
		t.Errorf("expected no chunks, got %d", len(m.Chunks))
	}
}

func TestParseSBM_VertexDataOnly(t *testing.T) {
	vertices := sequence(36)
	data := createTestSBM(vertices, makeVertexChunk(SBMVertexData{
		DataSize:      36,
		DataOffset:    SBMHeaderSize + sbmVertexChunkSize,
		TotalVertices: 3,
	}))

	m, err := ParseSBM(data)
	if err != nil {
		t.Fatalf("ParseSBM failed: %v", err)
	}

	if m.NumSubObjects() != 1 {
		t.Fatalf("expected 1 sub-object, got %d", m.NumSubObjects())
	}
	if m.SubObjects[0] != (SBMSubObject{First: 0, Count: 3}) {
		t.Errorf("expected {0, 3}, got %+v", m.SubObjects[0])
	}
	if m.IndexData != nil {
		t.Errorf("expected no index data, got %+v", m.IndexData)
	}

	raw, err := m.VertexBytes()
	if err != nil {
		t.Fatalf("VertexBytes failed: %v", err)
	}
	if !bytes.Equal(raw, vertices) {
		t.Error("vertex bytes mismatch")
	}

	idx, err := m.IndexBytes()
	if err != nil || idx != nil {
		t.Errorf("expected nil index bytes, got %v, %v", idx, err)
	}
}

func TestParseSBM_FullModel(t *testing.T) {
	attrs := []SBMVertexAttrib{
		{Name: "position", Size: 4, Type: glFloat, DataOffset: 0},
		{Name: "normal", Size: 3, Type: glFloat, Flags: SBMAttribNormalized, DataOffset: 48},
		{Name: "bone", Size: 1, Type: glUnsignedInt, Flags: SBMAttribInteger, DataOffset: 84},
	}

	// Header, ATRB(3), VRTX, INDX, OLST(2), CMNT("made by hand").
	chunkBytes := (sbmChunkHeaderSize + 4 + 3*sbmAttribRecordSize) +
		sbmVertexChunkSize + sbmIndexChunkSize +
		(sbmChunkHeaderSize + 4 + 2*sbmSubObjectDeclSize) +
		(sbmChunkHeaderSize + len("made by hand"))
	vertexOffset := uint32(SBMHeaderSize + chunkBytes)

	vertices := sequence(96)
	indices := []byte{0, 0, 1, 0, 2, 0, 2, 0, 1, 0, 0, 0}

	data := createTestSBM(append(append([]byte{}, vertices...), indices...),
		makeAttribChunk(attrs...),
		makeVertexChunk(SBMVertexData{DataSize: 96, DataOffset: vertexOffset, TotalVertices: 3}),
		makeIndexChunk(SBMIndexData{IndexType: glUnsignedShort, IndexCount: 6, IndexDataOffset: vertexOffset + 96}),
		makeSubObjectChunk(2, SBMSubObject{First: 0, Count: 3}, SBMSubObject{First: 3, Count: 3}),
		makeCommentChunk("made by hand"),
	)

	m, err := ParseSBM(data)
	if err != nil {
		t.Fatalf("ParseSBM failed: %v", err)
	}

	if len(m.Attributes) != 3 {
		t.Fatalf("expected 3 attributes, got %d", len(m.Attributes))
	}
	for i, want := range attrs {
		if m.Attributes[i] != want {
			t.Errorf("attribute %d: got %+v, want %+v", i, m.Attributes[i], want)
		}
	}
	if !m.Attributes[1].Normalized() || m.Attributes[1].Integer() {
		t.Error("normal should be normalized and not integer")
	}
	if !m.Attributes[2].Integer() {
		t.Error("bone should be integer")
	}

	if m.IndexData == nil {
		t.Fatal("expected index data")
	}
	if m.IndexData.ElementSize() != 2 {
		t.Errorf("expected 2 byte indices, got %d", m.IndexData.ElementSize())
	}
	idx, err := m.IndexBytes()
	if err != nil {
		t.Fatalf("IndexBytes failed: %v", err)
	}
	if !bytes.Equal(idx, indices) {
		t.Errorf("index bytes mismatch: %v", idx)
	}

	if m.NumSubObjects() != 2 || m.SubObjects[1] != (SBMSubObject{First: 3, Count: 3}) {
		t.Errorf("unexpected sub-objects: %+v", m.SubObjects)
	}

	comments := m.CommentStrings()
	if len(comments) != 1 || comments[0] != "made by hand" {
		t.Errorf("unexpected comments: %q", comments)
	}

	wantOrder := []FourCC{SBMChunkVertexAttribs, SBMChunkVertexData, SBMChunkIndexData, SBMChunkSubObjectList, SBMChunkComment}
	if len(m.Chunks) != len(wantOrder) {
		t.Fatalf("expected %d chunks, got %d", len(wantOrder), len(m.Chunks))
	}
	for i, tag := range wantOrder {
		if m.Chunks[i].Type != tag {
			t.Errorf("chunk %d: expected %s, got %s", i, tag, m.Chunks[i].Type)
		}
	}
	if m.Chunks[0].Offset != SBMHeaderSize {
		t.Errorf("first chunk should start at %d, got %d", SBMHeaderSize, m.Chunks[0].Offset)
	}
}

func TestParseSBM_SubObjectClamp(t *testing.T) {
	objs := make([]SBMSubObject, 500)
	for i := range objs {
		objs[i] = SBMSubObject{First: uint32(i * 3), Count: 3}
	}

	m, err := ParseSBM(createTestSBM(nil,
		makeSubObjectChunk(500, objs...),
		makeCommentChunk("after the list"),
	))
	if err != nil {
		t.Fatalf("ParseSBM failed: %v", err)
	}

	if m.NumSubObjects() != SBMMaxSubObjects {
		t.Fatalf("expected %d sub-objects, got %d", SBMMaxSubObjects, m.NumSubObjects())
	}
	if m.SubObjects[255] != objs[255] {
		t.Errorf("last kept sub-object: got %+v, want %+v", m.SubObjects[255], objs[255])
	}
	if len(m.Comments) != 1 {
		t.Error("chunk after an oversized list should still be read")
	}
}

func TestParseSBM_SubObjectListShorterThanCount(t *testing.T) {
	// Count overstates the entries; the clamped count would fit, the declared one does not.
	objs := make([]SBMSubObject, SBMMaxSubObjects)
	_, err := ParseSBM(createTestSBM(nil, makeSubObjectChunk(500, objs...)))
	if !errors.Is(err, ErrInvalidSBMChunkSize) {
		t.Errorf("expected ErrInvalidSBMChunkSize, got %v", err)
	}
}

func TestParseSBM_EmptySubObjectList(t *testing.T) {
	m, err := ParseSBM(createTestSBM(nil,
		makeVertexChunk(SBMVertexData{TotalVertices: 3}),
		makeSubObjectChunk(0),
	))
	if err != nil {
		t.Fatalf("ParseSBM failed: %v", err)
	}
	if m.NumSubObjects() != 0 {
		t.Errorf("explicit empty list should not be replaced, got %d sub-objects", m.NumSubObjects())
	}
}

func TestParseSBM_UnknownChunk(t *testing.T) {
	bogus := FourCC('B' | 'O'<<8 | 'G'<<16 | 'U'<<24)
	data := createTestSBM(nil,
		makeCommentChunk("first"),
		makeChunk(bogus, []byte{1, 2, 3, 4}),
	)

	_, err := ParseSBM(data)
	if !errors.Is(err, ErrUnknownChunk) {
		t.Fatalf("expected ErrUnknownChunk, got %v", err)
	}

	var chunkErr *ChunkError
	if !errors.As(err, &chunkErr) {
		t.Fatalf("expected *ChunkError, got %T", err)
	}
	if chunkErr.Index != 1 {
		t.Errorf("expected chunk index 1, got %d", chunkErr.Index)
	}
	if chunkErr.Type != bogus {
		t.Errorf("expected type %s, got %s", bogus, chunkErr.Type)
	}
}

func TestParseSBM_UnknownChunkBeatsTruncation(t *testing.T) {
	data := createTestSBM(nil, makeChunk(FourCC(0x12345678), nil))
	binary.LittleEndian.PutUint32(data[SBMHeaderSize+4:], 4096)

	if _, err := ParseSBM(data); !errors.Is(err, ErrUnknownChunk) {
		t.Errorf("expected ErrUnknownChunk, got %v", err)
	}
}

func TestParseSBM_MissingChunks(t *testing.T) {
	data := createTestSBM(nil, makeCommentChunk("only one"))
	binary.LittleEndian.PutUint32(data[8:], 2)

	_, err := ParseSBM(data)
	if !errors.Is(err, ErrTruncated) {
		t.Errorf("expected ErrTruncated, got %v", err)
	}
}

func TestParseSBM_InvalidHeader(t *testing.T) {
	tests := []struct {
		name    string
		data    func() []byte
		wantErr error
	}{
		{
			name:    "empty",
			data:    func() []byte { return nil },
			wantErr: ErrTruncated,
		},
		{
			name:    "short header",
			data:    func() []byte { return createTestSBM(nil)[:10] },
			wantErr: ErrTruncated,
		},
		{
			name: "bad magic",
			data: func() []byte {
				d := createTestSBM(nil)
				copy(d, "SB5M")
				return d
			},
			wantErr: ErrInvalidSBMMagic,
		},
		{
			name: "header size too small",
			data: func() []byte {
				d := createTestSBM(nil)
				binary.LittleEndian.PutUint32(d[4:], 8)
				return d
			},
			wantErr: ErrInvalidSBMHeaderSize,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSBM(tt.data())
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestParseSBM_LargerHeader(t *testing.T) {
	d := createTestSBM(nil)
	binary.LittleEndian.PutUint32(d[4:], 24)
	binary.LittleEndian.PutUint32(d[8:], 1)
	d = append(d, make([]byte, 8)...)
	d = append(d, makeCommentChunk("x")...)

	m, err := ParseSBM(d)
	if err != nil {
		t.Fatalf("ParseSBM failed: %v", err)
	}
	if len(m.Chunks) != 1 || m.Chunks[0].Offset != 24 {
		t.Errorf("expected one chunk at offset 24, got %+v", m.Chunks)
	}
}

func TestParseSBM_IndexTypes(t *testing.T) {
	tests := []struct {
		name     string
		typ      uint32
		wantSize int
		wantErr  bool
	}{
		{"unsigned byte", glUnsignedByte, 1, false},
		{"unsigned short", glUnsignedShort, 2, false},
		{"unsigned int", glUnsignedInt, 4, false},
		{"float", glFloat, 0, true},
		{"zero", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := ParseSBM(createTestSBM(nil, makeIndexChunk(SBMIndexData{IndexType: tt.typ})))
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidSBMIndexType) {
					t.Errorf("expected ErrInvalidSBMIndexType, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSBM failed: %v", err)
			}
			if got := m.IndexData.ElementSize(); got != tt.wantSize {
				t.Errorf("expected element size %d, got %d", tt.wantSize, got)
			}
		})
	}
}

func TestParseSBM_AttributeNames(t *testing.T) {
	long := bytes.Repeat([]byte{'a'}, sbmAttribNameSize)

	body := binary.LittleEndian.AppendUint32(nil, 2)
	name := make([]byte, sbmAttribNameSize)
	copy(name, "uv\x00garbage")
	body = append(body, name...)
	body = append(body, make([]byte, 20)...)
	body = append(body, long...)
	body = append(body, make([]byte, 20)...)

	m, err := ParseSBM(createTestSBM(nil, makeChunk(SBMChunkVertexAttribs, body)))
	if err != nil {
		t.Fatalf("ParseSBM failed: %v", err)
	}
	if m.Attributes[0].Name != "uv" {
		t.Errorf("expected %q, got %q", "uv", m.Attributes[0].Name)
	}
	if m.Attributes[1].Name != string(long) {
		t.Errorf("expected full 64 character name, got %q", m.Attributes[1].Name)
	}
}

func TestParseSBM_ChunkSizeViolations(t *testing.T) {
	tests := []struct {
		name    string
		chunk   func() []byte
		wantErr error
	}{
		{
			name: "attribute count larger than chunk",
			chunk: func() []byte {
				c := makeAttribChunk(SBMVertexAttrib{Name: "position"})
				binary.LittleEndian.PutUint32(c[8:], 2)
				return c
			},
			wantErr: ErrInvalidSBMChunkSize,
		},
		{
			name: "vertex record cut short",
			chunk: func() []byte {
				return makeChunk(SBMChunkVertexData, make([]byte, 8))
			},
			wantErr: ErrInvalidSBMChunkSize,
		},
		{
			name: "vertex record padded",
			chunk: func() []byte {
				return makeChunk(SBMChunkVertexData, append(new(SBMVertexData).appendTo(nil), make([]byte, 44)...))
			},
			wantErr: ErrInvalidSBMChunkSize,
		},
		{
			name: "index record padded",
			chunk: func() []byte {
				d := SBMIndexData{IndexType: glUnsignedShort}
				return makeChunk(SBMChunkIndexData, append(d.appendTo(nil), 0, 0, 0, 0))
			},
			wantErr: ErrInvalidSBMChunkSize,
		},
		{
			name: "attribute count smaller than chunk",
			chunk: func() []byte {
				c := makeAttribChunk(SBMVertexAttrib{Name: "position"}, SBMVertexAttrib{Name: "normal"})
				binary.LittleEndian.PutUint32(c[8:], 1)
				return c
			},
			wantErr: ErrInvalidSBMChunkSize,
		},
		{
			name: "sub-object list padded",
			chunk: func() []byte {
				c := makeSubObjectChunk(2, SBMSubObject{Count: 3}, SBMSubObject{First: 3, Count: 3})
				binary.LittleEndian.PutUint32(c[8:], 1)
				return c
			},
			wantErr: ErrInvalidSBMChunkSize,
		},
		{
			name: "size below chunk header",
			chunk: func() []byte {
				c := makeCommentChunk("")
				binary.LittleEndian.PutUint32(c[4:], 4)
				return c
			},
			wantErr: ErrInvalidSBMChunkSize,
		},
		{
			name: "size past end of file",
			chunk: func() []byte {
				c := makeCommentChunk("abc")
				binary.LittleEndian.PutUint32(c[4:], 64)
				return c
			},
			wantErr: ErrTruncated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSBM(createTestSBM(nil, tt.chunk()))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestSBM_VertexBytesOutOfRange(t *testing.T) {
	m, err := ParseSBM(createTestSBM(nil, makeVertexChunk(SBMVertexData{DataSize: 100, DataOffset: 36, TotalVertices: 1})))
	if err != nil {
		t.Fatalf("ParseSBM failed: %v", err)
	}
	if _, err := m.VertexBytes(); !errors.Is(err, ErrTruncated) {
		t.Errorf("expected ErrTruncated, got %v", err)
	}
}

func TestFourCC_String(t *testing.T) {
	if SBMChunkVertexAttribs.String() != "ATRB" {
		t.Errorf("expected ATRB, got %s", SBMChunkVertexAttribs)
	}
	if SBMMagic.String() != "SB6M" {
		t.Errorf("expected SB6M, got %s", SBMMagic)
	}
	if got := FourCC(0x00000001).String(); got != "0x00000001" {
		t.Errorf("expected hex for unprintable code, got %s", got)
	}
}

func TestParseSBMFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mesh.sbm")
	if err := os.WriteFile(path, createTestSBM(nil, makeCommentChunk("disk")), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	m, err := ParseSBMFile(path)
	if err != nil {
		t.Fatalf("ParseSBMFile failed: %v", err)
	}
	if len(m.Comments) != 1 {
		t.Errorf("expected 1 comment, got %d", len(m.Comments))
	}

	if _, err := ParseSBMFile(filepath.Join(t.TempDir(), "missing.sbm")); !errors.Is(err, ErrIO) {
		t.Errorf("expected ErrIO, got %v", err)
	}
	if _, err := ReadSBM(iotest.ErrReader(errors.New("boom"))); !errors.Is(err, ErrIO) {
		t.Errorf("expected ErrIO from ReadSBM, got %v", err)
	}
}

func floats(vs ...float32) []byte {
	var b []byte
	for _, v := range vs {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(v))
	}
	return b
}

func TestSBM_Bounds(t *testing.T) {
	// Interleaved vec3 position + vec2 texcoord, 20 byte stride.
	vertices := floats(
		1, -2, 3, 0, 0,
		-4, 5, 0.5, 1, 0,
		2, 0, -6, 1, 1,
	)
	attrChunk := makeAttribChunk(
		SBMVertexAttrib{Name: "position", Size: 3, Type: glFloat, Stride: 20},
		SBMVertexAttrib{Name: "texcoord", Size: 2, Type: glFloat, Stride: 20, DataOffset: 12},
	)
	vertexOffset := SBMHeaderSize + len(attrChunk) + sbmVertexChunkSize
	data := createTestSBM(vertices, attrChunk, makeVertexChunk(SBMVertexData{
		DataSize:      uint32(len(vertices)),
		DataOffset:    uint32(vertexOffset),
		TotalVertices: 3,
	}))

	m, err := ParseSBM(data)
	if err != nil {
		t.Fatalf("ParseSBM failed: %v", err)
	}

	lo, hi, ok := m.Bounds()
	if !ok {
		t.Fatal("expected bounds")
	}
	if lo != [3]float32{-4, -2, -6} || hi != [3]float32{2, 5, 3} {
		t.Errorf("got %v..%v", lo, hi)
	}
}

func TestSBM_BoundsUnavailable(t *testing.T) {
	tests := []struct {
		name   string
		attr   SBMVertexAttrib
		verts  uint32
		nbytes int
	}{
		{"byte positions", SBMVertexAttrib{Size: 3, Type: glUnsignedByte}, 1, 12},
		{"two components", SBMVertexAttrib{Size: 2, Type: glFloat}, 1, 12},
		{"integer flag", SBMVertexAttrib{Size: 3, Type: glFloat, Flags: SBMAttribInteger}, 1, 12},
		{"no vertices", SBMVertexAttrib{Size: 3, Type: glFloat}, 0, 12},
		{"data too short", SBMVertexAttrib{Size: 3, Type: glFloat}, 1, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrChunk := makeAttribChunk(tt.attr)
			vertexOffset := SBMHeaderSize + len(attrChunk) + sbmVertexChunkSize
			data := createTestSBM(make([]byte, tt.nbytes), attrChunk, makeVertexChunk(SBMVertexData{
				DataSize:      uint32(tt.nbytes),
				DataOffset:    uint32(vertexOffset),
				TotalVertices: tt.verts,
			}))

			m, err := ParseSBM(data)
			if err != nil {
				t.Fatalf("ParseSBM failed: %v", err)
			}
			if _, _, ok := m.Bounds(); ok {
				t.Error("expected no bounds")
			}
		})
	}
}
