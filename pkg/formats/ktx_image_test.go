package formats

import (
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"testing"
)

func TestKTXImage_ImageRGB(t *testing.T) {
	// 3x2 RGB8: rows are 9 bytes padded to 12.
	h := newKTXHeader(3, 2, 0, 0, 0, 1)
	h.GLFormat = glRGB
	h.GLBaseInternalFormat = glRGB
	pixels := []byte{
		1, 2, 3, 4, 5, 6, 7, 8, 9, 0, 0, 0,
		10, 11, 12, 13, 14, 15, 16, 17, 18, 0, 0, 0,
	}

	img, err := ParseKTX(createTestKTX(h, nil, pixels, binary.LittleEndian))
	if err != nil {
		t.Fatalf("ParseKTX failed: %v", err)
	}
	out, err := img.Image(0)
	if err != nil {
		t.Fatalf("Image failed: %v", err)
	}

	if got := out.NRGBAAt(0, 0); got != (color.NRGBA{1, 2, 3, 0xFF}) {
		t.Errorf("(0,0) = %v", got)
	}
	if got := out.NRGBAAt(2, 1); got != (color.NRGBA{16, 17, 18, 0xFF}) {
		t.Errorf("(2,1) = %v", got)
	}
}

func TestKTXImage_ImageBGRAFlipped(t *testing.T) {
	h := newKTXHeader(1, 2, 0, 0, 0, 1)
	h.GLFormat = glBGRA
	kv := AppendKTXMetadata(nil, "KTXorientation", []byte("S=r,T=u\x00"), binary.LittleEndian)
	pixels := []byte{
		1, 2, 3, 4, // bottom row
		5, 6, 7, 8, // top row
	}

	img, err := ParseKTX(createTestKTX(h, kv, pixels, binary.LittleEndian))
	if err != nil {
		t.Fatalf("ParseKTX failed: %v", err)
	}
	out, err := img.Image(0)
	if err != nil {
		t.Fatalf("Image failed: %v", err)
	}

	if got := out.NRGBAAt(0, 0); got != (color.NRGBA{7, 6, 5, 8}) {
		t.Errorf("top = %v", got)
	}
	if got := out.NRGBAAt(0, 1); got != (color.NRGBA{3, 2, 1, 4}) {
		t.Errorf("bottom = %v", got)
	}
}

func TestKTXImage_ImageUnsupported(t *testing.T) {
	cube := newKTXHeader(1, 1, 0, 0, 6, 1)
	short := newKTXHeader(1, 1, 0, 0, 0, 1)
	short.GLType = glUnsignedShort
	short.GLTypeSize = 2

	tests := []struct {
		name   string
		h      KTXHeader
		pixels int
	}{
		{"cube map", cube, 24},
		{"16-bit", short, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := ParseKTX(createTestKTX(tt.h, nil, make([]byte, tt.pixels), binary.LittleEndian))
			if err != nil {
				t.Fatalf("ParseKTX failed: %v", err)
			}
			if _, err := img.Image(0); !errors.Is(err, ErrUnsupportedPixels) {
				t.Errorf("expected ErrUnsupportedPixels, got %v", err)
			}
		})
	}
}

func TestKTXImage_ImageLevelRange(t *testing.T) {
	img, err := ParseKTX(createTestKTX(newKTXHeader(2, 2, 0, 0, 0, 2), nil, make([]byte, 20), binary.LittleEndian))
	if err != nil {
		t.Fatalf("ParseKTX failed: %v", err)
	}
	if _, err := img.Image(1); err != nil {
		t.Errorf("level 1: %v", err)
	}
	if _, err := img.Image(2); err == nil {
		t.Error("expected error for level 2")
	}
}

func TestNewKTX2D(t *testing.T) {
	base := image.NewNRGBA(image.Rect(0, 0, 4, 2))
	base.SetNRGBA(3, 0, color.NRGBA{9, 8, 7, 6})
	small := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	small.SetNRGBA(1, 0, color.NRGBA{1, 2, 3, 4})
	tiny := image.NewNRGBA(image.Rect(0, 0, 1, 1))

	img, err := NewKTX2D([]image.Image{base, small, tiny})
	if err != nil {
		t.Fatalf("NewKTX2D failed: %v", err)
	}
	if len(img.SubImages) != 3 {
		t.Fatalf("expected 3 levels, got %d", len(img.SubImages))
	}
	if n := len(img.SubImages[1].Data); n != 8 {
		t.Errorf("level 1 size %d, want 8", n)
	}

	top, err := img.Image(0)
	if err != nil {
		t.Fatalf("Image(0) failed: %v", err)
	}
	if got := top.NRGBAAt(3, 0); got != (color.NRGBA{9, 8, 7, 6}) {
		t.Errorf("level 0 (3,0) = %v", got)
	}
	mid, err := img.Image(1)
	if err != nil {
		t.Fatalf("Image(1) failed: %v", err)
	}
	if got := mid.NRGBAAt(1, 0); got != (color.NRGBA{1, 2, 3, 4}) {
		t.Errorf("level 1 (1,0) = %v", got)
	}
}

func TestNewKTX2D_BadChain(t *testing.T) {
	base := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	wrong := image.NewNRGBA(image.Rect(0, 0, 3, 2))

	if _, err := NewKTX2D([]image.Image{base, wrong}); err == nil {
		t.Error("expected error for mismatched level size")
	}
	if _, err := NewKTX2D(nil); err == nil {
		t.Error("expected error for no levels")
	}
}

func TestKTXImage_ImageMalformedLevel(t *testing.T) {
	h := newKTXHeader(2, 2, 0, 0, 0, 1)
	zeroSize := h
	zeroSize.GLTypeSize = 0

	tests := []struct {
		name    string
		h       KTXHeader
		data    []byte
		wantErr error
	}{
		{"zero element size", zeroSize, make([]byte, 16), ErrUnsupportedPixels},
		{"empty level", h, nil, ErrTruncated},
		{"short level", h, make([]byte, 12), ErrTruncated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := &KTXImage{
				Header:    tt.h,
				SubImages: []KTXSubImage{{Width: 2, Height: 2, Data: tt.data}},
			}
			if _, err := img.Image(0); !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}
