package formats

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"strings"
)

// ErrUnsupportedPixels is returned when an image conversion meets a texel
// layout it does not handle.
var ErrUnsupportedPixels = errors.New("unsupported pixel layout")

// glRGBA8 is the sized internal format written by NewKTX2D.
const glRGBA8 = 0x8058

// ktxOrientationKey names the metadata entry describing row order.
const ktxOrientationKey = "KTXorientation"

// bottomUp reports whether rows are stored bottom row first, as declared by
// the KTXorientation metadata ("T=u"). Without metadata rows run top-down.
func (img *KTXImage) bottomUp() bool {
	kv, err := img.Metadata()
	if err != nil {
		return false
	}
	return strings.Contains(string(kv[ktxOrientationKey]), "T=u")
}

// Image converts one mip level of an uncompressed 2D texture with 8-bit
// channels to an NRGBA image. Missing channels are filled with 0 for color
// and 0xFF for alpha.
func (img *KTXImage) Image(level int) (*image.NRGBA, error) {
	h := &img.Header
	if img.Target() != KTXTarget2D || h.Compressed() {
		return nil, fmt.Errorf("%w: %s, compressed=%t", ErrUnsupportedPixels, img.Target(), h.Compressed())
	}
	if h.GLType != glUnsignedByte || h.GLTypeSize != 1 {
		return nil, fmt.Errorf("%w: GL type 0x%04X, element size %d", ErrUnsupportedPixels, h.GLType, h.GLTypeSize)
	}
	if level < 0 || level >= len(img.SubImages) {
		return nil, fmt.Errorf("mip level %d out of range [0, %d)", level, len(img.SubImages))
	}

	// Component order follows the client format; base format decides stride.
	channels := Channels(h.GLBaseInternalFormat)
	var order []int // source index for R, G, B, A; -1 when absent
	switch h.GLFormat {
	case glRed:
		order = []int{0, -1, -1, -1}
	case glRG:
		order = []int{0, 1, -1, -1}
	case glRGB:
		order = []int{0, 1, 2, -1}
	case glBGR:
		order = []int{2, 1, 0, -1}
	case glRGBA:
		order = []int{0, 1, 2, 3}
	case glBGRA:
		order = []int{2, 1, 0, 3}
	default:
		return nil, fmt.Errorf("%w: GL format 0x%04X", ErrUnsupportedPixels, h.GLFormat)
	}
	for _, src := range order {
		if src >= channels {
			return nil, fmt.Errorf("%w: format 0x%04X needs more than %d channels", ErrUnsupportedPixels, h.GLFormat, channels)
		}
	}

	sub := img.SubImages[level]
	w, ht := int(sub.Width), int(sub.Height)
	stride := h.stride(sub.Width, 4)
	if ht > 0 && stride > uint64(len(sub.Data))/uint64(ht) {
		return nil, fmt.Errorf("%w: level %d holds %d bytes, need %d x %d",
			ErrTruncatedKTXData, level, len(sub.Data), stride, ht)
	}
	flip := img.bottomUp()

	out := image.NewNRGBA(image.Rect(0, 0, w, ht))
	for y := 0; y < ht; y++ {
		srcY := y
		if flip {
			srcY = ht - 1 - y
		}
		row := sub.Data[uint64(srcY)*stride:]
		dst := out.Pix[y*out.Stride:]
		for x := 0; x < w; x++ {
			px := row[x*channels:]
			for c, src := range order {
				switch {
				case src >= 0:
					dst[x*4+c] = px[src]
				case c == 3:
					dst[x*4+c] = 0xFF
				}
			}
		}
	}
	return out, nil
}

// NewKTX2D builds an RGBA8 2D texture from a mip chain, largest level first.
// Each level must be half the size of the previous one (rounded down, at
// least 1). Rows are stored top-down. The result is fully sliced, as if
// decoded from a file.
func NewKTX2D(levels []image.Image) (*KTXImage, error) {
	if len(levels) == 0 {
		return nil, errors.New("no image levels")
	}

	base := levels[0].Bounds()
	if base.Empty() {
		return nil, errors.New("empty base image")
	}
	width, height := base.Dx(), base.Dy()

	var pixels []byte
	for i, lvl := range levels {
		b := lvl.Bounds()
		if b.Dx() != width || b.Dy() != height {
			return nil, fmt.Errorf("level %d is %dx%d, want %dx%d", i, b.Dx(), b.Dy(), width, height)
		}
		rgba := image.NewNRGBA(image.Rect(0, 0, width, height))
		draw.Draw(rgba, rgba.Bounds(), lvl, b.Min, draw.Src)
		for y := 0; y < height; y++ {
			pixels = append(pixels, rgba.Pix[y*rgba.Stride:y*rgba.Stride+width*4]...)
		}
		width = max(width>>1, 1)
		height = max(height>>1, 1)
	}

	img := &KTXImage{
		Header: KTXHeader{
			Identifier:           ktxIdentifier,
			Endianness:           KTXEndianNative,
			GLType:               glUnsignedByte,
			GLTypeSize:           1,
			GLFormat:             glRGBA,
			GLInternalFormat:     glRGBA8,
			GLBaseInternalFormat: glRGBA,
			PixelWidth:           uint32(base.Dx()),
			PixelHeight:          uint32(base.Dy()),
			MipLevels:            uint32(len(levels)),
		},
		KeyValueData: AppendKTXMetadata(nil, ktxOrientationKey, []byte("S=r,T=d\x00"), binary.LittleEndian),
		PixelData:    pixels,
	}
	return ParseKTX(EncodeKTX(img, binary.LittleEndian))
}
