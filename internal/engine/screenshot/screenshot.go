// Package screenshot saves captured framebuffers as KTX, PNG or BMP files.
package screenshot

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/image/bmp"

	"github.com/Faultbox/sb6go/pkg/formats"
)

// GL enums for an RGBA8 image.
const (
	glUnsignedByte = 0x1401
	glRGBA         = 0x1908
	glRGBA8        = 0x8058
)

// Format selects the output file type.
type Format string

const (
	FormatKTX Format = "ktx"
	FormatPNG Format = "png"
	FormatBMP Format = "bmp"
)

// Capture writes screenshots into a directory.
type Capture struct {
	outputDir string
	prefix    string
	format    Format
	now       func() time.Time
}

// New creates a capture handler. An empty dir writes to the working directory.
func New(outputDir, prefix string, format Format) (*Capture, error) {
	switch format {
	case FormatKTX, FormatPNG, FormatBMP:
	default:
		return nil, fmt.Errorf("unsupported screenshot format %q", format)
	}
	return &Capture{
		outputDir: outputDir,
		prefix:    prefix,
		format:    format,
		now:       time.Now,
	}, nil
}

// Filename returns the name the next capture would be written to.
func (c *Capture) Filename() string {
	name := fmt.Sprintf("%s_%s.%s", c.prefix, c.now().Format("2006-01-02_15-04-05"), c.format)
	if c.outputDir != "" {
		name = filepath.Join(c.outputDir, name)
	}
	return name
}

// Save writes pixels, RGBA8 rows with the bottom row first as read back
// from OpenGL, and returns the written path.
func (c *Capture) Save(pixels []byte, width, height int) (string, error) {
	if width <= 0 || height <= 0 {
		return "", fmt.Errorf("invalid capture size %dx%d", width, height)
	}
	if len(pixels) != width*height*4 {
		return "", fmt.Errorf("pixel data size mismatch: expected %d, got %d", width*height*4, len(pixels))
	}

	if c.outputDir != "" {
		if err := os.MkdirAll(c.outputDir, 0755); err != nil {
			return "", fmt.Errorf("creating output dir: %w", err)
		}
	}

	filename := c.Filename()
	file, err := os.Create(filename)
	if err != nil {
		return "", fmt.Errorf("creating file: %w", err)
	}
	defer file.Close()

	switch c.format {
	case FormatKTX:
		err = formats.WriteKTX(file, KTXImage(pixels, width, height), binary.LittleEndian)
	case FormatPNG:
		err = png.Encode(file, Image(pixels, width, height))
	case FormatBMP:
		err = bmp.Encode(file, Image(pixels, width, height))
	}
	if err != nil {
		return "", fmt.Errorf("encoding %s: %w", strings.ToUpper(string(c.format)), err)
	}
	return filename, nil
}

// KTXImage wraps bottom-up RGBA8 pixels as a single-level 2D KTX image.
// KTX stores rows bottom-up as well, so no flip is needed.
func KTXImage(pixels []byte, width, height int) *formats.KTXImage {
	kv := formats.AppendKTXMetadata(nil, "KTXorientation", []byte("S=r,T=u\x00"), binary.LittleEndian)
	return &formats.KTXImage{
		Header: formats.KTXHeader{
			GLType:               glUnsignedByte,
			GLTypeSize:           1,
			GLFormat:             glRGBA,
			GLInternalFormat:     glRGBA8,
			GLBaseInternalFormat: glRGBA,
			PixelWidth:           uint32(width),
			PixelHeight:          uint32(height),
			MipLevels:            1,
		},
		KeyValueData: kv,
		PixelData:    pixels,
	}
}

// Image converts bottom-up RGBA8 pixels to a top-down image.
func Image(pixels []byte, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	rowSize := width * 4
	for y := 0; y < height; y++ {
		src := (height - 1 - y) * rowSize
		dst := y * img.Stride
		copy(img.Pix[dst:dst+rowSize], pixels[src:src+rowSize])
	}
	return img
}
