// Package texture uploads decoded texture files to OpenGL.
package texture

import (
	"fmt"
	"unsafe"

	"github.com/go-gl/gl/v4.1-core/gl"
	"go.uber.org/zap"

	"github.com/Faultbox/sb6go/internal/logger"
	"github.com/Faultbox/sb6go/pkg/formats"
)

// Texture is a GL texture object created from a KTX image.
type Texture struct {
	ID     uint32
	Target uint32
	Width  int32
	Height int32
	Levels int32
}

// FromKTX creates a texture from a decoded KTX image.
// IMPORTANT: requires a current OpenGL context.
func FromKTX(img *formats.KTXImage) (*Texture, error) {
	h := &img.Header
	target, err := h.Target()
	if err != nil {
		return nil, err
	}
	if h.Compressed() && target != formats.KTXTarget2D {
		return nil, fmt.Errorf("compressed %s textures are not supported", target)
	}
	if len(img.SubImages) == 0 {
		return nil, fmt.Errorf("%s texture has no image data", target)
	}

	tex := &Texture{
		Target: uint32(target),
		Width:  int32(h.PixelWidth),
		Height: int32(max(h.PixelHeight, 1)),
		Levels: int32(h.MipLevels),
	}

	gl.GenTextures(1, &tex.ID)
	gl.BindTexture(tex.Target, tex.ID)

	// Swapped files carry pixel data in the writer's byte order.
	if h.Swapped() {
		gl.PixelStorei(gl.UNPACK_SWAP_BYTES, gl.TRUE)
		defer gl.PixelStorei(gl.UNPACK_SWAP_BYTES, gl.FALSE)
	}
	defer gl.PixelStorei(gl.UNPACK_ALIGNMENT, 4)

	internal := int32(h.GLInternalFormat)
	whole := img.SubImages[0].Data

	switch target {
	case formats.KTXTarget1D:
		gl.PixelStorei(gl.UNPACK_ALIGNMENT, 4)
		gl.TexImage1D(gl.TEXTURE_1D, 0, internal, tex.Width, 0, h.GLFormat, h.GLType, ptr(whole))

	case formats.KTXTarget1DArray:
		gl.PixelStorei(gl.UNPACK_ALIGNMENT, 4)
		gl.TexImage2D(gl.TEXTURE_1D_ARRAY, 0, internal, tex.Width, int32(h.ArrayElements), 0,
			h.GLFormat, h.GLType, ptr(whole))

	case formats.KTXTarget2D:
		if h.Compressed() {
			gl.CompressedTexImage2D(gl.TEXTURE_2D, 0, h.GLInternalFormat, tex.Width, tex.Height, 0,
				int32(len(whole)), ptr(whole))
			break
		}
		// Level strides are padded to 4 bytes by the decoder.
		gl.PixelStorei(gl.UNPACK_ALIGNMENT, 4)
		for _, sub := range img.SubImages {
			gl.TexImage2D(gl.TEXTURE_2D, int32(sub.Level), internal, int32(sub.Width), int32(sub.Height), 0,
				h.GLFormat, h.GLType, ptr(sub.Data))
		}

	case formats.KTXTarget2DArray:
		gl.PixelStorei(gl.UNPACK_ALIGNMENT, 4)
		gl.TexImage3D(gl.TEXTURE_2D_ARRAY, 0, internal, tex.Width, tex.Height, int32(h.ArrayElements), 0,
			h.GLFormat, h.GLType, ptr(whole))

	case formats.KTXTargetCubeMap:
		// Faces are tightly packed.
		gl.PixelStorei(gl.UNPACK_ALIGNMENT, 1)
		for _, sub := range img.SubImages {
			if sub.Face >= 6 {
				break
			}
			gl.TexImage2D(gl.TEXTURE_CUBE_MAP_POSITIVE_X+uint32(sub.Face), 0, internal,
				int32(sub.Width), int32(sub.Height), 0, h.GLFormat, h.GLType, ptr(sub.Data))
		}

	case formats.KTXTargetCubeMapArray:
		gl.PixelStorei(gl.UNPACK_ALIGNMENT, 4)
		gl.TexImage3D(gl.TEXTURE_CUBE_MAP_ARRAY, 0, internal, tex.Width, tex.Height,
			int32(h.ArrayElements*h.Faces), 0, h.GLFormat, h.GLType, ptr(whole))

	case formats.KTXTarget3D:
		gl.PixelStorei(gl.UNPACK_ALIGNMENT, 4)
		gl.TexImage3D(gl.TEXTURE_3D, 0, internal, tex.Width, tex.Height, int32(h.PixelDepth), 0,
			h.GLFormat, h.GLType, ptr(whole))
	}

	uploaded := int32(1)
	if target == formats.KTXTarget2D && !h.Compressed() {
		uploaded = int32(len(img.SubImages))
	}
	if uploaded == 1 && !h.Compressed() {
		gl.GenerateMipmap(tex.Target)
	} else {
		gl.TexParameteri(tex.Target, gl.TEXTURE_MAX_LEVEL, uploaded-1)
	}

	gl.TexParameteri(tex.Target, gl.TEXTURE_MIN_FILTER, gl.LINEAR_MIPMAP_LINEAR)
	gl.TexParameteri(tex.Target, gl.TEXTURE_MAG_FILTER, gl.LINEAR)

	if code := gl.GetError(); code != gl.NO_ERROR {
		tex.Delete()
		return nil, fmt.Errorf("uploading %s: GL error 0x%04X", target, code)
	}

	logger.Named("texture").Debug("texture uploaded",
		zap.Uint32("id", tex.ID),
		zap.Stringer("target", target),
		zap.Int32("width", tex.Width),
		zap.Int32("height", tex.Height),
		zap.Int32("levels", uploaded),
		zap.Bool("compressed", h.Compressed()),
	)
	return tex, nil
}

// Bind binds the texture to the given texture unit.
func (t *Texture) Bind(unit uint32) {
	gl.ActiveTexture(gl.TEXTURE0 + unit)
	gl.BindTexture(t.Target, t.ID)
}

// Delete releases the GL texture.
func (t *Texture) Delete() {
	if t.ID != 0 {
		gl.DeleteTextures(1, &t.ID)
		t.ID = 0
	}
}

// ptr returns a pointer to the first byte, or nil for empty data.
func ptr(data []byte) unsafe.Pointer {
	if len(data) == 0 {
		return nil
	}
	return gl.Ptr(data)
}
