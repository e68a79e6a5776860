package viewer

import (
	"fmt"
	"math/bits"
	"path/filepath"

	"github.com/go-gl/gl/v4.1-core/gl"
	"go.uber.org/zap"

	"github.com/Faultbox/sb6go/internal/config"
	"github.com/Faultbox/sb6go/internal/engine/input"
	"github.com/Faultbox/sb6go/internal/engine/renderer"
	"github.com/Faultbox/sb6go/internal/engine/shader"
	"github.com/Faultbox/sb6go/internal/engine/texture"
	"github.com/Faultbox/sb6go/internal/viewer/shaders"
	"github.com/Faultbox/sb6go/pkg/formats"
)

// textureScene draws a 2D texture on an aspect-correct quad.
type textureScene struct {
	name   string
	header formats.KTXHeader
	target formats.KTXTarget
	tex    *texture.Texture

	program  uint32
	uScale   int32
	uLod     int32
	level    int
	maxLevel int

	log *zap.Logger
}

func newTextureScene(name string, img *formats.KTXImage, cfg config.ViewerConfig, log *zap.Logger) (scene, error) {
	tex, err := texture.FromKTX(img)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	s := &textureScene{
		name:   filepath.Base(name),
		header: img.Header,
		target: img.Target(),
		tex:    tex,
		log:    log,
	}

	if s.target != formats.KTXTarget2D {
		log.Warn("only 2D textures are drawn; showing header only", zap.Stringer("target", s.target))
		return s, nil
	}

	s.program, err = loadProgram(cfg.ShaderDir, "texture", shaders.TextureVertexShader, shaders.TextureFragmentShader)
	if err != nil {
		tex.Delete()
		return nil, fmt.Errorf("texture shader: %w", err)
	}
	s.uScale = shader.GetUniform(s.program, "scale")
	s.uLod = shader.GetUniform(s.program, "lod")
	gl.UseProgram(s.program)
	gl.Uniform1i(shader.GetUniform(s.program, "tex"), 0)

	// A single stored level gets a generated chain.
	s.maxLevel = int(tex.Levels) - 1
	if tex.Levels <= 1 && !img.Header.Compressed() {
		s.maxLevel = bits.Len32(max(img.Header.PixelWidth, img.Header.PixelHeight, 1)) - 1
	}

	log.Info("texture loaded",
		zap.String("name", name),
		zap.Uint32("width", img.Header.PixelWidth),
		zap.Uint32("height", img.Header.PixelHeight),
		zap.Int("levels", s.maxLevel+1),
	)
	return s, nil
}

func (s *textureScene) update(float64) {}

func (s *textureScene) render(r *renderer.Renderer) {
	if s.program == 0 {
		return
	}
	sx, sy := fitScale(float32(s.tex.Width)/float32(s.tex.Height), r.Aspect())

	gl.UseProgram(s.program)
	gl.Uniform2f(s.uScale, sx, sy)
	gl.Uniform1f(s.uLod, float32(s.level))
	s.tex.Bind(0)

	gl.Disable(gl.DEPTH_TEST)
	r.DrawFullscreenTriangle()
	gl.Enable(gl.DEPTH_TEST)
}

func (s *textureScene) handle(a input.Action) {
	if a == input.ActionNextLevel && s.maxLevel > 0 {
		s.level = (s.level + 1) % (s.maxLevel + 1)
		s.log.Debug("mip level", zap.Int("level", s.level))
	}
}

func (s *textureScene) title() string {
	h := &s.header
	t := fmt.Sprintf("%s - %s %dx%d", s.name, s.target, h.PixelWidth, h.PixelHeight)
	if s.maxLevel > 0 {
		t += fmt.Sprintf(" level %d/%d", s.level, s.maxLevel)
	}
	return t
}

func (s *textureScene) close() {
	if s.program != 0 {
		gl.DeleteProgram(s.program)
	}
	s.tex.Delete()
}

// fitScale returns the quad scale that letterboxes content of the given
// aspect into the viewport, leaving a small margin.
func fitScale(content, viewport float32) (sx, sy float32) {
	const margin = 0.9
	if content > viewport {
		return margin, margin * viewport / content
	}
	return margin * content / viewport, margin
}
