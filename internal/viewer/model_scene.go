package viewer

import (
	"fmt"
	"math"
	"path/filepath"

	"github.com/go-gl/gl/v4.1-core/gl"
	"go.uber.org/zap"

	"github.com/Faultbox/sb6go/internal/config"
	"github.com/Faultbox/sb6go/internal/engine/input"
	"github.com/Faultbox/sb6go/internal/engine/model"
	"github.com/Faultbox/sb6go/internal/engine/renderer"
	"github.com/Faultbox/sb6go/internal/engine/shader"
	"github.com/Faultbox/sb6go/internal/viewer/shaders"
	"github.com/Faultbox/sb6go/pkg/formats"
	"github.com/Faultbox/sb6go/pkg/vmath"
)

const maxInstances = 1024

// modelScene spins an SBM mesh, optionally instanced on a grid.
type modelScene struct {
	name   string
	object *model.Object

	program uint32
	uMV     int32
	uProj   int32
	uGrid   int32
	uSpace  int32

	center    vmath.Vec3
	radius    float32
	angle     float32
	spinSpeed float32
	paused    bool
	instances int
	// -1 draws every sub-object.
	subObject int

	log *zap.Logger
}

func newModelScene(name string, m *formats.SBM, cfg config.ViewerConfig, log *zap.Logger) (scene, error) {
	obj, err := model.New(m)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	s := &modelScene{
		name:      filepath.Base(name),
		object:    obj,
		radius:    1,
		spinSpeed: cfg.SpinSpeed,
		instances: min(max(cfg.Instances, 1), maxInstances),
		subObject: -1,
		log:       log,
	}

	if lo, hi, ok := m.Bounds(); ok {
		for i := range 3 {
			s.center[i] = (lo[i] + hi[i]) / 2
		}
		d := vmath.Vec3(hi).Sub(vmath.Vec3(lo))
		s.radius = max(float32(math.Sqrt(float64(d.Dot(d))))/2, 1e-3)
	} else {
		log.Warn("first attribute is not a float position; assuming unit size")
	}

	s.program, err = loadProgram(cfg.ShaderDir, "model", shaders.ModelVertexShader, shaders.ModelFragmentShader)
	if err != nil {
		obj.Delete()
		return nil, fmt.Errorf("model shader: %w", err)
	}
	s.uMV = shader.GetUniform(s.program, "mv_matrix")
	s.uProj = shader.GetUniform(s.program, "proj_matrix")
	s.uGrid = shader.GetUniform(s.program, "grid")
	s.uSpace = shader.GetUniform(s.program, "spacing")
	gl.UseProgram(s.program)
	gl.Uniform3f(shader.GetUniform(s.program, "diffuse_albedo"), 0.6, 0.55, 0.5)

	for _, c := range m.CommentStrings() {
		log.Info("model comment", zap.String("text", c))
	}
	log.Info("model loaded",
		zap.String("name", name),
		zap.Int("attributes", len(m.Attributes)),
		zap.Uint32("vertices", m.VertexData.TotalVertices),
		zap.Bool("indexed", obj.Indexed()),
		zap.Int("subObjects", obj.NumSubObjects()),
		zap.Float32("radius", s.radius),
	)
	return s, nil
}

func (s *modelScene) update(dt float64) {
	if !s.paused {
		s.angle += s.spinSpeed * float32(dt)
	}
}

func (s *modelScene) render(r *renderer.Renderer) {
	grid := gridSize(s.instances)
	spacing := s.radius * 2.5
	distance := s.radius*3 + spacing*float32(grid-1)

	proj := vmath.Perspective(50, r.Aspect(), distance*0.01, distance*4)
	deg := s.angle * 180 / math.Pi
	view := vmath.LookAt(vmath.Vec3{0, 0, distance}, vmath.Vec3{}, vmath.Vec3{0, 1, 0})
	mv := view.
		Mul(vmath.Rotate(deg, 0, 1, 0)).
		Mul(vmath.Rotate(deg*0.3, 1, 0, 0)).
		Mul(vmath.Translate(-s.center[0], -s.center[1], -s.center[2]))

	gl.UseProgram(s.program)
	gl.UniformMatrix4fv(s.uProj, 1, false, proj.Ptr())
	gl.UniformMatrix4fv(s.uMV, 1, false, mv.Ptr())
	gl.Uniform1i(s.uGrid, int32(grid))
	gl.Uniform1f(s.uSpace, spacing)

	n := int32(s.instances)
	switch {
	case s.object.Indexed():
		s.object.Render(n)
	case s.subObject >= 0:
		s.object.RenderSubObject(s.subObject, n)
	default:
		for i := 0; i < s.object.NumSubObjects(); i++ {
			s.object.RenderSubObject(i, n)
		}
	}
}

func (s *modelScene) handle(a input.Action) {
	switch a {
	case input.ActionTogglePause:
		s.paused = !s.paused
	case input.ActionMoreInstances:
		s.instances = min(s.instances*2, maxInstances)
	case input.ActionFewerInstances:
		s.instances = max(s.instances/2, 1)
	case input.ActionNextSubObject:
		if s.object.Indexed() {
			return
		}
		// Cycle -1 (all), 0, 1, ... n-1.
		s.subObject++
		if s.subObject >= s.object.NumSubObjects() {
			s.subObject = -1
		}
		if first, count, ok := s.object.SubObjectInfo(s.subObject); ok {
			s.log.Debug("sub-object", zap.Int("index", s.subObject),
				zap.Uint32("first", first), zap.Uint32("count", count))
		}
	}
}

func (s *modelScene) title() string {
	t := fmt.Sprintf("%s - %d instance(s)", s.name, s.instances)
	if s.subObject >= 0 {
		t += fmt.Sprintf(" sub-object %d/%d", s.subObject, s.object.NumSubObjects())
	}
	if s.paused {
		t += " [paused]"
	}
	return t
}

func (s *modelScene) close() {
	if s.program != 0 {
		gl.DeleteProgram(s.program)
	}
	s.object.Delete()
}

// gridSize returns the side of the smallest square grid holding n instances.
func gridSize(n int) int {
	g := int(math.Ceil(math.Sqrt(float64(n))))
	return max(g, 1)
}
