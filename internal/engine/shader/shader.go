// Package shader provides OpenGL shader compilation utilities.
package shader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-gl/gl/v4.1-core/gl"
)

// Stage is a single shader stage source.
type Stage struct {
	Type   uint32
	Source string
}

// Vertex returns a vertex stage.
func Vertex(src string) Stage { return Stage{gl.VERTEX_SHADER, src} }

// Fragment returns a fragment stage.
func Fragment(src string) Stage { return Stage{gl.FRAGMENT_SHADER, src} }

// stageSuffixes maps file name suffixes to shader types.
var stageSuffixes = []struct {
	suffix string
	typ    uint32
}{
	{".vs.glsl", gl.VERTEX_SHADER},
	{".tcs.glsl", gl.TESS_CONTROL_SHADER},
	{".tes.glsl", gl.TESS_EVALUATION_SHADER},
	{".gs.glsl", gl.GEOMETRY_SHADER},
	{".fs.glsl", gl.FRAGMENT_SHADER},
	{".vert", gl.VERTEX_SHADER},
	{".tesc", gl.TESS_CONTROL_SHADER},
	{".tese", gl.TESS_EVALUATION_SHADER},
	{".geom", gl.GEOMETRY_SHADER},
	{".frag", gl.FRAGMENT_SHADER},
}

// LoadStage reads a shader file, deriving the stage from its suffix
// (e.g. render.vs.glsl or render.frag).
func LoadStage(path string) (Stage, error) {
	name := strings.ToLower(filepath.Base(path))
	for _, s := range stageSuffixes {
		if strings.HasSuffix(name, s.suffix) {
			src, err := os.ReadFile(path)
			if err != nil {
				return Stage{}, err
			}
			return Stage{s.typ, string(src)}, nil
		}
	}
	return Stage{}, fmt.Errorf("unknown shader stage for %s", path)
}

// CompileProgram compiles the given stages and links them into a program.
// Returns the program ID or an error if compilation/linking fails.
func CompileProgram(stages ...Stage) (uint32, error) {
	if len(stages) == 0 {
		return 0, fmt.Errorf("no shader stages")
	}

	shaders := make([]uint32, 0, len(stages))
	defer func() {
		for _, s := range shaders {
			gl.DeleteShader(s)
		}
	}()

	for _, st := range stages {
		s, err := compileShader(st.Source, st.Type)
		if err != nil {
			return 0, err
		}
		shaders = append(shaders, s)
	}

	program := gl.CreateProgram()
	for _, s := range shaders {
		gl.AttachShader(program, s)
	}
	gl.LinkProgram(program)

	var status int32
	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLen int32
		gl.GetProgramiv(program, gl.INFO_LOG_LENGTH, &logLen)
		log := infoLog(logLen)
		gl.GetProgramInfoLog(program, logLen, nil, &log[0])
		gl.DeleteProgram(program)
		return 0, fmt.Errorf("link: %s", strings.TrimRight(string(log), "\x00"))
	}

	for _, s := range shaders {
		gl.DetachShader(program, s)
	}
	return program, nil
}

// compileShader compiles a single shader of the given type.
func compileShader(source string, shaderType uint32) (uint32, error) {
	shader := gl.CreateShader(shaderType)
	csource, free := gl.Strs(source + "\x00")
	gl.ShaderSource(shader, 1, csource, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLen int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLen)
		log := infoLog(logLen)
		gl.GetShaderInfoLog(shader, logLen, nil, &log[0])
		gl.DeleteShader(shader)
		return 0, fmt.Errorf("%s shader: %s", stageName(shaderType), strings.TrimRight(string(log), "\x00"))
	}

	return shader, nil
}

func infoLog(n int32) []byte {
	return make([]byte, max(n, 1))
}

func stageName(t uint32) string {
	switch t {
	case gl.VERTEX_SHADER:
		return "vertex"
	case gl.TESS_CONTROL_SHADER:
		return "tess control"
	case gl.TESS_EVALUATION_SHADER:
		return "tess evaluation"
	case gl.GEOMETRY_SHADER:
		return "geometry"
	case gl.FRAGMENT_SHADER:
		return "fragment"
	}
	return fmt.Sprintf("0x%04X", t)
}

// GetUniform returns the uniform location for the given name.
// Returns -1 if the uniform is not found or inactive.
func GetUniform(program uint32, name string) int32 {
	return gl.GetUniformLocation(program, gl.Str(name+"\x00"))
}
