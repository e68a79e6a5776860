// Package viewer implements the interactive KTX and SBM preview loop.
package viewer

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/sb6go/internal/assets"
	"github.com/Faultbox/sb6go/internal/config"
	"github.com/Faultbox/sb6go/internal/engine/input"
	"github.com/Faultbox/sb6go/internal/engine/renderer"
	"github.com/Faultbox/sb6go/internal/engine/screenshot"
	"github.com/Faultbox/sb6go/internal/engine/shader"
	"github.com/Faultbox/sb6go/internal/engine/window"
	"github.com/Faultbox/sb6go/internal/logger"
)

// scene is one previewed asset.
type scene interface {
	update(dt float64)
	render(r *renderer.Renderer)
	handle(a input.Action)
	title() string
	close()
}

// Viewer is the main viewer instance.
type Viewer struct {
	config   *config.Config
	running  bool
	window   *window.Window
	renderer *renderer.Renderer
	input    *input.Input
	assets   *assets.Manager
	capture  *screenshot.Capture
	scene    scene
	log      *zap.Logger

	pendingShot bool
}

// New opens a window and loads the asset to preview. The asset kind is
// chosen by file extension (.ktx or .sbm).
func New(cfg *config.Config, name string) (*Viewer, error) {
	v := &Viewer{
		config: cfg,
		log:    logger.Named("viewer"),
		assets: assets.NewManager(cfg.Assets),
	}

	kind := strings.ToLower(filepath.Ext(name))
	if kind != ".ktx" && kind != ".sbm" {
		return nil, fmt.Errorf("%s: unsupported file type %q (want .ktx or .sbm)", name, kind)
	}

	var err error
	v.capture, err = screenshot.New(cfg.Viewer.ScreenshotDir, "sb6view", screenshot.Format(cfg.Viewer.ScreenshotFormat))
	if err != nil {
		return nil, err
	}

	// Window first, the renderer needs its GL context.
	v.window, err = window.New(cfg.Window)
	if err != nil {
		return nil, fmt.Errorf("failed to create window: %w", err)
	}

	width, height := v.window.GetSize()
	v.renderer, err = renderer.New(renderer.Config{
		Width:      width,
		Height:     height,
		ClearColor: cfg.Viewer.ClearColor,
	})
	if err != nil {
		v.window.Close()
		return nil, fmt.Errorf("failed to create renderer: %w", err)
	}
	v.renderer.SetWireframe(cfg.Viewer.Wireframe)

	switch kind {
	case ".ktx":
		v.scene, err = v.loadTexture(name)
	case ".sbm":
		v.scene, err = v.loadModel(name)
	}
	if err != nil {
		v.Close()
		return nil, err
	}

	v.input = input.New()
	v.window.SetTitle(v.scene.title())

	v.log.Info("viewer initialized", zap.String("asset", name))
	return v, nil
}

func (v *Viewer) loadTexture(name string) (scene, error) {
	img, err := v.assets.LoadKTX(name)
	if err != nil {
		return nil, err
	}
	return newTextureScene(name, img, v.config.Viewer, v.log)
}

func (v *Viewer) loadModel(name string) (scene, error) {
	m, err := v.assets.LoadModel(name)
	if err != nil {
		return nil, err
	}
	return newModelScene(name, m, v.config.Viewer, v.log)
}

// loadProgram builds a program from dir/<base>.vert and dir/<base>.frag,
// or from the given built-in sources when dir is empty.
func loadProgram(dir, base, vertex, fragment string) (uint32, error) {
	if dir == "" {
		return shader.CompileProgram(shader.Vertex(vertex), shader.Fragment(fragment))
	}

	var stages []shader.Stage
	for _, ext := range []string{".vert", ".frag"} {
		st, err := shader.LoadStage(filepath.Join(dir, base+ext))
		if err != nil {
			return 0, err
		}
		stages = append(stages, st)
	}
	return shader.CompileProgram(stages...)
}

// Run starts the main loop and returns when the window is closed.
func (v *Viewer) Run() error {
	v.running = true

	lastTime := time.Now()
	frameCount := 0
	fpsTimer := time.Now()

	v.log.Info("starting viewer loop")

	for v.running {
		now := time.Now()
		dt := now.Sub(lastTime).Seconds()
		lastTime = now

		if v.input.Update() {
			v.running = false
			break
		}

		for _, event := range v.input.Events() {
			switch event.Type {
			case input.EventWindowResize:
				v.renderer.Resize(v.window.GetSize())
			case input.EventAction:
				v.handle(event.Action)
			}
		}

		v.scene.update(dt)

		v.renderer.Begin()
		v.scene.render(v.renderer)
		if err := v.renderer.End(); err != nil {
			return fmt.Errorf("render error: %w", err)
		}
		if v.pendingShot {
			v.pendingShot = false
			v.screenshot()
		}

		v.window.SwapBuffers()

		frameCount++
		if time.Since(fpsTimer) >= time.Second {
			v.log.Debug("fps", zap.Int("count", frameCount), zap.String("dt", fmt.Sprintf("%.2fms", dt*1000)))
			frameCount = 0
			fpsTimer = time.Now()
		}
	}

	return nil
}

func (v *Viewer) handle(a input.Action) {
	v.log.Debug("action", zap.Stringer("action", a))

	switch a {
	case input.ActionToggleWireframe:
		v.renderer.SetWireframe(!v.renderer.Wireframe())
	case input.ActionToggleFullscreen:
		v.window.ToggleFullscreen()
	case input.ActionScreenshot:
		v.pendingShot = true
	default:
		v.scene.handle(a)
	}
	v.window.SetTitle(v.scene.title())
}

// screenshot saves the back buffer; call it before SwapBuffers.
func (v *Viewer) screenshot() {
	pixels, width, height := v.renderer.ReadPixels()
	path, err := v.capture.Save(pixels, width, height)
	if err != nil {
		v.log.Warn("screenshot failed", zap.Error(err))
		return
	}
	v.log.Info("screenshot saved", zap.String("path", path))
}

// Close cleans up viewer resources.
func (v *Viewer) Close() {
	v.log.Info("closing viewer")

	if v.scene != nil {
		v.scene.close()
		v.scene = nil
	}
	if v.renderer != nil {
		v.renderer.Close()
		v.renderer = nil
	}
	if v.window != nil {
		v.window.Close()
		v.window = nil
	}
	hits, misses := v.assets.CacheStats()
	v.log.Debug("asset cache", zap.Int("hits", hits), zap.Int("misses", misses))
	v.assets.Close()
}
