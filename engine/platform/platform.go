package platform

import (
	"runtime"
	"time"

	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/spaghettifunk/marionette/engine/core"
)

const (
	// radians per pixel of drag
	orbitSpeed = 0.005
	zoomSpeed  = 0.25
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

// InputHandler receives the window's pointer, camera and resize input.
type InputHandler interface {
	PointerMoved(x, y float32)
	OrbitCamera(deltaYaw, deltaPitch float32) error
	ZoomCamera(delta float32) error
	OnResize(width, height uint32) error
}

// Platform is a plain window used as the pointer and camera input source.
// Nothing is drawn into it.
type Platform struct {
	Window  *glfw.Window
	handler InputHandler

	dragging     bool
	lastX, lastY float64
	quit         bool
}

func New(handler InputHandler) *Platform {
	return &Platform{handler: handler}
}

func (p *Platform) Startup(applicationName string, x, y int32, width, height uint32) error {
	if err := glfw.Init(); err != nil {
		core.LogError("failed to initialize glfw: %s", err)
		return err
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)

	window, err := glfw.CreateWindow(int(width), int(height), applicationName, nil, nil)
	if err != nil {
		core.LogError("failed to create window: %s", err)
		glfw.Terminate()
		return err
	}
	p.Window = window

	p.Window.SetKeyCallback(p.keyCallback)
	p.Window.SetMouseButtonCallback(p.mouseButtonCallback)
	p.Window.SetCursorPosCallback(p.cursorPosCallback)
	p.Window.SetScrollCallback(p.scrollCallback)
	p.Window.SetFramebufferSizeCallback(p.framebufferSizeCallback)
	p.Window.SetPos(int(x), int(y))
	p.Window.Show()

	return nil
}

func (p *Platform) Shutdown() error {
	if p.Window != nil {
		p.Window.Destroy()
		p.Window = nil
	}
	glfw.Terminate()
	return nil
}

// PumpMessages processes pending window events and reports whether the
// window is still open.
func (p *Platform) PumpMessages() bool {
	if p.Window == nil {
		return true
	}
	glfw.PollEvents()
	return !p.quit && !p.Window.ShouldClose()
}

func (p *Platform) Sleep(d time.Duration) {
	time.Sleep(d)
}

func (p *Platform) keyCallback(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	if key == glfw.KeyEscape && action == glfw.Press {
		core.LogInfo("escape pressed, closing window")
		p.quit = true
	}
}

func (p *Platform) mouseButtonCallback(w *glfw.Window, button glfw.MouseButton, action glfw.Action, mods glfw.ModifierKey) {
	if button != glfw.MouseButtonLeft {
		return
	}
	p.dragging = action == glfw.Press
	p.lastX, p.lastY = w.GetCursorPos()
}

func (p *Platform) cursorPosCallback(w *glfw.Window, xpos, ypos float64) {
	width, height := w.GetSize()
	x, y := normalizeCursor(xpos, ypos, width, height)
	p.handler.PointerMoved(x, y)

	if p.dragging {
		dyaw, dpitch := dragDelta(xpos-p.lastX, ypos-p.lastY)
		if err := p.handler.OrbitCamera(dyaw, dpitch); err != nil {
			core.LogDebug("orbit dropped: %v", err)
		}
	}
	p.lastX, p.lastY = xpos, ypos
}

func (p *Platform) scrollCallback(w *glfw.Window, xoff, yoff float64) {
	if err := p.handler.ZoomCamera(float32(yoff * zoomSpeed)); err != nil {
		core.LogDebug("zoom dropped: %v", err)
	}
}

func (p *Platform) framebufferSizeCallback(w *glfw.Window, width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	if err := p.handler.OnResize(uint32(width), uint32(height)); err != nil {
		core.LogWarn("resize dropped: %v", err)
	}
}

// normalizeCursor maps window pixels to normalized device coordinates, Y up.
func normalizeCursor(xpos, ypos float64, width, height int) (float32, float32) {
	if width <= 0 || height <= 0 {
		return 0, 0
	}
	x := 2*xpos/float64(width) - 1
	y := 1 - 2*ypos/float64(height)
	return float32(x), float32(y)
}

func dragDelta(dx, dy float64) (float32, float32) {
	return float32(-dx * orbitSpeed), float32(-dy * orbitSpeed)
}
