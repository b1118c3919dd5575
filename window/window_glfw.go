package window

import (
	"fmt"
	"runtime"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"
)

// glfwWindow holds the GLFW-specific window state.
type glfwWindow struct {
	window  *glfw.Window
	running bool
}

// newPlatformWindow creates the GLFW window and registers its callbacks.
func newPlatformWindow(w *platformWindow) error {
	runtime.LockOSThread()

	if err := glfw.Init(); err != nil {
		return fmt.Errorf("failed to initialize GLFW: %v", err)
	}

	// WebGPU provides its own graphics API, so disable OpenGL context creation.
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)

	win, err := glfw.CreateWindow(w.width, w.height, w.title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return fmt.Errorf("failed to create GLFW window: %v", err)
	}

	gw := &glfwWindow{
		window:  win,
		running: true,
	}
	w.internal = gw

	win.SetKeyCallback(func(_ *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		if key == glfw.KeyEscape && action == glfw.Press {
			gw.running = false
			win.SetShouldClose(true)
			return
		}
		if action == glfw.Press || action == glfw.Repeat {
			if w.onKeyDown != nil {
				w.onKeyDown(uint32(key))
			}
		}
	})

	// Framebuffer size, not window size: on high-DPI displays the two differ
	// and the surface must be configured in pixels.
	win.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		w.width = width
		w.height = height
		if w.onResize != nil {
			w.onResize(width, height)
		}
	})

	fbWidth, fbHeight := win.GetFramebufferSize()
	w.width = fbWidth
	w.height = fbHeight

	return nil
}

// SurfaceDescriptor creates a platform-appropriate wgpu.SurfaceDescriptor
// from the GLFW window via the wgpuglfw bridge.
func (w *platformWindow) SurfaceDescriptor() *wgpu.SurfaceDescriptor {
	if w.internal == nil {
		return nil
	}
	gw := w.internal.(*glfwWindow)
	return wgpuglfw.GetSurfaceDescriptor(gw.window)
}

// IsRunning returns whether the GLFW window is still active.
func (w *platformWindow) IsRunning() bool {
	if w.internal == nil {
		return false
	}
	gw := w.internal.(*glfwWindow)
	return gw.running && !gw.window.ShouldClose()
}

// Close destroys the GLFW window and terminates the GLFW library.
func (w *platformWindow) Close() error {
	if w.internal == nil {
		return fmt.Errorf("window is not initialized")
	}
	gw := w.internal.(*glfwWindow)
	gw.running = false
	gw.window.SetShouldClose(true)
	gw.window.Destroy()
	glfw.Terminate()
	return nil
}

// platformProcessMessages polls GLFW for pending events without blocking.
func platformProcessMessages(w *platformWindow) bool {
	glfw.PollEvents()
	return w.IsRunning()
}
