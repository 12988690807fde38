// Package glfw implements a cross-platform driver over GLFW: a hidden
// window supplies keyboard and mouse events, and GLFW's joystick API
// supplies gamepad events, polled on the driver's own goroutine and
// reported through the driverapi.Runtime callback capability.
package glfw

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	glfwlib "github.com/go-gl/glfw/v3.3/glfw"

	"suinput/core/device"
	"suinput/core/driverapi"
	"suinput/core/internal/logger"
)

// PollInterval is the gamepad/cursor sampling tick.
const PollInterval = 50 * time.Millisecond

// Driver is a driverapi.Driver backed by GLFW. One Driver owns one
// hidden window (for keyboard/mouse) and polls every present joystick
// for gamepad input.
type Driver struct {
	Log logger.Logger

	mu      sync.Mutex
	rt      driverapi.Runtime
	window  *glfwlib.Window
	windows []uintptr

	keyboard device.Handle
	mouse    device.Handle
	gamepads map[glfwlib.Joystick]device.Handle

	lastCursorX, lastCursorY float64
	haveCursor               bool
}

// New returns a Driver ready for Initialize.
func New(log logger.Logger) *Driver {
	return &Driver{Log: log, gamepads: make(map[glfwlib.Joystick]device.Handle)}
}

// Initialize implements driverapi.Driver: it brings up GLFW, registers
// the desktop keyboard and mouse devices, and installs key/mouse
// callbacks on a hidden window.
func (d *Driver) Initialize(rt driverapi.Runtime) error {
	d.rt = rt
	runtime.LockOSThread()

	if err := glfwlib.Init(); err != nil {
		return fmt.Errorf("glfw: init: %w", err)
	}

	kbPath, err := rt.GetPath("/devices/standard/hid_keyboard")
	if err != nil {
		return fmt.Errorf("glfw: keyboard path: %w", err)
	}
	mousePath, err := rt.GetPath("/devices/standard/generic_mouse")
	if err != nil {
		return fmt.Errorf("glfw: mouse path: %w", err)
	}
	if d.keyboard, err = rt.RegisterDevice(kbPath); err != nil {
		return fmt.Errorf("glfw: register keyboard: %w", err)
	}
	if d.mouse, err = rt.RegisterDevice(mousePath); err != nil {
		return fmt.Errorf("glfw: register mouse: %w", err)
	}

	glfwlib.WindowHint(glfwlib.Visible, glfwlib.False)
	window, err := glfwlib.CreateWindow(640, 480, "suinput", nil, nil)
	if err != nil {
		return fmt.Errorf("glfw: create window: %w", err)
	}
	window.MakeContextCurrent()
	window.SetInputMode(glfwlib.StickyKeysMode, glfwlib.True)
	window.SetInputMode(glfwlib.StickyMouseButtonsMode, glfwlib.True)
	window.SetKeyCallback(d.onKey)
	window.SetMouseButtonCallback(d.onMouseButton)
	window.SetScrollCallback(d.onScroll)
	d.window = window

	d.Log.Info("glfw driver: initialized, keyboard+mouse registered")
	return nil
}

// Poll runs one tick of the driver's event loop: pump GLFW events,
// sample the cursor, and poll every present joystick. The caller (the
// session runtime) invokes this in a loop until shutdown.
func (d *Driver) Poll() error {
	if d.window == nil {
		return driverapi.ErrDriverUninitialized
	}
	time.Sleep(PollInterval)
	glfwlib.PollEvents()
	d.pollCursor()
	d.pollJoysticks()
	return nil
}

func (d *Driver) onKey(w *glfwlib.Window, key glfwlib.Key, scancode int, action glfwlib.Action, mods glfwlib.ModifierKey) {
	seg, ok := keySegment(key)
	if !ok || action == glfwlib.Repeat {
		return
	}
	p, err := d.rt.GetPath("/input/" + seg + "/click")
	if err != nil {
		return
	}
	d.rt.SendComponentEvent(device.InputEvent{
		Path: p, Time: time.Now(),
		Data: device.ButtonData(action == glfwlib.Press),
	}, d.keyboard)
}

func (d *Driver) onMouseButton(w *glfwlib.Window, button glfwlib.MouseButton, action glfwlib.Action, mods glfwlib.ModifierKey) {
	seg, ok := mouseButtonSegment(button)
	if !ok {
		return
	}
	p, err := d.rt.GetPath("/input/" + seg + "/click")
	if err != nil {
		return
	}
	d.rt.SendComponentEvent(device.InputEvent{
		Path: p, Time: time.Now(),
		Data: device.ButtonData(action == glfwlib.Press),
	}, d.mouse)
}

func (d *Driver) onScroll(w *glfwlib.Window, xoff, yoff float64) {
	p, err := d.rt.GetPath("/input/scroll/value")
	if err != nil {
		return
	}
	d.rt.SendComponentEvent(device.InputEvent{
		Path: p, Time: time.Now(),
		Data: device.ValueData(yoff),
	}, d.mouse)
}

// pollCursor reports both the raw cursor pose and the delta since the
// last tick, matching the two component kinds generic_mouse declares
// for the same physical signal.
func (d *Driver) pollCursor() {
	x, y := d.window.GetCursorPos()
	posePath, err := d.rt.GetPath("/input/cursor/pose")
	if err == nil {
		d.rt.SendComponentEvent(device.InputEvent{
			Path: posePath, Time: time.Now(),
			Data: device.CursorData{X: x, Y: y, Window: d.focusedWindow()},
		}, d.mouse)
	}

	if d.haveCursor {
		dx, dy := x-d.lastCursorX, y-d.lastCursorY
		if dx != 0 || dy != 0 {
			if movePath, err := d.rt.GetPath("/input/move/delta"); err == nil {
				d.rt.SendComponentEvent(device.InputEvent{
					Path: movePath, Time: time.Now(),
					Data: device.Move2DData{X: dx, Y: dy},
				}, d.mouse)
			}
		}
	}
	d.lastCursorX, d.lastCursorY, d.haveCursor = x, y, true
}

func (d *Driver) focusedWindow() uintptr {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.windows) == 0 {
		return 0
	}
	return d.windows[0]
}

// pollJoysticks registers any newly-present joystick as a dualsense-shaped
// gamepad device and reports its buttons/axes.
func (d *Driver) pollJoysticks() {
	for jid := glfwlib.Joystick1; jid <= glfwlib.Joystick16; jid++ {
		if !jid.Present() || !jid.IsGamepad() {
			if handle, ok := d.gamepads[jid]; ok {
				d.rt.DisconnectDevice(handle)
				delete(d.gamepads, jid)
			}
			continue
		}
		handle, ok := d.gamepads[jid]
		if !ok {
			gpPath, err := d.rt.GetPath("/devices/gamepad/dualsense")
			if err != nil {
				continue
			}
			h, err := d.rt.RegisterDevice(gpPath)
			if err != nil {
				d.Log.Warn(fmt.Sprintf("glfw driver: register gamepad %d: %v", jid, err))
				continue
			}
			handle = h
			d.gamepads[jid] = handle
		}

		state := jid.GetGamepadState()
		if state == nil {
			continue
		}
		now := time.Now()
		for i, pressed := range state.Buttons {
			seg, ok := gamepadButtonSegment(i)
			if !ok {
				continue
			}
			p, err := d.rt.GetPath("/input/" + seg + "/click")
			if err != nil {
				continue
			}
			d.rt.SendComponentEvent(device.InputEvent{
				Path: p, Time: now, Data: device.ButtonData(pressed == glfwlib.Press),
			}, handle)
		}
		d.reportGamepadAxes(handle, state.Axes, now)
	}
}

func (d *Driver) reportGamepadAxes(handle device.Handle, axes [6]float32, now time.Time) {
	send := func(seg string, data device.Data) {
		p, err := d.rt.GetPath(seg)
		if err != nil {
			return
		}
		d.rt.SendComponentEvent(device.InputEvent{Path: p, Time: now, Data: data}, handle)
	}
	send("/input/thumbstick_left/move", device.Axis2DData{X: axes[0], Y: axes[1]})
	send("/input/thumbstick_right/move", device.Axis2DData{X: axes[2], Y: axes[3]})
	send("/input/trigger_left/value", device.ValueData(axes[4]))
	send("/input/trigger_right/value", device.ValueData(axes[5]))
}

// SetWindows records the focused window handles cursor events are
// scoped to.
func (d *Driver) SetWindows(windows []uintptr) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.windows = windows
}

// Destroy tears down the GLFW window and terminates the GLFW context.
func (d *Driver) Destroy() error {
	if d.window != nil {
		d.window.Destroy()
	}
	glfwlib.Terminate()
	return nil
}

// keySegment maps the subset of GLFW keys the desktop keyboard device
// type declares to their path leaf.
func keySegment(key glfwlib.Key) (string, bool) {
	switch {
	case key >= glfwlib.KeyA && key <= glfwlib.KeyZ:
		return string(rune('a' + (key - glfwlib.KeyA))), true
	}
	switch key {
	case glfwlib.KeySpace:
		return "space", true
	case glfwlib.KeyEnter:
		return "enter", true
	case glfwlib.KeyEscape:
		return "escape", true
	case glfwlib.KeyTab:
		return "tab", true
	case glfwlib.KeyLeftShift:
		return "left-shift", true
	case glfwlib.KeyLeftControl:
		return "left-ctrl", true
	case glfwlib.KeyLeftAlt:
		return "left-alt", true
	case glfwlib.KeyUp:
		return "up", true
	case glfwlib.KeyDown:
		return "down", true
	case glfwlib.KeyLeft:
		return "left", true
	case glfwlib.KeyRight:
		return "right", true
	default:
		return "", false
	}
}

func mouseButtonSegment(b glfwlib.MouseButton) (string, bool) {
	switch b {
	case glfwlib.MouseButtonLeft:
		return "button_left", true
	case glfwlib.MouseButtonRight:
		return "button_right", true
	case glfwlib.MouseButtonMiddle:
		return "button_middle", true
	default:
		return "", false
	}
}

// gamepadButtonSegment maps GLFW's 15 standard gamepad button indices
// to the dualsense device type's declared components; indices with no
// catalog component (Back, Start, Guide, stick-clicks' neighbors) are
// reported only where the catalog declares them.
func gamepadButtonSegment(index int) (string, bool) {
	names := [15]string{
		"a", "b", "x", "y",
		"shoulder_left", "shoulder_right", "", "",
		"", "thumbstick_left", "thumbstick_right",
		"dpad_up", "dpad_right", "dpad_down", "dpad_left",
	}
	if index < 0 || index >= len(names) || names[index] == "" {
		return "", false
	}
	return names[index], true
}
