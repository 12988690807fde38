// Package driverapi defines the capability sets exchanged between the
// runtime and a driver: what the core requires of every driver
// (Driver), and what the core exposes back to drivers for announcing
// devices and reporting samples (Runtime).
package driverapi

import (
	"errors"
	"time"

	"suinput/core/device"
	"suinput/core/paths"
)

// ErrDriverUninitialized is returned when a driver calls back into the
// runtime before completing its own Initialize handshake.
var ErrDriverUninitialized = errors.New("driverapi: driver has not finished initializing")

// ErrRegistrationTimeout is returned to a driver whose RegisterDevice
// call the worker did not answer within the registration deadline.
var ErrRegistrationTimeout = errors.New("driverapi: device registration timed out")

// RegistrationDeadline is the time a driver will wait for the worker to
// answer a device-registration request before treating it as a fatal
// driver error.
const RegistrationDeadline = 5 * time.Second

// Driver is the capability set the core requires of every input source:
// raw OS input pump, SDL/GLFW polling thread, or an XR runtime.
type Driver interface {
	// Initialize is called once, synchronously, before Poll. It receives
	// a Runtime to register devices and report samples through.
	Initialize(rt Runtime) error

	// Poll is invoked on the driver's own goroutine in a loop until ctx
	// (passed via the runtime that owns it) is cancelled; it reads OS
	// input and pushes events through Runtime.
	Poll() error

	// SetWindows scopes cursor/keyboard events to the given focused
	// window handles.
	SetWindows(windows []uintptr)

	// Destroy releases OS resources. After Destroy the driver must not
	// call back into its Runtime.
	Destroy() error
}

// Runtime is the capability set the core exposes to a driver.
type Runtime interface {
	// RegisterDevice announces a new device of the given type, blocking
	// until the worker answers with a handle or RegistrationDeadline
	// elapses (ErrRegistrationTimeout).
	RegisterDevice(devicePath paths.Path) (device.Handle, error)

	// DisconnectDevice announces that a previously registered device is
	// gone.
	DisconnectDevice(handle device.Handle)

	// SendComponentEvent reports a single input sample.
	SendComponentEvent(ev device.InputEvent, handle device.Handle)

	// SendBatchUpdate reports several input samples for one device
	// atomically — the path motion fusion relies on for synchronous
	// gyro+accel pairs.
	SendBatchUpdate(batch device.BatchUpdate)

	// GetPath interns a path string.
	GetPath(s string) (paths.Path, error)

	// GetPathString reverses GetPath.
	GetPathString(p paths.Path) (string, bool)
}
