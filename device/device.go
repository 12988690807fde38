// Package device implements live device state: the per-component
// values a connected device currently reports, generational handles that
// detect stale references after a reconnect, and routing of gyro/accel
// samples into motion fusion.
package device

import (
	"fmt"
	"time"

	"suinput/core/catalog"
	"suinput/core/device/motion"
	"suinput/core/paths"
)

// Handle identifies a live device. Generation increments every time the
// slot is reused by a new physical device, so a Handle captured before a
// disconnect compares unequal to the Handle reused afterward even though
// Slot is the same.
type Handle struct {
	Slot       uint32
	Generation uint32
}

func (h Handle) String() string {
	return fmt.Sprintf("device#%d.%d", h.Slot, h.Generation)
}

// Data is the tagged union of values an input component can hold.
type Data interface{ isData() }

type ButtonData bool
type ValueData float32
type Axis2DData struct{ X, Y float32 }
type Move2DData struct{ X, Y float64 }
type CursorData struct {
	X, Y   float64
	Window uintptr
}
type GyroData struct{ X, Y, Z float64 }  // deg/s
type AccelData struct{ X, Y, Z float64 } // g

func (ButtonData) isData() {}
func (ValueData) isData()  {}
func (Axis2DData) isData() {}
func (Move2DData) isData() {}
func (CursorData) isData() {}
func (GyroData) isData()   {}
func (AccelData) isData()  {}

// ComponentState is the most recent value reported for one input
// component, along with when it arrived.
type ComponentState struct {
	Time time.Time
	Data Data
}

// InputEvent is a single sample a driver reports for one device
// component.
type InputEvent struct {
	Path paths.Path
	Time time.Time
	Data Data
}

// BatchUpdate groups every InputEvent a driver collected for one polling
// tick, so the worker applies them to the canonical arena atomically
// with respect to session reads.
type BatchUpdate struct {
	Device Handle
	Events []InputEvent
}

// Device is the live, mutable state of one connected physical device: its
// declared type, its generational handle, the last value of every
// component it has reported, and — if the device type has both a gyro and
// accelerometer input — its fused motion state.
type Device struct {
	Type       *catalog.DeviceType
	Handle     Handle
	Components map[paths.Path]ComponentState
	Motion     *motion.State
}

// New creates live state for a newly connected device of the given type
// and handle. If the device type has motion inputs, a fresh motion.State
// is attached using the default fusion settings.
func New(dt *catalog.DeviceType, handle Handle) *Device {
	d := &Device{
		Type:       dt,
		Handle:     handle,
		Components: make(map[paths.Path]ComponentState, len(dt.Components)),
	}
	if dt.HasMotion() {
		d.Motion = motion.NewState(motion.DefaultSettings())
	}
	return d
}

// gyroAccelPair remembers the most recent sample of whichever of
// gyro/accel arrived first in a tick, so that when its counterpart
// arrives in the same BatchUpdate both can be fused together.
type gyroAccelPair struct {
	gyro, accel         motion.V3
	haveGyro, haveAccel bool
}

// ApplyBatch folds every event in an update into the device's component
// map. Gyro/accel samples are stored like any other component and are
// also fed through motion fusion. Events for paths the device type
// doesn't declare are dropped.
func (d *Device) ApplyBatch(b BatchUpdate) {
	var pair gyroAccelPair
	var lastDt float64 = 1.0 / 60.0

	for _, ev := range b.Events {
		if _, ok := d.Type.Components[ev.Path]; !ok {
			continue
		}
		prev, hadPrev := d.Components[ev.Path]
		d.Components[ev.Path] = ComponentState{Time: ev.Time, Data: ev.Data}

		switch v := ev.Data.(type) {
		case GyroData:
			pair.gyro = motion.V3{X: v.X, Y: v.Y, Z: v.Z}
			pair.haveGyro = true
			if hadPrev && !ev.Time.IsZero() && !prev.Time.IsZero() {
				if dt := ev.Time.Sub(prev.Time).Seconds(); dt > 0 {
					lastDt = dt
				}
			}
		case AccelData:
			pair.accel = motion.V3{X: v.X, Y: v.Y, Z: v.Z}
			pair.haveAccel = true
		}
	}

	if d.Motion != nil && pair.haveGyro {
		accel := pair.accel
		if !pair.haveAccel {
			accel = motion.V3{}
		}
		d.Motion.Process(motion.DefaultSettings(), pair.gyro, accel, lastDt)
	}
}

// Get returns the last reported value of a component, if any has arrived.
func (d *Device) Get(p paths.Path) (ComponentState, bool) {
	cs, ok := d.Components[p]
	return cs, ok
}
