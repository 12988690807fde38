package binding

import (
	"math"

	"suinput/core/action"
	"suinput/core/catalog"
	"suinput/core/device"
	"suinput/core/device/motion"
)

// Converter turns a raw input-component sample into a candidate action
// state for one binding. Implementations
// return ok=false when the sample carries no signal for this binding
// (e.g. a component kind the converter doesn't recognize).
type Converter interface {
	Convert(dev *device.Device, data device.Data) (action.State, bool)
}

// converterKey selects a Converter by the (component kind, action data
// type) pair.
type converterKey struct {
	kind catalog.ComponentKind
	data action.DataType
}

var converters = map[converterKey]Converter{
	{catalog.Button, action.Boolean}:  buttonToBool{},
	{catalog.Button, action.Value}:    buttonToValue{},
	{catalog.Trigger, action.Boolean}: triggerToBool{threshold: 0.5},
	{catalog.Trigger, action.Value}:   triggerToValue{},
	{catalog.Move2D, action.Delta2d}:  move2DToDelta2d{sensX: 1, sensY: 1},
	{catalog.Cursor, action.Cursor}:   cursorPassthrough{},
	{catalog.Joystick, action.Axis2d}: axis2DPassthrough{},
	{catalog.Gyro, action.Delta2d}:    gyroToDelta2d{relaxDeg: 60, sensitivity: 1},
}

// selectConverter returns the Converter for (kind, dataType), or
// ok=false if no conversion between the two exists.
func selectConverter(kind catalog.ComponentKind, dataType action.DataType) (Converter, bool) {
	c, ok := converters[converterKey{kind, dataType}]
	return c, ok
}

type buttonToBool struct{}

func (buttonToBool) Convert(_ *device.Device, data device.Data) (action.State, bool) {
	b, ok := data.(device.ButtonData)
	if !ok {
		return nil, false
	}
	return action.BooleanState{Value: bool(b), Changed: true}, true
}

type buttonToValue struct{}

func (buttonToValue) Convert(_ *device.Device, data device.Data) (action.State, bool) {
	b, ok := data.(device.ButtonData)
	if !ok {
		return nil, false
	}
	v := float32(0)
	if b {
		v = 1
	}
	return action.ValueState{Value: v, Changed: true}, true
}

type triggerToBool struct{ threshold float32 }

func (c triggerToBool) Convert(_ *device.Device, data device.Data) (action.State, bool) {
	v, ok := data.(device.ValueData)
	if !ok {
		return nil, false
	}
	return action.BooleanState{Value: float32(v) >= c.threshold, Changed: true}, true
}

type triggerToValue struct{}

func (triggerToValue) Convert(_ *device.Device, data device.Data) (action.State, bool) {
	v, ok := data.(device.ValueData)
	if !ok {
		return nil, false
	}
	return action.ValueState{Value: float32(v), Changed: true}, true
}

type move2DToDelta2d struct{ sensX, sensY float64 }

func (c move2DToDelta2d) Convert(_ *device.Device, data device.Data) (action.State, bool) {
	m, ok := data.(device.Move2DData)
	if !ok {
		return nil, false
	}
	return action.Delta2dState{X: m.X * c.sensX, Y: m.Y * c.sensY}, true
}

type cursorPassthrough struct{}

func (cursorPassthrough) Convert(_ *device.Device, data device.Data) (action.State, bool) {
	cu, ok := data.(device.CursorData)
	if !ok {
		return nil, false
	}
	return action.CursorState{X: cu.X, Y: cu.Y, Window: cu.Window}, true
}

type axis2DPassthrough struct{}

func (axis2DPassthrough) Convert(_ *device.Device, data device.Data) (action.State, bool) {
	a, ok := data.(device.Axis2DData)
	if !ok {
		return nil, false
	}
	return action.Axis2dState{X: a.X, Y: a.Y, Changed: true}, true
}

// gyroToDelta2d converts a gyro sample into mouse-style look deltas in
// "player space": when the device is upright, yaw is taken about the
// world-up axis reconstructed from the device's fused gravity estimate
// rather than the device's own local axes. As the device tilts away from
// upright, yaw blends linearly toward the raw local Y rate, reaching it
// at relaxDeg of tilt and staying there beyond. Pitch is always the raw
// local X rate.
type gyroToDelta2d struct {
	relaxDeg    float64
	sensitivity float64
}

func (c gyroToDelta2d) Convert(dev *device.Device, data device.Data) (action.State, bool) {
	g, ok := data.(device.GyroData)
	if !ok {
		return nil, false
	}
	gyro := motion.V3{X: g.X, Y: g.Y, Z: g.Z}

	if dev.Motion == nil {
		return action.Delta2dState{X: gyro.Y * c.sensitivity, Y: gyro.X * c.sensitivity}, true
	}

	grav := dev.Motion.Gravity.Normalize()
	up := motion.V3{Y: -1}
	cosAngle := clampF(grav.Dot(up), -1, 1)
	worldAngleDeg := math.Acos(cosAngle) * 180 / math.Pi

	relax := clampF(invLerpF(0, c.relaxDeg, worldAngleDeg), 0, 1)

	// World-space yaw rate: the component of angular velocity along the
	// gravity axis, which stays the "vertical" axis regardless of tilt.
	yawWorld := gyro.Dot(grav.Neg())

	yaw := lerpF(yawWorld, gyro.Y, relax)
	pitch := gyro.X

	return action.Delta2dState{X: yaw * c.sensitivity, Y: pitch * c.sensitivity}, true
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func invLerpF(a, b, v float64) float64 {
	if b == a {
		return 0
	}
	return (v - a) / (b - a)
}

func lerpF(a, b, t float64) float64 { return a + (b-a)*t }
