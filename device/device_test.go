package device

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"suinput/core/catalog"
	"suinput/core/device/motion"
	"suinput/core/paths"
)

func TestNew_AttachesMotionOnlyWhenDeviceHasIt(t *testing.T) {
	pm := paths.NewManager()
	reg, err := catalog.LoadDefault(pm)
	require.NoError(t, err)

	kbID := pm.MustGet("/devices/standard/hid_keyboard")
	kbType, _ := reg.DeviceType(kbID)
	kb := New(kbType, Handle{Slot: 1, Generation: 1})
	assert.Nil(t, kb.Motion)

	gpID := pm.MustGet("/devices/gamepad/dualsense")
	gpType, _ := reg.DeviceType(gpID)
	gp := New(gpType, Handle{Slot: 2, Generation: 1})
	assert.NotNil(t, gp.Motion)
}

func TestApplyBatch_StoresComponentsAndFusesMotion(t *testing.T) {
	pm := paths.NewManager()
	reg, err := catalog.LoadDefault(pm)
	require.NoError(t, err)

	gpID := pm.MustGet("/devices/gamepad/dualsense")
	gpType, _ := reg.DeviceType(gpID)
	gp := New(gpType, Handle{Slot: 1, Generation: 1})

	aClick := pm.MustGet("/input/a/click")
	gyro := pm.MustGet("/input/gyro/delta")
	accel := pm.MustGet("/input/accel/value")

	now := time.Now()
	gp.ApplyBatch(BatchUpdate{
		Device: gp.Handle,
		Events: []InputEvent{
			{Path: aClick, Time: now, Data: ButtonData(true)},
			{Path: gyro, Time: now, Data: GyroData{X: 1, Y: 2, Z: 3}},
			{Path: accel, Time: now, Data: AccelData{Y: -1}},
		},
	})

	cs, ok := gp.Get(aClick)
	require.True(t, ok)
	assert.Equal(t, ButtonData(true), cs.Data)

	require.NotNil(t, gp.Motion)
	assert.NotEqual(t, motion.Identity, gp.Motion.Orientation)
}

func TestApplyBatch_IgnoresUndeclaredComponents(t *testing.T) {
	pm := paths.NewManager()
	reg, err := catalog.LoadDefault(pm)
	require.NoError(t, err)

	kbID := pm.MustGet("/devices/standard/hid_keyboard")
	kbType, _ := reg.DeviceType(kbID)
	kb := New(kbType, Handle{Slot: 1, Generation: 1})

	foreign := pm.MustGet("/input/not_on_keyboard/click")
	kb.ApplyBatch(BatchUpdate{
		Device: kb.Handle,
		Events: []InputEvent{{Path: foreign, Time: time.Now(), Data: ButtonData(true)}},
	})

	_, ok := kb.Get(foreign)
	assert.False(t, ok)
}
