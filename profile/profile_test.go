package profile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"suinput/core/catalog"
	"suinput/core/device"
	"suinput/core/paths"
)

func setup(t *testing.T) (*paths.Manager, *catalog.Registry, *Registry) {
	t.Helper()
	pm := paths.NewManager()
	cat, err := catalog.LoadDefault(pm)
	require.NoError(t, err)
	return pm, cat, NewRegistry(cat)
}

func TestApply_ButtonORAcrossTwoKeyboards(t *testing.T) {
	pm, cat, reg := setup(t)
	kbID := pm.MustGet("/devices/standard/hid_keyboard")
	kbType, _ := cat.DeviceType(kbID)
	kb1 := device.New(kbType, device.Handle{Slot: 1, Generation: 1})
	kb2 := device.New(kbType, device.Handle{Slot: 2, Generation: 1})

	aClick := pm.MustGet("/input/a/click")
	role := pm.MustGet("/user/desktop/keyboard")

	now := time.Now()
	kb1.ApplyBatch(device.BatchUpdate{Device: kb1.Handle, Events: []device.InputEvent{
		{Path: aClick, Time: now, Data: device.ButtonData(true)},
	}})
	changed := reg.Apply(kb1, device.InputEvent{Path: aClick, Time: now, Data: device.ButtonData(true)})
	require.Len(t, changed, 1)
	assert.Equal(t, device.ButtonData(true), changed[0].Value.Data)

	later := now.Add(time.Millisecond)
	kb2.ApplyBatch(device.BatchUpdate{Device: kb2.Handle, Events: []device.InputEvent{
		{Path: aClick, Time: later, Data: device.ButtonData(false)},
	}})
	changed = reg.Apply(kb2, device.InputEvent{Path: aClick, Time: later, Data: device.ButtonData(false)})
	// kb1 still reports pressed, so the OR-aggregated role state must
	// remain true until kb1 releases too.
	assert.Empty(t, changed)

	cs, ok := reg.shared[pm.MustGet("/interaction_profiles/standard/desktop")].Get(role, aClick)
	require.True(t, ok)
	assert.Equal(t, device.ButtonData(true), cs.Data)
}

func TestApply_TriggerMagnitudeWins(t *testing.T) {
	pm, cat, reg := setup(t)
	gpID := pm.MustGet("/devices/gamepad/dualsense")
	gpType, _ := cat.DeviceType(gpID)
	gp := device.New(gpType, device.Handle{Slot: 1, Generation: 1})

	triggerL := pm.MustGet("/input/trigger_left/value")

	now := time.Now()
	gp.ApplyBatch(device.BatchUpdate{Device: gp.Handle, Events: []device.InputEvent{
		{Path: triggerL, Time: now, Data: device.ValueData(0.3)},
	}})
	changed := reg.Apply(gp, device.InputEvent{Path: triggerL, Time: now, Data: device.ValueData(0.3)})
	require.Len(t, changed, 1)
	assert.Equal(t, device.ValueData(0.3), changed[0].Value.Data)

	// Two mice share the desktop mouse role: the larger scroll magnitude
	// wins, so m2's later but smaller value leaves the role state alone.
	mouseType, _ := cat.DeviceType(pm.MustGet("/devices/standard/generic_mouse"))
	m1 := device.New(mouseType, device.Handle{Slot: 2, Generation: 1})
	m2 := device.New(mouseType, device.Handle{Slot: 3, Generation: 1})
	scroll := pm.MustGet("/input/scroll/value")
	m1.ApplyBatch(device.BatchUpdate{Device: m1.Handle, Events: []device.InputEvent{
		{Path: scroll, Time: now, Data: device.ValueData(-0.8)},
	}})
	reg.Apply(m1, device.InputEvent{Path: scroll, Time: now, Data: device.ValueData(-0.8)})
	later := now.Add(time.Millisecond)
	m2.ApplyBatch(device.BatchUpdate{Device: m2.Handle, Events: []device.InputEvent{
		{Path: scroll, Time: later, Data: device.ValueData(0.5)},
	}})
	assert.Empty(t, reg.Apply(m2, device.InputEvent{Path: scroll, Time: later, Data: device.ValueData(0.5)}))

	cs, ok := reg.shared[pm.MustGet("/interaction_profiles/standard/desktop")].Get(pm.MustGet("/user/desktop/mouse"), scroll)
	require.True(t, ok)
	assert.Equal(t, device.ValueData(-0.8), cs.Data)
}

func TestDetach_RemovesDeviceFromPerDeviceProfile(t *testing.T) {
	pm, cat, reg := setup(t)
	gpID := pm.MustGet("/devices/gamepad/dualsense")
	gpType, _ := cat.DeviceType(gpID)
	gp := device.New(gpType, device.Handle{Slot: 1, Generation: 1})

	aClick := pm.MustGet("/input/a/click")
	now := time.Now()
	gp.ApplyBatch(device.BatchUpdate{Device: gp.Handle, Events: []device.InputEvent{
		{Path: aClick, Time: now, Data: device.ButtonData(true)},
	}})
	reg.Apply(gp, device.InputEvent{Path: aClick, Time: now, Data: device.ButtonData(true)})

	profileID := pm.MustGet("/interaction_profiles/standard/dualsense")
	require.Len(t, reg.perDev[profileID], 1)

	reg.Detach(gpType, gp.Handle)
	_, ok := reg.perDev[profileID][gp.Handle]
	assert.False(t, ok)
}
