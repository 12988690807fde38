package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"suinput/core/paths"
)

func TestLoadDefault(t *testing.T) {
	pm := paths.NewManager()
	reg, err := LoadDefault(pm)
	require.NoError(t, err)

	kbID, err := pm.Get("/devices/standard/hid_keyboard")
	require.NoError(t, err)
	kb, ok := reg.DeviceType(kbID)
	require.True(t, ok)
	assert.False(t, kb.HasMotion())

	gamepadID, err := pm.Get("/devices/gamepad/dualsense")
	require.NoError(t, err)
	gp, ok := reg.DeviceType(gamepadID)
	require.True(t, ok)
	assert.True(t, gp.HasMotion())
	assert.True(t, gp.GyroCalibrated)

	desktopID, err := pm.Get("/interaction_profiles/standard/desktop")
	require.NoError(t, err)
	desktop, ok := reg.Profile(desktopID)
	require.True(t, ok)
	assert.Equal(t, Shared, desktop.Instancing)
	assert.Len(t, desktop.UserToDevice, 2)

	gamepadProfileID, err := pm.Get("/interaction_profiles/standard/dualsense")
	require.NoError(t, err)
	gamepadProfile, ok := reg.Profile(gamepadProfileID)
	require.True(t, ok)
	assert.Equal(t, PerDevice, gamepadProfile.Instancing)
}

func TestLoad_AggregatesErrors(t *testing.T) {
	pm := paths.NewManager()
	badDevices := []byte(`
device_types:
  - id: "NOT-A-VALID-PATH"
    components: []
  - id: /devices/ok
    components:
      - {path: /input/a/click, kind: not-a-kind}
`)
	_, err := Load(pm, [][]byte{badDevices}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 errors occurred")
}

func TestLoad_UnknownDeviceTypeInProfile(t *testing.T) {
	pm := paths.NewManager()
	devices := []byte(`
device_types:
  - id: /devices/standard/hid_keyboard
    components:
      - {path: /input/a/click, kind: button}
`)
	profiles := []byte(`
interaction_profiles:
  - id: /interaction_profiles/bogus
    roles:
      - {user: /user/desktop/keyboard, device_type: /devices/does/not/exist}
`)
	_, err := Load(pm, [][]byte{devices}, [][]byte{profiles})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown device type")
}

func TestDoubleGyro(t *testing.T) {
	pm := paths.NewManager()
	devices := []byte(`
device_types:
  - id: /devices/bad
    components:
      - {path: /input/gyro1/delta, kind: gyro}
      - {path: /input/gyro2/delta, kind: gyro}
`)
	_, err := Load(pm, [][]byte{devices}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "more than one gyro")
}
