package glfw

import (
	"testing"

	glfwlib "github.com/go-gl/glfw/v3.3/glfw"
	"github.com/stretchr/testify/assert"

	"suinput/core/driverapi"
	"suinput/core/internal/logger"
)

func TestPoll_BeforeInitialize(t *testing.T) {
	d := New(&logger.MockLogger{})
	assert.ErrorIs(t, d.Poll(), driverapi.ErrDriverUninitialized)
}

func TestKeySegment(t *testing.T) {
	seg, ok := keySegment(glfwlib.KeyA)
	assert.True(t, ok)
	assert.Equal(t, "a", seg)

	seg, ok = keySegment(glfwlib.KeyZ)
	assert.True(t, ok)
	assert.Equal(t, "z", seg)

	seg, ok = keySegment(glfwlib.KeySpace)
	assert.True(t, ok)
	assert.Equal(t, "space", seg)

	_, ok = keySegment(glfwlib.KeyF1)
	assert.False(t, ok, "keys the desktop keyboard device type doesn't declare must be rejected")
}

func TestMouseButtonSegment(t *testing.T) {
	seg, ok := mouseButtonSegment(glfwlib.MouseButtonLeft)
	assert.True(t, ok)
	assert.Equal(t, "button_left", seg)

	_, ok = mouseButtonSegment(glfwlib.MouseButton4)
	assert.False(t, ok)
}

func TestGamepadButtonSegment(t *testing.T) {
	seg, ok := gamepadButtonSegment(0)
	assert.True(t, ok)
	assert.Equal(t, "a", seg)

	_, ok = gamepadButtonSegment(6) // unnamed index (Back)
	assert.False(t, ok)

	_, ok = gamepadButtonSegment(-1)
	assert.False(t, ok)

	_, ok = gamepadButtonSegment(99)
	assert.False(t, ok)
}
