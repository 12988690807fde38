package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"suinput/core/catalog"
	"suinput/core/device"
	"suinput/core/internal/logger"
	"suinput/core/paths"
)

func setup(t *testing.T) (*Worker, *paths.Manager, *catalog.Registry) {
	t.Helper()
	pm := paths.NewManager()
	reg, err := catalog.LoadDefault(pm)
	require.NoError(t, err)
	return New(pm, reg, &logger.MockLogger{}), pm, reg
}

func TestRegisterDevice_AssignsGenerationalHandle(t *testing.T) {
	w, pm, _ := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	rt := NewDriverRuntime(w)
	kbPath, err := pm.Get("/devices/standard/hid_keyboard")
	require.NoError(t, err)

	h, err := rt.RegisterDevice(kbPath)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), h.Slot)
	assert.Equal(t, uint32(1), h.Generation)

	rt.DisconnectDevice(h)
	time.Sleep(10 * time.Millisecond)

	h2, err := rt.RegisterDevice(kbPath)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), h2.Slot)
	assert.Equal(t, uint32(2), h2.Generation, "reused slot must bump generation so the old handle goes stale")
}

func TestRegisterDevice_UnknownTypeErrors(t *testing.T) {
	w, pm, _ := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	rt := NewDriverRuntime(w)
	bogus, err := pm.Get("/devices/standard/does_not_exist")
	require.NoError(t, err)

	_, err = rt.RegisterDevice(bogus)
	assert.Error(t, err)
}

func TestSessionReceivesRegisterAndInput(t *testing.T) {
	w, pm, _ := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	_, msgs := w.AttachSession()

	rt := NewDriverRuntime(w)
	kbPath, err := pm.Get("/devices/standard/hid_keyboard")
	require.NoError(t, err)
	h, err := rt.RegisterDevice(kbPath)
	require.NoError(t, err)

	select {
	case m := <-msgs:
		require.NotNil(t, m.RegisterDevice)
		assert.Equal(t, h, m.RegisterDevice.Handle)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for RegisterDevice message")
	}

	aPath, err := pm.Get("/devices/standard/hid_keyboard/input/a/click")
	require.NoError(t, err)
	rt.SendComponentEvent(device.InputEvent{Path: aPath, Time: time.Now(), Data: device.ButtonData(true)}, h)

	select {
	case m := <-msgs:
		require.NotNil(t, m.Input)
		assert.Equal(t, aPath, m.Input.Event.Path)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Input message")
	}
}

func TestStaleHandleInputIsDropped(t *testing.T) {
	w, pm, _ := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	_, msgs := w.AttachSession()

	rt := NewDriverRuntime(w)
	kbPath, err := pm.Get("/devices/standard/hid_keyboard")
	require.NoError(t, err)
	h, err := rt.RegisterDevice(kbPath)
	require.NoError(t, err)
	<-msgs // drain RegisterDevice

	rt.DisconnectDevice(h)
	select {
	case m := <-msgs:
		require.NotNil(t, m.DisconnectDevice)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for DisconnectDevice message")
	}

	aPath, err := pm.Get("/devices/standard/hid_keyboard/input/a/click")
	require.NoError(t, err)
	rt.SendComponentEvent(device.InputEvent{Path: aPath, Time: time.Now(), Data: device.ButtonData(true)}, h)

	select {
	case <-msgs:
		t.Fatal("stale handle should not have produced a session message")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDetachSession_ClosesChannel(t *testing.T) {
	w, _, _ := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	id, msgs := w.AttachSession()
	w.DetachSession(id)

	_, ok := <-msgs
	assert.False(t, ok)
}
