package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"suinput/core/action"
	"suinput/core/binding"
	"suinput/core/catalog"
	"suinput/core/device"
	"suinput/core/internal/logger"
	"suinput/core/paths"
)

func newTestSession(t *testing.T) (*Runtime, *Session, *action.Action) {
	t.Helper()
	pm := paths.NewManager()
	cat, err := catalog.LoadDefault(pm)
	require.NoError(t, err)

	rt := New(pm, cat, &logger.MockLogger{})
	t.Cleanup(func() { rt.Destroy() })

	fire := &action.Action{Handle: 1, Name: "Fire", DataType: action.Boolean}
	set := &action.ActionSet{Name: "gameplay", Actions: []*action.Action{fire}}
	sess := rt.CreateSession([]*action.ActionSet{set})
	return rt, sess, fire
}

func TestSession_GetActionState_UnknownHandle(t *testing.T) {
	_, sess, _ := newTestSession(t)

	_, err := GetActionState[action.BooleanState](sess, action.Handle(999))
	assert.Error(t, err)
}

func TestSession_GetActionState_WrongType(t *testing.T) {
	_, sess, fire := newTestSession(t)

	_, err := GetActionState[action.Axis2dState](sess, fire.Handle)
	assert.ErrorIs(t, err, ErrWrongActionType)
}

func TestSession_GetActionState_CorrectType(t *testing.T) {
	_, sess, fire := newTestSession(t)

	st, err := GetActionState[action.BooleanState](sess, fire.Handle)
	require.NoError(t, err)
	assert.Equal(t, action.BooleanState{}, st)
}

func TestSession_ClosedRuntimeRejectsCalls(t *testing.T) {
	rt, sess, fire := newTestSession(t)
	require.NoError(t, rt.Destroy())

	_, err := sess.GetActionStateRaw(fire.Handle)
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.ErrorIs(t, sess.Sync(), ErrSessionClosed)
	assert.ErrorIs(t, sess.UnstickBoolAction(fire.Handle), ErrSessionClosed)
}

func TestSession_DispatchIsolatesPanickingListener(t *testing.T) {
	_, sess, fire := newTestSession(t)

	var calledGood bool
	sess.RegisterEventListener(func(ev action.Event) { panic("boom") })
	sess.RegisterEventListener(func(ev action.Event) { calledGood = true })

	assert.NotPanics(t, func() {
		sess.dispatch(action.Event{Handle: fire.Handle, Data: action.BooleanState{Value: true}})
	})
	assert.True(t, calledGood, "a sibling listener must still run after another panics")
}

func TestSession_RemoveEventListener(t *testing.T) {
	_, sess, fire := newTestSession(t)

	var calls int
	id := sess.RegisterEventListener(func(ev action.Event) { calls++ })
	sess.dispatch(action.Event{Handle: fire.Handle})
	sess.RemoveEventListener(id)
	sess.dispatch(action.Event{Handle: fire.Handle})

	assert.Equal(t, 1, calls)
}

func TestSession_EndToEnd_ButtonDrivesBooleanAction(t *testing.T) {
	pm := paths.NewManager()
	cat, err := catalog.LoadDefault(pm)
	require.NoError(t, err)

	rt := New(pm, cat, &logger.MockLogger{})
	t.Cleanup(func() { rt.Destroy() })

	fire := &action.Action{Handle: 1, Name: "Fire", DataType: action.Boolean}
	set := &action.ActionSet{Name: "gameplay", Actions: []*action.Action{fire}}
	sess := rt.CreateSession([]*action.ActionSet{set})

	require.NoError(t, sess.AttachActionLayout(binding.Layout{
		Name:        "desktop-default",
		ProfilePath: "/interaction_profiles/standard/desktop",
		Bindings: []binding.Binding{
			{Action: 1, Path: "/user/desktop/mouse/input/button_left/click"},
		},
	}))

	events := make(chan action.Event, 16)
	sess.RegisterEventListener(func(ev action.Event) { events <- ev })

	mousePath := pm.MustGet("/devices/standard/generic_mouse")
	h, err := rt.rt.RegisterDevice(mousePath)
	require.NoError(t, err)

	click := pm.MustGet("/input/button_left/click")
	rt.rt.SendComponentEvent(device.InputEvent{
		Path: click, Time: time.Now(), Data: device.ButtonData(true),
	}, h)

	select {
	case ev := <-events:
		assert.Equal(t, action.Handle(1), ev.Handle)
		assert.Equal(t, action.BooleanState{Value: true, Changed: true}, ev.Data)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the press event")
	}

	// A repeat of the same press is not a new event.
	rt.rt.SendComponentEvent(device.InputEvent{
		Path: click, Time: time.Now(), Data: device.ButtonData(true),
	}, h)
	select {
	case ev := <-events:
		t.Fatalf("replayed press produced a second event: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}

	rt.rt.SendComponentEvent(device.InputEvent{
		Path: click, Time: time.Now(), Data: device.ButtonData(false),
	}, h)
	select {
	case ev := <-events:
		assert.Equal(t, action.BooleanState{Value: false, Changed: true}, ev.Data)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the release event")
	}

	require.NoError(t, sess.Sync())
	st, err := GetActionState[action.BooleanState](sess, 1)
	require.NoError(t, err)
	assert.False(t, st.Value)
}
