package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"suinput/core/action"
	"suinput/core/catalog"
	"suinput/core/internal/logger"
	"suinput/core/paths"
	"suinput/core/session"
)

func TestBuildDemoActionSet_HandlesUnique(t *testing.T) {
	sets, byName := buildDemoActionSet()
	require.Len(t, sets, 1)

	seen := make(map[action.Handle]bool)
	for _, act := range sets[0].Actions {
		assert.False(t, seen[act.Handle], "duplicate handle %d", act.Handle)
		seen[act.Handle] = true
	}
	assert.Len(t, byName, len(sets[0].Actions))

	jump, ok := byName["Jump"]
	require.True(t, ok)
	assert.Equal(t, action.Parent, jump.Hierarchy)
	assert.Equal(t, action.StickyBool, jump.ParentKind)
}

func TestAttachDefaultBindings_CompilesAgainstCatalog(t *testing.T) {
	pm := paths.NewManager()
	cat, err := catalog.LoadDefault(pm)
	require.NoError(t, err)

	rt := session.New(pm, cat, &logger.MockLogger{})
	defer rt.Destroy()

	sets, actions := buildDemoActionSet()
	sess := rt.CreateSession(sets)

	assert.NoError(t, attachDefaultBindings(sess, actions))
}
