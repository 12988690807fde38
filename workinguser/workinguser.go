// Package workinguser implements the working-user aggregator: the
// transient, per-session state that folds per-binding conversions into
// per-action state, combines that across attached binding layouts, and
// resolves composite (Sticky-Bool / Axis1d / Axis2d) parent/child
// actions before emitting ActionEvents.
package workinguser

import (
	"time"

	"suinput/core/action"
	"suinput/core/binding"
	"suinput/core/paths"
	"suinput/core/profile"
)

// attachedLayout is one compiled binding layout attached to the
// aggregator's user, along with the last state each of its actions
// folded to.
type attachedLayout struct {
	processed   *binding.Processed
	actionState map[action.Handle]action.State
}

// compositeState is the transient combination state for one composite
// parent action: each child's last boolean value (for rising-edge
// detection), the
// parent's own direct ("raw") binding value, and the Sticky-Bool latch.
type compositeState struct {
	parentKind action.ParentKind

	parentRawBool bool
	stuck         bool

	parentRaw1d float32
	pos, neg    float32

	parentRawX, parentRawY float32
	up, down, left, right  float32
	vertical, horizontal   float32

	lastChildBool map[action.Handle]bool
}

func newCompositeState(kind action.ParentKind) *compositeState {
	return &compositeState{parentKind: kind, lastChildBool: make(map[action.Handle]bool)}
}

// Aggregator is one session's working-user state. It is rebuilt
// incrementally as profile.Changed events arrive and reset (for Delta2d
// accumulators) on every sync().
type Aggregator struct {
	actions  map[action.Handle]*action.Action
	priority map[action.Handle]uint32

	layouts map[paths.Path]*attachedLayout // interaction-profile path -> attached layout

	composite map[action.Handle]*compositeState // parent handle -> composite state
	snapshot  map[action.Handle]action.State    // final, stable per-action state
	deltaAcc  map[action.Handle]action.Delta2dState

	// OnEvent is invoked synchronously for every emitted ActionEvent.
	// Panics from it are the caller's responsibility to isolate
	// (session.Session does this at the listener-dispatch layer).
	OnEvent func(action.Event)
}

// New creates an aggregator for the given attached action sets. Each
// set's priority decides which bindings win when several actions share
// one physical input.
func New(sets []*action.ActionSet) *Aggregator {
	a := &Aggregator{
		actions:   make(map[action.Handle]*action.Action),
		priority:  make(map[action.Handle]uint32),
		layouts:   make(map[paths.Path]*attachedLayout),
		composite: make(map[action.Handle]*compositeState),
		snapshot:  make(map[action.Handle]action.State),
		deltaAcc:  make(map[action.Handle]action.Delta2dState),
	}
	for _, set := range sets {
		for _, act := range set.Actions {
			a.actions[act.Handle] = act
			a.priority[act.Handle] = set.Priority
			if act.Hierarchy == action.Parent {
				a.composite[act.Handle] = newCompositeState(act.ParentKind)
			}
			a.snapshot[act.Handle] = action.ZeroState(act.DataType)
		}
	}
	return a
}

// ActionByHandle resolves a session-scoped action handle, used by
// binding.Compile.
func (a *Aggregator) ActionByHandle(h action.Handle) (*action.Action, bool) {
	act, ok := a.actions[h]
	return act, ok
}

// AttachLayout attaches a compiled binding layout for the given
// interaction-profile path, replacing any layout previously attached for
// that profile.
func (a *Aggregator) AttachLayout(profilePath paths.Path, processed *binding.Processed) {
	a.layouts[profilePath] = &attachedLayout{
		processed:   processed,
		actionState: make(map[action.Handle]action.State),
	}
}

// DetachLayout removes the layout attached for a profile, if any.
func (a *Aggregator) DetachLayout(profilePath paths.Path) {
	delete(a.layouts, profilePath)
}

// Snapshot returns the last stable state recorded for an action.
func (a *Aggregator) Snapshot(h action.Handle) (action.State, bool) {
	s, ok := a.snapshot[h]
	return s, ok
}

// Sync publishes each Delta2d action's accumulated window total into the
// snapshot and resets the accumulator, so a read after Sync sees the sum
// of the deltas emitted since the previous Sync — and a Sync with no
// intervening events reads back as zero.
func (a *Aggregator) Sync() {
	for h, acc := range a.deltaAcc {
		a.snapshot[h] = acc
		a.deltaAcc[h] = action.Delta2dState{}
	}
}

// UnstickBool clears the Sticky-Bool latch for a composite parent
// action.
func (a *Aggregator) UnstickBool(parent action.Handle) {
	cs, ok := a.composite[parent]
	if !ok || cs.parentKind != action.StickyBool {
		return
	}
	cs.stuck = false
	a.recomputeStickyBool(parent, cs, time.Now())
}

// HandleChange folds one profile-layer aggregated-value change into
// per-action state. profilePath identifies which attached layout to
// walk.
func (a *Aggregator) HandleChange(profilePath paths.Path, ch profile.Changed) {
	al, ok := a.layouts[profilePath]
	if !ok {
		return
	}
	indices := al.processed.BindingsFor(ch.Role, ch.Input)
	if len(indices) == 0 {
		return
	}

	// Restrict to bindings whose action has the highest active priority
	// among this group; ties evaluate all.
	maxPriority := uint32(0)
	first := true
	for _, idx := range indices {
		_, h := al.processed.Converter(idx)
		p := a.priority[h]
		if first || p > maxPriority {
			maxPriority, first = p, false
		}
	}

	now := ch.Value.Time
	touchedActions := make(map[action.Handle]bool)
	for _, idx := range indices {
		conv, h := al.processed.Converter(idx)
		if a.priority[h] != maxPriority {
			continue
		}
		candidate, ok := conv.Convert(ch.SourceDevice, ch.Value.Data)
		if !ok {
			continue
		}
		al.processed.SetState(idx, candidate)
		touchedActions[h] = true
	}

	for h := range touchedActions {
		a.foldAction(al, h, now)
	}
}

// foldAction folds the per-binding states for one action that just
// received a fresh candidate within layout al, then combines across
// layouts and resolves composite hierarchy before emitting.
func (a *Aggregator) foldAction(al *attachedLayout, h action.Handle, now time.Time) {
	act, ok := a.actions[h]
	if !ok {
		return
	}

	// Intra-layout aggregation across every binding in al that feeds
	// this action.
	var layoutState action.State
	for _, idx := range al.processed.BindingsForAction(h) {
		layoutState = combine(act.DataType, layoutState, al.processed.State(idx))
	}
	al.actionState[h] = layoutState

	// Cross-layout aggregation across every attached layout that also
	// feeds this action.
	var crossState action.State
	for _, other := range a.layouts {
		if s, ok := other.actionState[h]; ok {
			crossState = combine(act.DataType, crossState, s)
		}
	}

	if act.DataType == action.Delta2d {
		a.accumulateDelta(h, crossState, now)
		// Deltas are consumed on read: zero the stored per-binding and
		// per-layout states so the next event doesn't re-add them.
		for _, idx := range al.processed.BindingsForAction(h) {
			al.processed.SetState(idx, action.Delta2dState{})
		}
		al.actionState[h] = action.Delta2dState{}
		return
	}

	switch act.Hierarchy {
	case action.Child:
		a.applyChild(act, crossState, now)
	case action.Parent:
		a.applyParentRaw(act, crossState, now)
	default:
		a.emitIfChanged(h, crossState, now)
	}
}

// accumulateDelta implements Delta2d's additive-until-sync semantics:
// every fresh cross-layout value is added into the action's running
// window total (published to the snapshot at the next Sync), and the
// raw (non-cumulative) delta is what gets emitted.
func (a *Aggregator) accumulateDelta(h action.Handle, crossState action.State, now time.Time) {
	d, ok := crossState.(action.Delta2dState)
	if !ok {
		return
	}
	acc := a.deltaAcc[h]
	acc.X += d.X
	acc.Y += d.Y
	a.deltaAcc[h] = acc
	if a.OnEvent != nil {
		a.OnEvent(action.Event{Handle: h, Time: now, Data: d})
	}
}

func (a *Aggregator) applyChild(child *action.Action, value action.State, now time.Time) {
	cs, ok := a.composite[child.ParentOf]
	if !ok {
		return
	}
	switch cs.parentKind {
	case action.StickyBool:
		a.applyStickyBoolChild(child, cs, value)
	case action.ParentAxis1d:
		a.applyAxis1dChild(child, cs, value)
	case action.ParentAxis2d:
		a.applyAxis2dChild(child, cs, value)
	default:
		return
	}
	a.recomputeComposite(child.ParentOf, cs, now)
}

func (a *Aggregator) applyParentRaw(parent *action.Action, value action.State, now time.Time) {
	cs, ok := a.composite[parent.Handle]
	if !ok {
		return
	}
	switch cs.parentKind {
	case action.StickyBool:
		if b, ok := value.(action.BooleanState); ok {
			cs.parentRawBool = b.Value
		}
	case action.ParentAxis1d:
		if v, ok := value.(action.Axis1dState); ok {
			cs.parentRaw1d = v.Value
		}
	case action.ParentAxis2d:
		if v, ok := value.(action.Axis2dState); ok {
			cs.parentRawX, cs.parentRawY = v.X, v.Y
		}
	}
	a.recomputeComposite(parent.Handle, cs, now)
}

func boolValue(s action.State) (bool, bool) {
	b, ok := s.(action.BooleanState)
	return b.Value, ok
}

// risingEdge reports whether child's boolean value just transitioned
// false->true, updating the tracked previous value.
func risingEdge(cs *compositeState, child action.Handle, value bool) bool {
	prev := cs.lastChildBool[child]
	cs.lastChildBool[child] = value
	return value && !prev
}

func (a *Aggregator) applyStickyBoolChild(child *action.Action, cs *compositeState, value action.State) {
	b, ok := boolValue(value)
	if !ok {
		return
	}
	if !risingEdge(cs, child.Handle, b) {
		return
	}
	switch child.ChildRole {
	case action.StickyPress:
		cs.stuck = true
	case action.StickyToggle:
		cs.stuck = !cs.stuck
	case action.StickyRelease:
		cs.stuck = false
	}
}

func (a *Aggregator) applyAxis1dChild(child *action.Action, cs *compositeState, value action.State) {
	b, ok := boolValue(value)
	if !ok {
		return
	}
	v := float32(0)
	if b {
		v = 1
	}
	switch child.ChildRole {
	case action.Positive:
		cs.pos = v
	case action.Negative:
		cs.neg = v
	}
}

func (a *Aggregator) applyAxis2dChild(child *action.Action, cs *compositeState, value action.State) {
	switch child.ChildRole {
	case action.Up, action.Down, action.Left, action.Right:
		b, ok := boolValue(value)
		if !ok {
			return
		}
		v := float32(0)
		if b {
			v = 1
		}
		switch child.ChildRole {
		case action.Up:
			cs.up = v
		case action.Down:
			cs.down = v
		case action.Left:
			cs.left = v
		case action.Right:
			cs.right = v
		}
	case action.Vertical, action.Horizontal:
		v, ok := value.(action.ValueState)
		if !ok {
			return
		}
		if child.ChildRole == action.Vertical {
			cs.vertical = v.Value
		} else {
			cs.horizontal = v.Value
		}
	case action.Move:
		d, ok := value.(action.Axis2dState)
		if !ok {
			return
		}
		cs.parentRawX, cs.parentRawY = d.X, d.Y
	}
}

func (a *Aggregator) recomputeComposite(parent action.Handle, cs *compositeState, now time.Time) {
	switch cs.parentKind {
	case action.StickyBool:
		a.recomputeStickyBool(parent, cs, now)
	case action.ParentAxis1d:
		combined := clampF32(cs.pos-cs.neg+cs.parentRaw1d, -1, 1)
		a.emitIfChanged(parent, action.Axis1dState{Value: combined, Changed: true}, now)
	case action.ParentAxis2d:
		x := clampF32(cs.right-cs.left+cs.horizontal+cs.parentRawX, -1, 1)
		y := clampF32(cs.up-cs.down+cs.vertical+cs.parentRawY, -1, 1)
		a.emitIfChanged(parent, action.Axis2dState{X: x, Y: y, Changed: true}, now)
	}
}

func (a *Aggregator) recomputeStickyBool(parent action.Handle, cs *compositeState, now time.Time) {
	combined := cs.parentRawBool || cs.stuck
	a.emitIfChanged(parent, action.BooleanState{Value: combined, Changed: true}, now)
}

// emitIfChanged installs newState as the action's stable snapshot and
// emits an ActionEvent, but only if the value actually moved; replaying
// an identical event is a no-op.
func (a *Aggregator) emitIfChanged(h action.Handle, newState action.State, now time.Time) {
	old, had := a.snapshot[h]
	if had && stateEqual(old, newState) {
		return
	}
	a.snapshot[h] = newState
	if a.OnEvent != nil {
		a.OnEvent(action.Event{Handle: h, Time: now, Data: newState})
	}
}

// combine folds two action states of the same data type, reused for
// both intra-layout and cross-layout folding: bool OR, magnitude-wins
// for values and axes, latest-wins for cursors, additive for deltas.
// A nil prev is the identity: combine always returns next if prev
// hasn't been set yet.
func combine(dt action.DataType, prev, next action.State) action.State {
	if prev == nil {
		return next
	}
	if next == nil {
		return prev
	}
	switch dt {
	case action.Boolean:
		p, _ := prev.(action.BooleanState)
		n, _ := next.(action.BooleanState)
		return action.BooleanState{Value: p.Value || n.Value, Changed: true}
	case action.Value:
		p, _ := prev.(action.ValueState)
		n, _ := next.(action.ValueState)
		if abs32(n.Value) >= abs32(p.Value) {
			return n
		}
		return p
	case action.Axis1d:
		p, _ := prev.(action.Axis1dState)
		n, _ := next.(action.Axis1dState)
		if abs32(n.Value) >= abs32(p.Value) {
			return n
		}
		return p
	case action.Axis2d:
		p, _ := prev.(action.Axis2dState)
		n, _ := next.(action.Axis2dState)
		if n.X*n.X+n.Y*n.Y >= p.X*p.X+p.Y*p.Y {
			return n
		}
		return p
	case action.Cursor:
		return next // latest wins
	case action.Delta2d:
		p, _ := prev.(action.Delta2dState)
		n, _ := next.(action.Delta2dState)
		return action.Delta2dState{X: p.X + n.X, Y: p.Y + n.Y}
	default:
		return next
	}
}

func stateEqual(a, b action.State) bool {
	switch av := a.(type) {
	case action.BooleanState:
		bv, ok := b.(action.BooleanState)
		return ok && av.Value == bv.Value
	case action.ValueState:
		bv, ok := b.(action.ValueState)
		return ok && av.Value == bv.Value
	case action.Axis1dState:
		bv, ok := b.(action.Axis1dState)
		return ok && av.Value == bv.Value
	case action.Axis2dState:
		bv, ok := b.(action.Axis2dState)
		return ok && av.X == bv.X && av.Y == bv.Y
	case action.CursorState:
		bv, ok := b.(action.CursorState)
		return ok && av.X == bv.X && av.Y == bv.Y && av.Window == bv.Window
	case action.Delta2dState:
		bv, ok := b.(action.Delta2dState)
		return ok && av.X == bv.X && av.Y == bv.Y
	default:
		return false
	}
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

func clampF32(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
