// Package action defines the application-facing data model: actions,
// action sets, the typed action-state snapshots they carry, and the
// composite (parent/child) hierarchy used by Sticky-Bool and axis
// actions.
package action

import "time"

// DataType is the semantic type of value an action carries.
type DataType int

const (
	Boolean DataType = iota
	Value
	Delta2d
	Cursor
	Axis1d
	Axis2d
)

func (t DataType) String() string {
	switch t {
	case Boolean:
		return "boolean"
	case Value:
		return "value"
	case Delta2d:
		return "delta2d"
	case Cursor:
		return "cursor"
	case Axis1d:
		return "axis1d"
	case Axis2d:
		return "axis2d"
	default:
		return "unknown"
	}
}

// HierarchyKind says whether an action stands alone, is a composite
// parent built from child actions, or is one of those children.
type HierarchyKind int

const (
	None HierarchyKind = iota
	Parent
	Child
)

// ParentKind names the composition rule a Parent action uses to combine
// its children.
type ParentKind int

const (
	NoParentKind ParentKind = iota
	StickyBool
	ParentAxis1d
	ParentAxis2d
)

// ChildRole names which input of its parent's composition rule a Child
// action feeds.
type ChildRole int

const (
	NoChildRole ChildRole = iota
	StickyPress
	StickyToggle
	StickyRelease
	Positive
	Negative
	Up
	Right
	Down
	Left
	Vertical
	Horizontal
	Move
)

// Handle identifies an Action within the session that created it.
// Handles start at 1; 0 is never issued.
type Handle uint64

// Action is immutable after creation. Parent/child links are expressed by
// Handle rather than pointer, avoiding any reference-cycle bookkeeping
// between an Action and the ActionSet that owns it.
type Action struct {
	Handle   Handle
	SetName  string
	Name     string
	DataType DataType

	Hierarchy  HierarchyKind
	ParentKind ParentKind // valid when Hierarchy == Parent
	ParentOf   Handle     // valid when Hierarchy == Child: this action's parent
	ChildRole  ChildRole  // valid when Hierarchy == Child
}

// ActionSet is a named, priority-tagged collection of actions that can be
// attached to a session as a unit.
type ActionSet struct {
	Name     string
	Priority uint32
	Actions  []*Action
}

// ByHandle returns the set's action with the given handle, if present.
func (s *ActionSet) ByHandle(h Handle) (*Action, bool) {
	for _, a := range s.Actions {
		if a.Handle == h {
			return a, true
		}
	}
	return nil, false
}

// State is the tagged union of possible action-state payloads. Each
// DataType has exactly one corresponding State implementation.
type State interface {
	isState()
}

type BooleanState struct {
	Value   bool
	Changed bool
}

type ValueState struct {
	Value   float32
	Changed bool
}

type Delta2dState struct {
	X, Y float64
}

type CursorState struct {
	X, Y   float64
	Window uintptr
}

type Axis1dState struct {
	Value   float32
	Changed bool
}

type Axis2dState struct {
	X, Y    float32
	Changed bool
}

func (BooleanState) isState() {}
func (ValueState) isState()   {}
func (Delta2dState) isState() {}
func (CursorState) isState()  {}
func (Axis1dState) isState()  {}
func (Axis2dState) isState()  {}

// ZeroState returns the additive identity / neutral state for a data
// type: false, 0, (0,0), and so on. Used to seed a binding's initial
// state and each action's initial snapshot.
func ZeroState(t DataType) State {
	switch t {
	case Boolean:
		return BooleanState{}
	case Value:
		return ValueState{}
	case Delta2d:
		return Delta2dState{}
	case Cursor:
		return CursorState{}
	case Axis1d:
		return Axis1dState{}
	case Axis2d:
		return Axis2dState{}
	default:
		return nil
	}
}

// Event is delivered to session listeners and folded into the session's
// snapshot map.
type Event struct {
	Handle Handle
	Time   time.Time
	Data   State
}
