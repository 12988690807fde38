// Package binding implements binding-layout authoring and compilation:
// splitting a binding's path into its user-role and component halves, resolving a Converter, and building the fan-out/fan-in indices
// the working-user aggregator (package workinguser) walks per event.
package binding

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"

	"suinput/core/action"
	"suinput/core/catalog"
	"suinput/core/paths"
)

// ErrorKind enumerates the ways a binding layout can fail to compile.
type ErrorKind int

const (
	InvalidPathHandle ErrorKind = iota
	InvalidActionHandle
	BadInteractionProfilePath
	BadUserPath
	BadComponentPath
	BadBinding
)

func (k ErrorKind) String() string {
	switch k {
	case InvalidPathHandle:
		return "InvalidPathHandle"
	case InvalidActionHandle:
		return "InvalidActionHandle"
	case BadInteractionProfilePath:
		return "BadInteractionProfilePath"
	case BadUserPath:
		return "BadUserPath"
	case BadComponentPath:
		return "BadComponentPath"
	case BadBinding:
		return "BadBinding"
	default:
		return "Unknown"
	}
}

// Error reports one binding within a layout that failed to compile.
// Compile aggregates every Error it encounters via
// go-multierror so a caller sees every bad binding in one pass.
type Error struct {
	Kind         ErrorKind
	BindingIndex int
	Path         string
	Detail       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("binding[%d] (%s): %s: %s", e.BindingIndex, e.Path, e.Kind, e.Detail)
}

// Binding is one authored (action handle, path) pair.
type Binding struct {
	Action action.Handle
	Path   string
}

// Layout is a named, profile-scoped collection of authored bindings.
type Layout struct {
	Name        string
	ProfilePath string
	Bindings    []Binding
}

// entry is one compiled binding: its converter, the device-relative
// paths it was split from (kept for decompilation), and the action it
// feeds.
type entry struct {
	converter     Converter
	userPath      paths.Path
	componentPath paths.Path
	action        action.Handle
	state         action.State
}

// Processed is the compiled form of a Layout: an indexed binding list
// plus the fan-out and fan-in indices the aggregator uses.
type Processed struct {
	Profile  *catalog.InteractionProfileType
	bindings []entry

	// inputBindings[user][input] -> binding indices, fan-out for event
	// dispatch.
	inputBindings map[paths.Path]map[paths.Path][]int

	// bindingsForAction[action] -> binding indices, fan-in for
	// aggregation.
	bindingsForAction map[action.Handle][]int
}

// BindingsFor returns the indices of every compiled binding touching
// (user, input), in the order they were compiled.
func (p *Processed) BindingsFor(user, input paths.Path) []int {
	return p.inputBindings[user][input]
}

// BindingsForAction returns the indices of every compiled binding that
// feeds the given action.
func (p *Processed) BindingsForAction(h action.Handle) []int {
	return p.bindingsForAction[h]
}

// Converter returns the Converter and action handle for a compiled
// binding index.
func (p *Processed) Converter(idx int) (Converter, action.Handle) {
	e := p.bindings[idx]
	return e.converter, e.action
}

// State returns the last state recorded for a compiled binding, seeded
// to the action's neutral state at compile time.
func (p *Processed) State(idx int) action.State { return p.bindings[idx].state }

// SetState updates the last-recorded state for a compiled binding
// (called by the aggregator after each conversion).
func (p *Processed) SetState(idx int, s action.State) { p.bindings[idx].state = s }

// Bindings reconstructs the authored `(action, path)` pairs this layout
// compiled from: compiling the result and decompiling again yields the
// same set.
func (p *Processed) Bindings(pm *paths.Manager) ([]Binding, error) {
	out := make([]Binding, 0, len(p.bindings))
	for _, e := range p.bindings {
		userStr, ok := pm.GetString(e.userPath)
		if !ok {
			return nil, fmt.Errorf("binding: user path %v not interned", e.userPath)
		}
		compStr, ok := pm.GetString(e.componentPath)
		if !ok {
			return nil, fmt.Errorf("binding: component path %v not interned", e.componentPath)
		}
		out = append(out, Binding{Action: e.action, Path: userStr + compStr})
	}
	return out, nil
}

// Compile resolves layout against the interaction-profile type it
// targets and the device types it names, producing a Processed binding
// layout. actions resolves an action handle to its Action. Every
// incompatible binding is collected and returned together as one
// *multierror.Error so a misconfigured layout reports every problem at
// once.
func Compile(pm *paths.Manager, reg *catalog.Registry, layout Layout, actions func(action.Handle) (*action.Action, bool)) (*Processed, error) {
	profileID, err := pm.Get(layout.ProfilePath)
	if err != nil {
		return nil, &Error{Kind: BadInteractionProfilePath, Path: layout.ProfilePath, Detail: err.Error()}
	}
	profile, ok := reg.Profile(profileID)
	if !ok {
		return nil, &Error{Kind: BadInteractionProfilePath, Path: layout.ProfilePath, Detail: "unknown interaction profile"}
	}

	p := &Processed{
		Profile:           profile,
		inputBindings:     make(map[paths.Path]map[paths.Path][]int),
		bindingsForAction: make(map[action.Handle][]int),
	}

	var errs *multierror.Error
	for i, b := range layout.Bindings {
		e, err := compileOne(pm, reg, profile, i, b, actions)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		idx := len(p.bindings)
		p.bindings = append(p.bindings, *e)

		byInput, ok := p.inputBindings[e.userPath]
		if !ok {
			byInput = make(map[paths.Path][]int)
			p.inputBindings[e.userPath] = byInput
		}
		byInput[e.componentPath] = append(byInput[e.componentPath], idx)
		p.bindingsForAction[e.action] = append(p.bindingsForAction[e.action], idx)
	}

	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return p, nil
}

func compileOne(pm *paths.Manager, reg *catalog.Registry, profile *catalog.InteractionProfileType, idx int, b Binding, actions func(action.Handle) (*action.Action, bool)) (*entry, error) {
	act, ok := actions(b.Action)
	if !ok {
		return nil, &Error{Kind: InvalidActionHandle, BindingIndex: idx, Path: b.Path, Detail: "unknown action handle"}
	}

	userStr, compStr, ok := splitAtInput(b.Path)
	if !ok {
		return nil, &Error{Kind: InvalidPathHandle, BindingIndex: idx, Path: b.Path, Detail: "no /input boundary"}
	}

	userPath, err := pm.Get(userStr)
	if err != nil {
		return nil, &Error{Kind: InvalidPathHandle, BindingIndex: idx, Path: b.Path, Detail: err.Error()}
	}
	compPath, err := pm.Get(compStr)
	if err != nil {
		return nil, &Error{Kind: InvalidPathHandle, BindingIndex: idx, Path: b.Path, Detail: err.Error()}
	}

	deviceTypeID, ok := profile.UserToDevice[userPath]
	if !ok {
		return nil, &Error{Kind: BadUserPath, BindingIndex: idx, Path: b.Path, Detail: "user role not in this profile"}
	}
	dt, ok := reg.DeviceType(deviceTypeID)
	if !ok {
		return nil, &Error{Kind: BadUserPath, BindingIndex: idx, Path: b.Path, Detail: "profile references unknown device type"}
	}
	kind, ok := dt.Components[compPath]
	if !ok {
		return nil, &Error{Kind: BadComponentPath, BindingIndex: idx, Path: b.Path, Detail: "component not declared on device type"}
	}

	conv, ok := selectConverter(kind, act.DataType)
	if !ok {
		return nil, &Error{Kind: BadBinding, BindingIndex: idx, Path: b.Path,
			Detail: fmt.Sprintf("no converter for %s -> %s", kind, act.DataType)}
	}

	return &entry{
		converter:     conv,
		userPath:      userPath,
		componentPath: compPath,
		action:        b.Action,
		state:         action.ZeroState(act.DataType),
	}, nil
}

// splitAtInput splits a binding path like
// "/user/desktop/mouse/input/button_left/click" at the "/input" boundary
// into ("/user/desktop/mouse", "/input/button_left/click").
func splitAtInput(p string) (userPath, componentPath string, ok bool) {
	const marker = "/input"
	idx := strings.Index(p, marker)
	if idx <= 0 {
		return "", "", false
	}
	rest := p[idx+len(marker):]
	if rest != "" && rest[0] != '/' {
		return "", "", false
	}
	return p[:idx], p[idx:], true
}
