// Package profile implements interaction-profile state: grouping
// the live devices that occupy a user role and aggregating their
// per-component state into one `(user, input) → value` view per role.
package profile

import (
	"time"

	"suinput/core/catalog"
	"suinput/core/device"
	"suinput/core/paths"
)

// Registry owns every live InteractionProfileState, keyed by profile
// type path. Shared profiles (desktop) have exactly one State; PerDevice
// profiles (gamepad) have one State per connected device of that type.
type Registry struct {
	catalog *catalog.Registry
	shared  map[paths.Path]*State
	perDev  map[paths.Path]map[device.Handle]*State
}

func NewRegistry(cat *catalog.Registry) *Registry {
	return &Registry{
		catalog: cat,
		shared:  make(map[paths.Path]*State),
		perDev:  make(map[paths.Path]map[device.Handle]*State),
	}
}

// State is one live instance of an interaction-profile type: the set of
// devices occupying each role, and the aggregated (user, input) view
// produced by folding them together.
type State struct {
	Type *catalog.InteractionProfileType

	// devices[role] is the set of live devices currently occupying that
	// role, in stable registration order (used as the aggregation
	// tie-break).
	devices map[paths.Path][]*device.Device

	// aggregated[role][input] is the current fused value for that
	// (user-role, input) pair.
	aggregated map[paths.Path]map[paths.Path]device.ComponentState
}

func newState(t *catalog.InteractionProfileType) *State {
	return &State{
		Type:       t,
		devices:    make(map[paths.Path][]*device.Device),
		aggregated: make(map[paths.Path]map[paths.Path]device.ComponentState),
	}
}

// Get returns the aggregated value last computed for (role, input).
func (s *State) Get(role, input paths.Path) (device.ComponentState, bool) {
	m, ok := s.aggregated[role]
	if !ok {
		return device.ComponentState{}, false
	}
	cs, ok := m[input]
	return cs, ok
}

// statesForDeviceType returns every live profile State that gives dt a
// role, creating a PerDevice state for dev if this is its first event
// and attaching dev to a Shared state's device set if it isn't present
// yet.
func (r *Registry) statesForDeviceType(dt *catalog.DeviceType, dev *device.Device) []*State {
	var out []*State
	for _, pt := range r.catalog.Profiles {
		roles, ok := pt.DeviceToUsers[dt.ID]
		if !ok {
			continue
		}
		switch pt.Instancing {
		case catalog.Shared:
			st, ok := r.shared[pt.ID]
			if !ok {
				st = newState(pt)
				r.shared[pt.ID] = st
			}
			r.attach(st, roles, dev)
			out = append(out, st)
		case catalog.PerDevice:
			byDev, ok := r.perDev[pt.ID]
			if !ok {
				byDev = make(map[device.Handle]*State)
				r.perDev[pt.ID] = byDev
			}
			st, ok := byDev[dev.Handle]
			if !ok {
				st = newState(pt)
				byDev[dev.Handle] = st
			}
			r.attach(st, roles, dev)
			out = append(out, st)
		}
	}
	return out
}

// attach registers dev under every role it occupies in st, unless it is
// already present there.
func (r *Registry) attach(st *State, roles []paths.Path, dev *device.Device) {
	for _, role := range roles {
		list := st.devices[role]
		for _, d := range list {
			if d.Handle == dev.Handle {
				return
			}
		}
		st.devices[role] = append(list, dev)
	}
}

// Detach removes a disconnected device from every profile state it
// participated in, including deleting a now-empty PerDevice instance.
func (r *Registry) Detach(dt *catalog.DeviceType, handle device.Handle) {
	for _, pt := range r.catalog.Profiles {
		roles, ok := pt.DeviceToUsers[dt.ID]
		if !ok {
			continue
		}
		switch pt.Instancing {
		case catalog.Shared:
			st, ok := r.shared[pt.ID]
			if !ok {
				continue
			}
			for _, role := range roles {
				st.devices[role] = removeHandle(st.devices[role], handle)
			}
		case catalog.PerDevice:
			byDev := r.perDev[pt.ID]
			delete(byDev, handle)
		}
	}
}

func removeHandle(list []*device.Device, h device.Handle) []*device.Device {
	out := list[:0]
	for _, d := range list {
		if d.Handle != h {
			out = append(out, d)
		}
	}
	return out
}

// Apply folds an incoming input event from dev into every profile state
// dev participates in, recomputing the aggregated value for the
// affected role, and reports which (role, input) pairs changed so
// callers can drive the per-session aggregators.
//
// Delta-style kinds (Move2D, Gyro, Accel) always report as changed:
// two identical mouse deltas in a row are two distinct movements, not
// a repeat of one.
func (r *Registry) Apply(dev *device.Device, ev device.InputEvent) []Changed {
	var changed []Changed
	for _, st := range r.statesForDeviceType(dev.Type, dev) {
		for role, members := range st.devices {
			if !contains(members, dev) {
				continue
			}
			kind, ok := dev.Type.Components[ev.Path]
			if !ok {
				continue
			}
			newVal, source, ok := aggregate(kind, members, ev.Path)
			if !ok {
				continue
			}
			roleMap, ok := st.aggregated[role]
			if !ok {
				roleMap = make(map[paths.Path]device.ComponentState)
				st.aggregated[role] = roleMap
			}
			old, had := roleMap[ev.Path]
			if had && !isDeltaKind(kind) && equalData(old.Data, newVal.Data) {
				continue
			}
			roleMap[ev.Path] = newVal
			changed = append(changed, Changed{Profile: st, Role: role, Input: ev.Path, Value: newVal, SourceDevice: source})
		}
	}
	return changed
}

// Changed describes one (role, input) pair whose aggregated value moved
// as a result of an Apply call. SourceDevice is the device that
// contributed the winning value — always meaningful for Gyro/Accel,
// where it is the sole active source, and best-effort for other kinds.
type Changed struct {
	Profile      *State
	Role         paths.Path
	Input        paths.Path
	Value        device.ComponentState
	SourceDevice *device.Device
}

func contains(members []*device.Device, dev *device.Device) bool {
	for _, d := range members {
		if d.Handle == dev.Handle {
			return true
		}
	}
	return false
}

// aggregate folds every member device's current value for input across
// the aggregation rule appropriate to kind, also reporting which device
// contributed the winning value.
func aggregate(kind catalog.ComponentKind, members []*device.Device, input paths.Path) (device.ComponentState, *device.Device, bool) {
	switch kind {
	case catalog.Button:
		return aggregateButton(members, input)
	case catalog.Trigger:
		return aggregateMagnitude(members, input)
	case catalog.Joystick:
		return aggregateSquaredMagnitude(members, input)
	case catalog.Cursor:
		return aggregateLatest(members, input)
	case catalog.Move2D:
		return aggregateLatest(members, input) // passthrough; summed at the action layer
	case catalog.Gyro, catalog.Accel:
		return aggregateSingleSource(members, input)
	default:
		return device.ComponentState{}, nil, false
	}
}

func aggregateButton(members []*device.Device, input paths.Path) (device.ComponentState, *device.Device, bool) {
	var latest time.Time
	var source *device.Device
	active := false
	any := false
	for _, d := range members {
		cs, ok := d.Get(input)
		if !ok {
			continue
		}
		any = true
		if cs.Time.After(latest) {
			latest = cs.Time
		}
		if b, ok := cs.Data.(device.ButtonData); ok && bool(b) {
			active = true
			source = d
		}
	}
	if !any {
		return device.ComponentState{}, nil, false
	}
	if source == nil {
		source = members[0]
	}
	return device.ComponentState{Time: latest, Data: device.ButtonData(active)}, source, true
}

func aggregateMagnitude(members []*device.Device, input paths.Path) (device.ComponentState, *device.Device, bool) {
	var best device.ComponentState
	var source *device.Device
	bestMag := float32(-1)
	found := false
	for _, d := range members {
		cs, ok := d.Get(input)
		if !ok {
			continue
		}
		v, ok := cs.Data.(device.ValueData)
		if !ok {
			continue
		}
		mag := float32(v)
		if mag < 0 {
			mag = -mag
		}
		if !found || mag > bestMag {
			best, bestMag, source, found = cs, mag, d, true
		}
	}
	return best, source, found
}

func aggregateSquaredMagnitude(members []*device.Device, input paths.Path) (device.ComponentState, *device.Device, bool) {
	var best device.ComponentState
	var source *device.Device
	bestMagSq := float32(-1)
	found := false
	for _, d := range members {
		cs, ok := d.Get(input)
		if !ok {
			continue
		}
		v, ok := cs.Data.(device.Axis2DData)
		if !ok {
			continue
		}
		magSq := v.X*v.X + v.Y*v.Y
		if !found || magSq > bestMagSq {
			best, bestMagSq, source, found = cs, magSq, d, true
		}
	}
	return best, source, found
}

func aggregateLatest(members []*device.Device, input paths.Path) (device.ComponentState, *device.Device, bool) {
	var best device.ComponentState
	var source *device.Device
	found := false
	for _, d := range members {
		cs, ok := d.Get(input)
		if !ok {
			continue
		}
		if !found || cs.Time.After(best.Time) {
			best, source, found = cs, d, true
		}
	}
	return best, source, found
}

// aggregateSingleSource is used for Gyro/Accel: motion fusion already
// happens per-device in the device package, so the profile layer just
// picks whichever single device most recently reported this input.
func aggregateSingleSource(members []*device.Device, input paths.Path) (device.ComponentState, *device.Device, bool) {
	return aggregateLatest(members, input)
}

func equalData(a, b device.Data) bool {
	return a == b
}

// isDeltaKind reports whether kind carries per-event motion rather than
// per-event position, so consecutive equal samples are still distinct
// events.
func isDeltaKind(kind catalog.ComponentKind) bool {
	return kind == catalog.Move2D || kind == catalog.Gyro || kind == catalog.Accel
}
