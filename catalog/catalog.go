// Package catalog implements the static device-type and interaction-profile
// registry: a declarative YAML catalog is
// parsed once at startup into immutable [DeviceType] and
// [InteractionProfileType] values, looked up thereafter by interned
// [paths.Path].
package catalog

import (
	"embed"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"suinput/core/paths"
)

//go:embed data/*.yaml
var defaultCatalogFS embed.FS

// ComponentKind is the kind of an input component, as named by a device
// type's catalog entry.
type ComponentKind int

const (
	Button ComponentKind = iota
	Trigger
	Move2D
	Cursor
	Joystick
	Gyro
	Accel
	Touchpad // parsed, but has no Converter: any binding to it is BadBinding.
)

func (k ComponentKind) String() string {
	switch k {
	case Button:
		return "button"
	case Trigger:
		return "trigger"
	case Move2D:
		return "move2d"
	case Cursor:
		return "cursor"
	case Joystick:
		return "joystick"
	case Gyro:
		return "gyro"
	case Accel:
		return "accel"
	case Touchpad:
		return "touchpad"
	default:
		return "unknown"
	}
}

func parseKind(s string) (ComponentKind, error) {
	switch s {
	case "button":
		return Button, nil
	case "trigger":
		return Trigger, nil
	case "move2d":
		return Move2D, nil
	case "cursor":
		return Cursor, nil
	case "joystick":
		return Joystick, nil
	case "gyro":
		return Gyro, nil
	case "accel":
		return Accel, nil
	case "touchpad":
		return Touchpad, nil
	default:
		return 0, fmt.Errorf("catalog: unknown component kind %q", s)
	}
}

// DeviceType is a constant descriptor for a class of physical device, e.g.
// "/devices/standard/hid_keyboard". Immutable after [Load].
type DeviceType struct {
	ID         paths.Path
	Components map[paths.Path]ComponentKind

	// GyroInput and AccelInput name the (at most one each) motion
	// components this device type exposes, if any. Both must be set for
	// the device to participate in motion fusion.
	GyroInput      *paths.Path
	AccelInput     *paths.Path
	GyroCalibrated bool
}

// HasMotion reports whether the device type has both a gyro and an
// accelerometer component, and therefore participates in motion fusion.
func (d *DeviceType) HasMotion() bool {
	return d.GyroInput != nil && d.AccelInput != nil
}

// Instancing controls how many live profile.State
// values an interaction-profile type gives rise to.
type Instancing int

const (
	// Shared: one process-wide state, e.g. the desktop profile — all
	// keyboards are one role, all mice are one role.
	Shared Instancing = iota
	// PerDevice: one state per connected device, e.g. each gamepad or VR
	// controller is its own user.
	PerDevice
)

// InteractionProfileType pairs user roles (semantic slots) with the device
// types that may occupy them.
type InteractionProfileType struct {
	ID         paths.Path
	Instancing Instancing
	// UserToDevice maps a user-role path to the device type allowed to
	// occupy it.
	UserToDevice map[paths.Path]paths.Path
	// DeviceToUsers is the reverse index: which user roles a device type
	// can occupy within this profile (usually one).
	DeviceToUsers map[paths.Path][]paths.Path
}

// Roles returns the user-role paths of the profile in a stable order.
func (p *InteractionProfileType) Roles() []paths.Path {
	roles := make([]paths.Path, 0, len(p.UserToDevice))
	for r := range p.UserToDevice {
		roles = append(roles, r)
	}
	sortPaths(roles)
	return roles
}

func sortPaths(ps []paths.Path) {
	for i := 1; i < len(ps); i++ {
		for j := i; j > 0 && ps[j-1] > ps[j]; j-- {
			ps[j-1], ps[j] = ps[j], ps[j-1]
		}
	}
}

// Registry is the immutable, process-lifetime catalog of device types and
// interaction-profile types, indexed by interned path.
type Registry struct {
	Paths       *paths.Manager
	DeviceTypes map[paths.Path]*DeviceType
	Profiles    map[paths.Path]*InteractionProfileType
}

// DeviceType looks up a device type by path handle.
func (r *Registry) DeviceType(id paths.Path) (*DeviceType, bool) {
	dt, ok := r.DeviceTypes[id]
	return dt, ok
}

// Profile looks up an interaction-profile type by path handle.
func (r *Registry) Profile(id paths.Path) (*InteractionProfileType, bool) {
	p, ok := r.Profiles[id]
	return p, ok
}

// --- YAML document shape ---

type deviceDoc struct {
	DeviceTypes []deviceTypeDoc `yaml:"device_types"`
}

type deviceTypeDoc struct {
	ID         string         `yaml:"id"`
	Components []componentDoc `yaml:"components"`
}

type componentDoc struct {
	Path       string `yaml:"path"`
	Kind       string `yaml:"kind"`
	Calibrated bool   `yaml:"calibrated"`
}

type profileDoc struct {
	InteractionProfiles []profileTypeDoc `yaml:"interaction_profiles"`
}

type profileTypeDoc struct {
	ID         string    `yaml:"id"`
	Instancing string    `yaml:"instancing"`
	Roles      []roleDoc `yaml:"roles"`
}

type roleDoc struct {
	User       string `yaml:"user"`
	DeviceType string `yaml:"device_type"`
}

// Load parses device-type and interaction-profile YAML documents using
// pm for path interning, and
// returns the resulting Registry. All parse errors across all documents
// are collected and returned together via a multierror so a misconfigured
// catalog reports every problem in one pass.
func Load(pm *paths.Manager, deviceDocs, profileDocs [][]byte) (*Registry, error) {
	r := &Registry{
		Paths:       pm,
		DeviceTypes: make(map[paths.Path]*DeviceType),
		Profiles:    make(map[paths.Path]*InteractionProfileType),
	}
	var errs *multierror.Error

	for _, raw := range deviceDocs {
		var doc deviceDoc
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			errs = multierror.Append(errs, errors.Wrap(err, "catalog: parse device document"))
			continue
		}
		for _, dtd := range doc.DeviceTypes {
			dt, err := buildDeviceType(pm, dtd)
			if err != nil {
				errs = multierror.Append(errs, err)
				continue
			}
			r.DeviceTypes[dt.ID] = dt
		}
	}

	for _, raw := range profileDocs {
		var doc profileDoc
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			errs = multierror.Append(errs, errors.Wrap(err, "catalog: parse interaction-profile document"))
			continue
		}
		for _, ptd := range doc.InteractionProfiles {
			pt, err := buildProfileType(pm, r, ptd)
			if err != nil {
				errs = multierror.Append(errs, err)
				continue
			}
			r.Profiles[pt.ID] = pt
		}
	}

	if errs != nil {
		return nil, errs.ErrorOrNil()
	}
	return r, nil
}

func buildDeviceType(pm *paths.Manager, doc deviceTypeDoc) (*DeviceType, error) {
	id, err := pm.Get(doc.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "catalog: device type %q", doc.ID)
	}
	dt := &DeviceType{ID: id, Components: make(map[paths.Path]ComponentKind, len(doc.Components))}
	for _, c := range doc.Components {
		p, err := pm.Get(c.Path)
		if err != nil {
			return nil, errors.Wrapf(err, "catalog: device type %q component %q", doc.ID, c.Path)
		}
		kind, err := parseKind(c.Kind)
		if err != nil {
			return nil, errors.Wrapf(err, "catalog: device type %q component %q", doc.ID, c.Path)
		}
		dt.Components[p] = kind
		switch kind {
		case Gyro:
			if dt.GyroInput != nil {
				return nil, fmt.Errorf("catalog: device type %q declares more than one gyro input", doc.ID)
			}
			pp := p
			dt.GyroInput = &pp
			dt.GyroCalibrated = c.Calibrated
		case Accel:
			if dt.AccelInput != nil {
				return nil, fmt.Errorf("catalog: device type %q declares more than one accel input", doc.ID)
			}
			pp := p
			dt.AccelInput = &pp
		}
	}
	return dt, nil
}

func buildProfileType(pm *paths.Manager, r *Registry, doc profileTypeDoc) (*InteractionProfileType, error) {
	id, err := pm.Get(doc.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "catalog: interaction profile %q", doc.ID)
	}
	instancing := Shared
	switch doc.Instancing {
	case "", "shared":
		instancing = Shared
	case "per_device":
		instancing = PerDevice
	default:
		return nil, fmt.Errorf("catalog: interaction profile %q: unknown instancing %q", doc.ID, doc.Instancing)
	}
	pt := &InteractionProfileType{
		ID:            id,
		Instancing:    instancing,
		UserToDevice:  make(map[paths.Path]paths.Path, len(doc.Roles)),
		DeviceToUsers: make(map[paths.Path][]paths.Path, len(doc.Roles)),
	}
	for _, role := range doc.Roles {
		userPath, err := pm.Get(role.User)
		if err != nil {
			return nil, errors.Wrapf(err, "catalog: interaction profile %q role %q", doc.ID, role.User)
		}
		devicePath, err := pm.Get(role.DeviceType)
		if err != nil {
			return nil, errors.Wrapf(err, "catalog: interaction profile %q role %q", doc.ID, role.DeviceType)
		}
		if _, ok := r.DeviceTypes[devicePath]; !ok {
			return nil, fmt.Errorf("catalog: interaction profile %q role %q references unknown device type %q", doc.ID, role.User, role.DeviceType)
		}
		pt.UserToDevice[userPath] = devicePath
		pt.DeviceToUsers[devicePath] = append(pt.DeviceToUsers[devicePath], userPath)
	}
	return pt, nil
}

// LoadDefault parses the catalog embedded with this module
// (catalog/data/devices.yaml, catalog/data/profiles.yaml) describing the
// standard desktop (keyboard + mouse) and a DualSense-shaped gamepad
// profile.
func LoadDefault(pm *paths.Manager) (*Registry, error) {
	devices, err := defaultCatalogFS.ReadFile("data/devices.yaml")
	if err != nil {
		return nil, errors.Wrap(err, "catalog: read embedded devices.yaml")
	}
	profiles, err := defaultCatalogFS.ReadFile("data/profiles.yaml")
	if err != nil {
		return nil, errors.Wrap(err, "catalog: read embedded profiles.yaml")
	}
	return Load(pm, [][]byte{devices}, [][]byte{profiles})
}
