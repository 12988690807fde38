// Package main is a sample host application wiring the core runtime to
// real hardware: it declares a small action set, attaches default
// bindings for the desktop and dualsense interaction profiles, starts a
// driver appropriate to the host OS, and prints action events as they
// arrive.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"suinput/core/action"
	"suinput/core/binding"
	"suinput/core/catalog"
	"suinput/core/eventlog"
	"suinput/core/internal/logger"
	"suinput/core/paths"
	"suinput/core/session"
)

// cliConfig captures user-provided settings from flags.
type cliConfig struct {
	LogPath   string
	EventPath string
}

func main() {
	cfg := parseFlags()

	log, err := logger.NewFileLogger(cfg.LogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "demo: create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()
	log.Info("demo: starting")

	pm := paths.NewManager()
	cat, err := catalog.LoadDefault(pm)
	if err != nil {
		log.Error(fmt.Sprintf("demo: load catalog: %v", err))
		os.Exit(1)
	}

	rt := session.New(pm, cat, log)
	defer rt.Destroy()

	if err := addPlatformDriver(rt, log); err != nil {
		log.Error(fmt.Sprintf("demo: add driver: %v", err))
		os.Exit(1)
	}

	sets, actions := buildDemoActionSet()
	sess := rt.CreateSession(sets)

	if err := attachDefaultBindings(sess, actions); err != nil {
		log.Error(fmt.Sprintf("demo: attach bindings: %v", err))
		os.Exit(1)
	}

	sink, err := eventlog.New(cfg.EventPath)
	if err != nil {
		log.Error(fmt.Sprintf("demo: open event log: %v", err))
		os.Exit(1)
	}
	defer sink.Close()
	sess.RegisterEventListener(sink.Listener())
	sess.RegisterEventListener(func(ev action.Event) {
		fmt.Printf("[%s] action %d: %+v\n", ev.Time.Format(time.RFC3339Nano), ev.Handle, ev.Data)
	})

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(16 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			log.Info("demo: shutting down")
			return
		case <-ticker.C:
			if err := sess.Sync(); err != nil {
				log.Warn(fmt.Sprintf("demo: sync: %v", err))
				return
			}
		}
	}
}

func parseFlags() *cliConfig {
	cfg := &cliConfig{}
	flag.StringVar(&cfg.LogPath, "log", "demo.log", "Path to the runtime's diagnostic log file.")
	flag.StringVar(&cfg.EventPath, "events", "demo-events.ndjson", "Path to the NDJSON action-event audit log.")
	flag.Parse()
	return cfg
}

// buildDemoActionSet declares a small action set exercising every
// composite kind: a plain Boolean (Fire), a Sticky-Bool
// (Jump), an Axis1d (Throttle), an Axis2d (Move), and a Delta2d (Look).
func buildDemoActionSet() ([]*action.ActionSet, map[string]*action.Action) {
	fire := &action.Action{Handle: 1, Name: "Fire", DataType: action.Boolean}

	jump := &action.Action{Handle: 2, Name: "Jump", DataType: action.Boolean, Hierarchy: action.Parent, ParentKind: action.StickyBool}
	jumpPress := &action.Action{Handle: 3, Name: "JumpPress", DataType: action.Boolean, Hierarchy: action.Child, ParentOf: 2, ChildRole: action.StickyPress}
	jumpToggle := &action.Action{Handle: 4, Name: "JumpToggle", DataType: action.Boolean, Hierarchy: action.Child, ParentOf: 2, ChildRole: action.StickyToggle}
	jumpRelease := &action.Action{Handle: 5, Name: "JumpRelease", DataType: action.Boolean, Hierarchy: action.Child, ParentOf: 2, ChildRole: action.StickyRelease}

	// Children carry the data type their own binding produces (buttons
	// are Boolean), not the parent's combined type.
	throttle := &action.Action{Handle: 6, Name: "Throttle", DataType: action.Axis1d, Hierarchy: action.Parent, ParentKind: action.ParentAxis1d}
	throttlePos := &action.Action{Handle: 7, Name: "ThrottlePositive", DataType: action.Boolean, Hierarchy: action.Child, ParentOf: 6, ChildRole: action.Positive}
	throttleNeg := &action.Action{Handle: 8, Name: "ThrottleNegative", DataType: action.Boolean, Hierarchy: action.Child, ParentOf: 6, ChildRole: action.Negative}

	move := &action.Action{Handle: 9, Name: "Move", DataType: action.Axis2d, Hierarchy: action.Parent, ParentKind: action.ParentAxis2d}
	moveUp := &action.Action{Handle: 10, Name: "MoveUp", DataType: action.Boolean, Hierarchy: action.Child, ParentOf: 9, ChildRole: action.Up}
	moveDown := &action.Action{Handle: 11, Name: "MoveDown", DataType: action.Boolean, Hierarchy: action.Child, ParentOf: 9, ChildRole: action.Down}
	moveLeft := &action.Action{Handle: 12, Name: "MoveLeft", DataType: action.Boolean, Hierarchy: action.Child, ParentOf: 9, ChildRole: action.Left}
	moveRight := &action.Action{Handle: 13, Name: "MoveRight", DataType: action.Boolean, Hierarchy: action.Child, ParentOf: 9, ChildRole: action.Right}
	moveRaw := &action.Action{Handle: 14, Name: "MoveRaw", DataType: action.Axis2d, Hierarchy: action.Child, ParentOf: 9, ChildRole: action.Move}

	look := &action.Action{Handle: 15, Name: "Look", DataType: action.Delta2d}

	set := &action.ActionSet{
		Name:     "gameplay",
		Priority: 0,
		Actions: []*action.Action{
			fire, jump, jumpPress, jumpToggle, jumpRelease,
			throttle, throttlePos, throttleNeg,
			move, moveUp, moveDown, moveLeft, moveRight, moveRaw,
			look,
		},
	}

	return []*action.ActionSet{set}, map[string]*action.Action{
		"Fire": fire, "Jump": jump, "JumpPress": jumpPress, "JumpToggle": jumpToggle, "JumpRelease": jumpRelease,
		"Throttle": throttle, "ThrottlePositive": throttlePos, "ThrottleNegative": throttleNeg,
		"Move": move, "MoveUp": moveUp, "MoveDown": moveDown, "MoveLeft": moveLeft, "MoveRight": moveRight, "MoveRaw": moveRaw,
		"Look": look,
	}
}

// attachDefaultBindings wires the demo action set to the keyboard/mouse
// desktop profile and the dualsense gamepad profile.
func attachDefaultBindings(sess *session.Session, a map[string]*action.Action) error {
	desktop := binding.Layout{
		Name:        "desktop-default",
		ProfilePath: "/interaction_profiles/standard/desktop",
		Bindings: []binding.Binding{
			{Action: a["Fire"].Handle, Path: "/user/desktop/mouse/input/button_left/click"},
			{Action: a["JumpPress"].Handle, Path: "/user/desktop/keyboard/input/space/click"},
			{Action: a["MoveUp"].Handle, Path: "/user/desktop/keyboard/input/w/click"},
			{Action: a["MoveDown"].Handle, Path: "/user/desktop/keyboard/input/s/click"},
			{Action: a["MoveLeft"].Handle, Path: "/user/desktop/keyboard/input/a/click"},
			{Action: a["MoveRight"].Handle, Path: "/user/desktop/keyboard/input/d/click"},
			{Action: a["Look"].Handle, Path: "/user/desktop/mouse/input/move/delta"},
		},
	}
	if err := sess.AttachActionLayout(desktop); err != nil {
		return fmt.Errorf("demo: attach desktop layout: %w", err)
	}

	gamepad := binding.Layout{
		Name:        "gamepad-default",
		ProfilePath: "/interaction_profiles/standard/dualsense",
		Bindings: []binding.Binding{
			{Action: a["Fire"].Handle, Path: "/user/gamepad/main/input/shoulder_right/click"},
			{Action: a["JumpPress"].Handle, Path: "/user/gamepad/main/input/a/click"},
			{Action: a["ThrottlePositive"].Handle, Path: "/user/gamepad/main/input/trigger_right/value"},
			{Action: a["ThrottleNegative"].Handle, Path: "/user/gamepad/main/input/trigger_left/value"},
			{Action: a["MoveRaw"].Handle, Path: "/user/gamepad/main/input/thumbstick_left/move"},
		},
	}
	if err := sess.AttachActionLayout(gamepad); err != nil {
		return fmt.Errorf("demo: attach gamepad layout: %w", err)
	}
	return nil
}
