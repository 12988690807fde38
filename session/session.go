// Package session implements the application-facing façade: a
// Runtime that owns the path manager, catalog, worker, and driver set,
// and the per-application Sessions it hands out — each with its own
// attached action sets, binding layouts, listener list, and action-state
// snapshot.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"suinput/core/action"
	"suinput/core/binding"
	"suinput/core/catalog"
	"suinput/core/device"
	"suinput/core/driverapi"
	"suinput/core/internal/logger"
	"suinput/core/internal/worker"
	"suinput/core/paths"
	"suinput/core/profile"
	"suinput/core/workinguser"
)

// ErrSessionClosed is returned by AttachActionLayout, Sync,
// GetActionStateRaw, GetActionState and UnstickBoolAction once the
// runtime has been destroyed or the session's worker queue has closed.
// The other Session methods do not check for closure.
var ErrSessionClosed = fmt.Errorf("session: closed")

// ErrWrongActionType is returned by GetActionState when the caller's
// type parameter doesn't match the action's declared DataType.
var ErrWrongActionType = fmt.Errorf("session: action state requested at wrong type")

// Runtime owns the path manager, device-type/interaction-profile
// catalog, worker goroutine, and the driver set attached to it. One
// Runtime typically backs one host application process.
type Runtime struct {
	PM      *paths.Manager
	Catalog *catalog.Registry
	Log     logger.Logger

	worker *worker.Worker
	rt     driverapi.Runtime

	group  *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc

	drivers []driverapi.Driver

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	closed   bool
}

// New builds a Runtime from an already-loaded catalog and starts its
// worker goroutine. Call AddDriver for every input source before
// creating sessions.
func New(pm *paths.Manager, cat *catalog.Registry, log logger.Logger) *Runtime {
	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)

	w := worker.New(pm, cat, log)
	r := &Runtime{
		PM:       pm,
		Catalog:  cat,
		Log:      log,
		worker:   w,
		rt:       worker.NewDriverRuntime(w),
		group:    group,
		ctx:      gctx,
		cancel:   cancel,
		sessions: make(map[uuid.UUID]*Session),
	}
	group.Go(func() error { return w.Run(gctx) })
	return r
}

// AddDriver calls the driver's Initialize synchronously, then registers
// it and launches its Poll loop under the runtime's supervised goroutine
// group. Call before the
// runtime starts receiving events from that driver's devices.
func (r *Runtime) AddDriver(d driverapi.Driver) error {
	if err := d.Initialize(r.rt); err != nil {
		return fmt.Errorf("session: driver initialize: %w", err)
	}
	r.mu.Lock()
	r.drivers = append(r.drivers, d)
	r.mu.Unlock()

	r.group.Go(func() error {
		for {
			select {
			case <-r.ctx.Done():
				return nil
			default:
			}
			if err := d.Poll(); err != nil {
				select {
				case <-r.ctx.Done():
					return nil // shutdown already tearing the driver down
				default:
				}
				r.Log.Error(fmt.Sprintf("session: driver poll error: %v", err))
				return err
			}
		}
	})
	return nil
}

// SetWindows scopes every driver's cursor/keyboard events to the given
// focused window handles.
func (r *Runtime) SetWindows(windows []uintptr) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.drivers {
		d.SetWindows(windows)
	}
}

// CreateSession fixes a set of action sets and allocates a new working
// user. Action handles across the sets must be unique; priorities are
// read from each ActionSet.Priority.
func (r *Runtime) CreateSession(sets []*action.ActionSet) *Session {
	id, inbound := r.worker.AttachSession()

	s := &Session{
		id:         uuid.New(),
		workerID:   id,
		runtime:    r,
		pm:         r.PM,
		catalog:    r.Catalog,
		profiles:   profile.NewRegistry(r.Catalog),
		aggregator: workinguser.New(sets),
		sets:       sets,
		layouts:    make(map[paths.Path]*binding.Processed),
		devices:    make(map[device.Handle]*device.Device),
		inbound:    inbound,
	}
	s.aggregator.OnEvent = s.dispatch

	r.mu.Lock()
	r.sessions[s.id] = s
	r.mu.Unlock()

	r.group.Go(func() error {
		s.drain(r.ctx)
		return nil
	})
	return s
}

// Destroy cancels the worker and every driver goroutine, then waits for
// them to exit. After Destroy every Session method that returns an
// error returns ErrSessionClosed.
func (r *Runtime) Destroy() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	for _, s := range r.sessions {
		s.markClosed()
	}
	r.mu.Unlock()

	r.cancel()
	for _, d := range r.drivers {
		if err := d.Destroy(); err != nil {
			r.Log.Warn(fmt.Sprintf("session: driver destroy error: %v", err))
		}
	}
	return r.group.Wait()
}
