package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"suinput/core/action"
	"suinput/core/binding"
	"suinput/core/catalog"
	"suinput/core/device"
	"suinput/core/internal/worker"
	"suinput/core/paths"
	"suinput/core/profile"
	"suinput/core/workinguser"
)

// Session is one application's view of a Runtime: its attached action
// sets and binding layouts, its listener list, and its action-state
// snapshot.
type Session struct {
	id       uuid.UUID
	workerID uint64
	runtime  *Runtime

	pm      *paths.Manager
	catalog *catalog.Registry

	sets       []*action.ActionSet
	profiles   *profile.Registry
	aggregator *workinguser.Aggregator
	inbound    <-chan worker.SessionMessage

	mu      sync.Mutex
	layouts map[paths.Path]*binding.Processed
	devices map[device.Handle]*device.Device

	listenersMu    sync.RWMutex
	listeners      map[uint64]func(action.Event)
	nextListenerID uint64

	syncMu   sync.Mutex
	syncGen  uint64
	syncedAt uint64

	closedMu sync.RWMutex
	isClosed bool
}

// ID returns the session's diagnostic UUID, useful for log correlation.
func (s *Session) ID() uuid.UUID { return s.id }

func (s *Session) markClosed() {
	s.closedMu.Lock()
	s.isClosed = true
	s.closedMu.Unlock()
}

func (s *Session) checkClosed() error {
	s.closedMu.RLock()
	defer s.closedMu.RUnlock()
	if s.isClosed {
		return ErrSessionClosed
	}
	return nil
}

// RegisterEventListener appends a listener invoked for every emitted
// ActionEvent, returning an id usable with RemoveEventListener.
// A listener that panics is isolated — its panic is recovered and
// logged, never unwinding into the worker or other listeners.
func (s *Session) RegisterEventListener(listener func(action.Event)) uint64 {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.nextListenerID++
	id := s.nextListenerID
	if s.listeners == nil {
		s.listeners = make(map[uint64]func(action.Event))
	}
	s.listeners[id] = listener
	return id
}

// RemoveEventListener unregisters a listener added by
// RegisterEventListener.
func (s *Session) RemoveEventListener(id uint64) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	delete(s.listeners, id)
}

// dispatch fans an emitted ActionEvent out to every registered listener,
// isolating a panicking listener so it can't take down the worker
// goroutine or its siblings.
func (s *Session) dispatch(ev action.Event) {
	s.listenersMu.RLock()
	defer s.listenersMu.RUnlock()
	for id, listen := range s.listeners {
		s.callListener(id, listen, ev)
	}
}

func (s *Session) callListener(id uint64, listen func(action.Event), ev action.Event) {
	defer func() {
		if r := recover(); r != nil {
			s.runtime.Log.Error(fmt.Sprintf("session: listener %d panicked: %v", id, r))
		}
	}()
	listen(ev)
}

// AttachActionLayout compiles layout against the profile it names and
// attaches it to this session's working user. Replacing an
// already-attached profile's layout is allowed; the previous one is
// simply overwritten.
func (s *Session) AttachActionLayout(layout binding.Layout) error {
	if err := s.checkClosed(); err != nil {
		return err
	}
	processed, err := binding.Compile(s.pm, s.catalog, layout, s.aggregator.ActionByHandle)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.layouts[processed.Profile.ID] = processed
	s.mu.Unlock()

	s.syncMu.Lock()
	s.aggregator.AttachLayout(processed.Profile.ID, processed)
	s.syncMu.Unlock()
	return nil
}

// DetachActionLayout removes a previously attached layout for the named
// interaction-profile path.
func (s *Session) DetachActionLayout(profilePath paths.Path) {
	s.mu.Lock()
	delete(s.layouts, profilePath)
	s.mu.Unlock()
	s.syncMu.Lock()
	s.aggregator.DetachLayout(profilePath)
	s.syncMu.Unlock()
}

// SetWindow scopes this session's drivers to a single focused window.
// Convenience wrapper over Runtime.SetWindows.
func (s *Session) SetWindow(hwnd uintptr) {
	s.runtime.SetWindows([]uintptr{hwnd})
}

// Sync drains every pending worker message, feeds it through interaction
// profile aggregation and the working-user aggregator, and resets
// Delta2d accumulators to zero. The background
// drain goroutine already applies messages as they arrive for snappy
// GetActionState reads; Sync's syncMu acquire blocks until that
// goroutine isn't mid-update, then flushes any tail the channel still
// holds; the mutex acquire is the fence that orders reads after writes,
// without a busy loop.
func (s *Session) Sync() error {
	if err := s.checkClosed(); err != nil {
		return err
	}
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	s.drainAvailable()
	s.aggregator.Sync()
	return nil
}

// drainAvailable processes every SessionMessage currently buffered
// without blocking.
func (s *Session) drainAvailable() {
	for {
		select {
		case msg, ok := <-s.inbound:
			if !ok {
				s.markClosed()
				return
			}
			s.handle(msg)
		default:
			return
		}
	}
}

// drain runs for the session's lifetime, applying every worker message
// as it arrives so GetActionState reflects recent input even between
// explicit Sync calls, and so Sync itself only has to flush the tail.
func (s *Session) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.markClosed()
			return
		case msg, ok := <-s.inbound:
			if !ok {
				s.markClosed()
				return
			}
			s.syncMu.Lock()
			s.handle(msg)
			s.syncMu.Unlock()
		}
	}
}

func (s *Session) handle(msg worker.SessionMessage) {
	switch {
	case msg.RegisterDevice != nil:
		s.handleRegister(msg.RegisterDevice)
	case msg.DisconnectDevice != nil:
		s.handleDisconnect(msg.DisconnectDevice)
	case msg.Input != nil:
		s.handleInput(msg.Input)
	case msg.Batch != nil:
		s.handleBatch(msg.Batch)
	}
}

func (s *Session) handleRegister(m *worker.RegisterDeviceMsg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[m.Handle] = device.New(m.Type, m.Handle)
}

func (s *Session) handleDisconnect(m *worker.DisconnectDeviceMsg) {
	s.mu.Lock()
	dev, ok := s.devices[m.Handle]
	delete(s.devices, m.Handle)
	s.mu.Unlock()
	if ok {
		s.profiles.Detach(dev.Type, m.Handle)
	}
}

func (s *Session) handleInput(m *worker.InputMsg) {
	s.mu.Lock()
	dev, ok := s.devices[m.Handle]
	s.mu.Unlock()
	if !ok {
		return
	}
	dev.ApplyBatch(device.BatchUpdate{Device: m.Handle, Events: []device.InputEvent{m.Event}})
	s.applyAndAggregate(dev, m.Event)
}

func (s *Session) handleBatch(b *device.BatchUpdate) {
	s.mu.Lock()
	dev, ok := s.devices[b.Device]
	s.mu.Unlock()
	if !ok {
		return
	}
	dev.ApplyBatch(*b)
	for _, ev := range b.Events {
		s.applyAndAggregate(dev, ev)
	}
}

func (s *Session) applyAndAggregate(dev *device.Device, ev device.InputEvent) {
	for _, ch := range s.profiles.Apply(dev, ev) {
		s.aggregator.HandleChange(ch.Profile.Type.ID, ch)
	}
}

// GetActionStateRaw returns the session's current snapshot for any
// action, as the untyped action.State interface. The background drain
// goroutine updates it as input arrives; a Delta2d action holds the
// total published by the most recent Sync. Prefer GetActionState
// for callers that know the action's concrete state type.
func (s *Session) GetActionStateRaw(h action.Handle) (action.State, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	s.syncMu.Lock()
	st, ok := s.aggregator.Snapshot(h)
	s.syncMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("session: unknown action handle %d", h)
	}
	return st, nil
}

// GetActionState returns the session's current snapshot for h, typed
// as T. Returns ErrWrongActionType if the
// action's actual state shape doesn't match T — e.g. requesting
// action.Axis2dState for an action declared Boolean.
func GetActionState[T action.State](s *Session, h action.Handle) (T, error) {
	var zero T
	st, err := s.GetActionStateRaw(h)
	if err != nil {
		return zero, err
	}
	typed, ok := st.(T)
	if !ok {
		return zero, ErrWrongActionType
	}
	return typed, nil
}

// UnstickBoolAction clears a Sticky-Bool parent's latch.
func (s *Session) UnstickBoolAction(parent action.Handle) error {
	if err := s.checkClosed(); err != nil {
		return err
	}
	s.syncMu.Lock()
	s.aggregator.UnstickBool(parent)
	s.syncMu.Unlock()
	return nil
}
