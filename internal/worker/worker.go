// Package worker implements the single dedicated worker goroutine: the
// sole writer to the canonical device arena, dispatching
// driver-reported events to every live session's inbound queue in FIFO
// order.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"suinput/core/catalog"
	"suinput/core/device"
	"suinput/core/driverapi"
	"suinput/core/internal/logger"
	"suinput/core/paths"
)

// InboundCapacity is the worker's inbound queue depth, the
// serialization point of the whole system. ~100 is enough headroom for
// desktop drivers without masking a stuck consumer.
const InboundCapacity = 100

// registerRequest is a driver's RegisterDevice call, answered
// synchronously over reply.
type registerRequest struct {
	devicePath paths.Path
	reply      chan registerResult
}

type registerResult struct {
	handle device.Handle
	err    error
}

type disconnectRequest struct {
	handle device.Handle
}

type inputRequest struct {
	handle device.Handle
	event  device.InputEvent
}

type batchRequest struct {
	batch device.BatchUpdate
}

// SessionMessage is one update the worker pushes to a session's inbound
// queue.
type SessionMessage struct {
	RegisterDevice   *RegisterDeviceMsg
	DisconnectDevice *DisconnectDeviceMsg
	Input            *InputMsg
	Batch            *device.BatchUpdate
}

type RegisterDeviceMsg struct {
	Handle device.Handle
	Type   *catalog.DeviceType
}

type DisconnectDeviceMsg struct {
	Handle device.Handle
}

// InputMsg pairs a single input sample with the device it belongs to —
// device.InputEvent itself carries no device handle, since BatchUpdate
// already scopes a whole slice of events to one device.
type InputMsg struct {
	Handle device.Handle
	Event  device.InputEvent
}

// slot is one entry in the generational device arena.
type slot struct {
	generation uint32
	occupied   bool
	device     *device.Device
}

// sessionInbox is the worker's view of one attached session: a channel
// it pushes SessionMessages into. Sized generously since the queue is
// logically unbounded; a session that never drains it is a caller bug,
// not a worker concern.
type sessionInbox struct {
	ch chan SessionMessage
}

const sessionInboxCapacity = 4096

// Worker owns the canonical device arena and every attached session's
// inbound queue. It is the system's single writer to both.
type Worker struct {
	pm      *paths.Manager
	catalog *catalog.Registry
	log     logger.Logger

	inbound chan any // registerRequest | disconnectRequest | inputRequest | batchRequest

	mu       sync.Mutex
	slots    []slot
	sessions map[uint64]*sessionInbox
	nextSess uint64
}

// New creates a worker ready to Run. pm and catalog are shared,
// immutable for the runtime's lifetime.
func New(pm *paths.Manager, catalog *catalog.Registry, log logger.Logger) *Worker {
	return &Worker{
		pm:       pm,
		catalog:  catalog,
		log:      log,
		inbound:  make(chan any, InboundCapacity),
		sessions: make(map[uint64]*sessionInbox),
	}
}

// AttachSession registers a new session's inbound queue and returns its
// id (used to DetachSession later) plus the channel to read from.
func (w *Worker) AttachSession() (uint64, <-chan SessionMessage) {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.nextSess
	w.nextSess++
	box := &sessionInbox{ch: make(chan SessionMessage, sessionInboxCapacity)}
	w.sessions[id] = box
	return id, box.ch
}

// DetachSession removes a session; its channel is closed so a blocked
// reader observes shutdown.
func (w *Worker) DetachSession(id uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if box, ok := w.sessions[id]; ok {
		close(box.ch)
		delete(w.sessions, id)
	}
}

// Run processes the inbound queue until ctx is cancelled or the channel
// is closed. A single driver's events are observed and fanned out in
// FIFO order.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-w.inbound:
			if !ok {
				return nil
			}
			w.handle(msg)
		}
	}
}

func (w *Worker) handle(msg any) {
	switch m := msg.(type) {
	case registerRequest:
		w.handleRegister(m)
	case disconnectRequest:
		w.handleDisconnect(m)
	case inputRequest:
		w.handleInput(m)
	case batchRequest:
		w.handleBatch(m)
	}
}

func (w *Worker) handleRegister(req registerRequest) {
	w.mu.Lock()
	dt, ok := w.catalog.DeviceType(req.devicePath)
	if !ok {
		w.mu.Unlock()
		req.reply <- registerResult{err: fmt.Errorf("worker: unknown device type %v", req.devicePath)}
		return
	}

	slotIdx := -1
	for i, s := range w.slots {
		if !s.occupied {
			slotIdx = i
			break
		}
	}
	if slotIdx == -1 {
		slotIdx = len(w.slots)
		w.slots = append(w.slots, slot{})
	}
	w.slots[slotIdx].generation++
	w.slots[slotIdx].occupied = true
	handle := device.Handle{Slot: uint32(slotIdx), Generation: w.slots[slotIdx].generation}
	dev := device.New(dt, handle)
	w.slots[slotIdx].device = dev

	boxes := w.snapshotSessions()
	w.mu.Unlock()

	for _, box := range boxes {
		box.ch <- SessionMessage{RegisterDevice: &RegisterDeviceMsg{Handle: handle, Type: dt}}
	}
	req.reply <- registerResult{handle: handle}
}

func (w *Worker) handleDisconnect(req disconnectRequest) {
	w.mu.Lock()
	if int(req.handle.Slot) >= len(w.slots) {
		w.mu.Unlock()
		return
	}
	s := &w.slots[req.handle.Slot]
	if !s.occupied || s.generation != req.handle.Generation {
		w.mu.Unlock()
		return // stale handle from a device that already reconnected into this slot
	}
	s.occupied = false
	s.device = nil
	boxes := w.snapshotSessions()
	w.mu.Unlock()

	for _, box := range boxes {
		box.ch <- SessionMessage{DisconnectDevice: &DisconnectDeviceMsg{Handle: req.handle}}
	}
}

func (w *Worker) handleInput(req inputRequest) {
	w.mu.Lock()
	dev, ok := w.deviceFor(req.handle)
	if !ok {
		w.mu.Unlock()
		w.log.Warn(fmt.Sprintf("worker: input for stale/unknown device %v dropped", req.handle))
		return
	}
	dev.ApplyBatch(device.BatchUpdate{Device: req.handle, Events: []device.InputEvent{req.event}})
	boxes := w.snapshotSessions()
	w.mu.Unlock()

	msg := InputMsg{Handle: req.handle, Event: req.event}
	for _, box := range boxes {
		box.ch <- SessionMessage{Input: &msg}
	}
}

func (w *Worker) handleBatch(req batchRequest) {
	w.mu.Lock()
	dev, ok := w.deviceFor(req.batch.Device)
	if !ok {
		w.mu.Unlock()
		w.log.Warn(fmt.Sprintf("worker: batch for stale/unknown device %v dropped", req.batch.Device))
		return
	}
	dev.ApplyBatch(req.batch)
	boxes := w.snapshotSessions()
	w.mu.Unlock()

	batch := req.batch
	for _, box := range boxes {
		box.ch <- SessionMessage{Batch: &batch}
	}
}

// deviceFor validates a generational handle against the current arena
// (caller holds w.mu).
func (w *Worker) deviceFor(h device.Handle) (*device.Device, bool) {
	if int(h.Slot) >= len(w.slots) {
		return nil, false
	}
	s := w.slots[h.Slot]
	if !s.occupied || s.generation != h.Generation {
		return nil, false
	}
	return s.device, true
}

func (w *Worker) snapshotSessions() []*sessionInbox {
	out := make([]*sessionInbox, 0, len(w.sessions))
	for _, box := range w.sessions {
		out = append(out, box)
	}
	return out
}

// Device looks up a live device by generational handle, for callers
// that must read canonical state outside the worker goroutine.
func (w *Worker) Device(h device.Handle) (*device.Device, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.deviceFor(h)
}

// driverRuntime adapts a Worker into the driverapi.Runtime capability
// set a driver calls back through.
type driverRuntime struct {
	w  *Worker
	pm *paths.Manager
}

// NewDriverRuntime returns the driverapi.Runtime a driver's Initialize
// should be called with.
func NewDriverRuntime(w *Worker) driverapi.Runtime {
	return &driverRuntime{w: w, pm: w.pm}
}

func (r *driverRuntime) RegisterDevice(devicePath paths.Path) (device.Handle, error) {
	reply := make(chan registerResult, 1)
	select {
	case r.w.inbound <- registerRequest{devicePath: devicePath, reply: reply}:
	case <-time.After(driverapi.RegistrationDeadline):
		return device.Handle{}, driverapi.ErrRegistrationTimeout
	}
	select {
	case res := <-reply:
		return res.handle, res.err
	case <-time.After(driverapi.RegistrationDeadline):
		return device.Handle{}, driverapi.ErrRegistrationTimeout
	}
}

func (r *driverRuntime) DisconnectDevice(handle device.Handle) {
	r.w.inbound <- disconnectRequest{handle: handle}
}

func (r *driverRuntime) SendComponentEvent(ev device.InputEvent, handle device.Handle) {
	r.w.inbound <- inputRequest{handle: handle, event: ev}
}

func (r *driverRuntime) SendBatchUpdate(batch device.BatchUpdate) {
	r.w.inbound <- batchRequest{batch: batch}
}

func (r *driverRuntime) GetPath(s string) (paths.Path, error) { return r.pm.Get(s) }

func (r *driverRuntime) GetPathString(p paths.Path) (string, bool) { return r.pm.GetString(p) }
