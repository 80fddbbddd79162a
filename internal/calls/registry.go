// Package calls keeps the calls known to the daemon and feeds their lifecycle
// to the routing controller.
//
// Each call carries its own state machine so that only legal call-state
// transitions are accepted. The Registry answers the controller's foreground
// and emergency queries and stores the audio state pushed to the foreground
// call.
package calls

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/looplab/fsm"

	"github.com/micro-nova/callaudio-go/internal/controller"
	"github.com/micro-nova/callaudio-go/internal/models"
)

// Call state machine events.
const (
	EventDial       = "dial"
	EventActivate   = "activate"
	EventHold       = "hold"
	EventUnhold     = "unhold"
	EventDisconnect = "disconnect"
)

// EventSink receives the lifecycle events. *controller.Controller implements it.
type EventSink interface {
	Post(ctx context.Context, ev controller.Event) error
}

type entry struct {
	call models.Call
	fsm  *fsm.FSM
	seq  uint64
}

// Registry is the set of current calls. It is safe for concurrent use. Events
// are posted after the registry lock is released, because the controller
// queries the registry while handling them.
type Registry struct {
	mu         sync.Mutex
	calls      map[string]*entry
	seq        uint64
	foreground string

	sink EventSink
	log  *slog.Logger
}

// NewRegistry creates an empty registry posting to sink. A nil sink drops events.
func NewRegistry(sink EventSink, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		calls: make(map[string]*entry),
		sink:  sink,
		log:   log,
	}
}

// SetSink sets where lifecycle events go. The daemon creates the registry
// before the controller, so the sink is attached afterwards.
func (r *Registry) SetSink(sink EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sink = sink
}

func newCallFSM(initial models.CallState, e *entry) *fsm.FSM {
	live := []string{
		string(models.CallStateConnecting),
		string(models.CallStateDialing),
		string(models.CallStateRinging),
		string(models.CallStateActive),
		string(models.CallStateOnHold),
	}
	return fsm.NewFSM(
		string(initial),
		fsm.Events{
			{Name: EventDial, Src: []string{string(models.CallStateConnecting)}, Dst: string(models.CallStateDialing)},
			{Name: EventActivate, Src: []string{
				string(models.CallStateConnecting),
				string(models.CallStateDialing),
				string(models.CallStateRinging),
			}, Dst: string(models.CallStateActive)},
			{Name: EventHold, Src: []string{string(models.CallStateActive)}, Dst: string(models.CallStateOnHold)},
			{Name: EventUnhold, Src: []string{string(models.CallStateOnHold)}, Dst: string(models.CallStateActive)},
			{Name: EventDisconnect, Src: live, Dst: string(models.CallStateDisconnected)},
		},
		fsm.Callbacks{
			"after_event": func(_ context.Context, ev *fsm.Event) {
				e.call.State = models.CallState(ev.Dst)
			},
		},
	)
}

// Add registers a new call. Incoming calls start ringing, outgoing calls
// start connecting.
func (r *Registry) Add(ctx context.Context, req models.NewCall) (models.Call, *models.AppError) {
	initial := models.CallStateConnecting
	if req.Incoming {
		initial = models.CallStateRinging
	}

	r.mu.Lock()
	r.seq++
	e := &entry{
		call: models.Call{
			ID:        uuid.NewString(),
			State:     initial,
			Incoming:  req.Incoming,
			VoIP:      req.VoIP,
			Emergency: req.Emergency,
			AccountID: req.AccountID,
			Handle:    req.Handle,
		},
		seq: r.seq,
	}
	e.fsm = newCallFSM(initial, e)
	r.calls[e.call.ID] = e
	call := e.call
	fgOld, fgNew, fgChanged := r.updateForegroundLocked()
	r.mu.Unlock()

	r.log.Info("calls: call added", "id", call.ID, "state", call.State,
		"incoming", call.Incoming, "voip", call.VoIP, "emergency", call.Emergency)

	if err := r.post(ctx, controller.CallAdded{Call: call}); err != nil {
		return call, err
	}
	if fgChanged {
		if err := r.post(ctx, controller.ForegroundCallChanged{Old: fgOld, New: fgNew}); err != nil {
			return call, err
		}
	}
	return call, nil
}

// Transition applies a state machine event to the call.
func (r *Registry) Transition(ctx context.Context, id, event string) (models.Call, *models.AppError) {
	r.mu.Lock()
	e, ok := r.calls[id]
	if !ok {
		r.mu.Unlock()
		return models.Call{}, models.ErrNotFound(fmt.Sprintf("call %s not found", id))
	}
	old := e.call.State
	if err := e.fsm.Event(ctx, event); err != nil {
		r.mu.Unlock()
		return models.Call{}, transitionError(id, event, old, err)
	}
	call := e.call
	fgOld, fgNew, fgChanged := r.updateForegroundLocked()
	r.mu.Unlock()

	r.log.Info("calls: state changed", "id", id, "event", event, "from", old, "to", call.State)

	if err := r.post(ctx, controller.CallStateChanged{Call: call, Old: old, New: call.State}); err != nil {
		return call, err
	}
	if fgChanged {
		if err := r.post(ctx, controller.ForegroundCallChanged{Old: fgOld, New: fgNew}); err != nil {
			return call, err
		}
	}
	return call, nil
}

func transitionError(id, event string, from models.CallState, err error) *models.AppError {
	var unknown fsm.UnknownEventError
	if errors.As(err, &unknown) {
		return models.ErrBadRequest(fmt.Sprintf("unknown call event %q", event))
	}
	return models.ErrConflict(fmt.Sprintf("call %s: cannot %s from %s", id, event, from))
}

// Answer marks an incoming ringing call as answered by the user. The call
// becomes active later through the activate event.
func (r *Registry) Answer(ctx context.Context, id string) (models.Call, *models.AppError) {
	r.mu.Lock()
	e, ok := r.calls[id]
	if !ok {
		r.mu.Unlock()
		return models.Call{}, models.ErrNotFound(fmt.Sprintf("call %s not found", id))
	}
	call := e.call
	r.mu.Unlock()

	if !call.Incoming || call.State != models.CallStateRinging {
		return call, models.ErrConflict(fmt.Sprintf("call %s is not an incoming ringing call", id))
	}
	r.log.Info("calls: incoming call answered", "id", id)
	return call, r.post(ctx, controller.IncomingCallAnswered{Call: call})
}

// SetVoIP changes whether the call is carried over VoIP.
func (r *Registry) SetVoIP(ctx context.Context, id string, voip bool) (models.Call, *models.AppError) {
	r.mu.Lock()
	e, ok := r.calls[id]
	if !ok {
		r.mu.Unlock()
		return models.Call{}, models.ErrNotFound(fmt.Sprintf("call %s not found", id))
	}
	changed := e.call.VoIP != voip
	e.call.VoIP = voip
	call := e.call
	r.mu.Unlock()

	if !changed {
		return call, nil
	}
	r.log.Info("calls: voip mode changed", "id", id, "voip", voip)
	return call, r.post(ctx, controller.VoIPModeChanged{Call: call})
}

// Remove forgets a call.
func (r *Registry) Remove(ctx context.Context, id string) (models.Call, *models.AppError) {
	r.mu.Lock()
	e, ok := r.calls[id]
	if !ok {
		r.mu.Unlock()
		return models.Call{}, models.ErrNotFound(fmt.Sprintf("call %s not found", id))
	}
	call := e.call
	wasForeground := r.foreground == id
	delete(r.calls, id)
	fgOld, fgNew, fgChanged := r.updateForegroundLocked()
	if fgChanged && wasForeground {
		fgOld = &call
	}
	r.mu.Unlock()

	r.log.Info("calls: call removed", "id", id, "state", call.State)

	if err := r.post(ctx, controller.CallRemoved{Call: call}); err != nil {
		return call, err
	}
	if fgChanged && fgNew != nil {
		if err := r.post(ctx, controller.ForegroundCallChanged{Old: fgOld, New: fgNew}); err != nil {
			return call, err
		}
	}
	return call, nil
}

// Get returns the call with the given ID.
func (r *Registry) Get(id string) (models.Call, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.calls[id]
	if !ok {
		return models.Call{}, false
	}
	return e.call, true
}

// List returns all calls, oldest first.
func (r *Registry) List() []models.Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := make([]*entry, 0, len(r.calls))
	for _, e := range r.calls {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	out := make([]models.Call, len(entries))
	for i, e := range entries {
		out[i] = e.call
	}
	return out
}

// ForegroundCall implements controller.Calls.
func (r *Registry) ForegroundCall() (models.Call, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.calls[r.foreground]; ok {
		return e.call, true
	}
	return models.Call{}, false
}

// CallCount implements controller.Calls.
func (r *Registry) CallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// HasEmergencyCall implements controller.EmergencyCallQuery.
func (r *Registry) HasEmergencyCall() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.calls {
		if e.call.Emergency && e.call.State != models.CallStateDisconnected {
			return true
		}
	}
	return false
}

// OnAudioStateChanged implements controller.ForegroundNotifier.
func (r *Registry) OnAudioStateChanged(call models.Call, state models.AudioState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.calls[call.ID]; ok {
		st := state
		e.call.Audio = &st
	}
}

// foregroundRank orders candidates: active, then calls being set up, then
// held calls. Disconnected calls are never foreground.
func foregroundRank(st models.CallState) int {
	switch st {
	case models.CallStateActive:
		return 3
	case models.CallStateOnHold:
		return 1
	case models.CallStateDisconnected:
		return 0
	default:
		return 2
	}
}

// updateForegroundLocked recomputes the foreground call and reports a change.
func (r *Registry) updateForegroundLocked() (old, next *models.Call, changed bool) {
	var best *entry
	for _, e := range r.calls {
		rank := foregroundRank(e.call.State)
		if rank == 0 {
			continue
		}
		if best == nil {
			best = e
			continue
		}
		bestRank := foregroundRank(best.call.State)
		if rank > bestRank || (rank == bestRank && e.seq > best.seq) {
			best = e
		}
	}

	id := ""
	if best != nil {
		id = best.call.ID
		c := best.call
		next = &c
	}
	if id == r.foreground {
		return nil, nil, false
	}
	if e, ok := r.calls[r.foreground]; ok {
		c := e.call
		old = &c
	}
	r.foreground = id
	return old, next, true
}

func (r *Registry) post(ctx context.Context, ev controller.Event) *models.AppError {
	r.mu.Lock()
	sink := r.sink
	r.mu.Unlock()
	if sink == nil {
		return nil
	}
	if err := sink.Post(ctx, ev); err != nil {
		r.log.Warn("calls: failed to post event", "err", err)
		return models.ErrUnavailable("routing controller unavailable: " + err.Error())
	}
	return nil
}
