package calls_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/micro-nova/callaudio-go/internal/calls"
	"github.com/micro-nova/callaudio-go/internal/controller"
	"github.com/micro-nova/callaudio-go/internal/hardware"
	"github.com/micro-nova/callaudio-go/internal/models"
)

type recordingSink struct {
	mu     sync.Mutex
	events []controller.Event
	err    error
}

func (s *recordingSink) Post(_ context.Context, ev controller.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) take() []controller.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.events
	s.events = nil
	return out
}

func newRegistry(t *testing.T) (*calls.Registry, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	return calls.NewRegistry(sink, slog.New(slog.NewTextHandler(discard{}, nil))), sink
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func TestAddOutgoing(t *testing.T) {
	reg, sink := newRegistry(t)
	ctx := context.Background()

	call, appErr := reg.Add(ctx, models.NewCall{Handle: "tel:100", AccountID: "sim1"})
	require.Nil(t, appErr)

	assert.NotEmpty(t, call.ID)
	assert.Equal(t, models.CallStateConnecting, call.State)
	assert.False(t, call.Incoming)

	evs := sink.take()
	require.Len(t, evs, 2)
	assert.Equal(t, controller.CallAdded{Call: call}, evs[0])
	fg, ok := evs[1].(controller.ForegroundCallChanged)
	require.True(t, ok, "second event should be a foreground change, got %T", evs[1])
	assert.Nil(t, fg.Old)
	require.NotNil(t, fg.New)
	assert.Equal(t, call.ID, fg.New.ID)

	got, ok := reg.ForegroundCall()
	require.True(t, ok)
	assert.Equal(t, call.ID, got.ID)
	assert.Equal(t, 1, reg.CallCount())
}

func TestAddIncomingStartsRinging(t *testing.T) {
	reg, _ := newRegistry(t)
	call, appErr := reg.Add(context.Background(), models.NewCall{Incoming: true})
	require.Nil(t, appErr)
	assert.Equal(t, models.CallStateRinging, call.State)
}

func TestTransitions(t *testing.T) {
	reg, sink := newRegistry(t)
	ctx := context.Background()
	call, _ := reg.Add(ctx, models.NewCall{})
	sink.take()

	steps := []struct {
		event string
		want  models.CallState
	}{
		{calls.EventDial, models.CallStateDialing},
		{calls.EventActivate, models.CallStateActive},
		{calls.EventHold, models.CallStateOnHold},
		{calls.EventUnhold, models.CallStateActive},
		{calls.EventDisconnect, models.CallStateDisconnected},
	}
	prev := call.State
	for _, step := range steps {
		got, appErr := reg.Transition(ctx, call.ID, step.event)
		require.Nil(t, appErr, "event %s", step.event)
		assert.Equal(t, step.want, got.State, "event %s", step.event)

		evs := sink.take()
		require.NotEmpty(t, evs)
		assert.Equal(t, controller.CallStateChanged{Call: got, Old: prev, New: step.want}, evs[0])
		prev = step.want
	}

	stored, ok := reg.Get(call.ID)
	require.True(t, ok)
	assert.Equal(t, models.CallStateDisconnected, stored.State)
}

func TestTransitionErrors(t *testing.T) {
	reg, sink := newRegistry(t)
	ctx := context.Background()
	call, _ := reg.Add(ctx, models.NewCall{Incoming: true})
	sink.take()

	_, appErr := reg.Transition(ctx, "missing", calls.EventDial)
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusNotFound, appErr.Status)

	_, appErr = reg.Transition(ctx, call.ID, "teleport")
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusBadRequest, appErr.Status)

	// A ringing call cannot be held.
	_, appErr = reg.Transition(ctx, call.ID, calls.EventHold)
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusConflict, appErr.Status)

	// Nothing leaves a disconnected call.
	_, appErr = reg.Transition(ctx, call.ID, calls.EventDisconnect)
	require.Nil(t, appErr)
	_, appErr = reg.Transition(ctx, call.ID, calls.EventActivate)
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusConflict, appErr.Status)

	stored, _ := reg.Get(call.ID)
	assert.Equal(t, models.CallStateDisconnected, stored.State)
}

func TestForegroundPrefersActive(t *testing.T) {
	reg, sink := newRegistry(t)
	ctx := context.Background()

	first, _ := reg.Add(ctx, models.NewCall{})
	_, _ = reg.Transition(ctx, first.ID, calls.EventActivate)

	// A second, incoming call does not take the foreground from the active one.
	second, _ := reg.Add(ctx, models.NewCall{Incoming: true})
	fg, _ := reg.ForegroundCall()
	assert.Equal(t, first.ID, fg.ID)

	// Holding the first brings the ringing call forward.
	sink.take()
	_, _ = reg.Transition(ctx, first.ID, calls.EventHold)
	fg, _ = reg.ForegroundCall()
	assert.Equal(t, second.ID, fg.ID)

	evs := sink.take()
	require.Len(t, evs, 2)
	change, ok := evs[1].(controller.ForegroundCallChanged)
	require.True(t, ok)
	require.NotNil(t, change.Old)
	assert.Equal(t, first.ID, change.Old.ID)
	assert.Equal(t, second.ID, change.New.ID)

	// Once it is active it stays in front; the held call is the fallback.
	_, _ = reg.Transition(ctx, second.ID, calls.EventActivate)
	_, _ = reg.Transition(ctx, second.ID, calls.EventDisconnect)
	fg, _ = reg.ForegroundCall()
	assert.Equal(t, first.ID, fg.ID)
}

func TestRemove(t *testing.T) {
	reg, sink := newRegistry(t)
	ctx := context.Background()
	call, _ := reg.Add(ctx, models.NewCall{})
	sink.take()

	removed, appErr := reg.Remove(ctx, call.ID)
	require.Nil(t, appErr)
	assert.Equal(t, call.ID, removed.ID)
	assert.Equal(t, []controller.Event{controller.CallRemoved{Call: removed}}, sink.take())

	_, ok := reg.ForegroundCall()
	assert.False(t, ok)
	assert.Zero(t, reg.CallCount())

	_, appErr = reg.Remove(ctx, call.ID)
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusNotFound, appErr.Status)
}

func TestRemoveForegroundReportsOldCall(t *testing.T) {
	reg, sink := newRegistry(t)
	ctx := context.Background()

	held, _ := reg.Add(ctx, models.NewCall{})
	_, _ = reg.Transition(ctx, held.ID, calls.EventActivate)
	_, _ = reg.Transition(ctx, held.ID, calls.EventHold)
	active, _ := reg.Add(ctx, models.NewCall{})
	_, _ = reg.Transition(ctx, active.ID, calls.EventActivate)
	fg, _ := reg.ForegroundCall()
	require.Equal(t, active.ID, fg.ID)
	sink.take()

	_, appErr := reg.Remove(ctx, active.ID)
	require.Nil(t, appErr)

	evs := sink.take()
	require.Len(t, evs, 2)
	change, ok := evs[1].(controller.ForegroundCallChanged)
	require.True(t, ok)
	require.NotNil(t, change.Old)
	assert.Equal(t, active.ID, change.Old.ID)
	require.NotNil(t, change.New)
	assert.Equal(t, held.ID, change.New.ID)
}

func TestAnswer(t *testing.T) {
	reg, sink := newRegistry(t)
	ctx := context.Background()
	incoming, _ := reg.Add(ctx, models.NewCall{Incoming: true, AccountID: "sim1"})
	outgoing, _ := reg.Add(ctx, models.NewCall{})
	sink.take()

	_, appErr := reg.Answer(ctx, incoming.ID)
	require.Nil(t, appErr)
	assert.Equal(t, []controller.Event{controller.IncomingCallAnswered{Call: incoming}}, sink.take())

	_, appErr = reg.Answer(ctx, outgoing.ID)
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusConflict, appErr.Status)

	_, appErr = reg.Answer(ctx, "missing")
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusNotFound, appErr.Status)
}

func TestSetVoIP(t *testing.T) {
	reg, sink := newRegistry(t)
	ctx := context.Background()
	call, _ := reg.Add(ctx, models.NewCall{})
	sink.take()

	got, appErr := reg.SetVoIP(ctx, call.ID, true)
	require.Nil(t, appErr)
	assert.True(t, got.VoIP)
	assert.Equal(t, []controller.Event{controller.VoIPModeChanged{Call: got}}, sink.take())

	// Unchanged: no event.
	_, appErr = reg.SetVoIP(ctx, call.ID, true)
	require.Nil(t, appErr)
	assert.Empty(t, sink.take())
}

func TestEmergency(t *testing.T) {
	reg, _ := newRegistry(t)
	ctx := context.Background()
	assert.False(t, reg.HasEmergencyCall())

	call, _ := reg.Add(ctx, models.NewCall{Emergency: true, Handle: "tel:911"})
	assert.True(t, reg.HasEmergencyCall())

	_, _ = reg.Transition(ctx, call.ID, calls.EventDisconnect)
	assert.False(t, reg.HasEmergencyCall())
}

func TestListOrder(t *testing.T) {
	reg, _ := newRegistry(t)
	ctx := context.Background()
	var ids []string
	for i := 0; i < 5; i++ {
		c, _ := reg.Add(ctx, models.NewCall{})
		ids = append(ids, c.ID)
	}
	list := reg.List()
	require.Len(t, list, 5)
	for i, c := range list {
		assert.Equal(t, ids[i], c.ID)
	}
}

func TestOnAudioStateChanged(t *testing.T) {
	reg, _ := newRegistry(t)
	call, _ := reg.Add(context.Background(), models.NewCall{})

	st := models.AudioState{Route: models.RouteSpeaker, Supported: models.MaskOf(models.RouteSpeaker, models.RouteEarpiece)}
	reg.OnAudioStateChanged(call, st)

	got, _ := reg.Get(call.ID)
	require.NotNil(t, got.Audio)
	assert.Equal(t, st, *got.Audio)

	// Unknown calls are ignored.
	reg.OnAudioStateChanged(models.Call{ID: "gone"}, st)
}

func TestSinkFailure(t *testing.T) {
	reg, sink := newRegistry(t)
	sink.err = errors.New("queue closed")

	call, appErr := reg.Add(context.Background(), models.NewCall{})
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusServiceUnavailable, appErr.Status)

	// The call is still registered.
	_, ok := reg.Get(call.ID)
	assert.True(t, ok)
}

// TestDrivesController runs the registry against a real controller loop.
func TestDrivesController(t *testing.T) {
	reg := calls.NewRegistry(nil, nil)
	ctrl := controller.New(controller.Options{
		Hardware:   hardware.NewMock(),
		Devices:    noDevices{},
		Calls:      reg,
		Emergency:  reg,
		Foreground: reg,
		Logger:     slog.New(slog.NewTextHandler(discard{}, nil)),
	})
	reg.SetSink(ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ctrl.Run(ctx)

	call, appErr := reg.Add(ctx, models.NewCall{})
	require.Nil(t, appErr)
	_, appErr = reg.Transition(ctx, call.ID, calls.EventDial)
	require.Nil(t, appErr)

	// Submit acts as a barrier behind the posted lifecycle events.
	st, err := ctrl.Submit(ctx, controller.SetRoute{Route: models.RouteSpeaker})
	require.NoError(t, err)
	assert.Equal(t, models.RouteSpeaker, st.Route)
	assert.Equal(t, models.StreamVoiceCall, ctrl.Status().Focus)
	stored, _ := reg.Get(call.ID)
	require.NotNil(t, stored.Audio, "foreground call should have received the audio state")
	assert.Equal(t, models.RouteSpeaker, stored.Audio.Route)

	_, appErr = reg.Transition(ctx, call.ID, calls.EventDisconnect)
	require.Nil(t, appErr)
	_, appErr = reg.Remove(ctx, call.ID)
	require.Nil(t, appErr)

	st, err = ctrl.Submit(ctx, controller.ToggleMute{})
	require.NoError(t, err)
	assert.False(t, ctrl.HasFocus())
	assert.Equal(t, models.RouteEarpiece, st.Route)
}

type noDevices struct{}

func (noDevices) IsWiredHeadsetPluggedIn() bool            { return false }
func (noDevices) IsBluetoothAvailable() bool               { return false }
func (noDevices) IsBluetoothAudioConnected() bool          { return false }
func (noDevices) IsBluetoothAudioConnectedOrPending() bool { return false }
