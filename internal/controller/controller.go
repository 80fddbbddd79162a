// Package controller implements the call audio routing engine: the single
// writer of the audio route, microphone mute, audio focus and platform mode.
//
// The Controller consumes call lifecycle and device events, asks the
// FocusArbiter for the focus stream and mode the current situation calls for,
// resolves the route against the supported-route topology, and hands the
// resulting state to the AudioStateStore, which performs only the hardware
// operations needed to reach it.
package controller

import (
	"log/slog"
	"sync"

	"github.com/micro-nova/callaudio-go/internal/hardware"
	"github.com/micro-nova/callaudio-go/internal/metrics"
	"github.com/micro-nova/callaudio-go/internal/models"
)

// DefaultQueueSize is the event queue capacity used when Options.QueueSize is zero.
const DefaultQueueSize = 64

// Calls answers questions about the calls currently known to the call service.
type Calls interface {
	// ForegroundCall returns the call the user is interacting with, if any.
	ForegroundCall() (models.Call, bool)
	// CallCount returns the number of calls, in any state.
	CallCount() int
}

// EmergencyCallQuery reports whether any emergency call exists.
type EmergencyCallQuery interface {
	HasEmergencyCall() bool
}

// DeviceAvailability reports the physical device topology.
type DeviceAvailability interface {
	IsWiredHeadsetPluggedIn() bool
	IsBluetoothAvailable() bool
	// IsBluetoothAudioConnected reports an established bluetooth voice link.
	IsBluetoothAudioConnected() bool
	// IsBluetoothAudioConnectedOrPending also counts a link being set up.
	IsBluetoothAudioConnectedOrPending() bool
}

// ForegroundNotifier is told the audio state of the foreground call.
type ForegroundNotifier interface {
	OnAudioStateChanged(call models.Call, state models.AudioState)
}

// Options configures a Controller. Hardware, Devices, Calls and Emergency are
// required.
type Options struct {
	Hardware   hardware.Control
	Devices    DeviceAvailability
	Calls      Calls
	Emergency  EmergencyCallQuery
	Foreground ForegroundNotifier
	Publisher  Publisher
	Logger     *slog.Logger
	Metrics    *metrics.Metrics

	// SpeedUpAudioOnMTCalls drops ringing as soon as an incoming call is
	// answered instead of waiting for the call to become active.
	SpeedUpAudioOnMTCalls bool

	QueueSize int
}

// speedUp is the temporary override set when an incoming call is answered
// with expedited audio enabled.
type speedUp struct {
	callID    string
	accountID string
}

// routingFlags is the controller-owned transient state.
type routingFlags struct {
	ringing      bool
	tonePlaying  bool
	wasSpeakerOn bool
	speedUp      *speedUp
}

// Controller is the routing state machine. Handle must only be called from
// one goroutine at a time: either the Run loop or, before Run starts, the
// caller that constructed it. State and Status are safe from any goroutine.
type Controller struct {
	hw         hardware.Control
	devices    DeviceAvailability
	calls      Calls
	emergency  EmergencyCallQuery
	foreground ForegroundNotifier
	log        *slog.Logger
	metrics    *metrics.Metrics

	focus    *FocusArbiter
	store    *AudioStateStore
	resolver *Resolver

	flags          routingFlags
	speedUpEnabled bool
	lastWired      bool

	queue chan envelope

	statusMu sync.RWMutex
	status   models.RoutingStatus
}

// New creates a Controller in the idle state: no focus and the default
// AudioState for the current device topology.
func New(opts Options) *Controller {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	size := opts.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}

	c := &Controller{
		hw:             opts.Hardware,
		devices:        opts.Devices,
		calls:          opts.Calls,
		emergency:      opts.Emergency,
		foreground:     opts.Foreground,
		log:            log,
		metrics:        opts.Metrics,
		speedUpEnabled: opts.SpeedUpAudioOnMTCalls,
		lastWired:      opts.Devices.IsWiredHeadsetPluggedIn(),
		queue:          make(chan envelope, size),
	}
	c.resolver = NewResolver(log, opts.Metrics)
	c.focus = NewFocusArbiter(opts.Hardware, log, opts.Metrics)
	c.store = NewAudioStateStore(c.initialAudioState(nil), opts.Hardware, opts.Devices,
		c.focus, opts.Publisher, log, opts.Metrics)
	c.store.onChange = func(models.AudioState) { c.notifyForeground() }
	c.refreshStatus()
	return c
}

// State returns the current AudioState.
func (c *Controller) State() models.AudioState {
	return c.store.State()
}

// Status returns the full routing snapshot as of the last handled event.
func (c *Controller) Status() models.RoutingStatus {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	return c.status
}

// HasFocus reports whether audio focus is held as of the last handled event.
func (c *Controller) HasFocus() bool {
	return c.Status().HasFocus()
}

// Handle applies one event. See the Controller doc for threading rules.
func (c *Controller) Handle(ev Event) {
	c.metrics.Event(ev.eventType())
	c.log.Debug("routing: handling event", "type", ev.eventType())

	switch e := ev.(type) {
	case CallAdded:
		c.onCallAdded(e.Call)
	case CallRemoved:
		c.onCallRemoved(e.Call)
	case CallStateChanged:
		c.onCallUpdated(&e.Call)
	case ForegroundCallChanged:
		c.onCallUpdated(e.New)
		c.notifyForeground()
	case IncomingCallAnswered:
		c.onIncomingCallAnswered(e.Call)
	case VoIPModeChanged:
		c.updateStreamAndMode()
	case WiredHeadsetChanged:
		c.onWiredHeadsetChanged(e.PluggedIn)
	case BluetoothChanged:
		c.onBluetoothChanged()
	case DeviceTopologyChanged:
		c.onDeviceTopologyChanged()
	case SetMute:
		c.mute(e.Muted)
	case ToggleMute:
		c.mute(!c.store.State().Muted)
	case SetRoute:
		c.setRoute(e.Route)
	case SetRinging:
		c.setRinging(e.Ringing)
	case SetTonePlaying:
		c.setTonePlaying(e.Playing)
	case SetSpeedUp:
		c.speedUpEnabled = e.Enabled
	default:
		c.log.Warn("routing: unknown event", "type", ev.eventType())
	}

	c.refreshStatus()
}

func (c *Controller) onCallAdded(call models.Call) {
	c.onCallUpdated(&call)

	if !c.focus.HasFocus() || call.Incoming {
		return
	}
	if fg, ok := c.calls.ForegroundCall(); ok && fg.ID == call.ID {
		// New outgoing calls start unmuted.
		st := c.store.State()
		c.store.Apply(false, false, st.Route, st.Supported)
	}
}

func (c *Controller) onCallRemoved(call models.Call) {
	if !c.focus.HasFocus() {
		return
	}
	if c.calls.CallCount() == 0 {
		c.log.Info("routing: all calls removed, resetting audio to default state", "call", call.ID)
		c.setInitialAudioState(nil, true)
		c.flags.wasSpeakerOn = false
	}
	c.updateStreamAndMode()
}

// onCallUpdated recomputes focus for a call change. The first transition into
// voice-call focus forces the initial state onto the hardware so every call
// session starts from a known route and mute.
func (c *Controller) onCallUpdated(call *models.Call) {
	wasNotVoiceCall := c.focus.Stream() != models.StreamVoiceCall
	if call != nil {
		if call.State != models.CallStateDisconnected {
			c.updateStreamAndMode()
		}
		if su := c.flags.speedUp; su != nil && call.State == models.CallStateActive &&
			call.AccountID == su.accountID {
			c.log.Debug("routing: answered call active, clearing speed-up", "call", call.ID)
			c.flags.speedUp = nil
		}
	}

	if wasNotVoiceCall && c.focus.Stream() == models.StreamVoiceCall {
		c.setInitialAudioState(call, true)
	}
}

func (c *Controller) onIncomingCallAnswered(call models.Call) {
	// Unmute the answered call; bluetooth connects on its own once the call is active.
	st := c.store.State()
	c.store.Apply(false, false, st.Route, st.Supported)

	if !c.speedUpEnabled {
		return
	}
	c.log.Debug("routing: speeding up audio for answered call", "call", call.ID, "account", call.AccountID)
	c.flags.speedUp = &speedUp{callID: call.ID, accountID: call.AccountID}
	if c.flags.ringing {
		c.setRinging(false)
	} else {
		c.updateStreamAndMode()
	}
}

// onWiredHeadsetChanged follows a headset plug change. Bluetooth audio wins
// over the headset. On unplug the remembered speaker preference is restored
// while the foreground call is alive. The live detector state wins over the
// event payload, which may be stale after a quick plug and unplug.
func (c *Controller) onWiredHeadsetChanged(pluggedIn bool) {
	if live := c.devices.IsWiredHeadsetPluggedIn(); live != pluggedIn {
		c.log.Debug("routing: stale headset event, using live state", "event", pluggedIn, "live", live)
		pluggedIn = live
	}
	c.lastWired = pluggedIn
	if !c.focus.HasFocus() {
		return
	}

	mask := supportedRoutesFrom(c.devices)
	route := models.RouteBluetooth
	if !c.devices.IsBluetoothAudioConnected() {
		route = models.RouteEarpiece
		if pluggedIn {
			route = models.RouteWiredHeadset
		} else if c.flags.wasSpeakerOn {
			if fg, ok := c.foregroundCall(); ok && fg.IsAlive() {
				route = models.RouteSpeaker
			}
		}
	}
	c.store.Apply(false, c.store.State().Muted, route, mask)
}

// onBluetoothChanged moves audio to bluetooth when a link is up or coming
// up, and off bluetooth when it goes away. Losing bluetooth never selects the
// speaker.
func (c *Controller) onBluetoothChanged() {
	if !c.focus.HasFocus() {
		return
	}

	mask := supportedRoutesFrom(c.devices)
	st := c.store.State()
	route := st.Route
	if c.devices.IsBluetoothAudioConnectedOrPending() {
		route = models.RouteBluetooth
	} else if st.Route == models.RouteBluetooth {
		route = c.resolver.Resolve(models.RouteWiredOrEarpiece, mask)
		c.flags.wasSpeakerOn = false
	}
	c.store.Apply(false, st.Muted, route, mask)
}

func (c *Controller) onDeviceTopologyChanged() {
	if plugged := c.devices.IsWiredHeadsetPluggedIn(); plugged != c.lastWired {
		c.onWiredHeadsetChanged(plugged)
	}
	c.onBluetoothChanged()
}

func (c *Controller) mute(shouldMute bool) {
	if !c.focus.HasFocus() {
		return
	}
	if shouldMute && c.emergency.HasEmergencyCall() {
		c.log.Info("routing: ignoring mute during emergency call")
		shouldMute = false
	}
	st := c.store.State()
	if st.Muted != shouldMute {
		c.store.Apply(false, shouldMute, st.Route, st.Supported)
	}
}

func (c *Controller) setRoute(requested models.Route) {
	if !c.focus.HasFocus() {
		return
	}
	st := c.store.State()
	route := c.resolver.Resolve(requested, st.Supported)
	if !route.IsConcrete() || !st.Supported.Has(route) {
		logDefect(c.log, c.metrics, "routing: asked for an unsupported route",
			"requested", requested, "resolved", route, "supported", st.Supported)
		return
	}
	if st.Route != route {
		// Remember the speaker choice across headset plug and unplug.
		c.flags.wasSpeakerOn = route == models.RouteSpeaker
		c.store.Apply(false, st.Muted, route, st.Supported)
	}
}

func (c *Controller) setRinging(ringing bool) {
	if c.flags.ringing == ringing {
		return
	}
	c.log.Debug("routing: ringing changed", "from", c.flags.ringing, "to", ringing)
	c.flags.ringing = ringing
	c.updateStreamAndMode()
}

func (c *Controller) setTonePlaying(playing bool) {
	if c.flags.tonePlaying == playing {
		return
	}
	c.log.Debug("routing: tone playing changed", "from", c.flags.tonePlaying, "to", playing)
	c.flags.tonePlaying = playing
	c.updateStreamAndMode()
}

// updateStreamAndMode applies focus precedence: ringing (unless sped up),
// then a live foreground call, then a lingering tone. Otherwise focus is
// released, except while a ringing foreground call is still on its way to
// active or disconnected.
func (c *Controller) updateStreamAndMode() {
	c.log.Info("routing: updating stream and mode",
		"ringing", c.flags.ringing,
		"tone_playing", c.flags.tonePlaying,
		"speed_up", c.flags.speedUp != nil)

	if c.flags.ringing && c.flags.speedUp == nil {
		c.focus.RequestFocus(models.StreamRing, models.ModeRingtone)
		return
	}

	call, ok := c.foregroundCall()
	switch {
	case ok && call.State != models.CallStateDisconnected:
		mode := models.ModeInCall
		if call.VoIP {
			mode = models.ModeInCommunication
		}
		c.focus.RequestFocus(models.StreamVoiceCall, mode)
	case c.flags.tonePlaying:
		// No call to take the mode from; keep focus with the last mode used.
		c.focus.RequestFocus(models.StreamVoiceCall, c.focus.MostRecentMode())
	case !c.hasRingingForegroundCall():
		if c.focus.AbandonFocus() {
			c.flags.speedUp = nil
		}
	}
}

// foregroundCall returns the foreground call for mode selection. A ringing
// call is ignored, since ringing is driven by SetRinging, unless the speed-up
// override is active.
func (c *Controller) foregroundCall() (models.Call, bool) {
	call, ok := c.calls.ForegroundCall()
	if !ok {
		return models.Call{}, false
	}
	if call.State == models.CallStateRinging && c.flags.speedUp == nil {
		return models.Call{}, false
	}
	return call, true
}

func (c *Controller) hasRingingForegroundCall() bool {
	call, ok := c.calls.ForegroundCall()
	return ok && call.State == models.CallStateRinging
}

// initialAudioState derives the default state from the topology. When the
// first call is already past dialing or ringing and a bluetooth headset has
// audio up, the call starts on bluetooth.
func (c *Controller) initialAudioState(call *models.Call) models.AudioState {
	mask := supportedRoutesFrom(c.devices)
	route := c.resolver.Resolve(models.RouteWiredOrEarpiece, mask)

	if call != nil && c.devices.IsBluetoothAvailable() && c.devices.IsBluetoothAudioConnected() {
		switch call.State {
		case models.CallStateActive, models.CallStateOnHold, models.CallStateDialing,
			models.CallStateConnecting, models.CallStateRinging:
			route = models.RouteBluetooth
		}
	}
	return models.AudioState{Muted: false, Route: route, Supported: mask}
}

func (c *Controller) setInitialAudioState(call *models.Call, force bool) {
	st := c.initialAudioState(call)
	c.log.Debug("routing: setting initial audio state", "state", st, "force", force)
	c.store.Apply(force, st.Muted, st.Route, st.Supported)
}

func (c *Controller) notifyForeground() {
	if c.foreground == nil {
		return
	}
	if call, ok := c.calls.ForegroundCall(); ok {
		c.foreground.OnAudioStateChanged(call, c.store.State())
	}
}

func (c *Controller) refreshStatus() {
	status := models.RoutingStatus{
		Audio:          c.store.State(),
		Focus:          c.focus.Stream(),
		Mode:           c.hw.Mode(),
		MostRecentMode: c.focus.MostRecentMode(),
		Ringing:        c.flags.ringing,
		TonePlaying:    c.flags.tonePlaying,
		WasSpeakerOn:   c.flags.wasSpeakerOn,
	}
	if c.flags.speedUp != nil {
		status.SpeedUpCallID = c.flags.speedUp.callID
	}
	c.statusMu.Lock()
	c.status = status
	c.statusMu.Unlock()
}
