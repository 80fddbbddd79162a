package controller

import (
	"log/slog"
	"sync"

	"github.com/micro-nova/callaudio-go/internal/hardware"
	"github.com/micro-nova/callaudio-go/internal/metrics"
	"github.com/micro-nova/callaudio-go/internal/models"
)

// Publisher receives routing notifications. *events.Bus implements it.
type Publisher interface {
	Publish(n models.Notification)
}

// AudioStateStore owns the canonical AudioState and applies candidate states
// to the hardware, issuing only the operations needed to get there.
type AudioStateStore struct {
	hw      hardware.Control
	devices DeviceAvailability
	focus   *FocusArbiter
	pub     Publisher
	log     *slog.Logger
	metrics *metrics.Metrics

	// onChange is invoked after a published change, with the new state.
	onChange func(models.AudioState)

	mu    sync.RWMutex
	state models.AudioState
}

// NewAudioStateStore creates a store holding initial. No hardware calls are made.
func NewAudioStateStore(initial models.AudioState, hw hardware.Control, devices DeviceAvailability,
	focus *FocusArbiter, pub Publisher, log *slog.Logger, m *metrics.Metrics) *AudioStateStore {
	if log == nil {
		log = slog.Default()
	}
	return &AudioStateStore{
		hw:      hw,
		devices: devices,
		focus:   focus,
		pub:     pub,
		log:     log,
		metrics: m,
		state:   initial,
	}
}

// State returns the current AudioState. Safe for concurrent use.
func (s *AudioStateStore) State() models.AudioState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Apply moves to {muted, route, mask}. Without focus it does nothing. Unless
// force is set, a candidate equal to the current state is a no-op. It returns
// the state in effect afterwards.
func (s *AudioStateStore) Apply(force, muted bool, route models.Route, mask models.RouteMask) models.AudioState {
	old := s.State()
	if !s.focus.HasFocus() {
		return old
	}
	next := models.AudioState{Muted: muted, Route: route, Supported: mask}
	if !force && next == old {
		return old
	}
	if !route.IsConcrete() || !mask.Has(route) {
		logDefect(s.log, s.metrics, "store: refusing route outside supported mask",
			"route", route, "supported", mask)
		return old
	}

	s.mu.Lock()
	s.state = next
	s.mu.Unlock()
	s.log.Info("store: changing audio state", "from", old, "to", next)

	if next.Muted != s.hw.IsMicrophoneMuted() {
		s.log.Info("store: changing microphone mute", "muted", next.Muted)
		err := s.hw.SetMicrophoneMute(next.Muted)
		s.metrics.HardwareOp("set_microphone_mute", err)
		if err != nil {
			s.log.Warn("store: set microphone mute failed", "err", err)
		}
		s.publish(models.MuteChanged(next.Muted))
	}

	switch next.Route {
	case models.RouteBluetooth:
		s.turnOnSpeaker(false)
		s.turnOnBluetooth(true)
	case models.RouteSpeaker:
		s.turnOnBluetooth(false)
		s.turnOnSpeaker(true)
	case models.RouteEarpiece, models.RouteWiredHeadset:
		s.turnOnBluetooth(false)
		s.turnOnSpeaker(false)
	}

	if next != old {
		s.metrics.StateChanged()
		s.publish(models.AudioStateChanged(old, next))
		if s.onChange != nil {
			s.onChange(next)
		}
	}
	return next
}

func (s *AudioStateStore) turnOnSpeaker(on bool) {
	if s.hw.IsSpeakerphoneOn() == on {
		return
	}
	s.log.Info("store: turning speakerphone", "on", on)
	err := s.hw.SetSpeakerphoneOn(on)
	s.metrics.HardwareOp("set_speakerphone", err)
	if err != nil {
		s.log.Warn("store: set speakerphone failed", "err", err)
	}
	s.publish(models.SpeakerphoneChanged(on))
}

func (s *AudioStateStore) turnOnBluetooth(on bool) {
	if !s.devices.IsBluetoothAvailable() {
		return
	}
	if s.devices.IsBluetoothAudioConnectedOrPending() == on {
		return
	}
	s.log.Info("store: connecting bluetooth audio", "on", on)
	if on {
		err := s.hw.ConnectBluetoothAudio()
		s.metrics.HardwareOp("connect_bluetooth", err)
		if err != nil {
			s.log.Warn("store: bluetooth connect failed", "err", err)
		}
		return
	}
	err := s.hw.DisconnectBluetoothAudio()
	s.metrics.HardwareOp("disconnect_bluetooth", err)
	if err != nil {
		s.log.Warn("store: bluetooth disconnect failed", "err", err)
	}
}

func (s *AudioStateStore) publish(n models.Notification) {
	if s.pub != nil {
		s.pub.Publish(n)
	}
}
