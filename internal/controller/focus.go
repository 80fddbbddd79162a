package controller

import (
	"log/slog"

	"github.com/micro-nova/callaudio-go/internal/hardware"
	"github.com/micro-nova/callaudio-go/internal/metrics"
	"github.com/micro-nova/callaudio-go/internal/models"
)

// FocusArbiter owns the held focus stream and serializes focus and mode
// requests to the hardware.
type FocusArbiter struct {
	hw             hardware.Control
	log            *slog.Logger
	metrics        *metrics.Metrics
	stream         models.FocusStream
	mostRecentMode models.Mode
}

// NewFocusArbiter returns an arbiter holding no focus. The most recently used
// mode starts as in-call.
func NewFocusArbiter(hw hardware.Control, log *slog.Logger, m *metrics.Metrics) *FocusArbiter {
	if log == nil {
		log = slog.Default()
	}
	return &FocusArbiter{
		hw:             hw,
		log:            log,
		metrics:        m,
		stream:         models.StreamNone,
		mostRecentMode: models.ModeInCall,
	}
}

// HasFocus reports whether any focus stream is held.
func (f *FocusArbiter) HasFocus() bool { return f.stream != models.StreamNone }

// Stream returns the held focus stream.
func (f *FocusArbiter) Stream() models.FocusStream { return f.stream }

// MostRecentMode returns the last mode accepted by SetMode.
func (f *FocusArbiter) MostRecentMode() models.Mode { return f.mostRecentMode }

// RequestFocus holds focus for stream and applies mode. The platform is only
// asked for focus when the stream changes; the mode is always forwarded.
func (f *FocusArbiter) RequestFocus(stream models.FocusStream, mode models.Mode) {
	if stream == models.StreamNone {
		logDefect(f.log, f.metrics, "focus: request for the none stream", "mode", mode)
		return
	}
	f.log.Debug("focus: request", "from", f.stream, "to", stream, "mode", mode)

	if f.stream != stream {
		f.log.Debug("focus: requesting audio focus", "stream", stream)
		err := f.hw.RequestFocus(stream)
		f.metrics.HardwareOp("request_focus", err)
		f.metrics.FocusRequest(stream.String())
		if err != nil {
			f.log.Warn("focus: request failed", "stream", stream, "err", err)
		}
	}
	f.stream = stream

	f.SetMode(mode)
}

// SetMode changes the platform mode if it differs from the current one. It
// requires focus. IN_CALL to RINGTONE goes through NORMAL first because the
// audio stack does not handle the direct transition.
func (f *FocusArbiter) SetMode(mode models.Mode) {
	if !f.HasFocus() {
		logDefect(f.log, f.metrics, "focus: set mode without focus", "mode", mode)
		return
	}
	old := f.hw.Mode()
	if old == mode {
		return
	}
	f.log.Debug("focus: changing mode", "from", old, "to", mode)
	if old == models.ModeInCall && mode == models.ModeRingtone {
		f.log.Info("focus: transition from in_call to ringtone, resetting to normal first")
		f.setHWMode(models.ModeNormal)
	}
	f.setHWMode(mode)
	f.mostRecentMode = mode
}

func (f *FocusArbiter) setHWMode(mode models.Mode) {
	err := f.hw.SetMode(mode)
	f.metrics.HardwareOp("set_mode", err)
	if err != nil {
		f.log.Warn("focus: set mode failed", "mode", mode, "err", err)
	}
}

// AbandonFocus resets the mode to normal and releases focus. It reports
// whether focus was actually held.
func (f *FocusArbiter) AbandonFocus() bool {
	if !f.HasFocus() {
		return false
	}
	f.SetMode(models.ModeNormal)
	f.log.Debug("focus: abandoning audio focus")
	err := f.hw.AbandonFocus()
	f.metrics.HardwareOp("abandon_focus", err)
	if err != nil {
		f.log.Warn("focus: abandon failed", "err", err)
	}
	f.stream = models.StreamNone
	return true
}
