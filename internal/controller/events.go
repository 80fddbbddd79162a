package controller

import "github.com/micro-nova/callaudio-go/internal/models"

// Event is an input to the routing controller. Every event is handled on the
// controller's single control loop.
type Event interface {
	eventType() string
}

// CallAdded reports a newly registered call.
type CallAdded struct{ Call models.Call }

// CallRemoved reports a call that is gone. The call registry no longer
// counts it when this event is posted.
type CallRemoved struct{ Call models.Call }

// CallStateChanged reports a call state transition.
type CallStateChanged struct {
	Call     models.Call
	Old, New models.CallState
}

// ForegroundCallChanged reports a new foreground call. Either side may be nil.
type ForegroundCallChanged struct {
	Old, New *models.Call
}

// IncomingCallAnswered reports that the user answered an incoming call.
type IncomingCallAnswered struct{ Call models.Call }

// VoIPModeChanged reports that a call switched between VoIP and cellular audio.
type VoIPModeChanged struct{ Call models.Call }

// WiredHeadsetChanged reports a headset plug or unplug.
type WiredHeadsetChanged struct{ PluggedIn bool }

// BluetoothChanged reports a change in bluetooth device or audio connectivity.
type BluetoothChanged struct{}

// DeviceTopologyChanged asks the controller to re-read all device state.
type DeviceTopologyChanged struct{}

// SetMute is a user mute or unmute request.
type SetMute struct{ Muted bool }

// ToggleMute is a user mute toggle request.
type ToggleMute struct{}

// SetRoute is a user route request. Route may be models.RouteWiredOrEarpiece.
type SetRoute struct{ Route models.Route }

// SetRinging reports the ringer starting or stopping.
type SetRinging struct{ Ringing bool }

// SetTonePlaying reports an in-call tone starting or stopping.
type SetTonePlaying struct{ Playing bool }

// SetSpeedUp changes whether answered incoming calls get expedited audio.
type SetSpeedUp struct{ Enabled bool }

func (CallAdded) eventType() string             { return "call_added" }
func (CallRemoved) eventType() string           { return "call_removed" }
func (CallStateChanged) eventType() string      { return "call_state_changed" }
func (ForegroundCallChanged) eventType() string { return "foreground_call_changed" }
func (IncomingCallAnswered) eventType() string  { return "incoming_call_answered" }
func (VoIPModeChanged) eventType() string       { return "voip_mode_changed" }
func (WiredHeadsetChanged) eventType() string   { return "wired_headset_changed" }
func (BluetoothChanged) eventType() string      { return "bluetooth_changed" }
func (DeviceTopologyChanged) eventType() string { return "device_topology_changed" }
func (SetMute) eventType() string               { return "set_mute" }
func (ToggleMute) eventType() string            { return "toggle_mute" }
func (SetRoute) eventType() string              { return "set_route" }
func (SetRinging) eventType() string            { return "set_ringing" }
func (SetTonePlaying) eventType() string        { return "set_tone_playing" }
func (SetSpeedUp) eventType() string            { return "set_speed_up" }
