package models

// RoutingStatus is the full routing snapshot returned by GET /api/state.
type RoutingStatus struct {
	Audio          AudioState  `json:"audio"`
	Focus          FocusStream `json:"focus"`
	Mode           Mode        `json:"mode"`
	MostRecentMode Mode        `json:"most_recent_mode"`
	Ringing        bool        `json:"ringing"`
	TonePlaying    bool        `json:"tone_playing"`
	WasSpeakerOn   bool        `json:"was_speaker_on"`
	SpeedUpCallID  string      `json:"speed_up_call_id,omitempty"`
}

// HasFocus reports whether any focus stream is held.
func (s RoutingStatus) HasFocus() bool { return s.Focus != StreamNone }

// Notification is published on the event bus and streamed over SSE.
type Notification struct {
	Type         string      `json:"type"` // "audio_state" | "mute" | "speakerphone"
	Old          *AudioState `json:"old,omitempty"`
	New          *AudioState `json:"new,omitempty"`
	Muted        *bool       `json:"muted,omitempty"`
	Speakerphone *bool       `json:"speakerphone,omitempty"`
}

// Notification types.
const (
	NotifyAudioState   = "audio_state"
	NotifyMute         = "mute"
	NotifySpeakerphone = "speakerphone"
)

// AudioStateChanged builds an audio_state notification.
func AudioStateChanged(old, new AudioState) Notification {
	return Notification{Type: NotifyAudioState, Old: &old, New: &new}
}

// MuteChanged builds a mute notification.
func MuteChanged(muted bool) Notification {
	return Notification{Type: NotifyMute, Muted: &muted}
}

// SpeakerphoneChanged builds a speakerphone notification.
func SpeakerphoneChanged(on bool) Notification {
	return Notification{Type: NotifySpeakerphone, Speakerphone: &on}
}

// Info is returned by GET /api/info.
type Info struct {
	Hostname string `json:"hostname"`
	Version  string `json:"version"`
	Backend  string `json:"backend"`
}
