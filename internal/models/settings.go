package models

// Settings are the persisted, user-editable daemon settings.
type Settings struct {
	// SpeedUpAudioOnMTCalls enables expedited audio bring-up for answered
	// incoming calls: ringing is dropped as soon as the call is answered.
	SpeedUpAudioOnMTCalls bool `json:"speed_up_audio_on_mt_calls"`

	// PulseAudio sink port names used by the pulse backend for each route.
	SpeakerPort  string `json:"speaker_port"`
	EarpiecePort string `json:"earpiece_port"`
	HeadsetPort  string `json:"headset_port"`

	// ModemMute mirrors microphone mute onto the cellular modem uplink.
	ModemMute bool `json:"modem_mute"`
}

// SettingsUpdate is the request body for PATCH /api/settings.
type SettingsUpdate struct {
	SpeedUpAudioOnMTCalls *bool   `json:"speed_up_audio_on_mt_calls,omitempty"`
	SpeakerPort           *string `json:"speaker_port,omitempty"`
	EarpiecePort          *string `json:"earpiece_port,omitempty"`
	HeadsetPort           *string `json:"headset_port,omitempty"`
	ModemMute             *bool   `json:"modem_mute,omitempty"`
}

// Apply returns s with the non-nil fields of upd applied.
func (s Settings) Apply(upd SettingsUpdate) Settings {
	if upd.SpeedUpAudioOnMTCalls != nil {
		s.SpeedUpAudioOnMTCalls = *upd.SpeedUpAudioOnMTCalls
	}
	if upd.SpeakerPort != nil {
		s.SpeakerPort = *upd.SpeakerPort
	}
	if upd.EarpiecePort != nil {
		s.EarpiecePort = *upd.EarpiecePort
	}
	if upd.HeadsetPort != nil {
		s.HeadsetPort = *upd.HeadsetPort
	}
	if upd.ModemMute != nil {
		s.ModemMute = *upd.ModemMute
	}
	return s
}

// Default PulseAudio port names (ALSA UCM naming used by most handset profiles).
const (
	DefaultSpeakerPort  = "[Out] Speaker"
	DefaultEarpiecePort = "[Out] Earpiece"
	DefaultHeadsetPort  = "[Out] Headphones"
)

// DefaultSettings returns the settings used when no settings file exists.
func DefaultSettings() Settings {
	return Settings{
		SpeedUpAudioOnMTCalls: false,
		SpeakerPort:           DefaultSpeakerPort,
		EarpiecePort:          DefaultEarpiecePort,
		HeadsetPort:           DefaultHeadsetPort,
		ModemMute:             true,
	}
}
