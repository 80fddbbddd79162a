// Package hardware provides the audio hardware abstraction used by the routing
// controller. It defines the Control interface and the backends implementing
// it: PulseAudio, an in-memory mock, and decorators for a cellular modem and a
// speaker amplifier enable line.
package hardware

import "github.com/micro-nova/callaudio-go/internal/models"

// Control is the platform audio control surface the routing controller drives.
//
// Calls are synchronous and expected to complete quickly. Implementations that
// front an asynchronous device (bluetooth SCO, for example) only issue the
// request; completion is reported later as a device event.
type Control interface {
	// SetMicrophoneMute mutes or unmutes the capture path.
	SetMicrophoneMute(muted bool) error
	IsMicrophoneMuted() bool

	// SetSpeakerphoneOn routes playback to the loudspeaker, or back to the
	// earpiece / wired headset when on is false.
	SetSpeakerphoneOn(on bool) error
	IsSpeakerphoneOn() bool

	// RequestFocus claims audio focus for the given purpose. Re-requesting
	// with a different stream updates the purpose hint.
	RequestFocus(stream models.FocusStream) error
	AbandonFocus() error

	// SetMode places the platform in the given audio mode.
	SetMode(mode models.Mode) error
	Mode() models.Mode

	// ConnectBluetoothAudio opens the bluetooth voice link (SCO/HFP).
	ConnectBluetoothAudio() error
	DisconnectBluetoothAudio() error

	// Name identifies the backend in logs and /api/info.
	Name() string
}

// BluetoothLink is the part of a bluetooth manager a Control backend delegates
// bluetooth audio connect/disconnect to.
type BluetoothLink interface {
	ConnectAudio() error
	DisconnectAudio() error
}

// HardwareError is returned when a hardware operation fails.
type HardwareError struct {
	msg string
}

func (e HardwareError) Error() string { return e.msg }

// ErrHardware creates a new hardware error.
func ErrHardware(msg string) error { return HardwareError{msg: msg} }
