package models

import "fmt"

// CallState is the lifecycle state of a call as seen by the audio subsystem.
type CallState string

const (
	CallStateNew          CallState = "new"
	CallStateConnecting   CallState = "connecting"
	CallStateDialing      CallState = "dialing"
	CallStateRinging      CallState = "ringing"
	CallStateActive       CallState = "active"
	CallStateOnHold       CallState = "on_hold"
	CallStateDisconnected CallState = "disconnected"
)

// Call is a read-only snapshot of a call handed to the routing controller.
type Call struct {
	ID        string      `json:"id"`
	State     CallState   `json:"state"`
	Incoming  bool        `json:"incoming"`
	VoIP      bool        `json:"voip"`
	Emergency bool        `json:"emergency"`
	AccountID string      `json:"account_id,omitempty"`
	Handle    string      `json:"handle,omitempty"`
	Audio     *AudioState `json:"audio,omitempty"` // last state pushed to this call while foreground
}

// IsAlive reports whether the call is past setup and not yet torn down.
func (c Call) IsAlive() bool {
	switch c.State {
	case CallStateNew, CallStateConnecting, CallStateDisconnected:
		return false
	}
	return true
}

func (c Call) String() string {
	return fmt.Sprintf("[Call %s %s voip=%t]", c.ID, c.State, c.VoIP)
}

// NewCall is the request body for registering a call.
type NewCall struct {
	Incoming  bool   `json:"incoming"`
	VoIP      bool   `json:"voip"`
	Emergency bool   `json:"emergency"`
	AccountID string `json:"account_id"`
	Handle    string `json:"handle"`
}

// CallUpdate is the request body for PATCH /api/calls/{id}.
type CallUpdate struct {
	VoIP *bool `json:"voip,omitempty"`
}
