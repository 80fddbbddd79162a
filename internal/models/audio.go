// Package models defines the data structures shared by the call audio daemon.
// JSON field names are part of the HTTP API.
package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Route is a physical audio path. Concrete routes are single bits so a set of
// routes can be held in a RouteMask.
type Route uint8

const (
	RouteEarpiece     Route = 1 << 0
	RouteBluetooth    Route = 1 << 1
	RouteWiredHeadset Route = 1 << 2
	RouteSpeaker      Route = 1 << 3

	// RouteWiredOrEarpiece asks for whichever of wired headset or earpiece is
	// currently present. Exactly one of the two is always supported.
	RouteWiredOrEarpiece = RouteEarpiece | RouteWiredHeadset
)

// AllRoutes lists the concrete routes in display order.
var AllRoutes = []Route{RouteEarpiece, RouteBluetooth, RouteWiredHeadset, RouteSpeaker}

func (r Route) String() string {
	switch r {
	case RouteEarpiece:
		return "earpiece"
	case RouteBluetooth:
		return "bluetooth"
	case RouteWiredHeadset:
		return "wired_headset"
	case RouteSpeaker:
		return "speaker"
	case RouteWiredOrEarpiece:
		return "wired_or_earpiece"
	default:
		return fmt.Sprintf("route(%d)", uint8(r))
	}
}

// IsConcrete reports whether r names exactly one physical route.
func (r Route) IsConcrete() bool {
	switch r {
	case RouteEarpiece, RouteBluetooth, RouteWiredHeadset, RouteSpeaker:
		return true
	}
	return false
}

// ParseRoute converts an API route name into a Route. The sentinel
// "wired_or_earpiece" is accepted.
func ParseRoute(s string) (Route, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "earpiece":
		return RouteEarpiece, nil
	case "bluetooth":
		return RouteBluetooth, nil
	case "wired_headset", "wired", "headset":
		return RouteWiredHeadset, nil
	case "speaker", "speakerphone":
		return RouteSpeaker, nil
	case "wired_or_earpiece":
		return RouteWiredOrEarpiece, nil
	}
	return 0, fmt.Errorf("unknown route %q", s)
}

func (r Route) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Route) UnmarshalText(b []byte) error {
	v, err := ParseRoute(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// RouteMask is a set of routes.
type RouteMask uint8

// MaskOf builds a mask from the given routes.
func MaskOf(routes ...Route) RouteMask {
	var m RouteMask
	for _, r := range routes {
		m |= RouteMask(r)
	}
	return m
}

// Has reports whether every bit of r is present in the mask. For a concrete
// route this is plain membership.
func (m RouteMask) Has(r Route) bool {
	return r != 0 && RouteMask(r)&m == RouteMask(r)
}

// Intersect returns the routes of r that are in the mask.
func (m RouteMask) Intersect(r Route) Route {
	return Route(RouteMask(r) & m)
}

// Routes returns the concrete routes in the mask.
func (m RouteMask) Routes() []Route {
	var out []Route
	for _, r := range AllRoutes {
		if m.Has(r) {
			out = append(out, r)
		}
	}
	return out
}

func (m RouteMask) String() string {
	routes := m.Routes()
	names := make([]string, len(routes))
	for i, r := range routes {
		names[i] = r.String()
	}
	return "[" + strings.Join(names, " ") + "]"
}

func (m RouteMask) MarshalJSON() ([]byte, error) {
	routes := m.Routes()
	if routes == nil {
		routes = []Route{}
	}
	return json.Marshal(routes)
}

func (m *RouteMask) UnmarshalJSON(b []byte) error {
	var routes []Route
	if err := json.Unmarshal(b, &routes); err != nil {
		return err
	}
	*m = MaskOf(routes...)
	return nil
}

// AudioState is the published routing snapshot. It is a value type and is
// replaced wholesale on every accepted transition.
type AudioState struct {
	Muted     bool      `json:"muted"`
	Route     Route     `json:"route"`
	Supported RouteMask `json:"supported_routes"`
}

func (s AudioState) String() string {
	return fmt.Sprintf("[AudioState muted=%t route=%s supported=%s]", s.Muted, s.Route, s.Supported)
}

// Mode is the platform audio processing profile.
type Mode int

const (
	ModeNormal Mode = iota
	ModeRingtone
	ModeInCall
	ModeInCommunication
)

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeRingtone:
		return "ringtone"
	case ModeInCall:
		return "in_call"
	case ModeInCommunication:
		return "in_communication"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// FocusStream is the purpose for which audio focus is held.
type FocusStream int

const (
	StreamNone FocusStream = iota
	StreamRing
	StreamVoiceCall
)

func (s FocusStream) String() string {
	switch s {
	case StreamNone:
		return "none"
	case StreamRing:
		return "ring"
	case StreamVoiceCall:
		return "voice_call"
	default:
		return fmt.Sprintf("stream(%d)", int(s))
	}
}

func (s FocusStream) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
