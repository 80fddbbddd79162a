package models

// MuteRequest is the body of POST /api/mute.
type MuteRequest struct {
	Muted bool `json:"muted"`
}

// RouteRequest is the body of POST /api/route.
type RouteRequest struct {
	Route Route `json:"route"`
}

// RingingRequest is the body of POST /api/ringing.
type RingingRequest struct {
	Ringing bool `json:"ringing"`
}

// ToneRequest is the body of POST /api/tone.
type ToneRequest struct {
	Playing bool `json:"playing"`
}
