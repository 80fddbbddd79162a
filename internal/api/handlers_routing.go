package api

import (
	"net/http"

	"github.com/micro-nova/callaudio-go/internal/controller"
	"github.com/micro-nova/callaudio-go/internal/models"
)

func (h *Handlers) getState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.router.Status())
}

func (h *Handlers) setMute(w http.ResponseWriter, r *http.Request) {
	var req models.MuteRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	h.submit(w, r, controller.SetMute{Muted: req.Muted})
}

func (h *Handlers) toggleMute(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, controller.ToggleMute{})
}

func (h *Handlers) setRoute(w http.ResponseWriter, r *http.Request) {
	var req models.RouteRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Route == 0 {
		writeError(w, models.ErrBadRequest("route is required"))
		return
	}
	h.submit(w, r, controller.SetRoute{Route: req.Route})
}

func (h *Handlers) setRinging(w http.ResponseWriter, r *http.Request) {
	var req models.RingingRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	h.submit(w, r, controller.SetRinging{Ringing: req.Ringing})
}

func (h *Handlers) setTone(w http.ResponseWriter, r *http.Request) {
	var req models.ToneRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	h.submit(w, r, controller.SetTonePlaying{Playing: req.Playing})
}

func (h *Handlers) refreshDevices(w http.ResponseWriter, r *http.Request) {
	if h.devices == nil {
		writeError(w, models.ErrUnavailable("device monitor not running"))
		return
	}
	if err := h.devices.Refresh(r.Context()); err != nil {
		writeError(w, models.ErrUnavailable("device refresh: "+err.Error()))
		return
	}
	writeJSON(w, http.StatusAccepted, h.router.Status())
}
