package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/micro-nova/callaudio-go/internal/models"
)

func (h *Handlers) getCalls(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"calls": h.calls.List()})
}

func (h *Handlers) getCall(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	call, ok := h.calls.Get(id)
	if !ok {
		writeError(w, models.ErrNotFound("call "+id+" not found"))
		return
	}
	writeJSON(w, http.StatusOK, call)
}

func (h *Handlers) addCall(w http.ResponseWriter, r *http.Request) {
	var req models.NewCall
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	call, appErr := h.calls.Add(r.Context(), req)
	if appErr != nil {
		writeError(w, appErr)
		return
	}
	writeJSON(w, http.StatusCreated, call)
}

func (h *Handlers) updateCall(w http.ResponseWriter, r *http.Request) {
	var upd models.CallUpdate
	if err := decodeBody(r, &upd); err != nil {
		writeError(w, err)
		return
	}
	id := chi.URLParam(r, "id")
	if upd.VoIP == nil {
		call, ok := h.calls.Get(id)
		if !ok {
			writeError(w, models.ErrNotFound("call "+id+" not found"))
			return
		}
		writeJSON(w, http.StatusOK, call)
		return
	}
	call, appErr := h.calls.SetVoIP(r.Context(), id, *upd.VoIP)
	if appErr != nil {
		writeError(w, appErr)
		return
	}
	writeJSON(w, http.StatusOK, call)
}

func (h *Handlers) removeCall(w http.ResponseWriter, r *http.Request) {
	call, appErr := h.calls.Remove(r.Context(), chi.URLParam(r, "id"))
	if appErr != nil {
		writeError(w, appErr)
		return
	}
	writeJSON(w, http.StatusOK, call)
}

func (h *Handlers) answerCall(w http.ResponseWriter, r *http.Request) {
	call, appErr := h.calls.Answer(r.Context(), chi.URLParam(r, "id"))
	if appErr != nil {
		writeError(w, appErr)
		return
	}
	writeJSON(w, http.StatusOK, call)
}

func (h *Handlers) transitionCall(w http.ResponseWriter, r *http.Request) {
	call, appErr := h.calls.Transition(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "event"))
	if appErr != nil {
		writeError(w, appErr)
		return
	}
	writeJSON(w, http.StatusOK, call)
}
