// Package api implements the HTTP control API of the call audio daemon.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/micro-nova/callaudio-go/internal/controller"
	"github.com/micro-nova/callaudio-go/internal/models"
)

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	router   Router
	calls    CallRegistry
	settings Settings
	devices  DeviceRefresher
	events   EventBus
	info     models.Info
}

// Router is the routing controller as seen by the API.
type Router interface {
	Submit(ctx context.Context, ev controller.Event) (models.AudioState, error)
	Status() models.RoutingStatus
}

// CallRegistry is the call registry as seen by the API.
type CallRegistry interface {
	Add(ctx context.Context, req models.NewCall) (models.Call, *models.AppError)
	Transition(ctx context.Context, id, event string) (models.Call, *models.AppError)
	Answer(ctx context.Context, id string) (models.Call, *models.AppError)
	SetVoIP(ctx context.Context, id string, voip bool) (models.Call, *models.AppError)
	Remove(ctx context.Context, id string) (models.Call, *models.AppError)
	Get(id string) (models.Call, bool)
	List() []models.Call
}

// Settings reads and updates the persisted settings.
type Settings interface {
	Get() models.Settings
	Update(ctx context.Context, upd models.SettingsUpdate) (models.Settings, *models.AppError)
}

// DeviceRefresher re-reads the device topology.
type DeviceRefresher interface {
	Refresh(ctx context.Context) error
}

// EventBus is the interface for subscribing to routing notifications.
type EventBus interface {
	Subscribe(id string) <-chan models.Notification
	Unsubscribe(id string)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an AppError as a JSON response.
func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		w.WriteHeader(appErr.Status)
		_ = json.NewEncoder(w).Encode(appErr)
		return
	}
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(models.ErrInternal(err.Error()))
}

// decodeBody decodes a JSON request body into v.
func decodeBody(r *http.Request, v any) *models.AppError {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return models.ErrBadRequest("request body required")
		}
		return models.ErrBadRequest("invalid JSON: " + err.Error())
	}
	return nil
}

// submit hands ev to the control loop and replies with the resulting state.
func (h *Handlers) submit(w http.ResponseWriter, r *http.Request, ev controller.Event) {
	st, err := h.router.Submit(r.Context(), ev)
	if err != nil {
		writeError(w, models.ErrUnavailable("routing controller unavailable: "+err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, st)
}
