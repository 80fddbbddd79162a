package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/micro-nova/callaudio-go/internal/auth"
	"github.com/micro-nova/callaudio-go/internal/metrics"
	"github.com/micro-nova/callaudio-go/internal/models"
)

// Deps are the components the API serves. Auth and Metrics may be nil.
type Deps struct {
	Router   Router
	Calls    CallRegistry
	Settings Settings
	Devices  DeviceRefresher
	Events   EventBus
	Auth     *auth.Service
	Metrics  *metrics.Metrics
	Info     models.Info
}

// NewRouter creates and returns the main HTTP router.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(corsMiddleware)
	r.Use(middleware.CleanPath)

	h := &Handlers{
		router:   d.Router,
		calls:    d.Calls,
		settings: d.Settings,
		devices:  d.Devices,
		events:   d.Events,
		info:     d.Info,
	}

	r.Handle("/metrics", d.Metrics.Handler())

	r.Group(func(r chi.Router) {
		if d.Auth != nil {
			r.Use(d.Auth.Middleware)
		}

		// Routing
		r.Get("/api/state", h.getState)
		r.Post("/api/mute", h.setMute)
		r.Post("/api/mute/toggle", h.toggleMute)
		r.Post("/api/route", h.setRoute)
		r.Post("/api/ringing", h.setRinging)
		r.Post("/api/tone", h.setTone)
		r.Post("/api/devices/refresh", h.refreshDevices)

		// Calls
		r.Get("/api/calls", h.getCalls)
		r.Post("/api/calls", h.addCall)
		r.Get("/api/calls/{id}", h.getCall)
		r.Patch("/api/calls/{id}", h.updateCall)
		r.Delete("/api/calls/{id}", h.removeCall)
		r.Post("/api/calls/{id}/answer", h.answerCall)
		r.Post("/api/calls/{id}/{event}", h.transitionCall)

		// System
		r.Get("/api/settings", h.getSettings)
		r.Patch("/api/settings", h.updateSettings)
		r.Get("/api/info", h.getInfo)

		// SSE
		r.Get("/api/subscribe", h.sseEvents)
	})

	return r
}

// corsMiddleware adds permissive CORS headers for local network access.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, api-key")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
