package controller

import (
	"log/slog"

	"github.com/micro-nova/callaudio-go/internal/metrics"
	"github.com/micro-nova/callaudio-go/internal/models"
)

// Resolver turns a requested route, possibly the wired-or-earpiece sentinel,
// into a concrete route. It has no state beyond its logger.
type Resolver struct {
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewResolver returns a Resolver logging defects to log (slog.Default if nil).
func NewResolver(log *slog.Logger, m *metrics.Metrics) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{log: log, metrics: m}
}

// Resolve maps the sentinel to whichever of wired headset or earpiece is in
// supported. If neither is, it logs a defect and answers earpiece. Concrete
// routes are returned unchanged; callers must check support themselves.
func (r *Resolver) Resolve(requested models.Route, supported models.RouteMask) models.Route {
	if requested != models.RouteWiredOrEarpiece {
		return requested
	}
	route := supported.Intersect(models.RouteWiredOrEarpiece)
	if !route.IsConcrete() {
		logDefect(r.log, r.metrics, "routing: one of wired headset or earpiece should always be supported",
			"supported", supported)
		return models.RouteEarpiece
	}
	return route
}
