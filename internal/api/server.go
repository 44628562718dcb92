// Package api serves the panel over HTTP: JSON control endpoints, trace
// exports, plot renderings, a server-sent event stream, Prometheus metrics
// and the serial link's debug console.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/banshee-data/sourcemeter/internal/panel"
	"github.com/banshee-data/sourcemeter/internal/serialmux"
)

// Server exposes one panel.
type Server struct {
	panel    *panel.Panel
	link     serialmux.SerialMuxInterface
	gatherer prometheus.Gatherer
}

// NewServer creates a server. link may be nil, in which case no debug
// routes are mounted; gatherer may be nil to omit /metrics.
func NewServer(p *panel.Panel, link serialmux.SerialMuxInterface, gatherer prometheus.Gatherer) *Server {
	return &Server{panel: p, link: link, gatherer: gatherer}
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(LoggingMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/config", s.handleGetConfig)
		r.Put("/config", s.handlePutConfig)
		r.Get("/plan", s.handlePlan)
		r.Post("/sweep/start", s.handleStart)
		r.Post("/sweep/abort", s.handleAbort)
		r.Get("/traces", s.handleTraces)
		r.Get("/traces/export", s.handleExport)
		r.Post("/traces/save", s.handleSave)
		r.Post("/plot/reset", s.handlePlotReset)
		r.Get("/plot.png", s.handlePlotPNG)
		r.Get("/plot.html", s.handlePlotHTML)
		r.Get("/notifications", s.handleNotifications)
		r.Get("/events", s.handleEvents)
	})

	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	if s.link != nil {
		// tsweb registers under /debug/ on a plain ServeMux and enforces
		// its own localhost/tailnet access check.
		debug := http.NewServeMux()
		s.link.AttachAdminRoutes(debug)
		r.Handle("/debug/*", debug)
	}
	return r
}
