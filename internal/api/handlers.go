package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/banshee-data/sourcemeter/internal/config"
	"github.com/banshee-data/sourcemeter/internal/httputil"
	"github.com/banshee-data/sourcemeter/internal/panel"
	"github.com/banshee-data/sourcemeter/internal/plot"
	"github.com/banshee-data/sourcemeter/internal/sweep"
)

const maxBodySize = 1 << 20

// writeError maps panel and executor errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	var ie *sweep.InstrumentError
	var ee *sweep.ExportError
	switch {
	case errors.Is(err, sweep.ErrInvalidConfig):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, sweep.ErrAlreadyRunning), errors.Is(err, sweep.ErrNotRunning), errors.Is(err, panel.ErrBusy):
		httputil.Conflict(w, err.Error())
	case errors.Is(err, sweep.ErrNotConfigured):
		httputil.PreconditionFailed(w, err.Error())
	case errors.Is(err, sweep.ErrNoData):
		httputil.NotFound(w, err.Error())
	case errors.As(err, &ie):
		httputil.BadGateway(w, err.Error())
	case errors.As(err, &ee):
		httputil.InternalServerError(w, err.Error())
	default:
		httputil.BadRequest(w, err.Error())
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, s.panel.Status())
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	st := s.panel.Status()
	if st.Config == nil {
		httputil.NotFound(w, "sweep not configured")
		return
	}
	httputil.WriteJSONOK(w, st.Config)
}

// planResponse is returned by PUT /api/config and GET /api/plan.
type planResponse struct {
	Points int        `json:"points"`
	Plan   sweep.Plan `json:"plan"`
}

func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	var pc config.PanelConfig
	if err := decodeBody(w, r, &pc); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	plan, err := s.panel.ApplyConfig(&pc)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, planResponse{Points: len(plan), Plan: plan})
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	plan := s.panel.Executor().Plan()
	if plan == nil {
		plan = sweep.Plan{}
	}
	httputil.WriteJSONOK(w, planResponse{Points: len(plan), Plan: plan})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.panel.Start(); err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, s.panel.Status())
}

func (s *Server) handleAbort(w http.ResponseWriter, r *http.Request) {
	if err := s.panel.Abort(); err != nil {
		writeError(w, err)
		return
	}
	res, _ := s.panel.Executor().LastResult()
	httputil.WriteJSONOK(w, res.Summary())
}

func (s *Server) handleTraces(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, s.panel.Store().Records())
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.panel.Export(&buf); err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", panel.DefaultFilename(timeNow())))
	_, _ = w.Write(buf.Bytes())
}

type saveRequest struct {
	Name string `json:"name"`
}

type saveResponse struct {
	Path string `json:"path"`
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, &req); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
	}
	path, err := s.panel.Save(strings.TrimSpace(req.Name))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, saveResponse{Path: path})
}

func (s *Server) handlePlotReset(w http.ResponseWriter, r *http.Request) {
	if err := s.panel.ResetPlot(); err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, s.panel.Status())
}

func (s *Server) plotOptions(r *http.Request) plot.Options {
	return plot.Options{Title: r.URL.Query().Get("title")}
}

func (s *Server) handlePlotPNG(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := plot.RenderPNG(&buf, s.panel.Plot().Series(), s.plotOptions(r)); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render plot: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handlePlotHTML(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := plot.RenderHTML(&buf, s.panel.Plot().Series(), s.plotOptions(r)); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, s.panel.Notifications())
}
