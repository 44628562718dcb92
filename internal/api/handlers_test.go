package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/sourcemeter/internal/panel"
	"github.com/banshee-data/sourcemeter/internal/sweep"
)

func TestWriteError_StatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid config", fmt.Errorf("configure: %w", sweep.ErrInvalidConfig), http.StatusBadRequest},
		{"already running", sweep.ErrAlreadyRunning, http.StatusConflict},
		{"not running", sweep.ErrNotRunning, http.StatusConflict},
		{"plot busy", fmt.Errorf("reset plot: %w", panel.ErrBusy), http.StatusConflict},
		{"not configured", sweep.ErrNotConfigured, http.StatusPreconditionFailed},
		{"no traces", sweep.ErrNoData, http.StatusNotFound},
		{"instrument", &sweep.InstrumentError{Op: "read", Err: errors.New("timeout")}, http.StatusBadGateway},
		{"export", &sweep.ExportError{Path: "/tmp/x.txt", Err: errors.New("disk full")}, http.StatusInternalServerError},
		{"unclassified", errors.New("invalid request body"), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, tt.err)

			assert.Equal(t, tt.want, rec.Code)
			assert.JSONEq(t, fmt.Sprintf(`{"error":%q}`, tt.err.Error()), rec.Body.String())
		})
	}
}
