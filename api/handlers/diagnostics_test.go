package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BaSui01/localpilot/automation/diagnostics"
	"github.com/BaSui01/localpilot/automation/enhanced"
	"github.com/BaSui01/localpilot/testutil/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type diagnoserFunc func(ctx context.Context) diagnostics.Report

func (f diagnoserFunc) Diagnose(ctx context.Context) diagnostics.Report { return f(ctx) }

func TestDiagnosticsHandler_Unavailable(t *testing.T) {
	h := NewDiagnosticsHandler(diagnoserFunc(func(context.Context) diagnostics.Report {
		return diagnostics.Report{
			Name:            "agentic",
			ImportError:     "language model is not reachable",
			Recommendations: []string{"Start the local inference server and load a model"},
		}
	}), zaptest.NewLogger(t))

	w := httptest.NewRecorder()
	h.HandleDiagnose(w, httptest.NewRequest(http.MethodGet, "/api/v1/diagnostics", nil))

	assert.Equal(t, http.StatusOK, w.Code, "an unhealthy report is still a successful diagnosis")
	var env struct {
		Success bool               `json:"success"`
		Data    diagnostics.Report `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&env))
	assert.True(t, env.Success)
	assert.Equal(t, "language model is not reachable", env.Data.ImportError)
	assert.Len(t, env.Data.Recommendations, 1)
}

func TestDiagnosticsHandler_RealDiagnoser(t *testing.T) {
	model := mocks.NewMockLanguageModel().WithLive(true)
	d := diagnostics.New(nil, model, enhanced.DefaultConfig(), zaptest.NewLogger(t),
		diagnostics.WithLookPath(func(string) (string, error) { return "/usr/bin/chromium", nil }))
	h := NewDiagnosticsHandler(d, nil)

	w := httptest.NewRecorder()
	h.HandleDiagnose(w, httptest.NewRequest(http.MethodGet, "/api/v1/diagnostics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var env struct {
		Data diagnostics.Report `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&env))
	assert.True(t, env.Data.Present)
	assert.Empty(t, env.Data.ImportError)
	assert.NotNil(t, env.Data.Recommendations)
}
