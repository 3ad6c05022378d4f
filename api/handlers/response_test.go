package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/localpilot/types"
)

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestWriteSuccess_Envelope(t *testing.T) {
	w := httptest.NewRecorder()
	w.Header().Set("X-Request-ID", "req-42")

	WriteSuccess(w, map[string]bool{"active": false})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)
	assert.Nil(t, resp.Error)
	assert.Equal(t, "req-42", resp.RequestID)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestWriteError_StatusFromCode(t *testing.T) {
	tests := []struct {
		code types.ErrorCode
		want int
	}{
		{types.ErrInvalidRequest, http.StatusBadRequest},
		{types.ErrUnauthorized, http.StatusUnauthorized},
		{types.ErrModelNotFound, http.StatusNotFound},
		{types.ErrAutomationBusy, http.StatusConflict},
		{types.ErrAmbiguousIntent, http.StatusUnprocessableEntity},
		{types.ErrRateLimited, http.StatusTooManyRequests},
		{types.ErrTimeout, http.StatusGatewayTimeout},
		{types.ErrBrowserLaunch, http.StatusServiceUnavailable},
		{types.ErrCapabilityUnavailable, http.StatusServiceUnavailable},
		{types.ErrConnectivity, http.StatusBadGateway},
		{types.ErrNavigation, http.StatusBadGateway},
		{types.ErrCleanup, http.StatusInternalServerError},
		{"SOMETHING_NEW", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, types.NewError(tt.code, "failed"), zaptest.NewLogger(t))

			assert.Equal(t, tt.want, w.Code)
			resp := decodeResponse(t, w)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, string(tt.code), resp.Error.Code)
			assert.Equal(t, "failed", resp.Error.Message)
		})
	}
}

func TestWriteError_ExplicitStatusAndCause(t *testing.T) {
	w := httptest.NewRecorder()
	err := types.NewError(types.ErrConnectivity, "Could not connect to the inference server").
		WithCause(errors.New("dial tcp 127.0.0.1:5273: connect: connection refused")).
		WithHTTPStatus(http.StatusServiceUnavailable).
		WithRetryable(true)

	WriteError(w, err, nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	resp := decodeResponse(t, w)
	assert.True(t, resp.Error.Retryable)
	assert.Contains(t, resp.Error.Details, "connection refused")
}

func TestWriteAppError_PlainError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteAppError(w, errors.New("boom"), nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, string(types.ErrInternalError), resp.Error.Code)
	assert.Equal(t, "boom", resp.Error.Details)
}

func TestDecodeJSONBody(t *testing.T) {
	type prompt struct {
		Prompt string `json:"prompt"`
	}
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"valid", `{"prompt":"go to example.com"}`, ""},
		{"empty", ``, "request body is empty"},
		{"malformed", `{"prompt":`, "invalid JSON body"},
		{"unknown field", `{"prompt":"x","headles":true}`, "invalid JSON body"},
		{"too large", `{"prompt":"` + strings.Repeat("x", maxBodyBytes) + `"}`, "request body too large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/api/v1/automation/prompt", http.NoBody)
			if tt.body != "" {
				r = httptest.NewRequest(http.MethodPost, "/api/v1/automation/prompt", strings.NewReader(tt.body))
			}

			var dst prompt
			err := DecodeJSONBody(w, r, &dst, nil)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, "go to example.com", dst.Prompt)
				return
			}
			require.Error(t, err)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.wantErr, decodeResponse(t, w).Error.Message)
		})
	}
}

func TestDecodeOptionalJSONBody(t *testing.T) {
	var dst struct {
		Headless bool `json:"headless"`
	}
	w := httptest.NewRecorder()
	require.NoError(t, DecodeOptionalJSONBody(w, httptest.NewRequest(http.MethodPost, "/", http.NoBody), &dst, nil))
	assert.False(t, dst.Headless)

	require.NoError(t, DecodeOptionalJSONBody(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"headless":true}`)), &dst, nil))
	assert.True(t, dst.Headless)
}

func TestValidateContentType(t *testing.T) {
	accepted := []string{"application/json", "application/json; charset=utf-8", "application/json; charset=UTF-8"}
	rejected := []string{"", "text/plain", "application/json; charset=latin1", "multipart/form-data"}

	for _, ct := range accepted {
		r := httptest.NewRequest(http.MethodPost, "/", nil)
		r.Header.Set("Content-Type", ct)
		assert.True(t, ValidateContentType(httptest.NewRecorder(), r, nil), ct)
	}
	for _, ct := range rejected {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/", nil)
		r.Header.Set("Content-Type", ct)
		assert.False(t, ValidateContentType(w, r, nil), ct)
		assert.Equal(t, http.StatusBadRequest, w.Code, ct)
	}
}

func TestResponseWriter_CapturesFirstStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := NewResponseWriter(rec)
	assert.Equal(t, http.StatusOK, rw.StatusCode)
	assert.False(t, rw.Written)

	rw.WriteHeader(http.StatusConflict)
	rw.WriteHeader(http.StatusOK)
	n, err := rw.Write([]byte("busy!"))

	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, http.StatusConflict, rw.StatusCode)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, int64(5), rw.Bytes)
	assert.Same(t, rec, rw.Unwrap())
}

func TestResponseWriter_HijackRequiresHijacker(t *testing.T) {
	rw := NewResponseWriter(httptest.NewRecorder())
	_, _, err := rw.Hijack()
	assert.Error(t, err)

	rw.Flush()
	assert.Equal(t, http.StatusOK, rw.StatusCode)
}
