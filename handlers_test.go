package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vascusens/eitvis/eit"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func testServer(t *testing.T, sensors ...string) (http.Handler, *eit.StateTracker) {
	t.Helper()
	config := eit.DefaultConfig()
	config.Render.Size = 64
	reconstructor := eit.NewReconstructor(eit.NewGridEngine(12, eit.DefaultLambda), nil)

	st := eit.NewStateTracker()
	for _, id := range sensors {
		result, err := reconstructor.Reconstruct(eit.Request{Readings: testReadings})
		require.NoError(t, err)
		result.SensorID = id
		st.Update(result)
	}
	return newHTTPServer(st, reconstructor, config, nil), st
}

func serve(h http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// ---------------------------------------------------------------------------
// endpoints
// ---------------------------------------------------------------------------

func TestHealthEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		sensors    []string
		hasResults bool
	}{
		{"empty", nil, false},
		{"populated", []string{"pipe-a"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := testServer(t, tt.sensors...)
			rec := serve(h, http.MethodGet, "/health", nil)

			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body struct {
				Status     string `json:"status"`
				HasResults bool   `json:"hasResults"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "ok", body.Status)
			assert.Equal(t, tt.hasResults, body.HasResults)
		})
	}
}

func TestSensorsEndpoint(t *testing.T) {
	h, _ := testServer(t, "pipe-b", "pipe-a")
	rec := serve(h, http.MethodGet, "/sensors", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Sensors []string `json:"sensors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"pipe-a", "pipe-b"}, body.Sensors)
}

func TestAnomaliesEndpoint(t *testing.T) {
	h, st := testServer(t, "pipe-a")

	rec := serve(h, http.MethodGet, "/sensors/pipe-a/anomalies.json", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body eit.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	want, _ := st.Get("pipe-a")
	assert.Equal(t, want.ID, body.ID)
	assert.Equal(t, "pipe-a", body.SensorID)
	assert.Len(t, body.Anomalies, eit.NodeCount)
	assert.Nil(t, body.Field)

	rec = serve(h, http.MethodGet, "/sensors/unknown/anomalies.json", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFieldPNGEndpoint(t *testing.T) {
	h, _ := testServer(t, "pipe-a")

	rec := serve(h, http.MethodGet, "/sensors/pipe-a/field.png", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))

	img, err := png.Decode(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, eit.NewFieldRenderer(64).Bounds(), img.Bounds())

	rec = serve(h, http.MethodGet, "/sensors/nope/field.png", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFieldSVGEndpoint(t *testing.T) {
	h, _ := testServer(t, "pipe-a")

	rec := serve(h, http.MethodGet, "/sensors/pipe-a/field.svg", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "<svg")
}

func TestVisualiseEndpoint(t *testing.T) {
	h, st := testServer(t)
	payload, err := json.Marshal(eit.ReadingsMessage{Readings: testReadings})
	require.NoError(t, err)

	rec := serve(h, http.MethodPost, "/visualise", payload)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Result-Id"))
	_, err = png.Decode(rec.Body)
	require.NoError(t, err)

	// One-off visualisations are not stored
	assert.False(t, st.HasResults())

	rec = serve(h, http.MethodPost, "/visualise?format=svg", payload)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "<svg")
}

func TestVisualiseEndpoint_TextPayload(t *testing.T) {
	h, _ := testServer(t)
	parts := make([]string, len(testReadings))
	for i, v := range testReadings {
		parts[i] = fmt.Sprintf("%g", v)
	}

	rec := serve(h, http.MethodPost, "/visualise", []byte(strings.Join(parts, ",")))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestVisualiseEndpoint_BadRequests(t *testing.T) {
	h, _ := testServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"not numbers", "a,b,c"},
		{"short sequence", "[1, 2, 3]"},
		{"constant readings", "[" + strings.Repeat("1,", 31) + "1]"},
		{"baseline length", `{"readings":[` + strings.Repeat("1,", 31) + `2],"baseline":[1]}`},
		{"negative flatten", `{"readings":[` + strings.Repeat("1,", 31) + `2],"flatten":-1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(h, http.MethodPost, "/visualise", []byte(tt.body))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h, _ := testServer(t)
	assert.Equal(t, http.StatusMethodNotAllowed, serve(h, http.MethodGet, "/visualise", nil).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, serve(h, http.MethodPost, "/health", nil).Code)
}

// ---------------------------------------------------------------------------
// writeError
// ---------------------------------------------------------------------------

func TestWriteError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("wrapped: %w", eit.ErrInvalidInput), http.StatusBadRequest},
		{eit.ErrLengthMismatch, http.StatusBadRequest},
		{eit.ErrEmptyInput, http.StatusBadRequest},
		{eit.ErrDegenerateInput, http.StatusBadRequest},
		{eit.ErrInvalidFormat, http.StatusBadRequest},
		{eit.ErrFileNotFound, http.StatusInternalServerError},
		{errors.New("inverse solve: system is not positive definite"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		writeError(rec, tt.err)
		assert.Equal(t, tt.want, rec.Code, tt.err.Error())
	}
}
