package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/vascusens/eitvis/eit"
)

// maxRequestBody caps POST /visualise payloads
const maxRequestBody = 1 << 20

// newHTTPServer creates an HTTP server with all endpoints
func newHTTPServer(stateTracker *eit.StateTracker, reconstructor *eit.Reconstructor, config *eit.Config, logger *zap.Logger) http.Handler {
	if config == nil {
		config = eit.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		status := struct {
			Status     string    `json:"status"`
			Timestamp  time.Time `json:"timestamp"`
			HasResults bool      `json:"hasResults"`
		}{
			Status:     "ok",
			Timestamp:  time.Now(),
			HasResults: stateTracker.HasResults(),
		}
		writeJSON(w, logger, status)
	})

	// Sensors with a stored result
	mux.HandleFunc("GET /sensors", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, logger, struct {
			Sensors []string `json:"sensors"`
		}{Sensors: stateTracker.SensorIDs()})
	})

	mux.HandleFunc("GET /sensors/{id}/anomalies.json", func(w http.ResponseWriter, r *http.Request) {
		result, ok := lookupResult(w, r, stateTracker)
		if !ok {
			return
		}
		writeJSON(w, logger, result)
	})

	mux.HandleFunc("GET /sensors/{id}/field.png", func(w http.ResponseWriter, r *http.Request) {
		result, ok := lookupResult(w, r, stateTracker)
		if !ok {
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		if err := encodeField(w, result.Field, config.Render.Format, config.Render.Size); err != nil {
			logger.Error("encoding field PNG", zap.String("sensor", result.SensorID), zap.Error(err))
		}
	})

	mux.HandleFunc("GET /sensors/{id}/field.svg", func(w http.ResponseWriter, r *http.Request) {
		result, ok := lookupResult(w, r, stateTracker)
		if !ok {
			return
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "no-cache")
		if err := encodeField(w, result.Field, "svg", config.Render.Size); err != nil {
			logger.Error("encoding field SVG", zap.String("sensor", result.SensorID), zap.Error(err))
		}
	})

	// One-off visualisation of a posted reading set
	mux.HandleFunc("POST /visualise", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
		if err != nil {
			http.Error(w, "reading request body", http.StatusBadRequest)
			return
		}
		msg, err := eit.DecodeReadings(body)
		if err != nil {
			writeError(w, err)
			return
		}

		req := msg.Request()
		if req.Flatten == nil {
			req.Flatten = config.Pipeline.Flatten
		}
		result, err := reconstructor.Reconstruct(req)
		if err != nil {
			writeError(w, err)
			return
		}

		format := config.Render.Format
		contentType := "image/png"
		if r.URL.Query().Get("format") == "svg" {
			format, contentType = "svg", "image/svg+xml"
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("X-Result-Id", result.ID)
		if err := encodeField(w, result.Field, format, config.Render.Size); err != nil {
			logger.Error("encoding visualisation", zap.Error(err))
		}
	})

	return loggingMiddleware(mux, logger)
}

// lookupResult writes a 404 and returns false when the sensor has no result
func lookupResult(w http.ResponseWriter, r *http.Request, stateTracker *eit.StateTracker) (*eit.Result, bool) {
	id := r.PathValue("id")
	result, ok := stateTracker.Get(id)
	if !ok {
		http.Error(w, fmt.Sprintf("No result for sensor %q", id), http.StatusNotFound)
		return nil, false
	}
	return result, true
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("encoding JSON response", zap.Error(err))
	}
}

// writeError maps input errors to 400 and everything else to 500
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	for _, target := range []error{
		eit.ErrInvalidInput,
		eit.ErrLengthMismatch,
		eit.ErrEmptyInput,
		eit.ErrDegenerateInput,
		eit.ErrInvalidFormat,
	} {
		if errors.Is(err, target) {
			status = http.StatusBadRequest
			break
		}
	}
	http.Error(w, err.Error(), status)
}

// statusRecorder captures the status code written by a handler
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs every request at debug level
func loggingMiddleware(next http.Handler, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote", r.RemoteAddr),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)))
	})
}
