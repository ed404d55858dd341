package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"inferd/internal/parallel"
	"inferd/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Generate(ctx context.Context, req types.GenerationRequest, onBatch func(tokens []string) error) (*types.GenerationResult, error)
	Plan(calls []types.ToolCall) parallel.Decision
	Status() types.StatusResponse
	Ready() bool
	Sessions() []types.SessionInfo
	Session(id string) (types.SessionInfo, bool)
	CloseSession(id string) bool
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}
	r.Use(MetricsMiddleware)
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Post("/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		handleGenerate(svc, w, r)
	})

	r.Post("/v1/tools/plan", func(w http.ResponseWriter, r *http.Request) {
		if !requireJSON(w, r) {
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var req types.PlanRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		dec := svc.Plan(req.Calls)
		writeJSON(w, types.PlanResponse{Mode: string(dec.Mode), Reason: dec.Reason})
	})

	r.Get("/v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"sessions": svc.Sessions()})
	})

	r.Get("/v1/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		info, ok := svc.Session(chi.URLParam(r, "id"))
		if !ok {
			writeJSONError(w, http.StatusNotFound, "session not found")
			return
		}
		writeJSON(w, info)
	})

	r.Delete("/v1/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		if !svc.CloseSession(chi.URLParam(r, "id")) {
			writeJSONError(w, http.StatusNotFound, "session not found")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, svc.Status())
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("loading"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	return r
}

// handleGenerate streams NDJSON token lines and a terminal result line.
// Errors before the first token map to JSON error responses; errors after
// streaming began are reported as a final error line.
func handleGenerate(svc Service, w http.ResponseWriter, r *http.Request) {
	if !requireJSON(w, r) {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req types.GenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeJSONError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	lvl := requestLogLevel(r)
	rid := middleware.GetReqID(r.Context())
	start := time.Now()
	if lvl >= LevelInfo && zlog != nil {
		zlog.Info().Str("path", r.URL.Path).Str("session_id", req.SessionID).
			Str("request_id", rid).Msg("generate start")
	}

	// Join server base context with request context so shutdown cancels work too.
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()
	if generateTimeout > 0 {
		var tcancel context.CancelFunc
		ctx, tcancel = context.WithTimeout(ctx, time.Duration(generateTimeout)*time.Second)
		defer tcancel()
	}

	var flush func()
	if f, ok := w.(http.Flusher); ok {
		flush = f.Flush
	}
	debugLines := lvl >= LevelDebug
	var lineLog loggingLineWriter

	streamed := false
	res, err := svc.Generate(ctx, req, func(tokens []string) error {
		if !streamed {
			w.Header().Set("Content-Type", "application/x-ndjson")
			streamed = true
		}
		for _, tok := range tokens {
			line, _ := json.Marshal(types.GenerateResponseLine{Token: tok})
			line = append(line, '\n')
			if _, err := w.Write(line); err != nil {
				return err
			}
			if debugLines {
				_, _ = lineLog.Write(line)
			}
		}
		if flush != nil {
			flush()
		}
		return nil
	})
	if err != nil {
		// Client disconnects and shutdowns surface here once streaming began.
		if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
			return
		}
		status := statusForError(err)
		if status == http.StatusTooManyRequests {
			IncrementBackpressure("generate")
		}
		if !streamed {
			writeJSONError(w, status, err.Error())
		}
		if lvl >= LevelInfo && zlog != nil {
			zlog.Info().Int("status", status).Str("request_id", rid).
				Dur("dur", time.Since(start)).Err(err).Msg("generate end")
		}
		return
	}

	if !streamed {
		w.Header().Set("Content-Type", "application/x-ndjson")
	}
	final := types.GenerateResponseLine{
		Done:         true,
		Content:      res.Content,
		FinishReason: &res.Reason,
		TokenCount:   res.TokenCount,
		SessionID:    res.SessionID,
	}
	line, _ := json.Marshal(final)
	line = append(line, '\n')
	_, _ = w.Write(line)
	if debugLines {
		_, _ = lineLog.Write(line)
	}
	if flush != nil {
		flush()
	}
	recordGeneration(string(res.Reason.Kind), res.TokenCount)
	if lvl >= LevelInfo && zlog != nil {
		zlog.Info().Int("status", 200).Str("request_id", rid).
			Str("finish", string(res.Reason.Kind)).Int("tokens", res.TokenCount).
			Dur("dur", time.Since(start)).Msg("generate end")
	}
}

func requireJSON(w http.ResponseWriter, r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
	}
}
