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
	httpSwagger "github.com/swaggo/http-swagger"

	"llmgate/internal/admission"
	"llmgate/internal/engine"
	"llmgate/internal/gateway"
	"llmgate/internal/registry"
	"llmgate/internal/session"
	"llmgate/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Complete(ctx context.Context, req types.ChatCompletionRequest) (*types.ChatCompletionResponse, error)
	Stream(ctx context.Context, req types.ChatCompletionRequest, em gateway.Emitter) error
	ListModels() []types.ModelInfo
}

// NewMux builds the router: /v1 endpoints behind auth, probes and
// metrics outside it.
func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
		}))
	}
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(AuthMiddleware)
		r.Get("/models", handleListModels(svc))
		r.Post("/chat/completions", handleChatCompletions(svc))
	})

	// Liveness only: no store, engine or admission involvement, so it
	// answers even when every generation slot is saturated.
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if readinessProbe != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := readinessProbe(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte("store unavailable"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/docs/doc.json")))

	return r
}

// handleListModels godoc
// @Summary  List configured models
// @Produce  json
// @Success  200 {object} types.ModelsResponse
// @Security BearerAuth
// @Router   /v1/models [get]
func handleListModels(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		resp := types.ModelsResponse{Object: "list", Data: svc.ListModels()}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
		}
	}
}

// handleChatCompletions godoc
// @Summary  Create a chat completion, buffered or streamed
// @Accept   json
// @Produce  json
// @Param    request body types.ChatCompletionRequest true "completion request"
// @Success  200 {object} types.ChatCompletionResponse
// @Failure  401 {object} types.ErrorResponse
// @Failure  404 {object} types.ErrorResponse
// @Failure  409 {object} types.ErrorResponse
// @Failure  429 {object} types.ErrorResponse
// @Security BearerAuth
// @Router   /v1/chat/completions [post]
func handleChatCompletions(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
			writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var req types.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if len(req.Messages) == 0 {
			writeJSONError(w, http.StatusBadRequest, "messages are required")
			return
		}

		start := time.Now()
		rid := middleware.GetReqID(r.Context())
		log := zlog.With().Str("request_id", rid).Str("model", req.Model).Bool("stream", req.Stream).Logger()
		log.Info().Msg("chat start")

		// Join server base context with the request context so shutdown
		// cancels in-flight work too.
		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()

		if req.Stream {
			sw := newSSEWriter(w)
			err := svc.Stream(ctx, req, sw)
			if err != nil {
				if r.Context().Err() != nil || serverBaseCtx.Err() != nil || gateway.IsStreamAborted(err) {
					log.Info().Dur("dur", time.Since(start)).Msg("chat stream abandoned")
					return
				}
				if !sw.Started() {
					status := statusFor(err)
					writeJSONError(w, status, publicMessage(err, status))
					log.Info().Int("status", status).Dur("dur", time.Since(start)).Err(err).Msg("chat end")
					return
				}
				// Events already on the wire: report in-band.
				sw.writeError(publicMessage(err, statusFor(err)), "server_error")
				sw.writeDone()
				log.Info().Dur("dur", time.Since(start)).Err(err).Msg("chat stream failed")
				return
			}
			sw.writeDone()
			log.Info().Int("status", 200).Dur("dur", time.Since(start)).Msg("chat end")
			return
		}

		resp, err := svc.Complete(ctx, req)
		if err != nil {
			if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
				return
			}
			status := statusFor(err)
			writeJSONError(w, status, publicMessage(err, status))
			log.Info().Int("status", status).Dur("dur", time.Since(start)).Err(err).Msg("chat end")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			log.Error().Err(err).Msg("encode response")
			return
		}
		log.Info().Int("status", 200).Dur("dur", time.Since(start)).Msg("chat end")
	}
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case registry.IsModelNotFound(err):
		return http.StatusNotFound
	case session.IsModelConflict(err):
		return http.StatusConflict
	case admission.IsBusy(err) || registry.IsDispatchBusy(err):
		return http.StatusTooManyRequests
	case engine.IsUnavailable(err) || gateway.IsStoreUnavailable(err):
		return http.StatusServiceUnavailable
	case err == context.Canceled || err == context.DeadlineExceeded:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage keeps raw internal faults out of responses; taxonomy
// errors carry caller-safe text already.
func publicMessage(err error, status int) string {
	if status == http.StatusInternalServerError {
		return "internal server error"
	}
	return err.Error()
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}
