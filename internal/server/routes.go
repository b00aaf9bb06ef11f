package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/lexiqai/interview-voice/internal/observability"
)

// Pinger is implemented by backend.Client
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadinessChecks probes the interview API and the configured speech providers
func ReadinessChecks(deps Deps) map[string]observability.HealthCheckFunc {
	checks := map[string]observability.HealthCheckFunc{
		"stt": func(context.Context) (bool, error) {
			if deps.STT == nil || !deps.STT.IsAvailable() {
				return false, errors.New("speech-to-text provider not configured")
			}
			return true, nil
		},
		"tts": func(context.Context) (bool, error) {
			if deps.TTS == nil || !deps.TTS.IsAvailable() {
				return false, errors.New("text-to-speech provider not configured")
			}
			return true, nil
		},
	}
	if p, ok := deps.API.(Pinger); ok {
		checks["interview_api"] = func(ctx context.Context) (bool, error) {
			if err := p.Ping(ctx); err != nil {
				return false, err
			}
			return true, nil
		}
	}
	return checks
}

// NewRouter registers the interview WebSocket, resume upload, health,
// readiness and (optionally) metrics endpoints.
func NewRouter(deps Deps, logger zerolog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/interview", HandleInterviewWS(deps))
	mux.HandleFunc("/api/resume", ResumeUploadHandler(deps.Resumes, logger))
	mux.HandleFunc("/health", observability.HealthCheckHandler())
	mux.HandleFunc("/ready", observability.ReadinessHandler(ReadinessChecks(deps)))

	if deps.Config != nil && deps.Config.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
	}
	return mux
}
