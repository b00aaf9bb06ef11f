package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/interview-voice/internal/config"
	"github.com/lexiqai/interview-voice/internal/httputil"
	"github.com/lexiqai/interview-voice/internal/observability"
	"github.com/lexiqai/interview-voice/internal/resilience"
)

const breakerName = "interview_api"

// ErrInvalidResponse is reported when a success body is not valid JSON
var ErrInvalidResponse = errors.New("Invalid server response")

// Client talks to the interview session API
type Client struct {
	baseURL        string
	httpClient     *http.Client
	circuitBreaker *resilience.CircuitBreaker
	logger         zerolog.Logger
	metrics        *observability.Metrics
}

// NewClient creates a new interview backend client
func NewClient(cfg *config.Config, logger zerolog.Logger) *Client {
	timeout := cfg.APITimeout()
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	logger = observability.WithComponent(logger, "backend")
	circuitBreaker := resilience.NewCircuitBreaker(
		breakerName,
		cfg.CircuitBreakerMaxFailures,
		time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
	).OnStateChange(func(name string, from, to resilience.CircuitState) {
		observability.UpdateCircuitBreakerState(name, int(to))
		logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
	})

	return &Client{
		baseURL:        strings.TrimRight(cfg.InterviewAPIURL, "/"),
		httpClient:     &http.Client{Timeout: timeout},
		circuitBreaker: circuitBreaker,
		logger:         logger,
		metrics:        observability.NewSessionMetrics(""),
	}
}

// StartInterview uploads the resume and opens a new session
func (c *Client) StartInterview(ctx context.Context, resume Resume) (*StartResponse, error) {
	started := time.Now()

	body, contentType, err := resumeForm(resume)
	if err != nil {
		return nil, &StartError{Err: err}
	}

	var out StartResponse
	res := c.post(ctx, "/start_interview", contentType, body, &out)
	c.metrics.RecordBackend("start", started, res.err == nil)
	if res.err != nil {
		c.logger.Error().Err(res.err).Int("status", res.status).Msg("failed to start interview")
		return nil, &StartError{StatusCode: res.status, Detail: res.detail, Err: res.err}
	}

	c.logger.Info().Str("session_id", out.SessionID).Str("phase", out.Phase).Msg("interview session started")
	return &out, nil
}

// ContinueInterview submits the user's answer and returns the AI's reply
func (c *Client) ContinueInterview(ctx context.Context, sessionID, response string) (*ContinueResponse, error) {
	started := time.Now()

	body, err := json.Marshal(continueRequest{SessionID: sessionID, Response: response})
	if err != nil {
		return nil, &ContinueError{Err: err}
	}

	var out ContinueResponse
	res := c.post(ctx, "/continue_interview", "application/json", body, &out)
	c.metrics.RecordBackend("continue", started, res.err == nil)
	if res.err != nil {
		c.logger.Error().Err(res.err).Int("status", res.status).Str("session_id", sessionID).Msg("failed to continue interview")
		return nil, &ContinueError{StatusCode: res.status, Detail: res.detail, Err: res.err}
	}

	c.logger.Debug().Str("session_id", sessionID).Str("phase", out.Phase).Msg("interview turn completed")
	return &out, nil
}

// Ping checks that the backend is reachable and not failing
func (c *Client) Ping(ctx context.Context) error {
	if c.BreakerState() == resilience.StateOpen {
		return resilience.ErrCircuitOpen
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 500 {
		return fmt.Errorf("interview API returned status %d", resp.StatusCode)
	}
	return nil
}

// BreakerState exposes the backend circuit breaker state
func (c *Client) BreakerState() resilience.CircuitState {
	return c.circuitBreaker.GetState()
}

type postResult struct {
	status int
	detail string
	err    error
}

// post sends body and decodes a 2xx JSON response into out. 4xx responses
// are returned as errors but do not count against the circuit breaker.
func (c *Client) post(ctx context.Context, path, contentType string, body []byte, out any) postResult {
	var res postResult
	err := c.circuitBreaker.CallContext(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to make request: %w", err)
		}
		defer resp.Body.Close()
		res.status = resp.StatusCode

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			res.detail = detailOf(raw)
			statusErr := fmt.Errorf("interview API returned status %d", resp.StatusCode)
			if resp.StatusCode < 500 {
				res.err = statusErr
				return nil
			}
			return statusErr
		}

		if err := json.Unmarshal(raw, out); err != nil {
			res.detail = ErrInvalidResponse.Error()
			res.err = fmt.Errorf("%w: %v", ErrInvalidResponse, err)
			return nil
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			observability.IncrementCircuitBreakerFailures(breakerName)
		}
		res.err = err
	}
	return res
}

// detailOf returns the "detail" field of an error body, or "" when absent
func detailOf(raw []byte) string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return ""
	}
	if d, ok := fields["detail"]; !ok || string(d) == "null" {
		return ""
	}
	return httputil.ErrorDetail(raw)
}

func resumeForm(resume Resume) ([]byte, string, error) {
	if len(resume.Data) == 0 {
		return nil, "", errors.New("resume is empty")
	}
	name := filepath.Base(resume.Filename)
	if name == "." || name == "/" || name == "" {
		name = "resume"
	}
	contentType := resume.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="resume"; filename=%q`, name))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(resume.Data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
