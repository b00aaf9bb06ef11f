package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/interview-voice/internal/audio"
	"github.com/lexiqai/interview-voice/internal/config"
	"github.com/lexiqai/interview-voice/internal/observability"
	"github.com/lexiqai/interview-voice/internal/orchestrator"
	"github.com/lexiqai/interview-voice/internal/resilience"
	"github.com/lexiqai/interview-voice/internal/stt"
	"github.com/lexiqai/interview-voice/internal/tts"
)

const writeTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	// The page is served from a different origin during development
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  4096,
	WriteBufferSize: 32 * 1024,
}

// Deps are the shared clients every interview session uses
type Deps struct {
	Config  *config.Config
	STT     stt.Client
	TTS     tts.Client
	API     orchestrator.Backend
	Resumes *ResumeStore
}

// InterviewSession binds one browser WebSocket to one interview
type InterviewSession struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	deps    Deps
	mic     *browserMicrophone
	speaker *browserSpeaker
	orch    *orchestrator.Orchestrator

	connID  string
	metrics *observability.Metrics
	logger  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// HandleInterviewWS upgrades the request and runs an interview session until
// the browser leaves or disconnects.
func HandleInterviewWS(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger := observability.GetLogger()
			logger.Warn().Err(err).Msg("failed to upgrade connection to WebSocket")
			return
		}

		session := NewInterviewSession(conn, deps)
		session.Run()
	}
}

// NewInterviewSession wires the adapters and orchestrator for one connection
func NewInterviewSession(conn *websocket.Conn, deps Deps) *InterviewSession {
	cfg := deps.Config
	connID := observability.NewCorrelationID()
	logger := observability.WithCorrelationID(connID)
	metrics := observability.NewSessionMetrics(connID)

	ctx, cancel := context.WithCancel(context.Background())
	s := &InterviewSession{
		conn:    conn,
		deps:    deps,
		connID:  connID,
		metrics: metrics,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}

	s.mic = newBrowserMicrophone(s.send, cfg.MicSampleRate, cfg.VADEnergyThreshold, cfg.VADPrerollMs, logger)
	s.speaker = newBrowserSpeaker(s.send, logger)

	retry := resilience.NewRetryConfig(cfg.RetryMaxAttempts, cfg.RetryInitialBackoff)
	synth := tts.NewSynthesizer(deps.TTS, s.speaker, tts.SynthesizerOptions{
		MaxChunkChars: cfg.TTSMaxChunkChars,
		Concurrency:   cfg.TTSConcurrency,
		Retry:         retry,
		Logger:        logger,
		Metrics:       metrics,
	})
	capture := stt.NewCapture(deps.STT, s.mic, stt.CaptureOptions{
		InitialSpeechTimeout: cfg.InitialSpeechTimeout(),
		SilenceTimeout:       cfg.SilenceTimeout(),
		STTSampleRate:        cfg.STTSampleRate,
		Retry:                retry,
		Logger:               logger,
		Metrics:              metrics,
	})

	s.orch = orchestrator.New(synth, capture, deps.API, orchestrator.Options{
		Logger:  logger,
		Metrics: metrics,
		OnChange: func(snap orchestrator.Snapshot) {
			if err := s.send(stateMessage(snap)); err != nil {
				logger.Debug().Err(err).Msg("failed to push state")
			}
		},
	})
	return s
}

// Run reads client events until the connection closes, then leaves the interview
func (s *InterviewSession) Run() {
	s.logger.Info().Str("remote", s.conn.RemoteAddr().String()).Msg("interview connection opened")
	defer s.close()

	_ = s.send(stateMessage(s.orch.Snapshot()))

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn().Err(err).Msg("WebSocket closed unexpectedly")
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.logger.Warn().Err(err).Msg("ignoring malformed client message")
			continue
		}
		if !s.handle(msg) {
			return
		}
	}
}

// handle applies one client event. It returns false when the session is over.
func (s *InterviewSession) handle(msg ClientMessage) bool {
	switch msg.Event {
	case EventStart:
		s.start(msg)

	case EventToggle:
		s.orch.Toggle()

	case EventLeave:
		s.orch.Leave()
		return false

	case EventMicReady:
		s.mic.answer(msg.SampleRate, nil)

	case EventMicDenied:
		detail := msg.Error
		if detail == "" {
			detail = "permission denied"
		}
		s.mic.answer(0, errors.New(detail))

	case EventMedia:
		data, err := base64.StdEncoding.DecodeString(msg.Payload)
		if err != nil {
			s.logger.Warn().Err(err).Msg("invalid media payload")
			return true
		}
		samples, err := audio.BytesToSamples(data)
		if err != nil {
			s.logger.Warn().Err(err).Msg("invalid media payload")
			return true
		}
		s.mic.push(samples)

	case EventPlaybackEnded:
		s.speaker.ended(msg.PlaybackID, nil)

	case EventPlaybackError:
		detail := msg.Error
		if detail == "" {
			detail = "playback failed"
		}
		s.speaker.ended(msg.PlaybackID, errors.New(detail))

	default:
		s.logger.Debug().Str("event", msg.Event).Msg("unknown client event")
	}
	return true
}

func (s *InterviewSession) start(msg ClientMessage) {
	params := orchestrator.StartParams{
		SessionID: msg.SessionID,
		Message:   msg.Message,
		Phase:     msg.Phase,
	}
	if msg.ResumeID != "" && s.deps.Resumes != nil {
		if resume, ok := s.deps.Resumes.Take(msg.ResumeID); ok {
			params.Resume = &resume
		} else {
			s.logger.Warn().Str("resume_id", msg.ResumeID).Msg("resume not found")
		}
	}
	s.logger.Info().
		Bool("resume", params.Resume != nil).
		Str("session_id", params.SessionID).
		Msg("starting interview")
	s.orch.Start(s.ctx, params)
}

// send writes one JSON frame. Safe for concurrent use.
func (s *InterviewSession) send(msg ServerMessage) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteJSON(msg)
}

func (s *InterviewSession) close() {
	s.orch.Leave()
	s.cancel()
	s.speaker.closeAll()
	s.mic.answer(0, ErrDisconnected)

	s.writeMu.Lock()
	_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()
	_ = s.conn.Close()

	s.logger.Info().Msg("interview connection closed")
}
