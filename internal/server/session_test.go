package server

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiqai/interview-voice/internal/audio"
	"github.com/lexiqai/interview-voice/internal/backend"
	"github.com/lexiqai/interview-voice/internal/config"
	"github.com/lexiqai/interview-voice/internal/orchestrator"
	"github.com/lexiqai/interview-voice/internal/stt"
)

type stubTTS struct{}

func (stubTTS) Synthesize(context.Context, string) ([][]byte, error) {
	return [][]byte{audio.EncodeWAV(audio.Buffer{Channels: 1, SampleRate: 22050, Samples: []int16{1, 2, 3, 4}})}, nil
}
func (stubTTS) IsAvailable() bool { return true }
func (stubTTS) Name() string      { return "stub" }

type stubSTT struct {
	mu    sync.Mutex
	sizes []int
}

func (s *stubSTT) Transcribe(_ context.Context, wav []byte) (string, error) {
	s.mu.Lock()
	s.sizes = append(s.sizes, len(wav))
	s.mu.Unlock()
	return "I enjoy building backends in Go.", nil
}
func (s *stubSTT) IsAvailable() bool { return true }
func (s *stubSTT) Name() string      { return "stub" }

type stubBackend struct {
	mu      sync.Mutex
	resumes []backend.Resume
	answers []string
}

func (b *stubBackend) StartInterview(_ context.Context, resume backend.Resume) (*backend.StartResponse, error) {
	b.mu.Lock()
	b.resumes = append(b.resumes, resume)
	b.mu.Unlock()
	return &backend.StartResponse{SessionID: "abc123", Message: "Tell me about yourself.", Phase: "in_progress"}, nil
}

func (b *stubBackend) ContinueInterview(_ context.Context, _, response string) (*backend.ContinueResponse, error) {
	b.mu.Lock()
	b.answers = append(b.answers, response)
	b.mu.Unlock()
	return &backend.ContinueResponse{Message: "Thank you. Generating your report.", Phase: "reporting"}, nil
}

func testDeps(store *ResumeStore, api orchestrator.Backend, sttClient stt.Client) Deps {
	return Deps{
		Config: &config.Config{
			MicSampleRate:          16000,
			STTSampleRate:          16000,
			VADEnergyThreshold:     500,
			VADPrerollMs:           0,
			TTSMaxChunkChars:       150,
			TTSConcurrency:         2,
			InitialSpeechTimeoutMs: 5000,
			SilenceTimeoutMs:       150,
			RetryMaxAttempts:       1,
		},
		STT:     sttClient,
		TTS:     stubTTS{},
		API:     api,
		Resumes: store,
	}
}

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func dial(t *testing.T, deps Deps) *wsClient {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/interview", HandleInterviewWS(deps))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/interview"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &wsClient{t: t, conn: conn}
}

func (c *wsClient) send(msg ClientMessage) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteJSON(msg))
}

// next reads frames until one matches event and pred
func (c *wsClient) next(event string, pred func(ServerMessage) bool) ServerMessage {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg ServerMessage
		require.NoError(c.t, c.conn.ReadJSON(&msg), "waiting for %s", event)
		if msg.Event == event && (pred == nil || pred(msg)) {
			return msg
		}
	}
}

func inState(s orchestrator.State) func(ServerMessage) bool {
	return func(m ServerMessage) bool { return m.State != nil && m.State.State == s }
}

func speech(n int) string {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = 4000
		if i%2 == 1 {
			samples[i] = -4000
		}
	}
	return base64.StdEncoding.EncodeToString(audio.SamplesToBytes(samples))
}

func TestInterviewSession_FullInterview(t *testing.T) {
	store := NewResumeStore()
	resumeID := store.Put(backend.Resume{Filename: "cv.pdf", ContentType: "application/pdf", Data: []byte("%PDF")})
	api := &stubBackend{}
	sttClient := &stubSTT{}
	c := dial(t, testDeps(store, api, sttClient))

	initial := c.next(EventState, nil)
	assert.Equal(t, orchestrator.StateInitializing, initial.State.State)

	c.send(ClientMessage{Event: EventStart, ResumeID: resumeID})

	play := c.next(EventPlay, nil)
	require.NotEmpty(t, play.PlaybackID)
	wav, err := base64.StdEncoding.DecodeString(play.Payload)
	require.NoError(t, err)
	decoded, err := audio.DecodeWAV(wav)
	require.NoError(t, err)
	assert.Equal(t, 22050, decoded.SampleRate)

	c.send(ClientMessage{Event: EventPlaybackEnded, PlaybackID: play.PlaybackID})
	c.next(EventMicOpen, nil)
	c.send(ClientMessage{Event: EventMicReady, SampleRate: 16000})

	for i := 0; i < 5; i++ {
		c.send(ClientMessage{Event: EventMedia, Payload: speech(320)})
	}

	c.next(EventMicClose, nil)
	reply := c.next(EventPlay, nil)
	c.send(ClientMessage{Event: EventPlaybackEnded, PlaybackID: reply.PlaybackID})

	final := c.next(EventState, inState(orchestrator.StateReporting))
	require.Len(t, final.State.Turns, 3)
	assert.Equal(t, "I enjoy building backends in Go.", final.State.Turns[1].Text)
	assert.Equal(t, "Thank you. Generating your report.", final.State.Turns[2].Text)
	assert.Equal(t, "Start Listening", final.State.Control.Label)

	api.mu.Lock()
	require.Len(t, api.resumes, 1)
	assert.Equal(t, "cv.pdf", api.resumes[0].Filename)
	assert.Equal(t, []string{"I enjoy building backends in Go."}, api.answers)
	api.mu.Unlock()

	sttClient.mu.Lock()
	require.Len(t, sttClient.sizes, 1)
	assert.Greater(t, sttClient.sizes[0], 44)
	sttClient.mu.Unlock()

	c.send(ClientMessage{Event: EventLeave})
	_, _, err = c.conn.ReadMessage()
	for err == nil {
		_, _, err = c.conn.ReadMessage()
	}
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected close: %v", err)
}

func TestInterviewSession_MicDenied(t *testing.T) {
	api := &stubBackend{}
	c := dial(t, testDeps(NewResumeStore(), api, &stubSTT{}))

	c.send(ClientMessage{Event: EventStart, SessionID: "s-1", Message: "Hello there.", Phase: "in_progress"})
	play := c.next(EventPlay, nil)
	c.send(ClientMessage{Event: EventPlaybackEnded, PlaybackID: play.PlaybackID})

	c.next(EventMicOpen, nil)
	c.send(ClientMessage{Event: EventMicDenied, Error: "NotAllowedError"})

	idle := c.next(EventState, inState(orchestrator.StateIdle))
	assert.Equal(t, orchestrator.CaptureError, idle.State.ErrorKind)
	assert.Contains(t, idle.State.LastError, "NotAllowedError")
	assert.Contains(t, idle.State.LastError, "STT error")
}

func TestInterviewSession_ToggleStopsPlayback(t *testing.T) {
	c := dial(t, testDeps(NewResumeStore(), &stubBackend{}, &stubSTT{}))

	c.send(ClientMessage{Event: EventStart, SessionID: "s-1", Message: "A long first question.", Phase: "in_progress"})
	play := c.next(EventPlay, nil)

	c.send(ClientMessage{Event: EventToggle})
	stop := c.next(EventStopPlayback, nil)
	assert.Equal(t, play.PlaybackID, stop.PlaybackID)
	c.next(EventMicOpen, nil)
}

func TestInterviewSession_NoSession(t *testing.T) {
	c := dial(t, testDeps(NewResumeStore(), &stubBackend{}, &stubSTT{}))

	c.send(ClientMessage{Event: EventStart, ResumeID: "missing"})
	msg := c.next(EventState, inState(orchestrator.StateError))
	assert.True(t, msg.State.Fatal)
	assert.Equal(t, "No interview session found. Please start a new interview.", msg.State.LastError)
}
