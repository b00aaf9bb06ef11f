//go:build portaudio

// Command interview runs a voice interview against the local microphone and
// speakers. Build with -tags portaudio.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lexiqai/interview-voice/internal/backend"
	"github.com/lexiqai/interview-voice/internal/config"
	"github.com/lexiqai/interview-voice/internal/device"
	"github.com/lexiqai/interview-voice/internal/observability"
	"github.com/lexiqai/interview-voice/internal/orchestrator"
	"github.com/lexiqai/interview-voice/internal/resilience"
	"github.com/lexiqai/interview-voice/internal/stt"
	"github.com/lexiqai/interview-voice/internal/tts"
)

var (
	resumePath string
	sessionID  string
	playerCmd  string
)

func main() {
	root := &cobra.Command{
		Use:   "interview",
		Short: "Run a spoken interview from the terminal",
		Long: `Starts an interview session from a resume (or joins an existing session)
and runs it over the default microphone and speakers.

Press Enter to interrupt the interviewer or to finish your answer early.
Press Ctrl-C to leave.`,
		SilenceUsage: true,
		RunE:         run,
	}
	root.Flags().StringVar(&resumePath, "resume", "", "resume file to start a new interview with")
	root.Flags().StringVar(&sessionID, "session", "", "existing session ID to continue")
	root.Flags().StringVar(&playerCmd, "player", "", "play audio through this command instead of PortAudio (e.g. \"aplay -q -\")")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	if (resumePath == "") == (sessionID == "") {
		return fmt.Errorf("exactly one of --resume or --session is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	params := orchestrator.StartParams{SessionID: sessionID}
	if resumePath != "" {
		resume, err := readResume(resumePath)
		if err != nil {
			return err
		}
		params.Resume = resume
	}

	sttClient, err := stt.NewClient(cfg, logger)
	if err != nil {
		return err
	}
	ttsClient, err := tts.NewClient(cfg, logger)
	if err != nil {
		return err
	}

	pa, err := device.InitPortAudio(cfg, logger)
	if err != nil {
		return err
	}
	defer pa.Close()

	speaker := pa.Speaker()
	if playerCmd != "" {
		if speaker, err = device.NewCommandSpeaker(playerCmd, logger); err != nil {
			return err
		}
	}

	metrics := observability.NewSessionMetrics(observability.NewCorrelationID())
	retry := resilience.NewRetryConfig(cfg.RetryMaxAttempts, cfg.RetryInitialBackoff)
	synth := tts.NewSynthesizer(ttsClient, speaker, tts.SynthesizerOptions{
		MaxChunkChars: cfg.TTSMaxChunkChars,
		Concurrency:   cfg.TTSConcurrency,
		Retry:         retry,
		Logger:        logger,
		Metrics:       metrics,
	})
	capture := stt.NewCapture(sttClient, pa.Microphone(), stt.CaptureOptions{
		InitialSpeechTimeout: cfg.InitialSpeechTimeout(),
		SilenceTimeout:       cfg.SilenceTimeout(),
		STTSampleRate:        cfg.STTSampleRate,
		Retry:                retry,
		Logger:               logger,
		Metrics:              metrics,
	})

	out := cmd.OutOrStdout()
	printer := &transcriptPrinter{}
	orch := orchestrator.New(synth, capture, backend.NewClient(cfg, logger), orchestrator.Options{
		Logger:   logger,
		Metrics:  metrics,
		OnChange: func(snap orchestrator.Snapshot) { printer.print(out, snap) },
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch.Start(ctx, params)

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			orch.Toggle()
		}
	}()

	select {
	case <-orch.Done():
	case <-ctx.Done():
		orch.Leave()
	}

	final := orch.Snapshot()
	switch {
	case final.LastError != "" && final.Fatal:
		return errors.New(final.LastError)
	case final.State == orchestrator.StateReporting:
		fmt.Fprintln(out, "Interview complete. Your report is being prepared.")
	}
	return nil
}

func readResume(path string) (*backend.Resume, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read resume: %w", err)
	}
	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &backend.Resume{
		Filename:    filepath.Base(path),
		ContentType: contentType,
		Data:        data,
	}, nil
}

// transcriptPrinter writes each new turn and state once. OnChange runs on
// the orchestrator's event loop, one call at a time.
type transcriptPrinter struct {
	turns int
	label string
	err   string
}

func (p *transcriptPrinter) print(out io.Writer, snap orchestrator.Snapshot) {
	for _, turn := range snap.Turns[min(p.turns, len(snap.Turns)):] {
		who := "Interviewer"
		if turn.Speaker == orchestrator.SpeakerUser {
			who = "You"
		}
		fmt.Fprintf(out, "%s: %s\n", who, turn.Text)
	}
	p.turns = len(snap.Turns)

	if snap.LastError != "" && snap.LastError != p.err {
		fmt.Fprintf(out, "! %s\n", snap.LastError)
	}
	p.err = snap.LastError

	if label := snap.Control().Label; label != p.label {
		fmt.Fprintf(out, "[%s]\n", label)
		p.label = label
	}
}
