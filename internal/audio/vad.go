package audio

// VADConfig holds configuration for Voice Activity Detection
type VADConfig struct {
	EnergyThreshold float64 // RMS energy threshold for speech detection
	SilenceFrames   int     // Number of consecutive silence frames to mark as end of speech
	FrameSize       int     // Number of samples per frame
}

// DefaultVADConfig returns a default VAD configuration for 16kHz capture
func DefaultVADConfig() *VADConfig {
	return &VADConfig{
		EnergyThreshold: 500.0,
		SilenceFrames:   25,  // 500ms of silence (25 frames * 20ms)
		FrameSize:       320, // 20ms at 16kHz
	}
}

// NewVADConfig derives frame size from the sample rate (20ms frames)
func NewVADConfig(threshold float64, sampleRate int) *VADConfig {
	cfg := DefaultVADConfig()
	if threshold > 0 {
		cfg.EnergyThreshold = threshold
	}
	if sampleRate > 0 {
		cfg.FrameSize = sampleRate / 50
	}
	return cfg
}

// VADDetector performs energy-based Voice Activity Detection
type VADDetector struct {
	config         *VADConfig
	silenceCounter int
	isSpeaking     bool
}

// NewVADDetector creates a new VAD detector
func NewVADDetector(config *VADConfig) *VADDetector {
	if config == nil {
		config = DefaultVADConfig()
	}
	return &VADDetector{config: config}
}

// ProcessFrame processes an audio frame and returns whether speech is detected
// Returns: (isSpeaking, speechStarted, speechEnded)
func (v *VADDetector) ProcessFrame(samples []int16) (bool, bool, bool) {
	frameHasSpeech := CalculateRMS(samples) > v.config.EnergyThreshold

	var speechStarted, speechEnded bool

	if frameHasSpeech {
		v.silenceCounter = 0
		if !v.isSpeaking {
			speechStarted = true
			v.isSpeaking = true
		}
	} else {
		v.silenceCounter++
		if v.isSpeaking && v.silenceCounter >= v.config.SilenceFrames {
			speechEnded = true
			v.isSpeaking = false
			v.silenceCounter = 0
		}
	}

	return v.isSpeaking, speechStarted, speechEnded
}

// Reset resets the VAD detector state
func (v *VADDetector) Reset() {
	v.silenceCounter = 0
	v.isSpeaking = false
}

// IsSpeaking returns whether speech is currently detected
func (v *VADDetector) IsSpeaking() bool {
	return v.isSpeaking
}

// Gate passes microphone frames through only while the detector reports
// speech. Frames seen while closed are kept in a pre-roll ring and flushed
// ahead of the frame that opens the gate, so word onsets are not clipped.
// A Gate is not safe for concurrent use.
type Gate struct {
	vad     *VADDetector
	preroll *RingBuffer
}

// NewGate creates a gate with prerollSamples of look-behind
func NewGate(config *VADConfig, prerollSamples int) *Gate {
	return &Gate{
		vad:     NewVADDetector(config),
		preroll: NewRingBuffer(prerollSamples),
	}
}

// Process returns the samples to forward for this frame, or nil while the
// gate is closed.
func (g *Gate) Process(frame []int16) []int16 {
	speaking, started, ended := g.vad.ProcessFrame(frame)

	switch {
	case started:
		out := g.preroll.Drain()
		return append(out, frame...)
	case speaking, ended:
		return frame
	default:
		g.preroll.Write(frame)
		return nil
	}
}

// Open reports whether the gate is currently forwarding audio
func (g *Gate) Open() bool {
	return g.vad.IsSpeaking()
}

// Reset closes the gate and discards the pre-roll
func (g *Gate) Reset() {
	g.vad.Reset()
	g.preroll.Clear()
}
