// Package coach coordinates the language practice services: the live
// session, one-shot speech generation, and the event stream consumed by
// the UI gateway.
package coach

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/fluentvoice/platform/internal/audio"
	"github.com/fluentvoice/platform/internal/config"
	apperr "github.com/fluentvoice/platform/internal/errors"
	"github.com/fluentvoice/platform/internal/gemini"
	"github.com/fluentvoice/platform/internal/playback"
	"github.com/fluentvoice/platform/internal/session"
	"github.com/fluentvoice/platform/internal/trace"
	"github.com/fluentvoice/platform/internal/turns"
)

// Mode selects the tutoring persona for a practice session.
type Mode string

const (
	FreeTalk      Mode = "free_talk"
	Practice      Mode = "practice"
	Pronunciation Mode = "pronunciation"
)

const freeTalkInstruction = `You are a friendly and patient English language tutor. Your role is to engage in natural, spoken conversation with a user who is practicing their English. Always respond conversationally first. If you notice a grammatical error or a significant mispronunciation in the user's last turn, after your conversational response, add a special correction block on a new line starting with "---CORRECTION---". This block must be a valid JSON object with four keys: "type" (a string, either "grammar" or "pronunciation"), "original" (the user's phrase with the error), "corrected" (the corrected phrase), and "explanation" (a brief, simple explanation of the correction). Do not include the marker or JSON if there are no errors.`

const practiceInstruction = `You are an English tutor in a practice session. Your goal is to guide the user through a common conversational scenario. If the user suggests a scenario, engage with them on that topic. If they don't, you should propose one (e.g., ordering food, booking a hotel, a job interview) and then guide them through it step-by-step. Keep your responses focused on the scenario. Just like in free talk, if you notice a grammatical error or a significant mispronunciation, provide a correction after your conversational response using the "---CORRECTION---" marker followed by the JSON object.`

const pronunciationInstruction = `You are an English pronunciation coach in a spoken practice session. Give the user short sentences or tongue twisters to say, listen carefully, and respond with encouragement. Whenever you notice a significant mispronunciation, after your conversational response add a correction block on a new line starting with "---CORRECTION---" containing a valid JSON object with keys "type" (use "pronunciation"), "original", "corrected", and "explanation". Do not include the marker or JSON if the user said it well.`

// Scenario starters offered for practice mode.
var PracticeStarters = []string{
	"Let's practice ordering food at a restaurant.",
	"How about we try booking a hotel room?",
	"Can we do a mock job interview?",
	"I'd like to practice asking for directions.",
	"Let's talk about our daily routines.",
	"Let's discuss plans for a trip.",
	"How about making a doctor's appointment?",
	"Can we practice shopping for clothes?",
}

// Voices accepted for synthesis.
var Voices = []string{"Kore", "Puck", "Charon", "Fenrir", "Zephyr"}

// EventType discriminates events on the coach stream.
type EventType string

const (
	EventState   EventType = "state"
	EventInput   EventType = "input"   // partial user transcript
	EventOutput  EventType = "output"  // partial tutor transcript
	EventMessage EventType = "message" // completed turn message
	EventOpening EventType = "opening" // generated opening line
	EventAudio   EventType = "audio"   // one-shot synthesized speech
	EventError   EventType = "error"
)

// Event is one item on the coach stream, shaped for the UI gateway.
type Event struct {
	Type       EventType         `json:"type"`
	ID         string            `json:"id,omitempty"`
	State      string            `json:"state,omitempty"`
	Speaker    string            `json:"speaker,omitempty"` // "user" or "ai"
	Text       string            `json:"text,omitempty"`
	Correction *turns.Correction `json:"correction,omitempty"`
	Audio      string            `json:"audio,omitempty"` // base64 PCM, output rate
	Error      string            `json:"error,omitempty"`
	Code       string            `json:"code,omitempty"`
}

// StartOptions configures one practice session.
type StartOptions struct {
	Mode       Mode
	Scenario   string // optional practice starter
	Voice      string
	SpeechRate float64
}

// speechService is the one-shot generation surface the manager needs.
type speechService interface {
	GenerateOpening(ctx context.Context, scenario string) string
	SynthesizeSpeech(ctx context.Context, text, voice string) []byte
}

// liveSession is the slice of session.Session the manager drives.
type liveSession interface {
	Connect(ctx context.Context) error
	Close()
	SetSpeechRate(rate float64)
}

type sessionFactory func(opts session.Options, cb session.Callbacks) (liveSession, error)

// Manager owns at most one live session. Starting a new session closes the
// previous one first.
type Manager struct {
	cfg        *config.Config
	speech     speechService
	newSession sessionFactory

	events  chan Event
	history *History

	mu      sync.Mutex
	current liveSession
	voice   string
}

const historyMaxMessages = 200

// New creates a manager using real audio devices and the generative
// backend.
func New(ctx context.Context, cfg *config.Config) (*Manager, error) {
	gen, err := gemini.New(ctx, cfg.APIKey, cfg.TTSModel, cfg.TextModel)
	if err != nil {
		return nil, err
	}
	return newManager(cfg, gen, deviceSessionFactory(cfg)), nil
}

func newManager(cfg *config.Config, speech speechService, factory sessionFactory) *Manager {
	return &Manager{
		cfg:        cfg,
		speech:     speech,
		newSession: factory,
		events:     make(chan Event, 64),
		history:    NewHistory(historyMaxMessages),
		voice:      cfg.DefaultVoice,
	}
}

// deviceCapture releases the audio host with the device when the session
// stops, balancing the Initialize in NewCapturer.
type deviceCapture struct {
	*audio.Capturer
}

func (d deviceCapture) Stop() { d.Terminate() }

// deviceSessionFactory builds sessions over the real microphone and
// speaker.
func deviceSessionFactory(cfg *config.Config) sessionFactory {
	return func(opts session.Options, cb session.Callbacks) (liveSession, error) {
		capture, err := audio.NewCapturer(cfg.InputSampleRate, cfg.FrameSize)
		if err != nil {
			return nil, err
		}
		sink, err := playback.NewDeviceSink(cfg.OutputSampleRate, 1)
		if err != nil {
			capture.Terminate()
			return nil, err
		}
		return session.New(opts, deviceCapture{capture}, playback.NewScheduler(sink), cb), nil
	}
}

// Events returns the stream consumed by the gateway. Events are dropped,
// not blocked on, when the consumer falls behind.
func (m *Manager) Events() <-chan Event { return m.events }

// History returns the completed messages of the current session.
func (m *Manager) History() []Event { return m.history.All() }

// Start opens a new practice session, closing any session already running.
// Connection progress and failures arrive on the event stream.
func (m *Manager) Start(ctx context.Context, opts StartOptions) {
	log := trace.Logger(ctx)

	m.Stop()

	voice := opts.Voice
	if !validVoice(voice) {
		voice = m.cfg.DefaultVoice
	}
	rate := config.ClampSpeechRate(opts.SpeechRate)

	m.mu.Lock()
	m.voice = voice
	m.mu.Unlock()

	m.history.Reset()
	m.emit(Event{Type: EventState, State: session.Connecting.String()})

	// The session outlives the command that started it. Detach from the
	// caller's cancellation but keep its values for tracing.
	sessCtx := context.WithoutCancel(ctx)

	sess, err := m.newSession(session.Options{
		APIKey:            m.cfg.APIKey,
		Endpoint:          m.cfg.LiveEndpoint,
		Model:             m.cfg.LiveModel,
		Voice:             voice,
		SpeechRate:        rate,
		SystemInstruction: buildInstruction(opts.Mode, opts.Scenario),
		InputSampleRate:   m.cfg.InputSampleRate,
		OutputSampleRate:  m.cfg.OutputSampleRate,
	}, m.sessionCallbacks(sessCtx, voice))
	if err != nil {
		log.Error("session setup failed", "error", err)
		m.emitError(err)
		return
	}

	m.mu.Lock()
	m.current = sess
	m.mu.Unlock()

	if opts.Mode == Pronunciation {
		go m.announceOpening(sessCtx, gemini.PronunciationScenario, voice)
	}

	go func() {
		if err := sess.Connect(sessCtx); err != nil {
			log.Error("session connect failed", "error", err)
		}
	}()
}

// Stop closes the running session, if any. Safe to call when idle.
func (m *Manager) Stop() {
	m.mu.Lock()
	sess := m.current
	m.current = nil
	m.mu.Unlock()

	if sess != nil {
		sess.Close()
	}
}

// SetSpeechRate updates the playback rate of the running session.
func (m *Manager) SetSpeechRate(rate float64) {
	rate = config.ClampSpeechRate(rate)
	m.mu.Lock()
	sess := m.current
	m.mu.Unlock()
	if sess != nil {
		sess.SetSpeechRate(rate)
	}
}

// Say synthesizes text with the session voice and emits it as an audio
// event. Best effort.
func (m *Manager) Say(ctx context.Context, text string) {
	m.mu.Lock()
	voice := m.voice
	m.mu.Unlock()

	pcm := m.speech.SynthesizeSpeech(ctx, text, voice)
	if pcm == nil {
		return
	}
	m.emit(Event{
		Type:  EventAudio,
		Text:  text,
		Audio: base64.StdEncoding.EncodeToString(pcm),
	})
}

// announceOpening generates and voices the opening line for a scenario.
func (m *Manager) announceOpening(ctx context.Context, scenario, voice string) {
	line := m.speech.GenerateOpening(ctx, scenario)
	evt := Event{Type: EventOpening, ID: uuid.NewString(), Text: line}
	if pcm := m.speech.SynthesizeSpeech(ctx, line, voice); pcm != nil {
		evt.Audio = base64.StdEncoding.EncodeToString(pcm)
	}
	m.emit(evt)
}

func (m *Manager) sessionCallbacks(ctx context.Context, voice string) session.Callbacks {
	return session.Callbacks{
		OnConnect: func() {
			m.emit(Event{Type: EventState, State: session.Connected.String()})
		},
		OnInput: func(text string) {
			m.emit(Event{Type: EventInput, Text: text})
		},
		OnOutput: func(text string) {
			m.emit(Event{Type: EventOutput, Text: text})
		},
		OnTurn: func(turn turns.Turn) {
			m.emitTurn(ctx, turn, voice)
		},
		OnError: func(err error) {
			m.emitError(err)
		},
		OnClose: func() {
			m.emit(Event{Type: EventState, State: session.Idle.String()})
		},
	}
}

// emitTurn publishes the user and tutor messages of a completed turn. A
// correction on the user side gets a spoken rendition of the corrected
// phrase attached.
func (m *Manager) emitTurn(ctx context.Context, turn turns.Turn, voice string) {
	if turn.Input != "" || turn.Correction != nil {
		evt := Event{
			Type:       EventMessage,
			ID:         uuid.NewString(),
			Speaker:    "user",
			Text:       turn.Input,
			Correction: turn.Correction,
		}
		if turn.Correction != nil {
			if pcm := m.speech.SynthesizeSpeech(ctx, turn.Correction.Corrected, voice); pcm != nil {
				evt.Audio = base64.StdEncoding.EncodeToString(pcm)
			}
		}
		m.emit(evt)
	}
	if turn.Output != "" {
		m.emit(Event{
			Type:    EventMessage,
			ID:      uuid.NewString(),
			Speaker: "ai",
			Text:    turn.Output,
		})
	}
}

func (m *Manager) emitError(err error) {
	m.emit(Event{
		Type:  EventError,
		Error: apperr.UserMessage(err),
		Code:  apperr.CodeOf(err).String(),
	})
	m.emit(Event{Type: EventState, State: session.Errored.String()})
}

// emit publishes one event without blocking. The channel is buffered; a
// stalled consumer loses events rather than stalling the session.
// Completed messages are also recorded in the session history.
func (m *Manager) emit(evt Event) {
	if evt.Type == EventMessage || evt.Type == EventOpening {
		m.history.Add(evt)
	}
	select {
	case m.events <- evt:
	default:
		slog.Warn("dropping coach event, consumer not keeping up", "type", evt.Type)
	}
}

func buildInstruction(mode Mode, scenario string) string {
	switch mode {
	case Practice:
		if scenario != "" {
			return fmt.Sprintf("%s The user wants to start with the following scenario: %q. Greet them and begin the scenario immediately.", practiceInstruction, scenario)
		}
		return practiceInstruction
	case Pronunciation:
		return pronunciationInstruction
	default:
		return freeTalkInstruction
	}
}

func validVoice(voice string) bool {
	for _, v := range Voices {
		if v == voice {
			return true
		}
	}
	return false
}
