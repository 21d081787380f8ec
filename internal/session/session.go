// Package session owns the lifecycle of one live conversation: the remote
// streaming channel, the capture pipeline feeding it, and the routing of
// inbound events to turn assembly and playback.
package session

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fluentvoice/platform/internal/audio"
	"github.com/fluentvoice/platform/internal/codec"
	apperr "github.com/fluentvoice/platform/internal/errors"
	"github.com/fluentvoice/platform/internal/live"
	"github.com/fluentvoice/platform/internal/syncx"
	"github.com/fluentvoice/platform/internal/turns"
)

// State is the connection lifecycle. Error and Idle are terminal for a
// session instance; a fresh Session is required to reconnect.
type State int

const (
	Idle State = iota
	Connecting
	Connected
	Errored
)

func (s State) String() string {
	return [...]string{"idle", "connecting", "connected", "error"}[s]
}

const (
	handshakeTimeout = 15 * time.Second
	closeGraceWait   = 2 * time.Second
)

// Capture abstracts the microphone pipeline (see audio.Capturer).
type Capture interface {
	Start(ctx context.Context, onFrame audio.FrameHandler) error
	Stop()
}

// Player abstracts the playback scheduler.
type Player interface {
	Enqueue(buf *codec.Buffer, rate float64) error
	Interrupt()
	Teardown()
}

// Callbacks deliver session events. Nil members are skipped. OnError and
// OnClose are mutually exclusive and fire at most once per session.
type Callbacks struct {
	OnConnect func()
	OnInput   func(text string) // running partial input transcript
	OnOutput  func(text string) // running partial output transcript
	OnTurn    func(turn turns.Turn)
	OnError   func(err error)
	OnClose   func()
}

// Options configures one live connection.
type Options struct {
	APIKey            string
	Endpoint          string
	Model             string
	Voice             string
	SpeechRate        float64
	SystemInstruction string
	InputSampleRate   int
	OutputSampleRate  int
}

// Session is a single live conversation. Not reusable after Close or a
// remote fault.
type Session struct {
	opts      Options
	cb        Callbacks
	capture   Capture
	player    Player
	assembler *turns.Assembler

	state *syncx.RWGuard[State]

	rateMu sync.Mutex
	rate   float64

	writeMu sync.Mutex
	conn    *websocket.Conn

	cancelMu sync.Mutex
	cancel   context.CancelFunc

	done       chan struct{} // closed by cleanup
	readerDone chan struct{} // closed when the read loop exits

	cleanupOnce sync.Once
	notifyOnce  sync.Once
}

// New wires a session from its collaborators. Nothing is dialed until
// Connect.
func New(opts Options, capture Capture, player Player, cb Callbacks) *Session {
	s := &Session{
		opts:       opts,
		cb:         cb,
		capture:    capture,
		player:     player,
		state:      syncx.NewGuard(Idle),
		rate:       opts.SpeechRate,
		done:       make(chan struct{}),
		readerDone: make(chan struct{}),
	}
	if s.rate <= 0 {
		s.rate = 1.0
	}
	s.assembler = turns.NewAssembler(turns.Callbacks{
		OnInput:  cb.OnInput,
		OnOutput: cb.OnOutput,
		OnTurn:   cb.OnTurn,
	})
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State { return s.state.Get() }

// SetSpeechRate adjusts the playback multiplier for buffers scheduled from
// now on; audio already scheduled keeps its original rate.
func (s *Session) SetSpeechRate(rate float64) {
	if rate <= 0 {
		return
	}
	s.rateMu.Lock()
	s.rate = rate
	s.rateMu.Unlock()
}

func (s *Session) speechRate() float64 {
	s.rateMu.Lock()
	defer s.rateMu.Unlock()
	return s.rate
}

// Connect opens the remote channel, performs the setup handshake, starts
// microphone capture, and begins routing inbound events. Blocks until the
// session is live or has failed. Failures are also delivered to OnError.
func (s *Session) Connect(ctx context.Context) error {
	if s.opts.APIKey == "" {
		err := apperr.New(apperr.CodeConfigMissing, "api key not configured")
		s.notifyError(err)
		return err
	}

	if !s.transition(Idle, Connecting) {
		return apperr.Newf(apperr.CodeInternal, "connect from state %s", s.State())
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancelMu.Lock()
	s.cancel = cancel
	s.cancelMu.Unlock()

	conn, err := s.dial(ctx)
	if err != nil {
		return s.fail(classifyRemoteError(err))
	}

	s.writeMu.Lock()
	s.conn = conn
	s.writeMu.Unlock()

	if err := s.writeJSON(s.setupMessage()); err != nil {
		return s.fail(classifyRemoteError(err))
	}

	if err := s.awaitSetupAck(conn); err != nil {
		return s.fail(err)
	}

	// The channel is live; now acquire the microphone. A capture failure
	// here tears the remote channel down with it.
	if err := s.capture.Start(ctx, s.sendFrame); err != nil {
		return s.fail(err)
	}

	if !s.transition(Connecting, Connected) {
		// Closed while connecting: resources go, OnConnect never fires.
		s.cleanup()
		return apperr.New(apperr.CodeCancelled, "session closed during connect")
	}

	slog.Info("live session connected", "model", s.opts.Model, "voice", s.opts.Voice)
	if s.cb.OnConnect != nil {
		s.cb.OnConnect()
	}

	go s.readLoop(conn)
	go s.watchContext(ctx)
	return nil
}

// watchContext treats cancellation of the caller's context as a local
// close, so the capture pipeline is never orphaned by a cancelled caller.
func (s *Session) watchContext(ctx context.Context) {
	select {
	case <-ctx.Done():
		s.Close()
	case <-s.done:
	}
}

func (s *Session) dial(ctx context.Context) (*websocket.Conn, error) {
	endpoint := s.opts.Endpoint + "?key=" + url.QueryEscape(s.opts.APIKey)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	return conn, err
}

func (s *Session) setupMessage() live.ClientMessage {
	return live.ClientMessage{
		Setup: &live.Setup{
			Model: s.opts.Model,
			GenerationConfig: &live.GenerationConfig{
				ResponseModalities: []string{"AUDIO"},
				SpeechConfig: &live.SpeechConfig{
					VoiceConfig: &live.VoiceConfig{
						PrebuiltVoiceConfig: &live.PrebuiltVoiceConfig{VoiceName: s.opts.Voice},
					},
				},
			},
			SystemInstruction:        &live.Content{Parts: []live.Part{{Text: s.opts.SystemInstruction}}},
			InputAudioTranscription:  &struct{}{},
			OutputAudioTranscription: &struct{}{},
		},
	}
}

func (s *Session) awaitSetupAck(conn *websocket.Conn) error {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	var msg live.ServerMessage
	if err := conn.ReadJSON(&msg); err != nil {
		return classifyRemoteError(err)
	}
	if msg.SetupComplete == nil {
		return apperr.New(apperr.CodeInternal, "unexpected reply to setup handshake")
	}
	return nil
}

// sendFrame transmits one captured frame. Called from the capture
// goroutine in strict capture order.
func (s *Session) sendFrame(frame audio.Frame) {
	msg := live.ClientMessage{
		RealtimeInput: &live.RealtimeInput{
			MediaChunks: []live.Blob{{
				MIMEType: live.InputMIME(s.opts.InputSampleRate),
				Data:     codec.EncodeFrame(frame.Data),
			}},
		},
	}
	if err := s.writeJSON(msg); err != nil {
		// The read loop observes the broken channel and reports it.
		slog.Debug("frame send failed", "error", err)
	}
}

func (s *Session) writeJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.conn == nil {
		return apperr.New(apperr.CodeNetwork, "channel not open")
	}
	return s.conn.WriteJSON(v)
}

func (s *Session) readLoop(conn *websocket.Conn) {
	defer close(s.readerDone)
	for {
		var msg live.ServerMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if s.State() == Idle {
				// Local close already handled teardown and notification.
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.remoteClose()
				return
			}
			_ = s.fail(classifyRemoteError(err))
			return
		}
		s.handleMessage(&msg)
	}
}

// handleMessage routes one inbound message. Fragment routing happens
// before the turn boundary so a boundary in the same message sees all of
// its fragments.
func (s *Session) handleMessage(msg *live.ServerMessage) {
	if msg.GoAway != nil {
		slog.Warn("remote signalled connection end", "time_left", msg.GoAway.TimeLeft)
		return
	}

	sc := msg.ServerContent
	if sc == nil {
		return
	}

	if sc.InputTranscription != nil {
		s.assembler.AddInput(sc.InputTranscription.Text)
	}
	if sc.OutputTranscription != nil {
		s.assembler.AddOutput(sc.OutputTranscription.Text)
	}
	if sc.TurnComplete {
		s.assembler.CompleteTurn()
	}

	if payload, ok := sc.InlineAudio(); ok {
		s.playFragment(payload)
	}

	if sc.Interrupted {
		s.player.Interrupt()
	}
}

// playFragment decodes and schedules one audio fragment. A bad fragment is
// dropped; the stream continues.
func (s *Session) playFragment(payload string) {
	raw, err := codec.DecodeBase64(payload)
	if err != nil {
		slog.Warn("dropping undecodable audio fragment", "error", err)
		return
	}
	buf, err := codec.DecodeToBuffer(raw, s.opts.OutputSampleRate, 1)
	if err != nil {
		slog.Warn("dropping malformed audio fragment", "error", err)
		return
	}
	if err := s.player.Enqueue(buf, s.speechRate()); err != nil {
		slog.Warn("failed to schedule audio fragment", "error", err)
	}
}

// Close terminates the session from the caller's side. Idempotent; a
// no-op when the session never left Idle or already failed.
func (s *Session) Close() {
	wasConnected := s.transition(Connected, Idle)
	if !wasConnected && !s.transition(Connecting, Idle) {
		return
	}

	s.writeMu.Lock()
	if s.conn != nil {
		deadline := time.Now().Add(closeGraceWait)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	}
	s.writeMu.Unlock()

	// Wait for the close acknowledgment, but only within a bounded grace
	// period; the read loop exits when the peer's close frame arrives.
	if wasConnected {
		select {
		case <-s.readerDone:
		case <-time.After(closeGraceWait):
		}
	}

	s.cleanup()
	s.notifyClosed()
}

// remoteClose handles a clean close initiated by the remote endpoint.
func (s *Session) remoteClose() {
	if !s.transition(Connected, Idle) && !s.transition(Connecting, Idle) {
		return
	}
	s.cleanup()
	s.notifyClosed()
}

// fail escalates a channel/device fault: Error state, cleanup, one error
// callback. Returns err for the caller's convenience.
func (s *Session) fail(err error) error {
	if !s.transition(Connecting, Errored) && !s.transition(Connected, Errored) {
		// Already closed or failed; nothing to report.
		s.cleanup()
		return err
	}
	slog.Error("live session fault", "error", err)
	s.cleanup()
	s.notifyError(err)
	return err
}

// cleanup releases microphone, playback, and network resources. Invoked
// from every exit path; runs once.
func (s *Session) cleanup() {
	s.cleanupOnce.Do(func() {
		close(s.done)
		s.capture.Stop()
		s.player.Teardown()

		s.cancelMu.Lock()
		if s.cancel != nil {
			s.cancel()
		}
		s.cancelMu.Unlock()

		s.writeMu.Lock()
		if s.conn != nil {
			_ = s.conn.Close()
			s.conn = nil
		}
		s.writeMu.Unlock()
	})
}

func (s *Session) notifyError(err error) {
	s.notifyOnce.Do(func() {
		if s.cb.OnError != nil {
			s.cb.OnError(err)
		}
	})
}

func (s *Session) notifyClosed() {
	s.notifyOnce.Do(func() {
		if s.cb.OnClose != nil {
			s.cb.OnClose()
		}
	})
}

func (s *Session) transition(from, to State) bool {
	return s.state.CompareAndSwap(from, to, func(a, b State) bool { return a == b })
}

// classifyRemoteError maps channel faults onto the session error taxonomy.
func classifyRemoteError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperr.AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "api key not valid"),
		strings.Contains(msg, "invalid api key"),
		strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "401"),
		strings.Contains(msg, "403"):
		return apperr.Wrap(err, apperr.CodeInvalidCredential, "credential rejected by remote endpoint")
	case strings.Contains(msg, "resource has been exhausted"),
		strings.Contains(msg, "quota"),
		strings.Contains(msg, "429"):
		return apperr.Wrap(err, apperr.CodeQuotaExceeded, "remote quota exhausted")
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) ||
		strings.Contains(msg, "connection") ||
		strings.Contains(msg, "network") ||
		strings.Contains(msg, "dial") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "eof") {
		return apperr.Wrap(err, apperr.CodeNetwork, "streaming channel failure")
	}

	return apperr.Wrap(err, apperr.CodeInternal, "unexpected remote fault")
}
