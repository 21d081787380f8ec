// Package server provides the HTTP and WebSocket gateway for UI clients
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/fluentvoice/platform/internal/coach"
	"github.com/fluentvoice/platform/internal/config"
	"github.com/fluentvoice/platform/internal/trace"
)

// Command types.
type Command struct {
	Type string `json:"type"`
}

type StartCommand struct {
	Type       string  `json:"type"`
	Mode       string  `json:"mode"`
	Scenario   string  `json:"scenario,omitempty"`
	Voice      string  `json:"voice,omitempty"`
	SpeechRate float64 `json:"speech_rate,omitempty"`
}

type SayCommand struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type SpeechRateCommand struct {
	Type string  `json:"type"`
	Rate float64 `json:"rate"`
}

type RateLimitedMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// rateLimiter tracks command timestamps using a sliding window.
type rateLimiter struct {
	timestamps []time.Time
	mu         sync.Mutex
}

// allow checks if a command is allowed and records the timestamp if so.
func (r *rateLimiter) allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-RateLimitWindow)

	// Prune old timestamps
	valid := r.timestamps[:0]
	for _, t := range r.timestamps {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	r.timestamps = valid

	if len(r.timestamps) >= RateLimitMessages {
		return false
	}

	r.timestamps = append(r.timestamps, now)
	return true
}

// coachService is the manager surface the gateway drives.
type coachService interface {
	Start(ctx context.Context, opts coach.StartOptions)
	Stop()
	Say(ctx context.Context, text string)
	SetSpeechRate(rate float64)
	Events() <-chan coach.Event
	History() []coach.Event
}

// Server handles HTTP and WebSocket connections.
type Server struct {
	coach      coachService
	mu         sync.RWMutex
	conns      map[*websocket.Conn]struct{}
	rateLimits map[*websocket.Conn]*rateLimiter
}

// New creates a new server and starts the event broadcaster.
func New(c coachService, _ *config.Config) *Server {
	s := &Server{
		coach:      c,
		conns:      make(map[*websocket.Conn]struct{}),
		rateLimits: make(map[*websocket.Conn]*rateLimiter),
	}

	go s.broadcastEvents()

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// WebSocket endpoint
	mux.HandleFunc("/ws", s.handleWebSocket)

	// REST API
	mux.HandleFunc("GET /api/voices", s.handleVoices)
	mux.HandleFunc("GET /api/starters", s.handleStarters)
	mux.HandleFunc("GET /api/history", s.handleHistory)

	// Apply middleware: trace -> CORS
	return corsMiddleware(trace.Middleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.rateLimits[conn] = &rateLimiter{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		delete(s.rateLimits, conn)
		s.mu.Unlock()
	}()

	baseCtx := r.Context()
	log := trace.Logger(baseCtx)
	log.Info("websocket connected", "remote", r.RemoteAddr)

	for {
		var raw json.RawMessage
		if err := wsjson.Read(baseCtx, conn, &raw); err != nil {
			log.Debug("websocket read error", "error", err)
			return
		}

		s.mu.RLock()
		rl := s.rateLimits[conn]
		s.mu.RUnlock()

		if !rl.allow() {
			log.Warn("rate limit exceeded", "remote", r.RemoteAddr)
			_ = wsjson.Write(baseCtx, conn, RateLimitedMessage{
				Type:    "error",
				Message: "rate limit exceeded",
			})
			continue
		}

		s.handleCommand(baseCtx, raw)
	}
}

func (s *Server) handleCommand(ctx context.Context, raw json.RawMessage) {
	var base Command
	if err := json.Unmarshal(raw, &base); err != nil {
		return
	}

	ctx, span := trace.StartSpan(ctx, "handle_command")
	defer span.End()
	span.SetAttr("command", base.Type)

	log := trace.Logger(ctx)

	switch base.Type {
	case "start":
		var cmd StartCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			return
		}
		log.Info("starting practice session", "mode", cmd.Mode, "voice", cmd.Voice)
		s.coach.Start(ctx, coach.StartOptions{
			Mode:       coach.Mode(cmd.Mode),
			Scenario:   cmd.Scenario,
			Voice:      cmd.Voice,
			SpeechRate: cmd.SpeechRate,
		})

	case "stop":
		log.Info("stopping practice session")
		s.coach.Stop()

	case "say":
		var cmd SayCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			return
		}
		if cmd.Text == "" || len(cmd.Text) > SayTextLimit {
			return
		}
		s.coach.Say(ctx, cmd.Text)

	case "speech_rate":
		var cmd SpeechRateCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			return
		}
		s.coach.SetSpeechRate(cmd.Rate)
	}
}

// broadcastEvents fans every coach event out to all connected clients.
func (s *Server) broadcastEvents() {
	for evt := range s.coach.Events() {
		s.mu.RLock()
		for conn := range s.conns {
			go func(c *websocket.Conn, e coach.Event) {
				_ = wsjson.Write(context.Background(), c, e)
			}(conn, evt)
		}
		s.mu.RUnlock()
	}
}

func (s *Server) handleVoices(w http.ResponseWriter, r *http.Request) {
	_ = json.NewEncoder(w).Encode(map[string]any{"voices": coach.Voices})
}

func (s *Server) handleStarters(w http.ResponseWriter, r *http.Request) {
	_ = json.NewEncoder(w).Encode(map[string]any{"starters": coach.PracticeStarters})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	messages := s.coach.History()
	if messages == nil {
		messages = []coach.Event{}
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"messages": messages})
}
