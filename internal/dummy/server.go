// Package dummy is a stand-in device backend: a provisioning endpoint that
// hands out its own WebSocket URL and a WebSocket endpoint that answers hello
// and streams frames.
package dummy

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	ProvisionPath = "/xiaozhi/ota/"
	WSPath        = "/xiaozhi/v1/"
)

// Reply controls how the server answers the first client frame.
type Reply int

const (
	ReplyHello    Reply = iota // a proper hello
	ReplyMismatch              // an error frame instead of hello
	ReplyNone                  // nothing at all
)

type ServerConfig struct {
	Port     int
	Interval time.Duration // between streamed frames; jittered up to +50%
	Frames   int           // per session; 0 streams until the client leaves
	Reply    Reply
	Abort    bool // drop the TCP connection after Frames instead of closing cleanly
}

func DefaultConfig() ServerConfig {
	return ServerConfig{Port: 8002, Interval: 200 * time.Millisecond}
}

type Server struct {
	cfg      ServerConfig
	upgrader websocket.Upgrader

	sessions atomic.Int64
	active   atomic.Int64

	mu       sync.Mutex
	received []string
}

func New(cfg ServerConfig) *Server {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	return &Server{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// 1. Provisioning: any POST gets the WebSocket URL on this same host.
	mux.HandleFunc(ProvisionPath, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if r.Header.Get("Device-Id") == "" {
			http.Error(w, "missing Device-Id", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"server_time": map[string]any{"timestamp": time.Now().UnixMilli()},
			"firmware":    map[string]any{"version": "1.0.0", "url": ""},
			"websocket":   map[string]any{"url": "ws://" + r.Host + WSPath},
		})
	})

	// 2. Device channel.
	mux.HandleFunc(WSPath, s.serveWS)

	return mux
}

// Sessions is the number of WebSocket connections accepted so far.
func (s *Server) Sessions() int64 { return s.sessions.Load() }

// Active is the number of WebSocket connections currently open.
func (s *Server) Active() int64 { return s.active.Load() }

// Received returns every text frame clients have sent, in arrival order.
func (s *Server) Received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.received...)
}

func (s *Server) record(msg []byte) {
	s.mu.Lock()
	s.received = append(s.received, string(msg))
	s.mu.Unlock()
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	s.sessions.Add(1)
	s.active.Add(1)
	defer s.active.Add(-1)

	_, first, err := conn.ReadMessage()
	if err != nil {
		return
	}
	s.record(first)

	// Everything after the first frame is read here so close frames are seen.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			s.record(msg)
		}
	}()

	switch s.cfg.Reply {
	case ReplyNone:
		<-gone
		return
	case ReplyMismatch:
		conn.WriteJSON(map[string]string{"type": "error", "message": "unsupported client"})
		<-gone
		return
	}

	sessionID := uuid.NewString()
	if err := conn.WriteJSON(map[string]any{
		"type":         "hello",
		"transport":    "websocket",
		"session_id":   sessionID,
		"audio_params": map[string]any{"format": "opus", "sample_rate": 24000, "channels": 1, "frame_duration": 60},
	}); err != nil {
		return
	}

	for sent := 0; s.cfg.Frames == 0 || sent < s.cfg.Frames; sent++ {
		jitter := time.Duration(rand.Int63n(int64(s.cfg.Interval)/2 + 1))
		select {
		case <-gone:
			return
		case <-time.After(s.cfg.Interval + jitter):
		}
		err := conn.WriteJSON(map[string]any{
			"type":       "tts",
			"state":      "sentence_start",
			"session_id": sessionID,
			"text":       fmt.Sprintf("frame %d", sent+1),
		})
		if err != nil {
			return
		}
	}

	if s.cfg.Abort {
		conn.UnderlyingConn().Close()
		return
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done")
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	select {
	case <-gone:
	case <-time.After(time.Second):
	}
}

// Start serves on cfg.Port in the background.
func Start(cfg ServerConfig) (*Server, *http.Server) {
	s := New(cfg)
	addr := fmt.Sprintf(":%d", cfg.Port)
	fmt.Printf("👻 Dummy device server running on http://localhost%s\n", addr)
	fmt.Printf("   Endpoints: POST %s, WS %s\n", ProvisionPath, WSPath)

	server := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("Server failed: %v\n", err)
		}
	}()
	return s, server
}
