// Package wsbroadcast mirrors pipeline updates to websocket clients, so a
// browser or second terminal can follow a run live.
package wsbroadcast

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/harunnryd/voxrelay/pkg/audio"
	"github.com/harunnryd/voxrelay/pkg/pipeline"
)

// Message types sent to clients.
const (
	TypeHello      = "hello"
	TypeReset      = "reset"
	TypeStatus     = "status"
	TypeTranscript = "transcript"
	TypeReply      = "reply"
	TypeWarning    = "warning"
	TypeAudio      = "audio"
)

// Message is the JSON envelope written to every client.
type Message struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	Status   string    `json:"status,omitempty"`
	AudioB64 string    `json:"audio_b64,omitempty"`
	MIME     string    `json:"mime,omitempty"`
	ClientID string    `json:"client_id,omitempty"`
	Time     time.Time `json:"time"`
}

type Config struct {
	Addr           string
	Path           string
	AllowedOrigins []string
	// SendBuffer is the per-client queue length; a client whose queue is
	// full is disconnected.
	SendBuffer int
	Logger     *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = "127.0.0.1:8765"
	}
	if c.Path == "" {
		c.Path = "/ws"
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Hub is a pipeline.Sink that broadcasts every update.
type Hub struct {
	cfg      Config
	log      *slog.Logger
	upgrader websocket.Upgrader
	server   *http.Server
	draining atomic.Bool

	mu      sync.Mutex
	clients map[string]*client
}

func New(cfg Config) *Hub {
	cfg = cfg.withDefaults()
	h := &Hub{
		cfg: cfg,
		log: cfg.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		clients: make(map[string]*client),
	}
	h.upgrader.CheckOrigin = h.checkOrigin
	return h
}

// Handler serves the websocket endpoint and /health.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(h.cfg.Path, h)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// Start listens on cfg.Addr until ctx ends or Stop is called.
func (h *Hub) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	h.server = &http.Server{
		Addr:              h.cfg.Addr,
		ReadHeaderTimeout: 5 * time.Second,
		Handler:           h.Handler(),
	}
	go func() {
		<-ctx.Done()
		_ = h.server.Close()
	}()
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.log.Error("ui_hub_server_error", "error", err.Error())
		}
	}()
	h.log.Info("ui_hub_listening", "addr", h.cfg.Addr, "path", h.cfg.Path)
	return nil
}

// Stop refuses new clients and disconnects the current ones.
func (h *Hub) Stop() error {
	h.draining.Store(true)
	if h.server != nil {
		_ = h.server.Close()
	}
	h.mu.Lock()
	for id, c := range h.clients {
		c.close()
		delete(h.clients, id)
	}
	h.mu.Unlock()
	return nil
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.draining.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{
		id:     uuid.NewString(),
		conn:   conn,
		sendCh: make(chan []byte, h.cfg.SendBuffer),
	}
	hello, _ := json.Marshal(Message{Type: TypeHello, ClientID: c.id, Time: time.Now().UTC()})
	h.mu.Lock()
	c.enqueue(hello)
	h.clients[c.id] = c
	h.mu.Unlock()
	go c.loop()
	h.log.Info("ui_client_connected", "client_id", c.id, "remote", r.RemoteAddr)

	// Clients only listen; reading keeps control frames flowing and
	// notices the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.detach(c.id)
	h.log.Info("ui_client_disconnected", "client_id", c.id)
}

func (h *Hub) Reset() { h.broadcast(Message{Type: TypeReset}) }

func (h *Hub) Status(s pipeline.Status) {
	h.broadcast(Message{Type: TypeStatus, Status: string(s)})
}

func (h *Hub) Transcript(text string) { h.broadcast(Message{Type: TypeTranscript, Text: text}) }

func (h *Hub) Reply(text string) { h.broadcast(Message{Type: TypeReply, Text: text}) }

func (h *Hub) Warn(msg string) { h.broadcast(Message{Type: TypeWarning, Text: msg}) }

func (h *Hub) Play(a audio.Synthesized) {
	h.broadcast(Message{
		Type:     TypeAudio,
		AudioB64: base64.StdEncoding.EncodeToString(a.Data),
		MIME:     a.MIMEType(),
	})
}

// broadcast never blocks: clients that cannot keep up are dropped.
func (h *Hub) broadcast(msg Message) {
	msg.Time = time.Now().UTC()
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		if !c.enqueue(b) {
			h.log.Warn("ui_client_dropped", "client_id", id, "reason", "send_buffer_full")
			c.close()
			delete(h.clients, id)
		}
	}
}

func (h *Hub) detach(id string) {
	h.mu.Lock()
	c := h.clients[id]
	delete(h.clients, id)
	h.mu.Unlock()
	if c != nil {
		c.close()
	}
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := strings.TrimRight(strings.TrimSpace(r.Header.Get("Origin")), "/")
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		a := strings.TrimRight(strings.TrimSpace(allowed), "/")
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

type client struct {
	id     string
	conn   *websocket.Conn
	sendCh chan []byte
	closed atomic.Bool
}

// enqueue and close are only called with the hub lock held or after the
// client left the map.
func (c *client) enqueue(b []byte) bool {
	if c.closed.Load() {
		return false
	}
	select {
	case c.sendCh <- b:
		return true
	default:
		return false
	}
}

func (c *client) loop() {
	for msg := range c.sendCh {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			_ = c.conn.Close()
			return
		}
	}
}

func (c *client) close() {
	if c.closed.CompareAndSwap(false, true) {
		close(c.sendCh)
	}
	_ = c.conn.Close()
}

var _ pipeline.Sink = (*Hub)(nil)
