// Package backend is a development server that implements the /stt, /chat
// and /tts endpoints the voxrelay client talks to, on top of pluggable
// vendor providers.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/harunnryd/voxrelay/pkg/audio"
	"github.com/harunnryd/voxrelay/pkg/errorsx"
	"github.com/harunnryd/voxrelay/pkg/metrics"
	"github.com/harunnryd/voxrelay/pkg/observers"
	"github.com/harunnryd/voxrelay/pkg/providers"
	"github.com/harunnryd/voxrelay/pkg/redact"
	"github.com/harunnryd/voxrelay/pkg/resilience"
)

// MaxUploadBytes bounds /stt uploads.
const MaxUploadBytes = 25 << 20

type Config struct {
	Addr    string
	STT     providers.STT
	Chat    providers.Chat
	TTS     providers.TTS
	Models  Models
	Logger  *slog.Logger
	Metrics *metrics.PrometheusObserver
	// Observer also receives backend_request events; may be nil.
	Observer metrics.Observer
	// BreakerThreshold consecutive vendor rate limits open a stage's
	// breaker for BreakerCooldown. Zero disables the breakers.
	BreakerThreshold int
	BreakerCooldown  time.Duration
	DrainTimeout     time.Duration
}

type Server struct {
	cfg      Config
	log      *slog.Logger
	obs      metrics.Observer
	breakers map[string]*resilience.CircuitBreaker
	server   *http.Server
}

func New(cfg Config) (*Server, error) {
	if cfg.STT == nil || cfg.Chat == nil || cfg.TTS == nil {
		return nil, errors.New("backend: stt, chat and tts providers are required")
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8000"
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 30 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	var prom metrics.Observer
	if cfg.Metrics != nil {
		prom = cfg.Metrics
	}
	s := &Server{cfg: cfg, log: log, obs: observers.NewMultiObserver(prom, cfg.Observer)}
	if cfg.BreakerThreshold > 0 {
		s.breakers = map[string]*resilience.CircuitBreaker{
			"stt":  resilience.NewCircuitBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown),
			"chat": resilience.NewCircuitBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown),
			"tts":  resilience.NewCircuitBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown),
		}
	}
	return s, nil
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}))
	r.Use(s.instrument)

	r.Get("/health", s.handleHealth)
	r.Post("/stt", s.handleSTT)
	r.Post("/chat", s.handleChat)
	r.Post("/tts", s.handleTTS)
	if s.cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.cfg.Metrics.Handler())
	}
	return r
}

// Start serves on cfg.Addr until ctx ends or Drain is called.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.server = &http.Server{
		Addr:              s.cfg.Addr,
		ReadHeaderTimeout: 5 * time.Second,
		Handler:           s.Handler(),
	}
	go func() {
		<-ctx.Done()
		_ = s.server.Close()
	}()
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("backend_server_error", "error", err.Error())
		}
	}()
	s.log.Info("backend_listening",
		"addr", s.cfg.Addr,
		"stt", s.cfg.STT.Name(),
		"llm", s.cfg.Chat.Name(),
		"tts", s.cfg.TTS.Name(),
	)
	return nil
}

// Drain lets in-flight requests finish, then stops the listener.
func (s *Server) Drain() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.DrainTimeout)
	defer cancel()
	return s.server.Shutdown(ctx)
}

type healthResponse struct {
	Status string            `json:"status"`
	Models map[string]string `json:"models"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status: "ok",
		Models: map[string]string{
			"stt": s.cfg.Models.STT.Name,
			"llm": s.cfg.Models.LLM.Name,
			"tts": s.cfg.Models.TTS.Name,
		},
	})
}

func (s *Server) handleSTT(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	file, header, err := r.FormFile("audio")
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "Missing audio upload")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "Unreadable audio upload")
		return
	}
	if len(data) == 0 {
		writeDetail(w, http.StatusBadRequest, "Empty audio upload")
		return
	}
	mime := header.Header.Get("Content-Type")
	if mime == "" {
		mime = audio.MIMEWebM
	}
	in := providers.Audio{Data: data, Filename: header.Filename, MIME: mime}

	var text string
	err = s.guard("stt", func() error {
		var cerr error
		text, cerr = s.cfg.STT.Transcribe(r.Context(), in)
		return cerr
	})
	if err != nil {
		s.providerError(w, "stt", err)
		return
	}
	text = strings.TrimSpace(text)
	s.log.Debug("backend_transcribed", "bytes", len(data), "mime", mime, "text", redact.Preview(text, 120))
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

type chatRequest struct {
	Prompt string `json:"prompt"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		writeDetail(w, http.StatusBadRequest, "Empty prompt")
		return
	}
	var reply string
	err := s.guard("chat", func() error {
		var cerr error
		reply, cerr = s.cfg.Chat.Complete(r.Context(), prompt)
		return cerr
	})
	if err != nil {
		s.providerError(w, "chat", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reply": strings.TrimSpace(reply)})
}

type ttsRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	var req ttsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		writeDetail(w, http.StatusBadRequest, "Empty text")
		return
	}
	var wav []byte
	err := s.guard("tts", func() error {
		var cerr error
		wav, cerr = s.cfg.TTS.Synthesize(r.Context(), text)
		return cerr
	})
	if err != nil {
		s.providerError(w, "tts", err)
		return
	}
	w.Header().Set("Content-Type", audio.MIMEWAV)
	w.Header().Set("Content-Length", strconv.Itoa(len(wav)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(wav)
}

func (s *Server) guard(stage string, fn func() error) error {
	if s.breakers == nil {
		return fn()
	}
	return s.breakers[stage].Do(fn)
}

// providerError answers 503 while a breaker is open and 502 otherwise.
func (s *Server) providerError(w http.ResponseWriter, stage string, err error) {
	status := http.StatusBadGateway
	if errors.Is(err, resilience.ErrOpen) {
		status = http.StatusServiceUnavailable
	}
	err = errorsx.Wrap(err, errorsx.ReasonBackendProvider)
	s.log.Error("backend_provider_failed",
		"stage", stage,
		"reason", errorsx.Reason(err),
		"rate_limited", resilience.IsRateLimit(err),
		"error", err.Error(),
	)
	writeDetail(w, status, redact.Text(err.Error()))
}

// instrument records one backend_request event per request.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		s.obs.RecordEvent(metrics.MetricsEvent{
			Name:  metrics.EventBackendRequest,
			Time:  time.Now(),
			Value: float64(time.Since(start).Microseconds()),
			Tags: map[string]string{
				metrics.TagRoute:  route,
				metrics.TagStatus: strconv.Itoa(ww.Status()),
			},
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
