package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/harunnryd/voxrelay/pkg/audio"
	"github.com/harunnryd/voxrelay/pkg/metrics"
	"github.com/harunnryd/voxrelay/pkg/providers"
	"github.com/harunnryd/voxrelay/pkg/providers/mock"
	"github.com/harunnryd/voxrelay/pkg/resilience"
)

type paddedChat struct{}

func (paddedChat) Name() string  { return "padded" }
func (paddedChat) Model() string { return "padded" }
func (paddedChat) Complete(ctx context.Context, prompt string) (string, error) {
	return "  " + strings.ToUpper(prompt) + "\n", nil
}

type limitedSTT struct{ calls int }

func (s *limitedSTT) Name() string  { return "limited" }
func (s *limitedSTT) Model() string { return "limited" }
func (s *limitedSTT) Transcribe(ctx context.Context, in providers.Audio) (string, error) {
	s.calls++
	return "", resilience.RateLimitError{Provider: "limited", Message: "slow down"}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, cfg Config) (*httptest.Server, *metrics.MemoryObserver) {
	t.Helper()
	if cfg.STT == nil {
		cfg.STT = mock.NewSTT(mock.STTConfig{Transcript: "  hello there "})
	}
	if cfg.Chat == nil {
		cfg.Chat = mock.NewChat(mock.ChatConfig{})
	}
	if cfg.TTS == nil {
		cfg.TTS = mock.NewTTS(mock.TTSConfig{})
	}
	mem := metrics.NewMemoryObserver()
	cfg.Observer = mem
	cfg.Logger = quietLogger()
	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, mem
}

func upload(t *testing.T, url string, data []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("audio", "input.webm")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	_, _ = part.Write(data)
	_ = w.Close()
	resp, err := http.Post(url+"/stt", w.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	return resp
}

func postJSON(t *testing.T, url string, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func TestHealthReportsModels(t *testing.T) {
	models := Models{
		STT: Model{Name: "whisper", Source: SourceEnv},
		LLM: Model{Name: "zephyr", Source: SourceDefault},
		TTS: Model{Name: "vits", Source: SourceDotEnv},
	}
	ts, _ := newTestServer(t, Config{Models: models})
	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body := decode(t, resp)
	if body["status"] != "ok" {
		t.Fatalf("unexpected status %v", body["status"])
	}
	got, _ := body["models"].(map[string]any)
	if got["stt"] != "whisper" || got["llm"] != "zephyr" || got["tts"] != "vits" {
		t.Fatalf("unexpected models %v", got)
	}
}

func TestSTTTrimsTranscript(t *testing.T) {
	ts, mem := newTestServer(t, Config{})
	resp := upload(t, ts.URL, []byte("webm-bytes"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body := decode(t, resp); body["text"] != "hello there" {
		t.Fatalf("unexpected text %v", body["text"])
	}
	events := mem.Named(metrics.EventBackendRequest)
	if len(events) != 1 || events[0].Tags[metrics.TagRoute] != "/stt" || events[0].Tags[metrics.TagStatus] != "200" {
		t.Fatalf("unexpected request events %+v", events)
	}
}

func TestSTTRejectsEmptyUpload(t *testing.T) {
	ts, _ := newTestServer(t, Config{})
	resp := upload(t, ts.URL, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if body := decode(t, resp); body["detail"] != "Empty audio upload" {
		t.Fatalf("unexpected detail %v", body["detail"])
	}
}

func TestChatValidatesAndTrims(t *testing.T) {
	ts, _ := newTestServer(t, Config{Chat: paddedChat{}})

	resp := postJSON(t, ts.URL+"/chat", `{"prompt":"   "}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if body := decode(t, resp); body["detail"] != "Empty prompt" {
		t.Fatalf("unexpected detail %v", body["detail"])
	}

	resp = postJSON(t, ts.URL+"/chat", `{"prompt":" hi "}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body := decode(t, resp); body["reply"] != "HI" {
		t.Fatalf("unexpected reply %v", body["reply"])
	}
}

func TestTTSReturnsWAV(t *testing.T) {
	ts, _ := newTestServer(t, Config{})
	resp := postJSON(t, ts.URL+"/tts", `{"text":"hello"}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != audio.MIMEWAV {
		t.Fatalf("unexpected content type %q", ct)
	}
	data, _ := io.ReadAll(resp.Body)
	info, err := audio.DescribeWAV(data)
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if info.SampleRate != 16000 || info.Frames == 0 {
		t.Fatalf("unexpected wav %+v", info)
	}

	resp = postJSON(t, ts.URL+"/tts", `{"text":""}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if body := decode(t, resp); body["detail"] != "Empty text" {
		t.Fatalf("unexpected detail %v", body["detail"])
	}
}

func TestProviderFailureIsBadGateway(t *testing.T) {
	ts, _ := newTestServer(t, Config{Chat: mock.NewChat(mock.ChatConfig{Err: errors.New("model exploded")})})
	resp := postJSON(t, ts.URL+"/chat", `{"prompt":"hi"}`)
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}
	if body := decode(t, resp); !strings.Contains(body["detail"].(string), "model exploded") {
		t.Fatalf("unexpected detail %v", body["detail"])
	}
}

func TestRateLimitsOpenBreaker(t *testing.T) {
	stt := &limitedSTT{}
	ts, _ := newTestServer(t, Config{STT: stt, BreakerThreshold: 1})

	first := upload(t, ts.URL, []byte("a"))
	first.Body.Close()
	if first.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", first.StatusCode)
	}
	second := upload(t, ts.URL, []byte("a"))
	second.Body.Close()
	if second.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", second.StatusCode)
	}
	if stt.calls != 1 {
		t.Fatalf("expected the open breaker to skip the provider, got %d calls", stt.calls)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t, Config{Metrics: metrics.NewPrometheusObserver("test")})
	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `test_backend_requests_total{route="/health",status="200"} 1`) {
		t.Fatalf("expected health request counter, got:\n%s", body)
	}
}

func TestNewRequiresProviders(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error without providers")
	}
}
