package openai

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/harunnryd/voxrelay/pkg/providers"
	"github.com/harunnryd/voxrelay/pkg/resilience"
)

func newServer(t *testing.T, h http.HandlerFunc) Config {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1"}
}

func TestSTTSendsMultipart(t *testing.T) {
	var gotName, gotModel string
	var gotBytes []byte
	cfg := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, params, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		mr := multipart.NewReader(r.Body, params["boundary"])
		for {
			part, err := mr.NextPart()
			if err != nil {
				break
			}
			b, _ := io.ReadAll(part)
			switch part.FormName() {
			case "file":
				gotName = part.FileName()
				gotBytes = b
			case "model":
				gotModel = string(b)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"hello"}`))
	})
	stt, err := NewSTT(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	text, err := stt.Transcribe(context.Background(), providers.Audio{Data: []byte("webm"), Filename: "input.webm"})
	if err != nil || text != "hello" {
		t.Fatalf("unexpected transcript %q %v", text, err)
	}
	if gotName != "input.webm" || string(gotBytes) != "webm" || gotModel != DefaultSTTModel {
		t.Fatalf("unexpected upload name=%q bytes=%q model=%q", gotName, gotBytes, gotModel)
	}
}

func TestChatUsesGenerationParams(t *testing.T) {
	var req struct {
		Model       string  `json:"model"`
		MaxTokens   int     `json:"max_tokens"`
		Temperature float64 `json:"temperature"`
		Messages    []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	cfg := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"hi there"}}]}`))
	})
	chat, err := NewChat(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	reply, err := chat.Complete(context.Background(), "hello")
	if err != nil || reply != "hi there" {
		t.Fatalf("unexpected reply %q %v", reply, err)
	}
	if req.MaxTokens != 256 || req.Temperature < 0.29 || req.Temperature > 0.31 {
		t.Fatalf("unexpected generation params %+v", req)
	}
	if len(req.Messages) != 1 || req.Messages[0].Content != "hello" {
		t.Fatalf("unexpected messages %+v", req.Messages)
	}
}

func TestTTSReturnsBody(t *testing.T) {
	cfg := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["response_format"] != "wav" {
			t.Errorf("expected wav response format, got %v", body["response_format"])
		}
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write([]byte("RIFFdata"))
	})
	tts, err := NewTTS(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	data, err := tts.Synthesize(context.Background(), "hi")
	if err != nil || string(data) != "RIFFdata" {
		t.Fatalf("unexpected speech %q %v", data, err)
	}
}

func TestRateLimitIsClassified(t *testing.T) {
	cfg := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit_exceeded"}}`))
	})
	chat, _ := NewChat(cfg)
	_, err := chat.Complete(context.Background(), "hello")
	if !resilience.IsRateLimit(err) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
}

func TestMissingAPIKey(t *testing.T) {
	if _, err := NewChat(Config{}); err == nil {
		t.Fatalf("expected error without api key")
	}
}
