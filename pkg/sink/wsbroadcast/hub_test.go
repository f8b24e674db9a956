package wsbroadcast

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/harunnryd/voxrelay/pkg/audio"
	"github.com/harunnryd/voxrelay/pkg/pipeline"
)

func newTestHub(t *testing.T, cfg Config) (*Hub, *httptest.Server) {
	t.Helper()
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(cfg)
	srv := httptest.NewServer(h.Handler())
	t.Cleanup(func() {
		_ = h.Stop()
		srv.Close()
	})
	return h, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(b, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return msg
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, got %d", n, h.Clients())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubBroadcastsRunUpdates(t *testing.T) {
	h, srv := newTestHub(t, Config{})
	conn := dial(t, srv)

	hello := readMessage(t, conn)
	if hello.Type != TypeHello || hello.ClientID == "" {
		t.Fatalf("expected hello with client id, got %+v", hello)
	}
	waitClients(t, h, 1)

	h.Reset()
	h.Status(pipeline.StatusTranscribing)
	h.Transcript("hello")
	h.Reply("hi there")
	h.Play(audio.Synthesized{Data: []byte{1, 2, 3}, ContentType: "audio/wav"})

	want := []string{TypeReset, TypeStatus, TypeTranscript, TypeReply, TypeAudio}
	var got []Message
	for range want {
		got = append(got, readMessage(t, conn))
	}
	for i, typ := range want {
		if got[i].Type != typ {
			t.Fatalf("message %d: expected %s, got %s", i, typ, got[i].Type)
		}
	}
	if got[1].Status != "transcribing" || got[2].Text != "hello" || got[3].Text != "hi there" {
		t.Fatalf("unexpected payloads %+v", got)
	}
	raw, err := base64.StdEncoding.DecodeString(got[4].AudioB64)
	if err != nil || len(raw) != 3 || got[4].MIME != "audio/wav" {
		t.Fatalf("unexpected audio message %+v", got[4])
	}
}

func TestHubDropsSlowClients(t *testing.T) {
	h, srv := newTestHub(t, Config{SendBuffer: 1})
	_ = dial(t, srv)
	waitClients(t, h, 1)

	// The client never reads, so its queue fills and it is dropped
	// without blocking the sender.
	big := strings.Repeat("x", 64*1024)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 4000 && h.Clients() > 0; i++ {
			h.Reply(big)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("broadcast blocked on a slow client")
	}
	waitClients(t, h, 0)
}

func TestHubRejectsDisallowedOrigin(t *testing.T) {
	_, srv := newTestHub(t, Config{AllowedOrigins: []string{"http://allowed.test"}})
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	header := http.Header{}
	header.Set("Origin", "http://evil.test")
	if _, _, err := websocket.DefaultDialer.Dial(url, header); err == nil {
		t.Fatalf("expected handshake to fail for disallowed origin")
	}
}

func TestHubHealth(t *testing.T) {
	_, srv := newTestHub(t, Config{})
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
