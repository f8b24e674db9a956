package backend

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/harunnryd/voxrelay/pkg/audio"
	"github.com/harunnryd/voxrelay/pkg/metrics"
	"github.com/harunnryd/voxrelay/pkg/pipeline"
	"github.com/harunnryd/voxrelay/pkg/providers/mock"
	"github.com/harunnryd/voxrelay/pkg/sink"
	"github.com/harunnryd/voxrelay/pkg/stages"
)

type roundTrip struct {
	orch    *pipeline.Orchestrator
	console *sink.Console
	obs     *metrics.MemoryObserver
}

func newRoundTrip(t *testing.T, cfg Config) roundTrip {
	t.Helper()
	ts, _ := newTestServer(t, cfg)
	opts := stages.Options{BaseURL: ts.URL}
	console := sink.NewConsole(io.Discard)
	obs := metrics.NewMemoryObserver()
	orch, err := pipeline.New(pipeline.Config{
		STT:      stages.NewSTTClient(opts),
		Chat:     stages.NewChatClient(opts),
		TTS:      stages.NewTTSClient(opts),
		Sink:     console,
		Observer: obs,
		Logger:   quietLogger(),
	})
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	return roundTrip{orch: orch, console: console, obs: obs}
}

func artifact() *audio.Artifact {
	return audio.NewArtifact([]byte("fake-webm"), audio.MIMEWebM, time.Now(), time.Second)
}

func TestRoundTripCompletes(t *testing.T) {
	rt := newRoundTrip(t, Config{})
	res, err := rt.orch.Run(context.Background(), artifact())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Outcome != pipeline.OutcomeCompleted {
		t.Fatalf("expected completed, got %s (%v)", res.Outcome, res.Err)
	}
	snap := rt.console.Snapshot()
	if snap.Transcript != "hello there" || snap.Reply != "You said: hello there" {
		t.Fatalf("unexpected display %+v", snap)
	}
	if snap.Audio == nil || snap.Audio.MIMEType() != audio.MIMEWAV {
		t.Fatalf("expected wav playback, got %+v", snap.Audio)
	}
	if len(rt.obs.Named(metrics.EventStageLatency)) != 3 {
		t.Fatalf("expected three stage latencies")
	}
}

func TestRoundTripSTTFailureStopsRun(t *testing.T) {
	rt := newRoundTrip(t, Config{STT: mock.NewSTT(mock.STTConfig{Err: errors.New("decoder crashed")})})
	res, _ := rt.orch.Run(context.Background(), artifact())
	if res.Outcome != pipeline.OutcomeSTTFailed {
		t.Fatalf("expected stt_failed, got %s", res.Outcome)
	}
	var terr *stages.TransportError
	if !errors.As(res.Err, &terr) || terr.StatusCode != 502 {
		t.Fatalf("expected 502 transport error, got %v", res.Err)
	}
	snap := rt.console.Snapshot()
	if snap.Transcript != string(pipeline.StatusSTTError) || snap.Reply != sink.ReplyPlaceholder {
		t.Fatalf("unexpected display %+v", snap)
	}
}

func TestRoundTripTTSFailureKeepsReply(t *testing.T) {
	rt := newRoundTrip(t, Config{TTS: mock.NewTTS(mock.TTSConfig{Err: errors.New("voice missing")})})
	res, _ := rt.orch.Run(context.Background(), artifact())
	if res.Outcome != pipeline.OutcomeTTSFailed {
		t.Fatalf("expected tts_failed, got %s", res.Outcome)
	}
	snap := rt.console.Snapshot()
	if snap.Reply != "You said: hello there" {
		t.Fatalf("reply should stay visible, got %q", snap.Reply)
	}
	if len(snap.Warnings) != 1 || snap.Warnings[0] != pipeline.TTSWarning || snap.Audio != nil {
		t.Fatalf("unexpected display %+v", snap)
	}
}
