package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/harunnryd/voxrelay/pkg/audio"
	"github.com/harunnryd/voxrelay/pkg/errorsx"
	"github.com/harunnryd/voxrelay/pkg/metrics"
	"github.com/harunnryd/voxrelay/pkg/stages"
)

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (c *callLog) add(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, name)
}

func (c *callLog) list() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.calls))
	copy(out, c.calls)
	return out
}

type fakeSTT struct {
	log     *callLog
	text    string
	err     error
	entered chan struct{}
	release chan struct{}
}

func (f *fakeSTT) Transcribe(ctx context.Context, a *audio.Artifact) (string, error) {
	f.log.add("stt")
	if f.entered != nil {
		close(f.entered)
		<-f.release
	}
	return f.text, f.err
}

type fakeChat struct {
	log    *callLog
	reply  string
	err    error
	prompt string
}

func (f *fakeChat) Reply(ctx context.Context, prompt string) (string, error) {
	f.log.add("chat")
	f.prompt = prompt
	return f.reply, f.err
}

type fakeTTS struct {
	log  *callLog
	data []byte
	err  error
	text string
}

func (f *fakeTTS) Synthesize(ctx context.Context, text string) (audio.Synthesized, error) {
	f.log.add("tts")
	f.text = text
	if f.err != nil {
		return audio.Synthesized{}, f.err
	}
	return audio.Synthesized{Data: f.data, ContentType: audio.MIMEWAV}, nil
}

type recordingSink struct {
	mu         sync.Mutex
	events     []string
	transcript string
	reply      string
	warnings   []string
	played     []audio.Synthesized
}

func (s *recordingSink) add(ev string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) Reset() {
	s.add("reset")
	s.mu.Lock()
	s.transcript = ""
	s.reply = ""
	s.played = nil
	s.mu.Unlock()
}

func (s *recordingSink) Status(st Status) {
	s.add("status:" + string(st))
	s.mu.Lock()
	defer s.mu.Unlock()
	switch st {
	case StatusTranscribing, StatusSTTError:
		s.transcript = string(st)
	case StatusThinking, StatusLLMError:
		s.reply = string(st)
	}
}

func (s *recordingSink) Transcript(text string) {
	s.add("transcript:" + text)
	s.mu.Lock()
	s.transcript = text
	s.mu.Unlock()
}

func (s *recordingSink) Reply(text string) {
	s.add("reply:" + text)
	s.mu.Lock()
	s.reply = text
	s.mu.Unlock()
}

func (s *recordingSink) Warn(msg string) {
	s.add("warn:" + msg)
	s.mu.Lock()
	s.warnings = append(s.warnings, msg)
	s.mu.Unlock()
}

func (s *recordingSink) Play(a audio.Synthesized) {
	s.add("play")
	s.mu.Lock()
	s.played = append(s.played, a)
	s.mu.Unlock()
}

type harness struct {
	log  *callLog
	stt  *fakeSTT
	chat *fakeChat
	tts  *fakeTTS
	sink *recordingSink
	obs  *metrics.MemoryObserver
	orch *Orchestrator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := &callLog{}
	h := &harness{
		log:  log,
		stt:  &fakeSTT{log: log, text: "hello"},
		chat: &fakeChat{log: log, reply: "hi there"},
		tts:  &fakeTTS{log: log, data: make([]byte, 16)},
		sink: &recordingSink{},
		obs:  metrics.NewMemoryObserver(),
	}
	orch, err := New(Config{
		STT:      h.stt,
		Chat:     h.chat,
		TTS:      h.tts,
		Sink:     h.sink,
		Observer: h.obs,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		NewRunID: func() string { return "run-1" },
	})
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	h.orch = orch
	return h
}

func speech() *audio.Artifact {
	return audio.NewArtifact([]byte("speech"), audio.MIMEWebM, time.Now(), time.Second)
}

func transportErr(stage stages.Stage, status int) error {
	return errorsx.Wrap(&stages.TransportError{Stage: stage, StatusCode: status}, stage.Reason())
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestScenarioAFullRun(t *testing.T) {
	h := newHarness(t)
	res, err := h.orch.Run(context.Background(), speech())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Outcome != OutcomeCompleted || !res.Succeeded() {
		t.Fatalf("expected completed, got %s", res.Outcome)
	}
	if got := h.log.list(); !equalStrings(got, []string{"stt", "chat", "tts"}) {
		t.Fatalf("unexpected stage order %v", got)
	}
	if h.chat.prompt != "hello" || h.tts.text != "hi there" {
		t.Fatalf("stage inputs not chained: prompt=%q tts=%q", h.chat.prompt, h.tts.text)
	}
	if h.sink.transcript != "hello" || h.sink.reply != "hi there" {
		t.Fatalf("unexpected display transcript=%q reply=%q", h.sink.transcript, h.sink.reply)
	}
	if len(h.sink.played) != 1 || h.sink.played[0].Size() != 16 {
		t.Fatalf("expected 16-byte payload to be played, got %+v", h.sink.played)
	}
	want := []string{
		"reset",
		"status:transcribing",
		"transcript:hello",
		"status:thinking",
		"reply:hi there",
		"play",
	}
	if !equalStrings(h.sink.events, want) {
		t.Fatalf("unexpected sink events %v", h.sink.events)
	}
	if res.AudioBytes != 16 || res.RunID != "run-1" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestScenarioBEmptyTranscriptEndsRun(t *testing.T) {
	h := newHarness(t)
	h.stt.text = ""
	res, err := h.orch.Run(context.Background(), speech())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Outcome != OutcomeNoSpeech || !res.Succeeded() || res.Err != nil {
		t.Fatalf("expected successful no_speech, got %+v", res)
	}
	if got := h.log.list(); !equalStrings(got, []string{"stt"}) {
		t.Fatalf("expected only stt call, got %v", got)
	}
	if h.sink.transcript != NoSpeechDetected {
		t.Fatalf("expected sentinel, got %q", h.sink.transcript)
	}
	if len(h.sink.played) != 0 {
		t.Fatalf("expected no playback")
	}
}

func TestScenarioCSTTFailureStopsRun(t *testing.T) {
	h := newHarness(t)
	h.stt.err = transportErr(stages.StageSTT, 500)
	res, err := h.orch.Run(context.Background(), speech())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Outcome != OutcomeSTTFailed || res.FailedStage != stages.StageSTT {
		t.Fatalf("expected stt_failed, got %+v", res)
	}
	if got := h.log.list(); !equalStrings(got, []string{"stt"}) {
		t.Fatalf("expected chat/tts not called, got %v", got)
	}
	if h.sink.transcript != string(StatusSTTError) {
		t.Fatalf("expected STT error status, got %q", h.sink.transcript)
	}
	errs := h.obs.Named(metrics.EventStageError)
	if len(errs) != 1 || errs[0].Tags[metrics.TagReason] != string(errorsx.ReasonSTTTransport) {
		t.Fatalf("expected one stt stage_error event, got %+v", errs)
	}
	if errs[0].Fields["status_code"] != 500 {
		t.Fatalf("expected status code field, got %+v", errs[0].Fields)
	}
}

func TestChatFailureKeepsTranscript(t *testing.T) {
	h := newHarness(t)
	h.chat.err = transportErr(stages.StageChat, 502)
	res, _ := h.orch.Run(context.Background(), speech())
	if res.Outcome != OutcomeChatFailed {
		t.Fatalf("expected chat_failed, got %s", res.Outcome)
	}
	if got := h.log.list(); !equalStrings(got, []string{"stt", "chat"}) {
		t.Fatalf("expected tts not called, got %v", got)
	}
	if h.sink.transcript != "hello" {
		t.Fatalf("expected transcript to remain, got %q", h.sink.transcript)
	}
	if h.sink.reply != string(StatusLLMError) {
		t.Fatalf("expected LLM error status, got %q", h.sink.reply)
	}
}

func TestScenarioDTTSFailureIsWarning(t *testing.T) {
	h := newHarness(t)
	h.tts.err = transportErr(stages.StageTTS, 500)
	res, err := h.orch.Run(context.Background(), speech())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Outcome != OutcomeTTSFailed {
		t.Fatalf("expected tts_failed, got %s", res.Outcome)
	}
	if h.sink.transcript != "hello" || h.sink.reply != "hi there" {
		t.Fatalf("expected transcript and reply to remain, got %q / %q", h.sink.transcript, h.sink.reply)
	}
	if len(h.sink.played) != 0 {
		t.Fatalf("expected no audio")
	}
	if len(h.sink.warnings) != 1 || h.sink.warnings[0] != TTSWarning {
		t.Fatalf("expected TTS warning, got %v", h.sink.warnings)
	}
	if len(h.obs.Named(metrics.EventTTSWarning)) != 1 {
		t.Fatalf("expected tts_warning event")
	}
}

func TestEmptyReplyStillSynthesized(t *testing.T) {
	h := newHarness(t)
	h.chat.reply = ""
	res, _ := h.orch.Run(context.Background(), speech())
	if res.Outcome != OutcomeCompleted {
		t.Fatalf("expected completed, got %s", res.Outcome)
	}
	if got := h.log.list(); !equalStrings(got, []string{"stt", "chat", "tts"}) {
		t.Fatalf("unexpected calls %v", got)
	}
	if h.sink.reply != "" {
		t.Fatalf("expected empty reply to be shown, got %q", h.sink.reply)
	}
}

func TestEmptyArtifactIsStillSent(t *testing.T) {
	h := newHarness(t)
	h.stt.text = ""
	res, err := h.orch.Run(context.Background(), audio.Concat(nil, audio.MIMEWebM, time.Now(), 0))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Outcome != OutcomeNoSpeech {
		t.Fatalf("expected no_speech, got %s", res.Outcome)
	}
	if got := h.log.list(); !equalStrings(got, []string{"stt"}) {
		t.Fatalf("expected stt call for empty artifact, got %v", got)
	}
}

func TestNilArtifactIsRefused(t *testing.T) {
	h := newHarness(t)
	if _, err := h.orch.Run(context.Background(), nil); !errors.Is(err, ErrNoArtifact) {
		t.Fatalf("expected ErrNoArtifact, got %v", err)
	}
	if len(h.log.list()) != 0 || len(h.sink.events) != 0 {
		t.Fatalf("expected no side effects")
	}
}

func TestConcurrentRunIsRejected(t *testing.T) {
	h := newHarness(t)
	h.stt.entered = make(chan struct{})
	h.stt.release = make(chan struct{})

	done := make(chan Result, 1)
	go func() {
		res, _ := h.orch.Run(context.Background(), speech())
		done <- res
	}()
	<-h.stt.entered
	if !h.orch.Busy() {
		t.Fatalf("expected orchestrator to be busy")
	}
	if _, err := h.orch.Run(context.Background(), speech()); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	close(h.stt.release)
	res := <-done
	if res.Outcome != OutcomeCompleted {
		t.Fatalf("expected first run to complete, got %s", res.Outcome)
	}
	if got := h.log.list(); !equalStrings(got, []string{"stt", "chat", "tts"}) {
		t.Fatalf("rejected run must not call stages, got %v", got)
	}
	if h.orch.Busy() {
		t.Fatalf("expected guard released after run")
	}
}

func TestRunRecordsStageLatencies(t *testing.T) {
	h := newHarness(t)
	if _, err := h.orch.Run(context.Background(), speech()); err != nil {
		t.Fatalf("run: %v", err)
	}
	lat := h.obs.Named(metrics.EventStageLatency)
	if len(lat) != 3 {
		t.Fatalf("expected 3 latency events, got %d", len(lat))
	}
	order := []string{lat[0].Tags[metrics.TagStage], lat[1].Tags[metrics.TagStage], lat[2].Tags[metrics.TagStage]}
	if !equalStrings(order, []string{"stt", "chat", "tts"}) {
		t.Fatalf("unexpected latency order %v", order)
	}
	done := h.obs.Named(metrics.EventRunDone)
	if len(done) != 1 || done[0].Tags[metrics.TagOutcome] != string(OutcomeCompleted) || done[0].Tags[metrics.TagRunID] != "run-1" {
		t.Fatalf("unexpected run_done %+v", done)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error for empty config")
	}
}
