package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/harunnryd/voxrelay/pkg/audio"
	"github.com/harunnryd/voxrelay/pkg/errorsx"
	"github.com/harunnryd/voxrelay/pkg/metrics"
	"github.com/harunnryd/voxrelay/pkg/redact"
	"github.com/harunnryd/voxrelay/pkg/stages"
)

var (
	// ErrBusy is returned when a run is already in flight.
	ErrBusy = errorsx.New(errorsx.ReasonPipelineBusy, "pipeline run already in flight")
	// ErrNoArtifact is returned when there is nothing to send.
	ErrNoArtifact = errorsx.New(errorsx.ReasonPipelineNoArtifact, "no recorded audio to send")
)

// Transcriber turns recorded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, artifact *audio.Artifact) (string, error)
}

// Responder produces the assistant reply for a prompt.
type Responder interface {
	Reply(ctx context.Context, prompt string) (string, error)
}

// Synthesizer turns reply text into playable audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (audio.Synthesized, error)
}

// Config wires an Orchestrator.
type Config struct {
	STT      Transcriber
	Chat     Responder
	TTS      Synthesizer
	Sink     Sink
	Observer metrics.Observer
	Logger   *slog.Logger
	// NewRunID overrides run id generation, mainly for tests.
	NewRunID func() string
}

// Orchestrator drives one artifact through STT, Chat and TTS in order,
// stopping at the first failing stage. At most one run is in flight.
type Orchestrator struct {
	stt   Transcriber
	chat  Responder
	tts   Synthesizer
	sink  Sink
	obs   metrics.Observer
	log   *slog.Logger
	newID func() string

	busy atomic.Bool
}

func New(cfg Config) (*Orchestrator, error) {
	switch {
	case cfg.STT == nil:
		return nil, fmt.Errorf("pipeline: stt client is required")
	case cfg.Chat == nil:
		return nil, fmt.Errorf("pipeline: chat client is required")
	case cfg.TTS == nil:
		return nil, fmt.Errorf("pipeline: tts client is required")
	case cfg.Sink == nil:
		return nil, fmt.Errorf("pipeline: sink is required")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	newID := cfg.NewRunID
	if newID == nil {
		newID = uuid.NewString
	}
	return &Orchestrator{
		stt:   cfg.STT,
		chat:  cfg.Chat,
		tts:   cfg.TTS,
		sink:  cfg.Sink,
		obs:   metrics.OrNoop(cfg.Observer),
		log:   log,
		newID: newID,
	}, nil
}

// Busy reports whether a run is in flight.
func (o *Orchestrator) Busy() bool { return o.busy.Load() }

// Run executes one pipeline pass. Stage failures end the run and are
// reported through the sink and the Result; the returned error is only
// set when the run was refused (ErrBusy, ErrNoArtifact).
func (o *Orchestrator) Run(ctx context.Context, artifact *audio.Artifact) (Result, error) {
	if artifact == nil {
		return Result{}, ErrNoArtifact
	}
	if !o.busy.CompareAndSwap(false, true) {
		return Result{}, ErrBusy
	}
	defer o.busy.Store(false)
	if ctx == nil {
		ctx = context.Background()
	}

	res := Result{RunID: o.newID(), StartedAt: time.Now()}
	log := o.log.With("run_id", res.RunID)
	o.record(metrics.EventRunStart, res.RunID, nil, 0, map[string]any{
		"artifact_bytes": artifact.Size(),
		"artifact_ms":    artifact.Duration().Milliseconds(),
		"mime":           artifact.MIMEType(),
	})
	log.Info("pipeline_run_started", "artifact_bytes", artifact.Size(), "mime", artifact.MIMEType())

	o.sink.Reset()
	o.sink.Status(StatusTranscribing)

	text, err := timed(o, res.RunID, stages.StageSTT, func() (string, error) {
		return o.stt.Transcribe(ctx, artifact)
	})
	if err != nil {
		o.sink.Status(StatusSTTError)
		log.Error("pipeline_stage_failed", "stage", stages.StageSTT, "reason", errorsx.Reason(err), "error", err.Error())
		return o.finish(res, OutcomeSTTFailed, stages.StageSTT, err), nil
	}
	res.Transcript = text

	if text == "" {
		o.sink.Transcript(NoSpeechDetected)
		log.Info("pipeline_no_speech")
		return o.finish(res, OutcomeNoSpeech, "", nil), nil
	}
	o.sink.Transcript(text)
	log.Debug("pipeline_transcript", "text", redact.Preview(text, 120))

	o.sink.Status(StatusThinking)
	reply, err := timed(o, res.RunID, stages.StageChat, func() (string, error) {
		return o.chat.Reply(ctx, text)
	})
	if err != nil {
		o.sink.Status(StatusLLMError)
		log.Error("pipeline_stage_failed", "stage", stages.StageChat, "reason", errorsx.Reason(err), "error", err.Error())
		return o.finish(res, OutcomeChatFailed, stages.StageChat, err), nil
	}
	res.Reply = reply
	o.sink.Reply(reply)
	log.Debug("pipeline_reply", "text", redact.Preview(reply, 120))

	speech, err := timed(o, res.RunID, stages.StageTTS, func() (audio.Synthesized, error) {
		return o.tts.Synthesize(ctx, reply)
	})
	if err != nil {
		o.sink.Warn(TTSWarning)
		o.record(metrics.EventTTSWarning, res.RunID, map[string]string{
			metrics.TagReason: string(errorsx.Reason(err)),
		}, 0, map[string]any{"error": err.Error()})
		log.Warn("pipeline_tts_warning", "reason", errorsx.Reason(err), "error", err.Error())
		return o.finish(res, OutcomeTTSFailed, stages.StageTTS, err), nil
	}
	res.AudioBytes = speech.Size()
	o.sink.Play(speech)
	return o.finish(res, OutcomeCompleted, "", nil), nil
}

func (o *Orchestrator) finish(res Result, outcome Outcome, failed stages.Stage, err error) Result {
	res.Outcome = outcome
	res.FailedStage = failed
	res.Err = err
	res.Duration = time.Since(res.StartedAt)
	o.record(metrics.EventRunDone, res.RunID, map[string]string{
		metrics.TagOutcome: string(outcome),
	}, float64(res.Duration.Microseconds()), map[string]any{
		"transcript_chars": utf8.RuneCountInString(res.Transcript),
		"reply_chars":      utf8.RuneCountInString(res.Reply),
		"audio_bytes":      res.AudioBytes,
	})
	o.log.Info("pipeline_run_done",
		"run_id", res.RunID,
		"outcome", outcome,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res
}

// timed runs one stage call and records its latency or failure.
func timed[T any](o *Orchestrator, runID string, stage stages.Stage, call func() (T, error)) (T, error) {
	o.record(metrics.EventStageStart, runID, map[string]string{metrics.TagStage: string(stage)}, 0, nil)
	start := time.Now()
	out, err := call()
	elapsed := float64(time.Since(start).Microseconds())
	if err != nil {
		reason := errorsx.Reason(err)
		if reason == errorsx.ReasonUnknown {
			reason = stage.Reason()
		}
		fields := map[string]any{"error": err.Error()}
		var te *stages.TransportError
		if errors.As(err, &te) && te.StatusCode != 0 {
			fields["status_code"] = te.StatusCode
		}
		o.record(metrics.EventStageError, runID, map[string]string{
			metrics.TagStage:  string(stage),
			metrics.TagReason: string(reason),
		}, elapsed, fields)
		return out, err
	}
	o.record(metrics.EventStageLatency, runID, map[string]string{metrics.TagStage: string(stage)}, elapsed, nil)
	return out, nil
}

func (o *Orchestrator) record(name, runID string, tags map[string]string, value float64, fields map[string]any) {
	all := map[string]string{metrics.TagRunID: runID}
	for k, v := range tags {
		all[k] = v
	}
	o.obs.RecordEvent(metrics.MetricsEvent{
		Name:   name,
		Time:   time.Now(),
		Value:  value,
		Tags:   all,
		Fields: fields,
	})
}
