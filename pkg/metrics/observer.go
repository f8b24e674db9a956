package metrics

import "time"

// Event names recorded by the pipeline and the dev backend.
const (
	EventRunStart      = "run_start"
	EventRunDone       = "run_done"
	EventStageStart    = "stage_start"
	EventStageError    = "stage_error"
	EventTTSWarning    = "tts_warning"
	EventStageLatency  = "stage_latency_us"
	EventRecordingDone = "recording_done"
	EventPlayback      = "playback_started"

	EventBackendRequest = "backend_request"
)

// Tag keys shared by events.
const (
	TagRunID   = "run_id"
	TagStage   = "stage"
	TagOutcome = "outcome"
	TagReason  = "reason"
	TagRoute   = "route"
	TagStatus  = "status"
)

type MetricsEvent struct {
	Name   string
	Time   time.Time
	Value  float64
	Tags   map[string]string
	Fields map[string]any
}

type Observer interface {
	RecordEvent(ev MetricsEvent)
}

type Flusher interface {
	Flush() error
}

type NoopObserver struct{}

func (NoopObserver) RecordEvent(MetricsEvent) {}

// OrNoop returns obs, or a NoopObserver when obs is nil.
func OrNoop(obs Observer) Observer {
	if obs == nil {
		return NoopObserver{}
	}
	return obs
}
