package pipeline

import (
	"time"

	"github.com/harunnryd/voxrelay/pkg/stages"
)

// Outcome is how a run ended.
type Outcome string

const (
	OutcomeCompleted  Outcome = "completed"
	OutcomeNoSpeech   Outcome = "no_speech"
	OutcomeSTTFailed  Outcome = "stt_failed"
	OutcomeChatFailed Outcome = "chat_failed"
	OutcomeTTSFailed  Outcome = "tts_failed"
)

// Result summarizes one run.
type Result struct {
	RunID       string
	Outcome     Outcome
	Transcript  string
	Reply       string
	AudioBytes  int
	FailedStage stages.Stage
	Err         error
	StartedAt   time.Time
	Duration    time.Duration
}

// Succeeded is true for runs that ended without a stage failure.
func (r Result) Succeeded() bool {
	return r.Outcome == OutcomeCompleted || r.Outcome == OutcomeNoSpeech
}
