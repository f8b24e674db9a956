package observers

import (
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/voxrelay/pkg/metrics"
)

// RunLatency is the per-stage breakdown of one run. Stages that did not
// run or failed report -1.
type RunLatency struct {
	RunID   string
	Outcome string
	STT     time.Duration
	Chat    time.Duration
	TTS     time.Duration
	Total   time.Duration
}

// LatencyObserver logs a latency summary line when each run finishes.
type LatencyObserver struct {
	mu   sync.Mutex
	runs map[string]*RunLatency
	last *RunLatency
	log  *slog.Logger
}

func NewLatencyObserver(log *slog.Logger) *LatencyObserver {
	if log == nil {
		log = slog.Default()
	}
	return &LatencyObserver{runs: make(map[string]*RunLatency), log: log}
}

func (o *LatencyObserver) RecordEvent(ev metrics.MetricsEvent) {
	runID := ev.Tags[metrics.TagRunID]
	if runID == "" {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	r := o.runs[runID]
	if r == nil {
		r = &RunLatency{RunID: runID, STT: -1, Chat: -1, TTS: -1}
		o.runs[runID] = r
	}
	switch ev.Name {
	case metrics.EventStageLatency:
		d := time.Duration(ev.Value) * time.Microsecond
		switch ev.Tags[metrics.TagStage] {
		case "stt":
			r.STT = d
		case "chat":
			r.Chat = d
		case "tts":
			r.TTS = d
		}
	case metrics.EventRunDone:
		r.Outcome = ev.Tags[metrics.TagOutcome]
		r.Total = time.Duration(ev.Value) * time.Microsecond
		o.log.Info("latency",
			"run_id", runID,
			"outcome", r.Outcome,
			"stt_ms", ms(r.STT),
			"chat_ms", ms(r.Chat),
			"tts_ms", ms(r.TTS),
			"total_ms", ms(r.Total),
		)
		delete(o.runs, runID)
		o.last = r
	}
}

// Last returns the summary of the most recently finished run.
func (o *LatencyObserver) Last() (RunLatency, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.last == nil {
		return RunLatency{}, false
	}
	return *o.last, true
}

func ms(d time.Duration) int64 {
	if d < 0 {
		return -1
	}
	return d.Milliseconds()
}
