package observers

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/voxrelay/pkg/metrics"
)

// UsageSummary is the per-run volume sent to and received from the
// backend, the inputs to provider billing.
type UsageSummary struct {
	RunID           string `json:"run_id"`
	Outcome         string `json:"outcome"`
	ArtifactBytes   int    `json:"artifact_bytes"`
	ArtifactMS      int64  `json:"artifact_ms"`
	TranscriptChars int    `json:"transcript_chars"`
	ReplyChars      int    `json:"reply_chars"`
	AudioBytes      int    `json:"audio_bytes"`
	RecordedAtUTC   string `json:"recorded_at_utc"`
}

// UsageObserver writes <dir>/<run_id>.usage.json when a run finishes.
type UsageObserver struct {
	dir   string
	mu    sync.Mutex
	stats map[string]*UsageSummary
}

func NewUsageObserver(dir string) *UsageObserver {
	return &UsageObserver{dir: dir, stats: make(map[string]*UsageSummary)}
}

func (o *UsageObserver) RecordEvent(ev metrics.MetricsEvent) {
	runID := ev.Tags[metrics.TagRunID]
	if runID == "" || strings.TrimSpace(o.dir) == "" {
		return
	}
	switch ev.Name {
	case metrics.EventRunStart:
		o.mu.Lock()
		o.stats[runID] = &UsageSummary{
			RunID:         runID,
			ArtifactBytes: intField(ev.Fields, "artifact_bytes"),
			ArtifactMS:    int64(intField(ev.Fields, "artifact_ms")),
		}
		o.mu.Unlock()
	case metrics.EventRunDone:
		o.mu.Lock()
		stat := o.stats[runID]
		delete(o.stats, runID)
		o.mu.Unlock()
		if stat == nil {
			stat = &UsageSummary{RunID: runID}
		}
		stat.Outcome = ev.Tags[metrics.TagOutcome]
		stat.TranscriptChars = intField(ev.Fields, "transcript_chars")
		stat.ReplyChars = intField(ev.Fields, "reply_chars")
		stat.AudioBytes = intField(ev.Fields, "audio_bytes")
		stat.RecordedAtUTC = ev.Time.UTC().Format(time.RFC3339)
		_ = o.write(stat)
	}
}

func (o *UsageObserver) write(stat *UsageSummary) error {
	if err := os.MkdirAll(o.dir, 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(stat, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(o.dir, sanitizeID(stat.RunID)+".usage.json"), b, 0o644)
}

func intField(fields map[string]any, key string) int {
	switch v := fields[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

var _ metrics.Observer = (*UsageObserver)(nil)
