package metrics

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/harunnryd/voxrelay/pkg/redact"
)

// JSONLObserver appends one JSON line per pipeline event, e.g. to the file
// passed to `send --events`. Run id and stage are lifted to top-level keys
// so a line can be joined against the printed run; the remaining tags and
// fields are grouped. String fields go through the PII redactor.
type JSONLObserver struct {
	logger *slog.Logger
}

func NewJSONLObserver(w io.Writer) *JSONLObserver {
	if w == nil {
		w = io.Discard
	}
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) > 0 {
				return a
			}
			switch a.Key {
			case slog.TimeKey, slog.LevelKey, slog.MessageKey:
				return slog.Attr{}
			}
			return a
		},
	})
	return &JSONLObserver{logger: slog.New(h)}
}

func (o *JSONLObserver) RecordEvent(ev MetricsEvent) {
	ts := ev.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	attrs := []slog.Attr{
		slog.String("ts", ts.UTC().Format(time.RFC3339Nano)),
		slog.String("event", ev.Name),
	}
	if id := ev.Tags[TagRunID]; id != "" {
		attrs = append(attrs, slog.String(TagRunID, id))
	}
	if stage := ev.Tags[TagStage]; stage != "" {
		attrs = append(attrs, slog.String(TagStage, stage))
	}
	if ev.Value != 0 {
		attrs = append(attrs, slog.Float64("value", ev.Value))
		if ev.Name == EventStageLatency || ev.Name == EventStageError {
			attrs = append(attrs, slog.String("unit", "us"))
		}
	}

	var tags []any
	for _, k := range sortedKeys(ev.Tags) {
		if k == TagRunID || k == TagStage {
			continue
		}
		tags = append(tags, slog.String(k, ev.Tags[k]))
	}
	if len(tags) > 0 {
		attrs = append(attrs, slog.Group("tags", tags...))
	}

	var fields []any
	for _, k := range sortedKeys(ev.Fields) {
		v := ev.Fields[k]
		if s, ok := v.(string); ok {
			v = redact.Text(s)
		}
		fields = append(fields, slog.Any(k, v))
	}
	if len(fields) > 0 {
		attrs = append(attrs, slog.Group("fields", fields...))
	}
	o.logger.LogAttrs(context.Background(), slog.LevelInfo, "", attrs...)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
