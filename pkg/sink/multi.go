package sink

import (
	"github.com/harunnryd/voxrelay/pkg/audio"
	"github.com/harunnryd/voxrelay/pkg/pipeline"
)

// Multi fans every update out to a list of sinks, in order.
type Multi struct {
	list []pipeline.Sink
}

func NewMulti(list ...pipeline.Sink) *Multi {
	out := make([]pipeline.Sink, 0, len(list))
	for _, s := range list {
		if s != nil {
			out = append(out, s)
		}
	}
	return &Multi{list: out}
}

func (m *Multi) Reset() {
	for _, s := range m.list {
		s.Reset()
	}
}

func (m *Multi) Status(st pipeline.Status) {
	for _, s := range m.list {
		s.Status(st)
	}
}

func (m *Multi) Transcript(text string) {
	for _, s := range m.list {
		s.Transcript(text)
	}
}

func (m *Multi) Reply(text string) {
	for _, s := range m.list {
		s.Reply(text)
	}
}

func (m *Multi) Warn(msg string) {
	for _, s := range m.list {
		s.Warn(msg)
	}
}

func (m *Multi) Play(a audio.Synthesized) {
	for _, s := range m.list {
		s.Play(a)
	}
}

var _ pipeline.Sink = (*Multi)(nil)
