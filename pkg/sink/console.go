// Package sink holds the presentation sinks a pipeline run reports to.
package sink

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/harunnryd/voxrelay/pkg/audio"
	"github.com/harunnryd/voxrelay/pkg/pipeline"
)

// ReplyPlaceholder is shown in the reply slot after a reset.
const ReplyPlaceholder = "—"

// Snapshot is what a Console currently displays.
type Snapshot struct {
	Transcript string
	Reply      string
	Status     pipeline.Status
	Warnings   []string
	Audio      *audio.Synthesized
}

// Console prints updates as labelled lines and remembers the last value
// of each slot.
type Console struct {
	mu    sync.Mutex
	out   io.Writer
	state Snapshot
}

func NewConsole(out io.Writer) *Console {
	if out == nil {
		out = os.Stdout
	}
	return &Console{out: out, state: Snapshot{Reply: ReplyPlaceholder}}
}

func (c *Console) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Reply = ReplyPlaceholder
	c.state.Audio = nil
	c.state.Warnings = nil
}

func (c *Console) Status(s pipeline.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Status = s
	switch s {
	case pipeline.StatusTranscribing, pipeline.StatusSTTError:
		c.state.Transcript = string(s)
		c.printf("you", "%s", s)
	default:
		c.state.Reply = string(s)
		c.printf("assistant", "%s", s)
	}
}

func (c *Console) Transcript(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Transcript = text
	c.printf("you", "%s", text)
}

func (c *Console) Reply(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Reply = text
	c.printf("assistant", "%s", text)
}

func (c *Console) Warn(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Warnings = append(c.state.Warnings, msg)
	c.printf("warning", "%s", msg)
}

func (c *Console) Play(a audio.Synthesized) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := a
	c.state.Audio = &cp
	c.printf("audio", "%d bytes (%s)", a.Size(), a.MIMEType())
}

// Snapshot returns a copy of the current display.
func (c *Console) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.state
	out.Warnings = append([]string(nil), c.state.Warnings...)
	return out
}

func (c *Console) printf(label, format string, args ...any) {
	_, _ = fmt.Fprintf(c.out, "%-10s %s\n", label+":", fmt.Sprintf(format, args...))
}

var _ pipeline.Sink = (*Console)(nil)
