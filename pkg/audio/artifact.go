// Package audio holds the opaque payloads that move through the voice
// pipeline: the recorded artifact and the synthesized reply.
package audio

import (
	"bytes"
	"io"
	"time"
)

const (
	MIMEWebM = "audio/webm"
	MIMEWAV  = "audio/wav"
)

// Artifact is the immutable result of one recording cycle.
type Artifact struct {
	data       []byte
	mimeType   string
	capturedAt time.Time
	duration   time.Duration
}

// NewArtifact copies data into a new artifact. An empty mimeType defaults to audio/webm.
func NewArtifact(data []byte, mimeType string, capturedAt time.Time, duration time.Duration) *Artifact {
	if mimeType == "" {
		mimeType = MIMEWebM
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return &Artifact{
		data:       buf,
		mimeType:   mimeType,
		capturedAt: capturedAt,
		duration:   duration,
	}
}

// Concat joins fragments in order into one artifact.
func Concat(fragments [][]byte, mimeType string, capturedAt time.Time, duration time.Duration) *Artifact {
	size := 0
	for _, f := range fragments {
		size += len(f)
	}
	buf := make([]byte, 0, size)
	for _, f := range fragments {
		buf = append(buf, f...)
	}
	a := NewArtifact(nil, mimeType, capturedAt, duration)
	a.data = buf
	return a
}

// Bytes returns a copy of the payload.
func (a *Artifact) Bytes() []byte {
	if a == nil {
		return nil
	}
	out := make([]byte, len(a.data))
	copy(out, a.data)
	return out
}

// Reader returns a read-only view of the payload.
func (a *Artifact) Reader() io.Reader {
	if a == nil {
		return bytes.NewReader(nil)
	}
	return bytes.NewReader(a.data)
}

func (a *Artifact) Size() int {
	if a == nil {
		return 0
	}
	return len(a.data)
}

func (a *Artifact) Empty() bool { return a.Size() == 0 }

func (a *Artifact) MIMEType() string {
	if a == nil {
		return MIMEWebM
	}
	return a.mimeType
}

func (a *Artifact) CapturedAt() time.Time {
	if a == nil {
		return time.Time{}
	}
	return a.capturedAt
}

// Duration is the wall time between recorder start and stop.
func (a *Artifact) Duration() time.Duration {
	if a == nil {
		return 0
	}
	return a.duration
}

// Synthesized is the TTS response payload handed to playback.
type Synthesized struct {
	Data        []byte
	ContentType string
}

func (s Synthesized) Size() int { return len(s.Data) }

// MIMEType returns the declared content type, defaulting to audio/wav.
func (s Synthesized) MIMEType() string {
	if s.ContentType == "" {
		return MIMEWAV
	}
	return s.ContentType
}
