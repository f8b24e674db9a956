// Package providers defines the vendor-facing speech and language
// services behind the dev backend. Subpackages implement them.
package providers

import "context"

// Audio is an uploaded recording as received by the backend.
type Audio struct {
	Data     []byte
	Filename string
	MIME     string
}

// STT transcribes a complete recording.
type STT interface {
	Name() string
	Model() string
	Transcribe(ctx context.Context, in Audio) (string, error)
}

// Chat produces one reply for one prompt; no history is kept.
type Chat interface {
	Name() string
	Model() string
	Complete(ctx context.Context, prompt string) (string, error)
}

// TTS synthesizes text to a WAV payload.
type TTS interface {
	Name() string
	Model() string
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Generation parameters shared by chat providers.
const (
	MaxTokens   = 256
	Temperature = 0.3
)
