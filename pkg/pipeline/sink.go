package pipeline

import "github.com/harunnryd/voxrelay/pkg/audio"

// Status is a progress or failure notice shown to the user.
type Status string

const (
	StatusTranscribing Status = "transcribing"
	StatusThinking     Status = "thinking"
	StatusSTTError     Status = "STT error"
	StatusLLMError     Status = "LLM error"
)

const (
	// NoSpeechDetected is displayed in place of an empty transcript.
	NoSpeechDetected = "(no speech detected)"
	// TTSWarning is the warning recorded when synthesis fails.
	TTSWarning = "TTS error"
)

// Sink receives everything a run wants the user to see or hear.
// Implementations must not block for long; Play in particular is
// fire-and-forget.
type Sink interface {
	// Reset clears the previous reply and audio before a run starts.
	Reset()
	Status(s Status)
	Transcript(text string)
	Reply(text string)
	Warn(msg string)
	Play(a audio.Synthesized)
}
