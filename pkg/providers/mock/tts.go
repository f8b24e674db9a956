package mock

import (
	"context"
	"math"
	"time"
	"unicode/utf8"

	"github.com/harunnryd/voxrelay/pkg/audio"
	"github.com/harunnryd/voxrelay/pkg/providers"
)

type TTSConfig struct {
	SampleRate int     `mapstructure:"sample_rate"`
	Frequency  float64 `mapstructure:"frequency"`
	// PerRune is the tone length per character of input.
	PerRune time.Duration `mapstructure:"per_rune"`
	MaxLen  time.Duration `mapstructure:"max_length"`
	Err     error         `mapstructure:"-"`
}

// TTS renders a sine tone whose length follows the input text, wrapped in
// a 16-bit mono WAV container.
type TTS struct {
	cfg TTSConfig
}

func NewTTS(cfg TTSConfig) *TTS {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Frequency <= 0 {
		cfg.Frequency = 440
	}
	if cfg.PerRune <= 0 {
		cfg.PerRune = 40 * time.Millisecond
	}
	if cfg.MaxLen <= 0 {
		cfg.MaxLen = 5 * time.Second
	}
	return &TTS{cfg: cfg}
}

func (t *TTS) Name() string  { return "mock" }
func (t *TTS) Model() string { return "mock-tone" }

func (t *TTS) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if t.cfg.Err != nil {
		return nil, t.cfg.Err
	}
	length := time.Duration(utf8.RuneCountInString(text)) * t.cfg.PerRune
	if length > t.cfg.MaxLen {
		length = t.cfg.MaxLen
	}
	n := int(int64(length) * int64(t.cfg.SampleRate) / int64(time.Second))
	samples := make([]int, n)
	for i := range samples {
		v := math.Sin(2 * math.Pi * t.cfg.Frequency * float64(i) / float64(t.cfg.SampleRate))
		samples[i] = int(v * 0.3 * math.MaxInt16)
	}
	return audio.EncodePCM16(samples, t.cfg.SampleRate)
}

var _ providers.TTS = (*TTS)(nil)
