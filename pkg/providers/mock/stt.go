// Package mock provides offline providers for local development and tests.
package mock

import (
	"context"

	"github.com/harunnryd/voxrelay/pkg/providers"
)

type STTConfig struct {
	// Transcript is returned for every upload.
	Transcript string `mapstructure:"transcript"`
	// Err, when set, is returned instead.
	Err error `mapstructure:"-"`
}

type STT struct {
	cfg STTConfig
}

func NewSTT(cfg STTConfig) *STT {
	if cfg.Transcript == "" {
		cfg.Transcript = "hello"
	}
	return &STT{cfg: cfg}
}

func (s *STT) Name() string  { return "mock" }
func (s *STT) Model() string { return "mock-stt" }

func (s *STT) Transcribe(ctx context.Context, in providers.Audio) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.cfg.Err != nil {
		return "", s.cfg.Err
	}
	return s.cfg.Transcript, nil
}

var _ providers.STT = (*STT)(nil)
