// Package deepgram transcribes uploaded recordings with Deepgram's
// pre-recorded REST API.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"

	"github.com/harunnryd/voxrelay/pkg/logging"
	"github.com/harunnryd/voxrelay/pkg/providers"
	"github.com/harunnryd/voxrelay/pkg/resilience"
)

const DefaultModel = "nova-2"

// Config is decoded from vendors.stt.settings.
type Config struct {
	APIKey      string       `mapstructure:"api_key"`
	Model       string       `mapstructure:"model"`
	Language    string       `mapstructure:"language"`
	SmartFormat *bool        `mapstructure:"smart_format"`
	Logger      *slog.Logger `mapstructure:"-"`
}

// transcribeFunc performs the vendor call and returns the raw response.
type transcribeFunc func(ctx context.Context, r io.Reader, opts *interfaces.PreRecordedTranscriptionOptions) (any, error)

type STT struct {
	cfg    Config
	call   transcribeFunc
	logger *slog.Logger
}

func New(cfg Config) (*STT, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("deepgram: api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	dg := api.New(client.NewREST(cfg.APIKey, &interfaces.ClientOptions{}))
	call := func(ctx context.Context, r io.Reader, opts *interfaces.PreRecordedTranscriptionOptions) (any, error) {
		return dg.FromStream(ctx, r, opts)
	}
	return newWithCall(cfg, call), nil
}

func newWithCall(cfg Config, call transcribeFunc) *STT {
	base := cfg.Logger
	if base == nil {
		base = slog.Default()
	}
	return &STT{cfg: cfg, call: call, logger: logging.NewComponentLogger(base, "deepgram_stt")}
}

func (s *STT) Name() string  { return "deepgram" }
func (s *STT) Model() string { return s.cfg.Model }

func (s *STT) Transcribe(ctx context.Context, in providers.Audio) (string, error) {
	smart := true
	if s.cfg.SmartFormat != nil {
		smart = *s.cfg.SmartFormat
	}
	opts := &interfaces.PreRecordedTranscriptionOptions{
		Model:       s.cfg.Model,
		Language:    s.cfg.Language,
		SmartFormat: smart,
		Punctuate:   true,
	}
	raw, err := s.call(ctx, bytes.NewReader(in.Data), opts)
	if err != nil {
		s.logger.Warn("deepgram_transcribe_failed", "error", err.Error())
		return "", classify(err)
	}
	text, err := transcriptOf(raw)
	if err != nil {
		return "", err
	}
	s.logger.Debug("deepgram_transcribed", "bytes", len(in.Data), "chars", len(text))
	return text, nil
}

type prerecorded struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string `json:"transcript"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// transcriptOf extracts the first alternative of the first channel. An
// answer with no channels is treated as silence.
func transcriptOf(raw any) (string, error) {
	b, err := json.Marshal(raw)
	if err != nil {
		return "", fmt.Errorf("deepgram: encode response: %w", err)
	}
	var res prerecorded
	if err := json.Unmarshal(b, &res); err != nil {
		return "", fmt.Errorf("deepgram: decode response: %w", err)
	}
	if len(res.Results.Channels) == 0 || len(res.Results.Channels[0].Alternatives) == 0 {
		return "", nil
	}
	return res.Results.Channels[0].Alternatives[0].Transcript, nil
}

// classify maps vendor rate limiting to resilience.RateLimitError. The SDK
// surfaces the status only in the message.
func classify(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "429") || strings.Contains(strings.ToLower(msg), "too many requests") {
		return resilience.RateLimitError{Provider: "deepgram", Message: msg}
	}
	return fmt.Errorf("deepgram: %w", err)
}

var _ providers.STT = (*STT)(nil)
