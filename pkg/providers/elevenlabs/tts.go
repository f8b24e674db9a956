// Package elevenlabs synthesizes speech with the ElevenLabs REST API and
// returns it as WAV.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/harunnryd/voxrelay/pkg/audio"
	"github.com/harunnryd/voxrelay/pkg/logging"
	"github.com/harunnryd/voxrelay/pkg/providers"
	"github.com/harunnryd/voxrelay/pkg/resilience"
)

const (
	DefaultBaseURL = "https://api.elevenlabs.io"
	DefaultModelID = "eleven_turbo_v2_5"
)

// Config is decoded from vendors.tts.settings.
type Config struct {
	APIKey     string       `mapstructure:"api_key"`
	VoiceID    string       `mapstructure:"voice_id"`
	ModelID    string       `mapstructure:"model_id"`
	SampleRate int          `mapstructure:"sample_rate"`
	BaseURL    string       `mapstructure:"base_url"`
	HTTPClient *http.Client `mapstructure:"-"`
	Logger     *slog.Logger `mapstructure:"-"`
}

type TTS struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

func New(cfg Config) (*TTS, error) {
	if cfg.APIKey == "" || cfg.VoiceID == "" {
		return nil, errors.New("elevenlabs: api key and voice id are required")
	}
	if cfg.ModelID == "" {
		cfg.ModelID = DefaultModelID
	}
	switch cfg.SampleRate {
	case 16000, 22050, 24000, 44100:
	default:
		cfg.SampleRate = 16000
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	base := cfg.Logger
	if base == nil {
		base = slog.Default()
	}
	return &TTS{cfg: cfg, client: client, logger: logging.NewComponentLogger(base, "elevenlabs_tts")}, nil
}

func (s *TTS) Name() string  { return "elevenlabs" }
func (s *TTS) Model() string { return s.cfg.ModelID }

// Synthesize requests raw 16-bit PCM and wraps it in a WAV container.
func (s *TTS) Synthesize(ctx context.Context, text string) ([]byte, error) {
	body, err := json.Marshal(map[string]any{
		"text":     text,
		"model_id": s.cfg.ModelID,
		"voice_settings": map[string]any{
			"stability":        0.5,
			"similarity_boost": 0.8,
		},
	})
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("output_format", "pcm_"+strconv.Itoa(s.cfg.SampleRate))
	endpoint := s.cfg.BaseURL + "/v1/text-to-speech/" + url.PathEscape(s.cfg.VoiceID) + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", s.cfg.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: %w", err)
	}
	defer resp.Body.Close()
	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: read body: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		s.logger.Warn("elevenlabs_rate_limited", "status", resp.Status, "voice_id", s.cfg.VoiceID)
		return nil, resilience.RateLimitError{Provider: "elevenlabs", Message: resp.Status}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.logger.Warn("elevenlabs_synthesize_failed", "status", resp.StatusCode)
		return nil, fmt.Errorf("elevenlabs: status %d: %s", resp.StatusCode, strings.TrimSpace(string(pcm)))
	}
	s.logger.Debug("elevenlabs_synthesized", "chars", len(text), "bytes", len(pcm))
	return audio.EncodePCM16(decodePCM16LE(pcm), s.cfg.SampleRate)
}

func decodePCM16LE(b []byte) []int {
	out := make([]int, len(b)/2)
	for i := range out {
		out[i] = int(int16(binary.LittleEndian.Uint16(b[2*i:])))
	}
	return out
}

var _ providers.TTS = (*TTS)(nil)
