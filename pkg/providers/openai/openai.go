// Package openai backs the dev backend with the OpenAI audio and chat APIs.
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/harunnryd/voxrelay/pkg/providers"
	"github.com/harunnryd/voxrelay/pkg/resilience"
)

const (
	DefaultSTTModel  = goopenai.Whisper1
	DefaultChatModel = goopenai.GPT4oMini
	DefaultTTSModel  = string(goopenai.TTSModel1)
	DefaultVoice     = string(goopenai.VoiceAlloy)
)

// Config is decoded from vendors.<stage>.settings.
type Config struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
	Voice   string `mapstructure:"voice"`
	// SystemPrompt is prepended to every chat request when set.
	SystemPrompt string `mapstructure:"system_prompt"`
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client `mapstructure:"-"`
}

func newClient(cfg Config) (*goopenai.Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("openai: api key is required")
	}
	oc := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	}
	return goopenai.NewClientWithConfig(oc), nil
}

// STT transcribes with Whisper.
type STT struct {
	client *goopenai.Client
	model  string
}

func NewSTT(cfg Config) (*STT, error) {
	c, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Model == "" {
		cfg.Model = DefaultSTTModel
	}
	return &STT{client: c, model: cfg.Model}, nil
}

func (s *STT) Name() string  { return "openai" }
func (s *STT) Model() string { return s.model }

func (s *STT) Transcribe(ctx context.Context, in providers.Audio) (string, error) {
	name := in.Filename
	if name == "" {
		name = "input.webm"
	}
	resp, err := s.client.CreateTranscription(ctx, goopenai.AudioRequest{
		Model:    s.model,
		FilePath: name,
		Reader:   bytes.NewReader(in.Data),
	})
	if err != nil {
		return "", classify(err)
	}
	return resp.Text, nil
}

// Chat answers one prompt with a chat completion.
type Chat struct {
	client *goopenai.Client
	model  string
	system string
}

func NewChat(cfg Config) (*Chat, error) {
	c, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Model == "" {
		cfg.Model = DefaultChatModel
	}
	return &Chat{client: c, model: cfg.Model, system: cfg.SystemPrompt}, nil
}

func (c *Chat) Name() string  { return "openai" }
func (c *Chat) Model() string { return c.model }

func (c *Chat) Complete(ctx context.Context, prompt string) (string, error) {
	var msgs []goopenai.ChatCompletionMessage
	if c.system != "" {
		msgs = append(msgs, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleSystem, Content: c.system})
	}
	msgs = append(msgs, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser, Content: prompt})
	resp, err := c.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    msgs,
		MaxTokens:   providers.MaxTokens,
		Temperature: providers.Temperature,
	})
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// TTS synthesizes speech as WAV.
type TTS struct {
	client *goopenai.Client
	model  string
	voice  string
}

func NewTTS(cfg Config) (*TTS, error) {
	c, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Model == "" {
		cfg.Model = DefaultTTSModel
	}
	if cfg.Voice == "" {
		cfg.Voice = DefaultVoice
	}
	return &TTS{client: c, model: cfg.Model, voice: cfg.Voice}, nil
}

func (t *TTS) Name() string  { return "openai" }
func (t *TTS) Model() string { return t.model }

func (t *TTS) Synthesize(ctx context.Context, text string) ([]byte, error) {
	resp, err := t.client.CreateSpeech(ctx, goopenai.CreateSpeechRequest{
		Model:          goopenai.SpeechModel(t.model),
		Input:          text,
		Voice:          goopenai.SpeechVoice(t.voice),
		ResponseFormat: goopenai.SpeechResponseFormatWav,
	})
	if err != nil {
		return nil, classify(err)
	}
	defer resp.Close()
	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("openai: read speech: %w", err)
	}
	return data, nil
}

// classify turns HTTP 429 responses into resilience.RateLimitError.
func classify(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return resilience.RateLimitError{Provider: "openai", Message: apiErr.Message}
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
		return resilience.RateLimitError{Provider: "openai", Message: reqErr.Error()}
	}
	return fmt.Errorf("openai: %w", err)
}

var (
	_ providers.STT  = (*STT)(nil)
	_ providers.Chat = (*Chat)(nil)
	_ providers.TTS  = (*TTS)(nil)
)
