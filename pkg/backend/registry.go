package backend

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/harunnryd/voxrelay/pkg/config"
	"github.com/harunnryd/voxrelay/pkg/configutil"
	"github.com/harunnryd/voxrelay/pkg/providers"
	"github.com/harunnryd/voxrelay/pkg/providers/deepgram"
	"github.com/harunnryd/voxrelay/pkg/providers/elevenlabs"
	"github.com/harunnryd/voxrelay/pkg/providers/mock"
	"github.com/harunnryd/voxrelay/pkg/providers/openai"
)

// BuildContext is what a provider builder gets to work with.
type BuildContext struct {
	Settings map[string]any
	// Model is the resolved STT_MODEL/LLM_MODEL/TTS_MODEL for the stage.
	Model  Model
	Lookup func(string) (string, bool)
	Logger *slog.Logger
}

func (b BuildContext) secret(settingsValue, envVar string) string {
	if strings.TrimSpace(settingsValue) != "" {
		return settingsValue
	}
	if b.Lookup != nil {
		if v, ok := b.Lookup(envVar); ok {
			return v
		}
	}
	return ""
}

type STTBuilder func(BuildContext) (providers.STT, error)
type ChatBuilder func(BuildContext) (providers.Chat, error)
type TTSBuilder func(BuildContext) (providers.TTS, error)

// ProviderRegistry maps provider names from vendors.<stage>.provider to
// builders. Names are case-insensitive.
type ProviderRegistry struct {
	stt  map[string]STTBuilder
	chat map[string]ChatBuilder
	tts  map[string]TTSBuilder
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		stt:  make(map[string]STTBuilder),
		chat: make(map[string]ChatBuilder),
		tts:  make(map[string]TTSBuilder),
	}
}

func key(name string) string { return strings.ToLower(strings.TrimSpace(name)) }

func (r *ProviderRegistry) RegisterSTT(name string, b STTBuilder)   { r.stt[key(name)] = b }
func (r *ProviderRegistry) RegisterChat(name string, b ChatBuilder) { r.chat[key(name)] = b }
func (r *ProviderRegistry) RegisterTTS(name string, b TTSBuilder)   { r.tts[key(name)] = b }

func (r *ProviderRegistry) BuildSTT(vc config.VendorConfig, bc BuildContext) (providers.STT, error) {
	b := r.stt[key(vc.Provider)]
	if b == nil {
		return nil, fmt.Errorf("stt provider not registered: %s (have %s)", vc.Provider, names(r.stt))
	}
	bc.Settings = vc.Settings
	return b(bc)
}

func (r *ProviderRegistry) BuildChat(vc config.VendorConfig, bc BuildContext) (providers.Chat, error) {
	b := r.chat[key(vc.Provider)]
	if b == nil {
		return nil, fmt.Errorf("llm provider not registered: %s (have %s)", vc.Provider, names(r.chat))
	}
	bc.Settings = vc.Settings
	return b(bc)
}

func (r *ProviderRegistry) BuildTTS(vc config.VendorConfig, bc BuildContext) (providers.TTS, error) {
	b := r.tts[key(vc.Provider)]
	if b == nil {
		return nil, fmt.Errorf("tts provider not registered: %s (have %s)", vc.Provider, names(r.tts))
	}
	bc.Settings = vc.Settings
	return b(bc)
}

func names[T any](m map[string]T) string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return strings.Join(out, ", ")
}

var openaiSchema = configutil.Schema{Optional: []string{"api_key", "base_url", "model", "voice", "system_prompt"}}

// DefaultRegistry registers every bundled provider.
func DefaultRegistry() *ProviderRegistry {
	r := NewProviderRegistry()

	r.RegisterSTT("mock", func(bc BuildContext) (providers.STT, error) {
		var cfg mock.STTConfig
		if err := configutil.Decode("mock stt", bc.Settings, configutil.Schema{Optional: []string{"transcript"}}, &cfg); err != nil {
			return nil, err
		}
		return mock.NewSTT(cfg), nil
	})
	r.RegisterSTT("openai", func(bc BuildContext) (providers.STT, error) {
		cfg, err := decodeOpenAI("openai stt", bc)
		if err != nil {
			return nil, err
		}
		return openai.NewSTT(cfg)
	})
	r.RegisterSTT("deepgram", func(bc BuildContext) (providers.STT, error) {
		var cfg deepgram.Config
		schema := configutil.Schema{Optional: []string{"api_key", "model", "language", "smart_format"}}
		if err := configutil.Decode("deepgram stt", bc.Settings, schema, &cfg); err != nil {
			return nil, err
		}
		cfg.APIKey = bc.secret(cfg.APIKey, "DEEPGRAM_API_KEY")
		if cfg.Model == "" {
			cfg.Model = bc.Model.Explicit()
		}
		cfg.Logger = bc.Logger
		return deepgram.New(cfg)
	})

	r.RegisterChat("mock", func(bc BuildContext) (providers.Chat, error) {
		var cfg mock.ChatConfig
		if err := configutil.Decode("mock llm", bc.Settings, configutil.Schema{Optional: []string{"reply"}}, &cfg); err != nil {
			return nil, err
		}
		return mock.NewChat(cfg), nil
	})
	r.RegisterChat("openai", func(bc BuildContext) (providers.Chat, error) {
		cfg, err := decodeOpenAI("openai llm", bc)
		if err != nil {
			return nil, err
		}
		return openai.NewChat(cfg)
	})

	r.RegisterTTS("mock", func(bc BuildContext) (providers.TTS, error) {
		var cfg mock.TTSConfig
		schema := configutil.Schema{Optional: []string{"sample_rate", "frequency", "per_rune", "max_length"}}
		if err := configutil.Decode("mock tts", bc.Settings, schema, &cfg); err != nil {
			return nil, err
		}
		return mock.NewTTS(cfg), nil
	})
	r.RegisterTTS("openai", func(bc BuildContext) (providers.TTS, error) {
		cfg, err := decodeOpenAI("openai tts", bc)
		if err != nil {
			return nil, err
		}
		return openai.NewTTS(cfg)
	})
	r.RegisterTTS("elevenlabs", func(bc BuildContext) (providers.TTS, error) {
		var cfg elevenlabs.Config
		schema := configutil.Schema{Optional: []string{"api_key", "voice_id", "model_id", "sample_rate", "base_url"}}
		if err := configutil.Decode("elevenlabs tts", bc.Settings, schema, &cfg); err != nil {
			return nil, err
		}
		cfg.APIKey = bc.secret(cfg.APIKey, "ELEVENLABS_API_KEY")
		if cfg.ModelID == "" {
			cfg.ModelID = bc.Model.Explicit()
		}
		cfg.Logger = bc.Logger
		return elevenlabs.New(cfg)
	})
	return r
}

func decodeOpenAI(provider string, bc BuildContext) (openai.Config, error) {
	var cfg openai.Config
	if err := configutil.Decode(provider, bc.Settings, openaiSchema, &cfg); err != nil {
		return cfg, err
	}
	cfg.APIKey = bc.secret(cfg.APIKey, "OPENAI_API_KEY")
	if cfg.Model == "" {
		cfg.Model = bc.Model.Explicit()
	}
	return cfg, nil
}
