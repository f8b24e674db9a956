package backend

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Model variables and their defaults.
const (
	EnvSTTModel = "STT_MODEL"
	EnvLLMModel = "LLM_MODEL"
	EnvTTSModel = "TTS_MODEL"

	DefaultSTTModel = "openai/whisper-small"
	DefaultLLMModel = "HuggingFaceH4/zephyr-7b-beta"
	DefaultTTSModel = "espnet/kan-bayashi_ljspeech_vits"
)

// secretVars are only honoured from the process environment.
var secretVars = []string{"OPENAI_API_KEY", "DEEPGRAM_API_KEY", "ELEVENLABS_API_KEY", "HF_TOKEN"}

// Source says where a resolved value came from.
type Source string

const (
	SourceDotEnv  Source = "dotenv"
	SourceEnv     Source = "env"
	SourceDefault Source = "default"
)

// Model is one resolved model name.
type Model struct {
	Name   string
	Source Source
}

// Models are the per-stage model names reported by /health and used by
// providers that have no explicit model setting.
type Models struct {
	STT Model
	LLM Model
	TTS Model
}

// ResolveModels reads envFile without touching the process environment and
// resolves each model as .env, then environment, then default. Secrets that
// only appear in envFile are reported and ignored.
func ResolveModels(envFile string, lookup func(string) (string, bool), log *slog.Logger) (Models, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if log == nil {
		log = slog.Default()
	}
	dotenv := map[string]string{}
	if envFile != "" {
		vals, err := godotenv.Read(envFile)
		switch {
		case err == nil:
			dotenv = vals
		case errors.Is(err, fs.ErrNotExist):
		default:
			return Models{}, err
		}
	}
	for _, k := range secretVars {
		if _, inFile := dotenv[k]; !inFile {
			continue
		}
		if _, inEnv := lookup(k); !inEnv {
			log.Warn("backend_secret_in_dotenv_ignored", "var", k, "file", envFile)
		}
	}
	resolve := func(key, def string) Model {
		if v := strings.TrimSpace(dotenv[key]); v != "" {
			return Model{Name: v, Source: SourceDotEnv}
		}
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return Model{Name: strings.TrimSpace(v), Source: SourceEnv}
		}
		return Model{Name: def, Source: SourceDefault}
	}
	return Models{
		STT: resolve(EnvSTTModel, DefaultSTTModel),
		LLM: resolve(EnvLLMModel, DefaultLLMModel),
		TTS: resolve(EnvTTSModel, DefaultTTSModel),
	}, nil
}

// Explicit returns the name when it was configured rather than defaulted.
func (m Model) Explicit() string {
	if m.Source == SourceDefault {
		return ""
	}
	return m.Name
}
