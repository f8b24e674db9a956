package backend

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/harunnryd/voxrelay/pkg/config"
	"github.com/harunnryd/voxrelay/pkg/errorsx"
	"github.com/harunnryd/voxrelay/pkg/metrics"
)

// BuildOptions carry what FromConfig needs besides the config itself.
type BuildOptions struct {
	Registry *ProviderRegistry
	Lookup   func(string) (string, bool)
	Logger   *slog.Logger
	Observer metrics.Observer
}

// FromConfig resolves models, builds the configured vendor providers and
// returns a server ready to Start.
func FromConfig(cfg config.Config, opts BuildOptions) (*Server, error) {
	reg := opts.Registry
	if reg == nil {
		reg = DefaultRegistry()
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	models, err := ResolveModels(cfg.Server.EnvFile, opts.Lookup, log)
	if err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("read %s: %w", cfg.Server.EnvFile, err), errorsx.ReasonConfigInvalid)
	}

	stt, err := reg.BuildSTT(cfg.Vendors.STT, BuildContext{Model: models.STT, Lookup: opts.Lookup, Logger: log})
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonConfigInvalid)
	}
	chat, err := reg.BuildChat(cfg.Vendors.LLM, BuildContext{Model: models.LLM, Lookup: opts.Lookup, Logger: log})
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonConfigInvalid)
	}
	tts, err := reg.BuildTTS(cfg.Vendors.TTS, BuildContext{Model: models.TTS, Lookup: opts.Lookup, Logger: log})
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonConfigInvalid)
	}

	log.Info("backend_models",
		"stt", models.STT.Name, "stt_source", string(models.STT.Source),
		"llm", models.LLM.Name, "llm_source", string(models.LLM.Source),
		"tts", models.TTS.Name, "tts_source", string(models.TTS.Source),
	)
	return New(Config{
		Addr:             cfg.Server.Addr,
		STT:              stt,
		Chat:             chat,
		TTS:              tts,
		Models:           models,
		Logger:           log,
		Metrics:          metrics.NewPrometheusObserver(cfg.Observability.MetricsNamespace),
		Observer:         opts.Observer,
		BreakerThreshold: 3,
		BreakerCooldown:  30 * time.Second,
		DrainTimeout:     cfg.ServerDrainTimeout(),
	})
}
