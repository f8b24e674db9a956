package cli

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/voxrelay/pkg/config"
	"github.com/harunnryd/voxrelay/pkg/logging"
	"github.com/harunnryd/voxrelay/pkg/metrics"
	"github.com/harunnryd/voxrelay/pkg/observers"
	"github.com/harunnryd/voxrelay/pkg/pipeline"
	"github.com/harunnryd/voxrelay/pkg/recorder"
	"github.com/harunnryd/voxrelay/pkg/sink"
	"github.com/harunnryd/voxrelay/pkg/sink/wsbroadcast"
	"github.com/harunnryd/voxrelay/pkg/stages"
)

// stackOptions select the optional parts of a client stack.
type stackOptions struct {
	NoPlay bool
	UI     bool
	// Events, when set, receives every metrics event as JSON lines.
	Events io.Writer
}

// stack is everything one client command needs to run the pipeline.
type stack struct {
	orch    *pipeline.Orchestrator
	out     io.Writer
	console *sink.Console
	player  *sink.Player
	hub     *wsbroadcast.Hub
	latency *observers.LatencyObserver

	async    *metrics.AsyncObserver
	timeline *observers.TimelineObserver
}

func (d *Dependencies) buildStack(opts stackOptions) (*stack, error) {
	cfg := d.Config
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	purgeArtifacts(cfg, log)

	st := &stack{latency: observers.NewLatencyObserver(logging.NewComponentLogger(log, "latency"))}
	list := []metrics.Observer{
		observers.NewLoggerObserver(logging.NewComponentLogger(log, "metrics")),
		st.latency,
	}
	if dir := cfg.Observability.ArtifactsDir; dir != "" {
		st.timeline = observers.NewTimelineObserver(dir)
		list = append(list, st.timeline, observers.NewUsageObserver(dir))
	}
	if opts.Events != nil {
		list = append(list, metrics.NewJSONLObserver(opts.Events))
	}
	st.async = metrics.NewAsyncObserver(observers.NewMultiObserver(list...), 256)

	st.out = &lockedWriter{w: d.Out}
	st.console = sink.NewConsole(st.out)
	sinks := []pipeline.Sink{st.console}
	if !opts.NoPlay {
		st.player = sink.NewPlayer(sink.PlayerConfig{
			Dir:      cfg.Playback.Dir,
			Command:  cfg.Playback.Command,
			Logger:   logging.NewComponentLogger(log, "player"),
			Observer: st.async,
		})
		sinks = append(sinks, st.player)
	}
	if opts.UI {
		st.hub = wsbroadcast.New(wsbroadcast.Config{
			Addr:           cfg.UI.Addr,
			AllowedOrigins: cfg.UI.AllowedOrigins,
			Logger:         logging.NewComponentLogger(log, "ui"),
		})
		sinks = append(sinks, st.hub)
	}

	stageOpts := stages.Options{BaseURL: cfg.BackendURL, Timeout: cfg.StageTimeout()}
	orch, err := pipeline.New(pipeline.Config{
		STT:      stages.NewSTTClient(stageOpts),
		Chat:     stages.NewChatClient(stageOpts),
		TTS:      stages.NewTTSClient(stageOpts),
		Sink:     sink.NewMulti(sinks...),
		Observer: st.async,
		Logger:   logging.NewComponentLogger(log, "pipeline"),
	})
	if err != nil {
		st.close()
		return nil, err
	}
	st.orch = orch
	return st, nil
}

// close waits for playback to be handed off and flushes observers.
func (s *stack) close() {
	if s.player != nil {
		s.player.Wait()
	}
	s.async.Close()
	if s.timeline != nil {
		_ = s.timeline.Close()
	}
}

// newRecorder builds the capture side from recorder.* settings.
func (d *Dependencies) newRecorder(listeners ...recorder.StateListener) *recorder.Recorder {
	cfg := d.Config.Recorder
	return recorder.New(newSource(cfg, d.In), recorder.Config{
		DrainTimeout: d.Config.RecorderDrainTimeout(),
		Listeners:    listeners,
		Logger:       logging.NewComponentLogger(d.Logger, "recorder"),
	})
}

func newSource(cfg config.RecorderConfig, stdin io.Reader) recorder.Source {
	if cfg.Source == "file" {
		if cfg.File == "-" {
			return &recorder.ReaderSource{Reader: stdin, FragmentSize: cfg.FragmentSize}
		}
		return &recorder.FileSource{Path: cfg.File, FragmentSize: cfg.FragmentSize}
	}
	return &recorder.FFmpegSource{
		Path:           cfg.FFmpegPath,
		InputFormat:    cfg.InputFormat,
		InputDevice:    cfg.InputDevice,
		SampleRate:     cfg.SampleRate,
		FragmentSize:   cfg.FragmentSize,
		StartupTimeout: time.Duration(cfg.StartupTimeoutMS) * time.Millisecond,
	}
}

// purgeArtifacts applies the retention window to timeline and playback
// files left by earlier runs.
func purgeArtifacts(cfg config.Config, log *slog.Logger) {
	maxAge := cfg.Retention()
	if maxAge <= 0 {
		return
	}
	for dir, exts := range map[string][]string{
		cfg.Observability.ArtifactsDir: {".jsonl", ".json"},
		cfg.Playback.Dir:               {".wav"},
	} {
		if dir == "" {
			continue
		}
		n, err := observers.PurgeArtifacts(dir, maxAge, exts...)
		if err != nil {
			log.Warn("artifact_purge_failed", "dir", dir, "error", err.Error())
			continue
		}
		if n > 0 {
			log.Info("artifacts_purged", "dir", dir, "removed", n)
		}
	}
}

// lockedWriter serializes console output from the pipeline and the
// command loop.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
