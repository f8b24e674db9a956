package sink

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/harunnryd/voxrelay/pkg/audio"
	"github.com/harunnryd/voxrelay/pkg/metrics"
	"github.com/harunnryd/voxrelay/pkg/pipeline"
)

// PlayerConfig configures a Player.
type PlayerConfig struct {
	// Dir receives reply-<timestamp>.wav files. Defaults to the OS temp dir.
	Dir string
	// Command is the player invocation; the file path is appended.
	// Empty means write only.
	Command  []string
	Logger   *slog.Logger
	Observer metrics.Observer
}

// Player writes synthesized speech to disk and hands it to an external
// player without waiting for playback to finish. It ignores text updates.
type Player struct {
	cfg PlayerConfig
	log *slog.Logger
	obs metrics.Observer
	now func() time.Time

	wg       sync.WaitGroup
	mu       sync.Mutex
	lastPath string
}

func NewPlayer(cfg PlayerConfig) *Player {
	if cfg.Dir == "" {
		cfg.Dir = os.TempDir()
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Player{cfg: cfg, log: log, obs: metrics.OrNoop(cfg.Observer), now: time.Now}
}

func (p *Player) Reset() {}
func (p *Player) Status(pipeline.Status) {}
func (p *Player) Transcript(string) {}
func (p *Player) Reply(string) {}
func (p *Player) Warn(string) {}

// Play stores the payload and starts the player command in the background.
func (p *Player) Play(a audio.Synthesized) {
	path, err := p.write(a)
	if err != nil {
		p.log.Error("playback_write_failed", "error", err.Error())
		return
	}
	attrs := []any{"path", path, "bytes", a.Size(), "mime", a.MIMEType()}
	fields := map[string]any{"bytes": a.Size()}
	if info, err := audio.DescribeWAV(a.Data); err == nil {
		attrs = append(attrs, "sample_rate", info.SampleRate, "channels", info.Channels, "duration_ms", info.Duration.Milliseconds())
		fields["duration_ms"] = info.Duration.Milliseconds()
	} else {
		attrs = append(attrs, "wav", "unrecognized")
	}
	p.log.Info("playback_started", attrs...)
	p.obs.RecordEvent(metrics.MetricsEvent{
		Name:   metrics.EventPlayback,
		Time:   p.now(),
		Value:  float64(a.Size()),
		Fields: fields,
	})

	if len(p.cfg.Command) == 0 {
		return
	}
	args := append(append([]string(nil), p.cfg.Command[1:]...), path)
	cmd := exec.Command(p.cfg.Command[0], args...)
	if err := cmd.Start(); err != nil {
		p.log.Warn("playback_command_failed", "command", p.cfg.Command[0], "error", err.Error())
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := cmd.Wait(); err != nil {
			p.log.Warn("playback_command_exited", "command", p.cfg.Command[0], "error", err.Error())
		}
	}()
}

// LastPath returns the most recently written file.
func (p *Player) LastPath() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastPath
}

// Wait blocks until launched player commands exit. Used on shutdown.
func (p *Player) Wait() { p.wg.Wait() }

func (p *Player) write(a audio.Synthesized) (string, error) {
	if err := os.MkdirAll(p.cfg.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create playback dir: %w", err)
	}
	name := fmt.Sprintf("reply-%s.wav", p.now().UTC().Format("20060102T150405.000000000"))
	path := filepath.Join(p.cfg.Dir, name)
	if err := os.WriteFile(path, a.Data, 0o644); err != nil {
		return "", fmt.Errorf("write playback file: %w", err)
	}
	p.mu.Lock()
	p.lastPath = path
	p.mu.Unlock()
	return path, nil
}

var _ pipeline.Sink = (*Player)(nil)
