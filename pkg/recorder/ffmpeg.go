package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/voxrelay/pkg/audio"
)

// FFmpegSource captures the default microphone through an ffmpeg subprocess
// and streams Opus-in-WebM to stdout.
type FFmpegSource struct {
	Path           string
	InputFormat    string
	InputDevice    string
	SampleRate     int
	FragmentSize   int
	StartupTimeout time.Duration
}

func (s *FFmpegSource) Name() string { return "ffmpeg" }

// CheckFFmpeg reports whether the configured binary can be found.
func (s *FFmpegSource) CheckFFmpeg() (string, error) {
	path, err := exec.LookPath(s.binary())
	if err != nil {
		return "", fmt.Errorf("%w: ffmpeg not found (%v)", ErrDeviceUnavailable, err)
	}
	return path, nil
}

func (s *FFmpegSource) Open(ctx context.Context) (Capture, error) {
	path, err := s.CheckFFmpeg()
	if err != nil {
		return nil, err
	}
	cmd := exec.Command(path, s.Args()...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	stderr := &tailBuffer{limit: 8 << 10}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start ffmpeg: %v", ErrDeviceUnavailable, err)
	}

	size := s.FragmentSize
	if size <= 0 {
		size = defaultFragmentSize
	}
	type readResult struct {
		data []byte
		err  error
	}
	first := make(chan readResult, 1)
	go func() {
		buf := make([]byte, size)
		n, err := stdout.Read(buf)
		first <- readResult{data: buf[:n], err: err}
	}()

	timeout := s.StartupTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-first:
		if len(res.data) == 0 {
			<-waitAsync(cmd)
			return nil, classifyCaptureFailure(stderr.String())
		}
		c := newStreamCapture(stdout, audio.MIMEWebM, size)
		c.prefix = [][]byte{res.data}
		c.stopFn = func() error { return interrupt(cmd) }
		c.finishFn = func(stopping bool) error {
			err := cmd.Wait()
			if err != nil && !stopping {
				return fmt.Errorf("ffmpeg exited: %w: %s", err, lastLine(stderr.String()))
			}
			return nil
		}
		return c.start(), nil
	case <-timer.C:
		_ = cmd.Process.Kill()
		<-first
		<-waitAsync(cmd)
		return nil, fmt.Errorf("%w: no audio within %s", ErrDeviceUnavailable, timeout)
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-first
		<-waitAsync(cmd)
		return nil, ctx.Err()
	}
}

// Args builds the ffmpeg command line.
func (s *FFmpegSource) Args() []string {
	format, device := defaultInput(runtime.GOOS)
	if s.InputFormat != "" {
		format = s.InputFormat
	}
	if s.InputDevice != "" {
		device = s.InputDevice
	}
	rate := s.SampleRate
	if rate <= 0 {
		rate = 48000
	}
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", format,
		"-i", device,
		"-ac", "1",
		"-ar", strconv.Itoa(rate),
		"-c:a", "libopus",
		"-f", "webm",
		"pipe:1",
	}
}

func (s *FFmpegSource) binary() string {
	if s.Path != "" {
		return s.Path
	}
	return "ffmpeg"
}

func defaultInput(goos string) (format, device string) {
	switch goos {
	case "darwin":
		return "avfoundation", ":default"
	case "windows":
		return "dshow", "audio=default"
	default:
		return "pulse", "default"
	}
}

// classifyCaptureFailure maps ffmpeg diagnostics to recorder errors.
func classifyCaptureFailure(stderr string) error {
	msg := lastLine(stderr)
	if msg == "" {
		msg = "capture exited before producing audio"
	}
	lower := strings.ToLower(stderr)
	for _, marker := range []string{"permission denied", "not authorized", "operation not permitted", "access denied"} {
		if strings.Contains(lower, marker) {
			return fmt.Errorf("%w: %s", ErrPermissionDenied, msg)
		}
	}
	return fmt.Errorf("%w: %s", ErrDeviceUnavailable, msg)
}

func interrupt(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	if runtime.GOOS == "windows" {
		return cmd.Process.Kill()
	}
	if err := cmd.Process.Signal(os.Interrupt); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

func waitAsync(cmd *exec.Cmd) <-chan error {
	ch := make(chan error, 1)
	go func() { ch <- cmd.Wait() }()
	return ch
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; b.limit > 0 && over > 0 {
		b.buf = b.buf[over:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

var _ io.Writer = (*tailBuffer)(nil)
