package recorder

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harunnryd/voxrelay/pkg/audio"
	"github.com/harunnryd/voxrelay/pkg/errorsx"
)

// Config tunes a Recorder.
type Config struct {
	// DrainTimeout bounds how long Stop waits for the capture to flush.
	DrainTimeout time.Duration
	Listeners    []StateListener
	Logger       *slog.Logger
}

// Recorder owns the capture source and the current RecordingSession.
// Only one session is active at a time; Start replaces the previous one.
type Recorder struct {
	source Source
	cfg    Config
	log    *slog.Logger

	mu       sync.Mutex
	capture  Capture
	pumpDone chan struct{}

	current   atomic.Pointer[Session]
	completed chan *audio.Artifact
}

func New(source Source, cfg Config) *Recorder {
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 5 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{
		source:    source,
		cfg:       cfg,
		log:       log,
		completed: make(chan *audio.Artifact, 1),
	}
}

// Start opens the source and begins a new session. Any previous session
// and its fragments are discarded, even when opening the source fails.
func (r *Recorder) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if sess := r.current.Load(); sess != nil && sess.State() == StateRecording {
		return errorsx.Wrap(ErrAlreadyRecording, errorsx.ReasonRecorderState)
	}
	r.current.Store(nil)

	capture, err := r.source.Open(ctx)
	if err != nil {
		r.log.Warn("recorder_open_failed", "source", r.source.Name(), "error", err.Error())
		return classifyOpenError(err)
	}

	sess := NewSession(capture.MIMEType(), r.cfg.Listeners...)
	if err := sess.Begin(capture.MIMEType()); err != nil {
		_ = capture.Stop()
		return errorsx.Wrap(err, errorsx.ReasonRecorderState)
	}
	done := make(chan struct{})
	r.capture = capture
	r.pumpDone = done
	r.current.Store(sess)
	go r.pump(sess, capture, done)

	r.log.Info("recorder_started", "source", r.source.Name(), "mime", capture.MIMEType())
	return nil
}

// Append records one captured fragment on the active session.
// Fragments arriving outside RECORDING are dropped.
func (r *Recorder) Append(data []byte) {
	sess := r.current.Load()
	if sess == nil {
		return
	}
	if !sess.Append(data) && len(data) > 0 {
		r.log.Debug("recorder_fragment_dropped", "bytes", len(data), "state", sess.State().String())
	}
}

// Stop ends the capture, waits for the final fragments and returns the
// settled artifact. The same artifact is published on Completed.
func (r *Recorder) Stop() (*audio.Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess := r.current.Load()
	if sess == nil || sess.State() != StateRecording {
		return nil, errorsx.Wrap(ErrNotRecording, errorsx.ReasonRecorderState)
	}
	if err := r.capture.Stop(); err != nil {
		r.log.Warn("recorder_stop_signal_failed", "error", err.Error())
	}
	select {
	case <-r.pumpDone:
	case <-time.After(r.cfg.DrainTimeout):
		r.log.Warn("recorder_drain_timeout", "timeout", r.cfg.DrainTimeout.String())
	}
	if err := r.capture.Err(); err != nil {
		r.log.Warn("recorder_capture_error", "error", err.Error())
	}

	artifact, err := sess.Finish()
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonRecorderState)
	}
	r.capture = nil
	r.pumpDone = nil
	r.publish(artifact)

	r.log.Info("recorder_stopped",
		"bytes", artifact.Size(),
		"mime", artifact.MIMEType(),
		"duration_ms", artifact.Duration().Milliseconds(),
	)
	return artifact, nil
}

// Completed delivers the artifact of the most recent Stop.
func (r *Recorder) Completed() <-chan *audio.Artifact { return r.completed }

// State reports the state of the current session, IDLE if none.
func (r *Recorder) State() State {
	sess := r.current.Load()
	if sess == nil {
		return StateIdle
	}
	return sess.State()
}

// Session returns the current session, if any.
func (r *Recorder) Session() *Session { return r.current.Load() }

func (r *Recorder) pump(sess *Session, c Capture, done chan struct{}) {
	defer close(done)
	for frag := range c.Fragments() {
		sess.Append(frag)
	}
}

// publish replaces any unconsumed notification with the newest artifact.
func (r *Recorder) publish(a *audio.Artifact) {
	select {
	case <-r.completed:
	default:
	}
	select {
	case r.completed <- a:
	default:
	}
}

func classifyOpenError(err error) error {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return errorsx.Wrap(err, errorsx.ReasonRecorderPermission)
	case errors.Is(err, ErrDeviceUnavailable):
		return errorsx.Wrap(err, errorsx.ReasonRecorderDevice)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return errorsx.Wrap(errors.Join(ErrDeviceUnavailable, err), errorsx.ReasonRecorderDevice)
	}
}
