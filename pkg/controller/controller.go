// Package controller owns the record, stop and send triggers: the active
// recording and the artifact currently armed for sending.
package controller

import (
	"context"
	"log/slog"
	"sync"

	"github.com/harunnryd/voxrelay/pkg/audio"
	"github.com/harunnryd/voxrelay/pkg/errorsx"
	"github.com/harunnryd/voxrelay/pkg/pipeline"
	"github.com/harunnryd/voxrelay/pkg/recorder"
)

// Recorder is the capture side the controller drives.
type Recorder interface {
	Start(ctx context.Context) error
	Stop() (*audio.Artifact, error)
	State() recorder.State
}

// Runner executes one pipeline pass.
type Runner interface {
	Run(ctx context.Context, artifact *audio.Artifact) (pipeline.Result, error)
	Busy() bool
}

type Controller struct {
	rec    Recorder
	runner Runner
	log    *slog.Logger

	mu    sync.Mutex
	armed *audio.Artifact
}

func New(rec Recorder, runner Runner, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{rec: rec, runner: runner, log: log}
}

// StartRecording disarms the previous artifact and starts a new recording.
// The artifact stays disarmed when the recorder fails to start. A start
// while already recording is refused and leaves the armed artifact alone.
func (c *Controller) StartRecording(ctx context.Context) error {
	if !c.CanRecord() {
		return errorsx.Wrap(recorder.ErrAlreadyRecording, errorsx.ReasonRecorderState)
	}
	c.mu.Lock()
	c.armed = nil
	c.mu.Unlock()
	return c.rec.Start(ctx)
}

// StopRecording ends the recording and arms the settled artifact.
func (c *Controller) StopRecording() (*audio.Artifact, error) {
	artifact, err := c.rec.Stop()
	if err != nil {
		return nil, err
	}
	c.Arm(artifact)
	return artifact, nil
}

// Arm sets the artifact the next Send will use, e.g. one loaded from disk.
func (c *Controller) Arm(artifact *audio.Artifact) {
	c.mu.Lock()
	c.armed = artifact
	c.mu.Unlock()
	if artifact != nil {
		c.log.Debug("controller_armed", "bytes", artifact.Size(), "mime", artifact.MIMEType())
	}
}

// Armed returns the artifact Send would use.
func (c *Controller) Armed() *audio.Artifact {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.armed
}

// Send runs the pipeline on the armed artifact. The artifact stays armed
// afterwards so it can be sent again.
func (c *Controller) Send(ctx context.Context) (pipeline.Result, error) {
	artifact := c.Armed()
	if artifact == nil {
		return pipeline.Result{}, pipeline.ErrNoArtifact
	}
	return c.runner.Run(ctx, artifact)
}

func (c *Controller) CanRecord() bool {
	return c.rec.State() != recorder.StateRecording
}

func (c *Controller) CanStop() bool {
	return c.rec.State() == recorder.StateRecording
}

func (c *Controller) CanSend() bool {
	return c.Armed() != nil && !c.runner.Busy() && c.rec.State() != recorder.StateRecording
}
