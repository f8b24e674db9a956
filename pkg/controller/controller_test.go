package controller

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/harunnryd/voxrelay/pkg/audio"
	"github.com/harunnryd/voxrelay/pkg/errorsx"
	"github.com/harunnryd/voxrelay/pkg/pipeline"
	"github.com/harunnryd/voxrelay/pkg/recorder"
)

type fakeRecorder struct {
	state    recorder.State
	startErr error
	artifact *audio.Artifact
	starts   int
}

func (r *fakeRecorder) Start(ctx context.Context) error {
	r.starts++
	if r.startErr != nil {
		return r.startErr
	}
	r.state = recorder.StateRecording
	return nil
}

func (r *fakeRecorder) Stop() (*audio.Artifact, error) {
	if r.state != recorder.StateRecording {
		return nil, recorder.ErrNotRecording
	}
	r.state = recorder.StateStopped
	return r.artifact, nil
}

func (r *fakeRecorder) State() recorder.State { return r.state }

type fakeRunner struct {
	mu   sync.Mutex
	busy bool
	runs []*audio.Artifact
}

func (r *fakeRunner) Run(ctx context.Context, a *audio.Artifact) (pipeline.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.busy {
		return pipeline.Result{}, pipeline.ErrBusy
	}
	r.runs = append(r.runs, a)
	return pipeline.Result{Outcome: pipeline.OutcomeCompleted}, nil
}

func (r *fakeRunner) Busy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.busy
}

func newController() (*Controller, *fakeRecorder, *fakeRunner) {
	rec := &fakeRecorder{artifact: audio.NewArtifact([]byte("abc"), audio.MIMEWebM, time.Now(), time.Second)}
	run := &fakeRunner{}
	return New(rec, run, slog.New(slog.NewTextHandler(io.Discard, nil))), rec, run
}

func TestRecordStopSend(t *testing.T) {
	c, rec, run := newController()
	if !c.CanRecord() || c.CanStop() || c.CanSend() {
		t.Fatalf("unexpected initial triggers")
	}
	if err := c.StartRecording(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if c.CanRecord() || !c.CanStop() || c.CanSend() {
		t.Fatalf("unexpected triggers while recording")
	}
	artifact, err := c.StopRecording()
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if artifact != rec.artifact || c.Armed() != artifact {
		t.Fatalf("expected stopped artifact to be armed")
	}
	if !c.CanSend() {
		t.Fatalf("expected send to be enabled")
	}
	res, err := c.Send(context.Background())
	if err != nil || res.Outcome != pipeline.OutcomeCompleted {
		t.Fatalf("send: %v %+v", err, res)
	}
	if len(run.runs) != 1 || run.runs[0] != artifact {
		t.Fatalf("expected runner to receive the armed artifact")
	}
	if c.Armed() != artifact {
		t.Fatalf("artifact should stay armed after send")
	}
	if _, err := c.Send(context.Background()); err != nil || len(run.runs) != 2 {
		t.Fatalf("expected re-send of the same artifact")
	}
}

func TestSendWithoutArtifact(t *testing.T) {
	c, _, run := newController()
	if _, err := c.Send(context.Background()); !errors.Is(err, pipeline.ErrNoArtifact) {
		t.Fatalf("expected ErrNoArtifact, got %v", err)
	}
	if len(run.runs) != 0 {
		t.Fatalf("runner must not be called")
	}
}

func TestStartRecordingDisarms(t *testing.T) {
	c, rec, _ := newController()
	c.Arm(audio.NewArtifact([]byte("old"), audio.MIMEWebM, time.Now(), 0))
	rec.startErr = recorder.ErrPermissionDenied
	if err := c.StartRecording(context.Background()); !errors.Is(err, recorder.ErrPermissionDenied) {
		t.Fatalf("expected permission error, got %v", err)
	}
	if c.Armed() != nil || c.CanSend() {
		t.Fatalf("previous artifact must be disarmed on start")
	}
}

func TestStartWhileRecordingKeepsArmedArtifact(t *testing.T) {
	c, rec, _ := newController()
	armed := audio.NewArtifact([]byte("old"), audio.MIMEWebM, time.Now(), 0)
	c.Arm(armed)
	rec.state = recorder.StateRecording

	err := c.StartRecording(context.Background())
	if !errors.Is(err, recorder.ErrAlreadyRecording) || !errors.Is(err, errorsx.ReasonRecorderState) {
		t.Fatalf("expected already recording refusal, got %v", err)
	}
	if rec.starts != 0 {
		t.Fatalf("recorder must not be started again, got %d starts", rec.starts)
	}
	if c.Armed() != armed {
		t.Fatalf("armed artifact must survive a refused start")
	}
}

func TestCanSendFalseWhileBusy(t *testing.T) {
	c, _, run := newController()
	c.Arm(audio.NewArtifact([]byte("x"), audio.MIMEWebM, time.Now(), 0))
	run.busy = true
	if c.CanSend() {
		t.Fatalf("send must be disabled while a run is in flight")
	}
	if _, err := c.Send(context.Background()); !errors.Is(err, pipeline.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
}

func TestStopWithoutRecording(t *testing.T) {
	c, _, _ := newController()
	if _, err := c.StopRecording(); !errors.Is(err, recorder.ErrNotRecording) {
		t.Fatalf("expected ErrNotRecording, got %v", err)
	}
	if c.Armed() != nil {
		t.Fatalf("nothing should be armed")
	}
}
