package runner

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunDrainsOnCancel(t *testing.T) {
	var order []string
	r := NewLifecycleRunner(Options{
		Name: "serve",
		Drainer: Drainers{
			DrainFunc(func() error { order = append(order, "backend"); return nil }),
			nil,
			DrainFunc(func() error { order = append(order, "hub"); return nil }),
		},
		Hooks: Hooks{
			OnStart: func(ctx context.Context) error { order = append(order, "start"); return nil },
			OnStop:  func() { order = append(order, "stop") },
		},
		Logger: quietLogger(),
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	deadline := time.Now().Add(time.Second)
	for r.State() != StateRunning && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := strings.Join(order, ","); got != "start,backend,hub,stop" {
		t.Fatalf("unexpected order %s", got)
	}
	if r.State() != StateStopped {
		t.Fatalf("expected stopped, got %s", r.State())
	}
	if err := r.Run(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestDrainTimeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	r := NewLifecycleRunner(Options{
		Drainer: DrainFunc(func() error { <-block; return nil }),
		Timeout: 20 * time.Millisecond,
		Logger:  quietLogger(),
	})
	if err := r.Stop(); !errors.Is(err, ErrDrainTimeout) {
		t.Fatalf("expected ErrDrainTimeout, got %v", err)
	}
}

func TestStartFailureStillDrains(t *testing.T) {
	drained := false
	r := NewLifecycleRunner(Options{
		Drainer: DrainFunc(func() error { drained = true; return nil }),
		Hooks:   Hooks{OnStart: func(context.Context) error { return errors.New("port in use") }},
		Logger:  quietLogger(),
	})
	err := r.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "port in use") {
		t.Fatalf("expected start error, got %v", err)
	}
	if !drained {
		t.Fatalf("expected drain after failed start")
	}
}

func TestDrainersJoinErrors(t *testing.T) {
	err := Drainers{
		DrainFunc(func() error { return errors.New("a") }),
		DrainFunc(func() error { return errors.New("b") }),
	}.Drain()
	if err == nil || !strings.Contains(err.Error(), "a") || !strings.Contains(err.Error(), "b") {
		t.Fatalf("expected joined error, got %v", err)
	}
}

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf, "serve")
	if !strings.Contains(buf.String(), "serve dev") {
		t.Fatalf("unexpected banner %q", buf.String())
	}
	PrintBanner(nil, "serve")
}
