// Package runner owns process lifecycle for the long-running commands:
// start hooks, wait for cancellation, then drain servers in order.
package runner

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/dimiro1/banner"
)

type State int

const (
	StateNew State = iota
	StateStarting
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type Runner interface {
	Run(ctx context.Context) error
	Stop() error
	State() State
}

// Hooks run around the lifecycle. A failing OnStart aborts Run.
type Hooks struct {
	OnStart func(ctx context.Context) error
	OnStop  func()
}

type Drainer interface {
	Drain() error
}

// DrainFunc adapts a function to Drainer.
type DrainFunc func() error

func (f DrainFunc) Drain() error { return f() }

// Drainers drains each member in order and joins their errors. Nil
// members are skipped.
type Drainers []Drainer

func (d Drainers) Drain() error {
	var errs []error
	for _, dr := range d {
		if dr == nil {
			continue
		}
		if err := dr.Drain(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Version is stamped at build time with -ldflags.
var Version = "dev"

// PrintBanner writes the startup banner for the named command.
func PrintBanner(w io.Writer, command string) {
	if w == nil {
		return
	}
	tpl := "{{ .Title \"VOXRELAY\" \"\" 0 }}\n" + command + " " + Version + "\n"
	banner.Init(w, true, false, bytes.NewBufferString(tpl))
}
