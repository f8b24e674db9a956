package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/harunnryd/voxrelay/pkg/controller"
	"github.com/harunnryd/voxrelay/pkg/pipeline"
	"github.com/harunnryd/voxrelay/pkg/runner"
)

const talkHelp = `commands:
  r            start recording
  s            stop recording and arm the clip
  <enter>      send the armed clip
  load <file>  arm a clip from disk
  q            quit`

func NewTalkCmd(deps *Dependencies) *cobra.Command {
	var noPlay bool
	var ui bool

	cmd := &cobra.Command{
		Use:   "talk",
		Short: "Record, stop and send interactively",
		Long:  "Drive the recorder and the pipeline from the keyboard. The last recording stays armed, so it can be sent again.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := deps.buildStack(stackOptions{NoPlay: noPlay, UI: ui || deps.Config.UI.Enabled})
			if err != nil {
				return err
			}
			defer st.close()

			sess := &talkSession{
				ctrl: controller.New(deps.newRecorder(), st.orch, deps.Logger),
				out:  st.out,
				log:  deps.Logger,
			}

			sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			loopCtx, quit := context.WithCancel(sigCtx)
			defer quit()

			var drain runner.Drainers
			if st.hub != nil {
				drain = append(drain, runner.DrainFunc(st.hub.Stop))
			}
			lr := runner.NewLifecycleRunner(runner.Options{
				Name:    "talk",
				Drainer: drain,
				Timeout: deps.Config.ServerDrainTimeout(),
				Banner:  cmd.ErrOrStderr(),
				Logger:  deps.Logger,
				Hooks: runner.Hooks{
					OnStart: func(ctx context.Context) error {
						if st.hub != nil {
							if err := st.hub.Start(ctx); err != nil {
								return err
							}
						}
						go func() {
							defer quit()
							sess.loop(sigCtx, deps.In)
						}()
						return nil
					},
				},
			})
			err = lr.Run(loopCtx)
			sess.wait()
			return err
		},
	}

	cmd.Flags().BoolVar(&noPlay, "no-play", false, "Print replies without writing or playing audio")
	cmd.Flags().BoolVar(&ui, "ui", false, "Serve the live websocket view (also ui.enabled)")
	return cmd
}

type talkSession struct {
	ctrl *controller.Controller
	out  io.Writer
	log  *slog.Logger
	wg   sync.WaitGroup
}

func (s *talkSession) loop(ctx context.Context, in io.Reader) {
	fmt.Fprintln(s.out, talkHelp)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if !s.handle(ctx, strings.TrimSpace(scanner.Text())) {
			break
		}
	}
	s.stopIfRecording()
	s.wait()
}

// handle runs one command line and reports whether the loop continues.
func (s *talkSession) handle(ctx context.Context, line string) bool {
	cmd, arg, _ := strings.Cut(line, " ")
	switch strings.ToLower(cmd) {
	case "r", "record":
		if !s.ctrl.CanRecord() {
			fmt.Fprintln(s.out, "already recording")
			return true
		}
		if err := s.ctrl.StartRecording(ctx); err != nil {
			fmt.Fprintf(s.out, "cannot record: %v\n", err)
			return true
		}
		fmt.Fprintln(s.out, "recording, s to stop")
	case "s", "stop":
		if !s.ctrl.CanStop() {
			fmt.Fprintln(s.out, "not recording")
			return true
		}
		artifact, err := s.ctrl.StopRecording()
		if err != nil {
			fmt.Fprintf(s.out, "cannot stop: %v\n", err)
			return true
		}
		fmt.Fprintf(s.out, "armed %d bytes, enter to send\n", artifact.Size())
	case "", "send":
		s.send(ctx)
	case "load":
		artifact, err := loadArtifact(strings.TrimSpace(arg), "", nil)
		if err != nil {
			fmt.Fprintf(s.out, "cannot load: %v\n", err)
			return true
		}
		s.ctrl.Arm(artifact)
		fmt.Fprintf(s.out, "armed %d bytes, enter to send\n", artifact.Size())
	case "q", "quit", "exit":
		return false
	case "?", "h", "help":
		fmt.Fprintln(s.out, talkHelp)
	default:
		fmt.Fprintf(s.out, "unknown command %q\n", cmd)
	}
	return true
}

func (s *talkSession) send(ctx context.Context) {
	if !s.ctrl.CanSend() {
		switch {
		case s.ctrl.Armed() == nil:
			fmt.Fprintln(s.out, "nothing recorded yet")
		case s.ctrl.CanStop():
			fmt.Fprintln(s.out, "stop the recording first")
		default:
			fmt.Fprintln(s.out, "still working on the last request")
		}
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		res, err := s.ctrl.Send(ctx)
		switch {
		case errors.Is(err, pipeline.ErrBusy):
			fmt.Fprintln(s.out, "still working on the last request")
		case err != nil:
			fmt.Fprintf(s.out, "cannot send: %v\n", err)
		default:
			s.log.Debug("talk_run_done", "run_id", res.RunID, "outcome", string(res.Outcome))
		}
	}()
}

func (s *talkSession) stopIfRecording() {
	if s.ctrl.CanStop() {
		if _, err := s.ctrl.StopRecording(); err != nil {
			s.log.Warn("talk_stop_failed", "error", err.Error())
		}
	}
}

func (s *talkSession) wait() { s.wg.Wait() }
