package cli

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/harunnryd/voxrelay/pkg/recorder"
	"github.com/harunnryd/voxrelay/pkg/stages"
)

func NewDoctorCmd(deps *Dependencies) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the backend, the recorder and playback",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			cfg := deps.Config
			ok := true

			check(out, "Backend URL", true, cfg.BackendURL)

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			health, err := stages.NewHealthClient(stages.Options{BaseURL: cfg.BackendURL}).Check(ctx)
			if err != nil {
				check(out, "Backend health", false, err.Error())
				ok = false
			} else {
				check(out, "Backend health", health.Status == "ok", health.Status+" "+formatModels(health.Models))
				ok = ok && health.Status == "ok"
			}

			switch cfg.Recorder.Source {
			case "ffmpeg":
				src := &recorder.FFmpegSource{Path: cfg.Recorder.FFmpegPath}
				if path, err := src.CheckFFmpeg(); err != nil {
					check(out, "ffmpeg", false, "not found. Install ffmpeg or set recorder.ffmpeg_path")
					ok = false
				} else {
					check(out, "ffmpeg", true, path)
				}
			case "file":
				check(out, "Recorder", true, "replaying "+cfg.Recorder.File)
			}

			if len(cfg.Playback.Command) == 0 {
				check(out, "Playback", true, "disabled, replies are written to "+cfg.Playback.Dir)
			} else if path, err := exec.LookPath(cfg.Playback.Command[0]); err != nil {
				check(out, "Playback", false, cfg.Playback.Command[0]+" not found. Set playback.command")
				ok = false
			} else {
				check(out, "Playback", true, path)
			}

			if store, err := deps.store(); err == nil {
				check(out, "Settings file", true, store.Path)
			}

			if ok {
				fmt.Fprintln(out, "\nAll checks passed.")
			} else {
				fmt.Fprintln(out, "\nSome checks failed.")
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Health check timeout")
	return cmd
}

func check(w io.Writer, name string, ok bool, detail string) {
	mark := "ok"
	if !ok {
		mark = "FAIL"
	}
	fmt.Fprintf(w, "%-4s %-16s %s\n", mark, name, detail)
}

func formatModels(models map[string]string) string {
	if len(models) == 0 {
		return ""
	}
	keys := make([]string, 0, len(models))
	for k := range models {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+models[k])
	}
	return "(" + strings.Join(parts, " ") + ")"
}
