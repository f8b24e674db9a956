package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/harunnryd/voxrelay/pkg/audio"
	"github.com/harunnryd/voxrelay/pkg/pipeline"
	"github.com/harunnryd/voxrelay/pkg/recorder"
)

func NewSendCmd(deps *Dependencies) *cobra.Command {
	var noPlay bool
	var mimeType string
	var eventsPath string

	cmd := &cobra.Command{
		Use:   "send <file|->",
		Short: "Send a recorded clip through the pipeline",
		Long:  "Send an audio file (or stdin with -) through speech-to-text, chat and text-to-speech, then play the reply.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			artifact, err := loadArtifact(args[0], mimeType, deps.In)
			if err != nil {
				return err
			}

			opts := stackOptions{NoPlay: noPlay}
			if eventsPath != "" {
				f, err := os.Create(eventsPath)
				if err != nil {
					return fmt.Errorf("create events file: %w", err)
				}
				defer f.Close()
				opts.Events = f
			}
			st, err := deps.buildStack(opts)
			if err != nil {
				return err
			}
			defer st.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			res, err := st.orch.Run(ctx, artifact)
			if err != nil {
				return err
			}
			return resultError(res)
		},
	}

	cmd.Flags().BoolVar(&noPlay, "no-play", false, "Print the reply without writing or playing audio")
	cmd.Flags().StringVar(&mimeType, "mime", "", "Audio MIME type (default: from the file extension)")
	cmd.Flags().StringVar(&eventsPath, "events", "", "Write pipeline events as JSON lines to this file")
	return cmd
}

func loadArtifact(path, mimeType string, stdin io.Reader) (*audio.Artifact, error) {
	var data []byte
	var err error
	if path == "-" {
		if stdin == nil {
			return nil, fmt.Errorf("no stdin to read audio from")
		}
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if mimeType == "" {
		mimeType = recorder.MIMEFromPath(path)
	}
	var duration time.Duration
	if mimeType == audio.MIMEWAV {
		if info, err := audio.DescribeWAV(data); err == nil {
			duration = info.Duration
		}
	}
	return audio.NewArtifact(data, mimeType, time.Now(), duration), nil
}

// resultError turns the run-ending failures into a command error. A TTS
// failure is only a warning: the reply is already on screen.
func resultError(res pipeline.Result) error {
	switch res.Outcome {
	case pipeline.OutcomeSTTFailed, pipeline.OutcomeChatFailed:
		return fmt.Errorf("%s: %w", res.Outcome, res.Err)
	default:
		return nil
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
