package cli

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
)

func NewRecordCmd(deps *Dependencies) *cobra.Command {
	var output string
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a clip without sending it",
		Long:  "Record from the configured source until Ctrl+C (or --duration) and write the clip to a file for a later send.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				return fmt.Errorf("--output is required")
			}
			rec := deps.newRecorder()

			sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			ctx, cancel := withTimeout(sigCtx, duration)
			defer cancel()

			if err := rec.Start(cmd.Context()); err != nil {
				return fmt.Errorf("start recording: %w", err)
			}
			fmt.Fprintln(cmd.ErrOrStderr(), "recording, press Ctrl+C to stop")
			<-ctx.Done()

			artifact, err := rec.Stop()
			if err != nil {
				return fmt.Errorf("stop recording: %w", err)
			}
			if err := os.WriteFile(output, artifact.Bytes(), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes (%s, %s) to %s\n",
				artifact.Size(), artifact.MIMEType(), artifact.Duration().Round(time.Millisecond), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "File to write the recording to")
	cmd.Flags().DurationVar(&duration, "duration", 0, "Stop after this long (default: until Ctrl+C)")
	return cmd
}
