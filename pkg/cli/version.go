package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harunnryd/voxrelay/pkg/runner"
)

func NewVersionCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:               "version",
		Short:             "Print the version",
		Args:              cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "voxrelay %s\n", runner.Version)
			return err
		},
	}
}
