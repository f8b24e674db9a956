// Package cli wires the voxrelay commands.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/harunnryd/voxrelay/pkg/config"
	"github.com/harunnryd/voxrelay/pkg/logging"
	"github.com/harunnryd/voxrelay/pkg/redact"
	"github.com/harunnryd/voxrelay/pkg/runner"
)

// Dependencies are the process handles commands run against. Config and
// Logger are filled in before any command other than config and version
// runs.
type Dependencies struct {
	In     io.Reader
	Out    io.Writer
	Err    io.Writer
	Lookup func(string) (string, bool)
	// StorePath overrides the stored settings location.
	StorePath string

	Config config.Config
	Logger *slog.Logger
}

// DefaultDependencies binds the process stdio and environment.
func DefaultDependencies() *Dependencies {
	return &Dependencies{In: os.Stdin, Out: os.Stdout, Err: os.Stderr, Lookup: os.LookupEnv}
}

type rootFlags struct {
	configPath string
	backendURL string
	logLevel   string
}

func NewRootCmd(deps *Dependencies) *cobra.Command {
	var flags rootFlags

	rootCmd := &cobra.Command{
		Use:           "voxrelay",
		Short:         "Talk to a voice assistant backend from the terminal",
		Long:          "Record speech, send it through speech-to-text, chat and text-to-speech, and play the reply.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return deps.load(flags)
		},
	}
	rootCmd.SetIn(deps.In)
	rootCmd.SetOut(deps.Out)
	rootCmd.SetErr(deps.Err)

	rootCmd.Version = runner.Version
	rootCmd.SetVersionTemplate("voxrelay " + runner.Version + "\n")

	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "Config file (default: ./voxrelay.yaml or the user config dir)")
	rootCmd.PersistentFlags().StringVar(&flags.backendURL, "backend-url", "", "Backend base URL, overrides every other source")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(NewSendCmd(deps))
	rootCmd.AddCommand(NewRecordCmd(deps))
	rootCmd.AddCommand(NewTalkCmd(deps))
	rootCmd.AddCommand(NewConfigCmd(deps))
	rootCmd.AddCommand(NewDoctorCmd(deps))
	rootCmd.AddCommand(NewServeCmd(deps))
	rootCmd.AddCommand(NewVersionCmd(deps))

	return rootCmd
}

func (d *Dependencies) store() (*config.Store, error) {
	if d.StorePath != "" {
		return &config.Store{Path: d.StorePath}, nil
	}
	path, err := config.DefaultStorePath()
	if err != nil {
		return nil, fmt.Errorf("locate settings file: %w", err)
	}
	return &config.Store{Path: path}, nil
}

func (d *Dependencies) load(flags rootFlags) error {
	store, err := d.store()
	if err != nil {
		return err
	}
	overrides := map[string]any{}
	if flags.backendURL != "" {
		overrides["backend_url"] = flags.backendURL
	}
	if flags.logLevel != "" {
		overrides["log_level"] = flags.logLevel
	}
	cfg, err := config.Load(config.Options{Path: flags.configPath, Store: store, Overrides: overrides})
	if err != nil {
		return err
	}
	d.Config = cfg
	d.Logger = logging.InitLogger(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: d.Err})
	redact.SetEnabled(cfg.Privacy.RedactPII)
	return nil
}
