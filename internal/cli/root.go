package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"finwise/internal/config"
	"finwise/internal/log"
)

// Version is set at build time with -ldflags.
var Version = "dev"

// env is the state shared by every subcommand of one invocation.
type env struct {
	cfg    *config.Config
	logger *log.Logger
	app    *App
}

// open wires the app on first use.
func (e *env) open(cmd *cobra.Command) (*App, error) {
	if e.app != nil {
		return e.app, nil
	}
	app, err := OpenApp(cmd.Context(), e.cfg, e.logger)
	if err != nil {
		return nil, err
	}
	e.app = app
	return app, nil
}

func (e *env) close() error {
	if e.app == nil {
		return nil
	}
	err := e.app.Close()
	e.app = nil
	return err
}

// Execute runs the command line in args and releases storage afterwards,
// whether or not the command failed.
func Execute(ctx context.Context, args []string) (err error) {
	e := &env{}
	defer func() { err = errors.Join(err, e.close()) }()
	cmd := newRootCommand(e)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

func newRootCommand(e *env) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "finwise",
		Short:   "Personal finance tracker with an AI assistant",
		Version: Version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			LoadEnvFile()
			cfg, err := LoadAndValidateConfig()
			if err != nil {
				return err
			}
			logger, err := SetupLogger(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			e.cfg, e.logger = cfg, logger
			return nil
		},
	}

	rootCmd.AddCommand(
		newServeCommand(e),
		newSummaryCommand(e),
		newTxCommand(e),
		newAskCommand(e),
		newAssistantCommand(e),
		newDeviceCommand(e),
		newResetCommand(e),
		newLoginCommand(e),
		newLogoutCommand(e),
	)

	return rootCmd
}
