package main

import (
	"github.com/spf13/cobra"

	"sweetexp/internal/daemonrun"
	"sweetexp/internal/logging"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	var development bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the engine in the foreground",
		Long: "Run the achievement engine until interrupted. The engine exits immediately " +
			"when disabled in the configuration and follows later edits to the enable switch. " +
			"An unreadable configuration counts as disabled.",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				logger, logErr := logging.New(logging.Options{Level: logLevel, Format: "auto", Development: development})
				if logErr != nil {
					logger = logging.NewNop()
				}
				logging.WarnWithContext(logger, "config unreadable; engine disabled", "config_load_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "fix the config file or run `sweetexp config validate`"),
					logging.String(logging.FieldImpact, "the engine does not start"))
				return nil
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				ConfigPath:  ctx.configPath,
				LogLevel:    logLevel,
				Development: development,
			})
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
	cmd.Flags().BoolVar(&development, "dev", false, "Include source locations in log output")
	return cmd
}
