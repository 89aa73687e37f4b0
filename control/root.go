package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AJMSD/raga/download/config"
	"github.com/AJMSD/raga/download/logging"
)

// commandContext carries root flags to subcommands.
type commandContext struct {
	configPath string
	envFile    string
	debug      bool
	lookupEnv  func(string) (string, bool)
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{lookupEnv: os.LookupEnv}

	rootCmd := &cobra.Command{
		Use:           "raga",
		Short:         "Resolve music references and build a deduplicated library",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&ctx.configPath, "config", "c", "", "Configuration file path (raga.yaml, raga.yml or raga.toml)")
	rootCmd.PersistentFlags().StringVar(&ctx.envFile, "env-file", "", "Dotenv file with credentials (default .env next to the config)")
	rootCmd.PersistentFlags().BoolVar(&ctx.debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newPruneCommand(ctx))
	rootCmd.AddCommand(newHistoryCommand(ctx))
	rootCmd.AddCommand(newRebuildCacheCommand(ctx))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

// loadConfig layers file, dotenv and environment, lets override apply flags,
// then validates. local skips the credential check.
func (c *commandContext) loadConfig(local bool, override func(*config.Config)) (*config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{
		Path:      c.configPath,
		EnvFile:   c.envFile,
		LookupEnv: c.lookupEnv,
	})
	if err != nil {
		return nil, exitWith(ExitConfigError, configErr(err))
	}
	if c.debug {
		cfg.UI.Debug = true
	}
	if override != nil {
		override(cfg)
	}
	if local {
		err = cfg.ValidateLocal()
	} else {
		err = cfg.Validate()
	}
	if err != nil {
		return nil, exitWith(ExitConfigError, configErr(err))
	}

	if cfg.UI.Debug {
		logging.SetLevel(logging.LogLevelDebug)
	} else {
		logging.SetLevel(logging.LogLevelInfo)
	}
	return cfg, nil
}

func configErr(err error) error {
	var cfgErr *config.ConfigError
	if errors.As(err, &cfgErr) {
		return fmt.Errorf("configuration error: %w", err)
	}
	return fmt.Errorf("error loading config: %w", err)
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "raga version %s\n", Version)
			return nil
		},
	}
}
