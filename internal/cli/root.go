// Package cli provides the command-line interface for sqlext.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/leapstack-labs/sqlext/internal/cli/commands"
	"github.com/leapstack-labs/sqlext/internal/cli/config"
	"github.com/spf13/cobra"

	// Database adapters available to targets.
	_ "github.com/leapstack-labs/sqlext/pkg/adapters/duckdb"
	_ "github.com/leapstack-labs/sqlext/pkg/adapters/postgres"
	_ "github.com/leapstack-labs/sqlext/pkg/adapters/sqlite"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// configKey is used to store config in context.
type configKey struct{}

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	var (
		cfgFile string
		envFlag string
	)

	rootCmd := &cobra.Command{
		Use:   "sqlext",
		Short: "sqlext - SQL macro and schema rewriting engine",
		Long: `sqlext rewrites SQL text before it reaches the database.

It expands %%%name%%% macros, inlines user-defined SQL functions, applies
schema replacement rules and can run the result against a configured target.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip config loading for help and completion commands
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			cfg, err := config.LoadConfigWithTarget(cfgFile, envFlag, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}

			logger := newLogger(cmd, cfg.Verbose)
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx = context.WithValue(ctx, configKey{}, cfg)
			ctx = context.WithValue(ctx, config.LoggerKey(), logger)
			cmd.SetContext(ctx)

			if configFile := config.GetConfigFileUsed(); configFile != "" {
				logger.Debug("using config file", slog.String("path", configFile))
			}
			logger.Debug("using environment", slog.String("env", cfg.Environment))

			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
SQL macro and schema rewriting engine
`)

	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./sqlext.yaml)")
	rootCmd.PersistentFlags().StringVarP(&envFlag, "target", "t", "", "Environment whose target and vars apply (e.g., dev, prod)")
	rootCmd.PersistentFlags().String("project-dir", "", "Project root directory")
	rootCmd.PersistentFlags().String("macros-dir", "", "Path to macros directory")
	rootCmd.PersistentFlags().String("env", "", "Environment name")
	rootCmd.PersistentFlags().Int("max-iterations", config.DefaultMaxIterations, "Maximum rewrite passes before giving up")
	rootCmd.PersistentFlags().Bool("lenient-args", false, "Pad missing function arguments with NULL instead of failing")
	rootCmd.PersistentFlags().Bool("log-requests", false, "Log every database request")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().StringP("output", "o", "", "Output format (text|table|json)")

	_ = rootCmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"text", "table", "json"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("target", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return environmentNames(cfgFile), cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(commands.NewVersionCommand(commands.BuildInfo{Version: Version, Commit: GitCommit, Date: BuildDate}))
	rootCmd.AddCommand(commands.NewRenderCommand())
	rootCmd.AddCommand(commands.NewExecCommand())
	rootCmd.AddCommand(commands.NewMacrosCommand())
	rootCmd.AddCommand(commands.NewScriptsCommand())
	rootCmd.AddCommand(commands.NewDoctorCommand())
	rootCmd.AddCommand(commands.NewInitCommand())
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// newLogger writes text logs to the command's stderr. Verbose runs log at
// debug level, otherwise only warnings and errors are shown.
func newLogger(cmd *cobra.Command, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

// environmentNames lists the environments of the project config for shell
// completion, falling back to common names.
func environmentNames(cfgFile string) []string {
	cfg, err := config.LoadConfig(cfgFile, nil)
	if err != nil || len(cfg.Environments) == 0 {
		return []string{"dev", "staging", "prod"}
	}
	names := make([]string, 0, len(cfg.Environments))
	for name := range cfg.Environments {
		names = append(names, name)
	}
	return names
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// GetConfig retrieves the config from the command context.
func GetConfig(ctx context.Context) *config.Config {
	if c, ok := ctx.Value(configKey{}).(*config.Config); ok {
		return c
	}
	return &config.Config{
		MacrosDir:     config.DefaultMacrosDir,
		Environment:   config.DefaultEnv,
		MaxIterations: config.DefaultMaxIterations,
		OutputFormat:  config.DefaultOutput,
	}
}

// NewCompletionCommand creates the completion command.
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for sqlext.

To load completions:

Bash:
  $ source <(sqlext completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ sqlext completion bash > /etc/bash_completion.d/sqlext
  # macOS:
  $ sqlext completion bash > $(brew --prefix)/etc/bash_completion.d/sqlext

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. Execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ sqlext completion zsh > "${fpath[1]}/_sqlext"

  # You will need to start a new shell for this setup to take effect.

Fish:
  $ sqlext completion fish | source

  # To load completions for each session, execute once:
  $ sqlext completion fish > ~/.config/fish/completions/sqlext.fish

PowerShell:
  PS> sqlext completion powershell | Out-String | Invoke-Expression

  # To load completions for every new session, run:
  PS> sqlext completion powershell > sqlext.ps1
  # and source this file from your PowerShell profile.
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
	return cmd
}
