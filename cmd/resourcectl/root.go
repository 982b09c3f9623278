package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"resourcegraph/internal/app"
	"resourcegraph/internal/config"
	"resourcegraph/internal/logging"
	"resourcegraph/internal/resource"
)

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "resourcectl",
		Short: "Query and modify resources described by model definitions",
		Long: `resourcectl serves the resource API from the command line.

Collections, attributes and relations come from the model definition files
named by models.path. Every command prints a JSON document on stdout: a
collection page with its cursor and links, a single resource, or an error
document. The exit code reflects the error kind.`,
		Example: `  # First page of users older than 18, newest first
  resourcectl list users --filter 'age gt 18' --sort -created_at

  # One post with its author expanded
  resourcectl get posts 7 --expand author

  # Create a comment from a document on stdin
  resourcectl create comments < comment.json`,
		Version:       fmt.Sprintf("%s (%s)", Version, Commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	config.DefineFlags(rootCmd.PersistentFlags())
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	rootCmd.AddCommand(newModelsCommand())
	rootCmd.AddCommand(newListCommand())
	rootCmd.AddCommand(newGetCommand())
	rootCmd.AddCommand(newRelatedCommand())
	rootCmd.AddCommand(newCreateCommand())
	rootCmd.AddCommand(newUpdateCommand())
	rootCmd.AddCommand(newDeleteCommand())
	return rootCmd
}

// exactArgs is cobra.ExactArgs reporting a usage error.
func exactArgs(n int) cobra.PositionalArgs {
	check := cobra.ExactArgs(n)
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}

// execute runs the command line and returns the process exit code.
func execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	rootCmd := newRootCommand()
	rootCmd.SetArgs(args)
	rootCmd.SetIn(stdin)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	return reportError(stdout, stderr, err)
}

// runWithService loads configuration, initializes the app and calls fn with
// the resource service. The app is shut down when fn returns.
func runWithService(cmd *cobra.Command, fn func(context.Context, *resource.Service) error) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return usageError{fmt.Errorf("failed to load configuration: %w", err)}
	}
	if cfg.Observability.ServiceVersion == "" {
		cfg.Observability.ServiceVersion = Version
	}

	ctx := cmd.Context()
	logger, loggerProvider, err := app.InitLogger(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	validation := cfg.Validate()
	for _, warn := range validation.Warnings {
		logger.Warn("configuration warning",
			slog.String("field", warn.Field),
			slog.String("message", warn.Message),
			slog.String("hint", warn.Hint),
		)
	}
	if validation.HasErrors() {
		if loggerProvider != nil {
			_ = loggerProvider.Shutdown(ctx, logger.Logger)
		}
		return usageError{validation}
	}

	a, err := app.New(cfg, logger)
	if err != nil {
		if loggerProvider != nil {
			_ = loggerProvider.Shutdown(ctx, logger.Logger)
		}
		return err
	}
	a.AttachLoggerProvider(loggerProvider)
	defer func() {
		if err := a.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("shutdown failed", slog.String("error", err.Error()))
		}
	}()

	if err := a.Init(ctx); err != nil {
		return err
	}

	ctx, reqLogger := logging.StartRequest(ctx, logger)
	reqLogger.Debug("running command", slog.String("command", cmd.Name()))
	return fn(ctx, a.Service())
}
