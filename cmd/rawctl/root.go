package main

import (
	"github.com/spf13/cobra"

	"github.com/rawkit/rawkit/cameradb"
	"github.com/rawkit/rawkit/lensdb"
)

func newRootCommand() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:           "rawctl",
		Short:         "Convert, extract, and inspect camera raw files",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "emit step-by-step progress logging")
	root.SetFlagErrorFunc(func(c *cobra.Command, err error) error { return &usageError{err} })

	env := &appEnv{
		cameras: func() *cameradb.DB { return cameradb.Embedded() },
		lenses:  func() []lensdb.LensDescription { return lensdb.Embedded() },
		logger:  func() *appLogger { return &appLogger{verbose: verbose} },
	}

	root.AddCommand(
		newConvertCommand(env),
		newExtractCommand(env),
		newAnalyzeCommand(env),
		newCamerasCommand(env),
		newLensesCommand(env),
	)
	return root
}

// appEnv carries the shared, lazily-initialized state every subcommand
// needs (the embedded databases, the verbosity flag) without reaching for
// package-level globals — cobra.Command trees in the pack's manifests
// (kuetemeier-imgindex, airbusgeo-cogger) all thread a small env struct
// like this through RunE closures rather than using global state.
type appEnv struct {
	cameras func() *cameradb.DB
	lenses  func() []lensdb.LensDescription
	logger  func() *appLogger
}

// appLogger defers constructing the real rlog.Logger until RunE time, so
// the --verbose flag (parsed after newRootCommand builds the tree) is
// already set by the time a command asks for one.
type appLogger struct{ verbose bool }

// exactArgs and noArgs wrap cobra's own positional-arg validators so a
// wrong-arg-count invocation also surfaces as a *usageError — cobra runs
// Args before RunE, so without this the error would reach run() unwrapped
// and map to exit code 1 instead of the usage exit code 2.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return &usageError{err}
		}
		return nil
	}
}

func noArgs() cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.NoArgs(cmd, args); err != nil {
			return &usageError{err}
		}
		return nil
	}
}
