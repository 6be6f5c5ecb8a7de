// Package main implements the constellation CLI: the compiler and
// scheduler's command-line front end.
//
// This file is the entry point and command registration hub; the
// individual commands live in their own cmd_*.go files.
//
// # File Index
//
//   - main.go        - entry point, rootCmd, global flags, init()
//   - cmd_compile.go - compileCmd: parse+typecheck+lower a .const file
//     and report its store hash
//   - cmd_run.go     - runCmd: compile (or load) a pipeline and execute
//     it against --set-supplied inputs
//   - cmd_inspect.go - inspectCmd: print a compiled DagSpec's data and
//     module nodes without executing it
//   - builtin.go     - the native-Go demo module set compile/run
//     dispatch against
//   - pipeline.go    - shared source-loading/value-formatting helpers
//   - valueflags.go  - --set name=value flag parsing against a DagSpec's
//     declared input types
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"constellation/internal/logging"
)

var (
	verbose    bool
	workspace  string
	timeout    time.Duration
	configPath string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "constellation",
	Short: "Constellation - a typed dataflow pipeline compiler and runtime",
	Long: `Constellation compiles a small DSL of typed, acyclic dataflow
pipelines into a runtime DAG and executes it against externally
supplied inputs and modules.

A pipeline declares its top-level inputs with "in", wires module calls
and pure transforms through assignment, and names its results with
"out". The compiler front end (parse, type-check, IR generation and
optimization, DAG lowering) never talks to a module; the scheduler
does, dispatching by name against whatever module set the host
process registers.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		ws := workspace
		if ws == "" {
			ws, _ = os.Getwd()
		}
		if err := logging.Initialize(ws); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to initialize file logging: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory for logs and cache (default: current)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Run timeout")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "constellation.yaml", "Runtime config file (scheduler/cache/store backend selection)")

	rootCmd.AddCommand(
		compileCmd,
		runCmd,
		inspectCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
