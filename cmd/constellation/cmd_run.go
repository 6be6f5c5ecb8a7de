package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"constellation/internal/options"
	"constellation/internal/scheduler"
)

var runSetFlags []string

var runCmd = &cobra.Command{
	Use:   "run <file.const>",
	Short: "Compile and run a pipeline against the builtin module set",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]

		cfg, err := loadRuntimeConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		cache, closeCache, err := openCacheBackend(cfg)
		if err != nil {
			return err
		}
		defer closeCache.Close()

		result, _, err := compilePipeline(path, cfg, st)
		if err != nil {
			return err
		}

		inputs, err := parseSetFlags(runSetFlags, declaredInputs(result.Spec))
		if err != nil {
			return err
		}

		rt := options.NewRuntime(cache, 2)
		sched := scheduler.New(result.Spec, rt, newBuiltinImpls(), 4, timeout)

		exec := sched.NewExecution(result.Name)
		exec.Supply(inputs)

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		sig := exec.Run(ctx)
		switch sig.Status {
		case scheduler.StatusCompleted:
			for _, name := range result.Spec.DeclaredOutputs {
				fmt.Printf("%s = %s\n", name, formatValue(sig.Outputs[name]))
			}
			return nil
		case scheduler.StatusSuspended:
			fmt.Println("suspended: missing inputs")
			for name, typ := range sig.Missing {
				fmt.Printf("  %s: %s\n", name, typ)
			}
			return fmt.Errorf("run suspended: supply the missing inputs with --set")
		default:
			return fmt.Errorf("run failed: %w", sig.Err)
		}
	},
}

func init() {
	runCmd.Flags().StringArrayVar(&runSetFlags, "set", nil, "Supply a top-level input as name=value (repeatable)")
}
