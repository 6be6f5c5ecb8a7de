package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var compileCmd = &cobra.Command{
	Use:   "compile <file.const>",
	Short: "Compile a pipeline to a runtime DAG and print its store hash",
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

		result, _, err := compilePipeline(path, cfg, st)
		if err != nil {
			return err
		}

		fmt.Printf("compiled %q\n", result.Name)
		fmt.Printf("  structural hash: %s\n", result.StructuralHash)
		fmt.Printf("  from cache:      %t\n", result.FromCache)
		fmt.Printf("  data nodes:      %d\n", len(result.Spec.Data))
		fmt.Printf("  module nodes:    %d\n", len(result.Spec.Modules))
		fmt.Printf("  declared inputs: %d\n", len(declaredInputs(result.Spec)))
		fmt.Printf("  declared outputs: %v\n", result.Spec.DeclaredOutputs)
		return nil
	},
}
