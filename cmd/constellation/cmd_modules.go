package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var modulesCmd = &cobra.Command{
	Use:   "modules",
	Short: "List the builtin modules available to `run`",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Print(describeBuiltins())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modulesCmd)
}
