package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"constellation/internal/dag"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file.const>",
	Short: "Print a compiled pipeline's data and module nodes without running it",
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
		spec := result.Spec

		fmt.Printf("pipeline %q (hash %s)\n\n", result.Name, result.StructuralHash)

		fmt.Println("inputs:")
		for name, typ := range declaredInputs(spec) {
			fmt.Printf("  %s: %s\n", name, typ)
		}

		fmt.Println("\ndata nodes:")
		for _, uuid := range spec.DataOrder {
			d := spec.Data[uuid]
			fmt.Printf("  %s%s\n", describeDataNode(spec, d), ifName(d.Name))
		}

		fmt.Println("\nmodule nodes:")
		for _, uuid := range spec.ModuleOrder {
			m := spec.Modules[uuid]
			kind := "call"
			if m.Synthetic {
				kind = "synthetic"
			}
			fmt.Printf("  %s %s(%s) [%s]\n", kind, m.Metadata.Name, describeParams(spec, uuid), m.Metadata.Language)
		}

		fmt.Println("\noutputs:")
		for _, name := range spec.DeclaredOutputs {
			fmt.Printf("  out %s\n", name)
		}
		return nil
	},
}

func ifName(name string) string {
	if name == "" {
		return ""
	}
	return fmt.Sprintf(" (named %q)", name)
}

func describeDataNode(spec *dag.DagSpec, d *dag.DataNodeSpec) string {
	switch {
	case d.Name != "":
		return fmt.Sprintf("input: %s", d.CType)
	case d.InlineTransform != nil:
		return fmt.Sprintf("inline[%d inputs]: %s", len(d.TransformInputs), d.CType)
	default:
		return fmt.Sprintf("produced: %s", d.CType)
	}
}

func describeParams(spec *dag.DagSpec, uuid dag.ModuleUUID) string {
	m := spec.Modules[uuid]
	params := ""
	first := true
	for _, edge := range spec.InEdges {
		if edge.Module != uuid {
			continue
		}
		d := spec.Data[edge.Data]
		nick := d.Nicknames[uuid]
		if !first {
			params += ", "
		}
		params += fmt.Sprintf("%s: %s", nick, m.Consumes[nick])
		first = false
	}
	return params
}
