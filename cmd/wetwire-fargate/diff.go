package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lex00/wetwire-fargate-go/internal/differ"
)

func newDiffCmd() *cobra.Command {
	var (
		outputFormat string
		ignoreOrder  bool
	)

	cmd := &cobra.Command{
		Use:   "diff <template1> <template2>",
		Short: "Compare two CloudFormation templates",
		Long: `Diff compares two templates resource by resource and marks the changes
CloudFormation applies by replacing the resource.

Examples:
    wetwire-fargate diff deployed.json template.json
    wetwire-fargate diff old.yaml new.yaml --ignore-order --format json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := differ.CompareFiles(args[0], args[1], differ.Options{IgnoreOrder: ignoreOrder})
			if err != nil {
				return err
			}
			return outputDiff(result, outputFormat)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "text", "Output format: text or json")
	cmd.Flags().BoolVar(&ignoreOrder, "ignore-order", false, "Ignore array element order")

	return cmd
}

func outputDiff(result *differ.Result, format string) error {
	switch format {
	case "json":
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	case "text":
		if result.Summary.Total == 0 {
			fmt.Println("No differences")
			return nil
		}
		for _, e := range result.Diff.Added {
			fmt.Printf("+ %s (%s)\n", e.Resource, e.Type)
		}
		for _, e := range result.Diff.Removed {
			fmt.Printf("- %s (%s)\n", e.Resource, e.Type)
		}
		for _, e := range result.Diff.Modified {
			marker := "~"
			if e.Replacement {
				marker = "!"
			}
			fmt.Printf("%s %s (%s)\n", marker, e.Resource, e.Type)
			for _, c := range e.Changes {
				fmt.Printf("    %s\n", c)
			}
		}
		fmt.Printf("\n%d added, %d removed, %d modified (%d replaced)\n",
			result.Summary.Added, result.Summary.Removed, result.Summary.Modified, result.Summary.Replacements)
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
	return nil
}
