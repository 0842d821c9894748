package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	wetwire "github.com/lex00/wetwire-fargate-go"
	"github.com/lex00/wetwire-fargate-go/internal/validation"
)

// newValidateCmd creates the "validate" subcommand.
func newValidateCmd(global *globalOptions) *cobra.Command {
	var (
		outputFormat string
		skipLint     bool
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check topology invariants and lint the template",
		Long: `Validate declares the stack and checks it before deployment.

Checks performed:
  - Zones: every tier is replicated across at least two zones
  - Subnets: blocks lie inside the VPC and do not overlap
  - Placement: the load balancer is internal and tasks stay private
  - Reachability: only the caller security group reaches the service
  - cfn-lint: the synthesized template passes cfn-lint-go

Examples:
    wetwire-fargate validate
    wetwire-fargate validate --skip-lint --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, err := global.loadStack(cmd.Context())
			if err != nil {
				return err
			}
			result, err := validation.Validate(st, validation.Options{SkipLint: skipLint})
			if err != nil {
				return err
			}
			return outputValidateResult(*result, outputFormat)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "text", "Output format: text or json")
	cmd.Flags().BoolVar(&skipLint, "skip-lint", false, "Skip cfn-lint-go")

	return cmd
}

func outputValidateResult(result wetwire.ValidateResult, format string) error {
	switch format {
	case "json":
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))

	case "text":
		if result.Success {
			fmt.Printf("Validation passed: %d resources OK\n", result.Resources)
			for _, warnMsg := range result.Warnings {
				fmt.Printf("  WARNING: %s\n", warnMsg)
			}
			return nil
		}

		fmt.Println("Validation FAILED:")
		for _, errMsg := range result.Errors {
			fmt.Printf("  ERROR: %s\n", errMsg)
		}
		for _, warnMsg := range result.Warnings {
			fmt.Printf("  WARNING: %s\n", warnMsg)
		}

	default:
		return fmt.Errorf("unknown format: %s", format)
	}

	if !result.Success {
		os.Exit(1)
	}
	return nil
}
