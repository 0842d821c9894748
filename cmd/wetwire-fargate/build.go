package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	wetwire "github.com/lex00/wetwire-fargate-go"
	"github.com/lex00/wetwire-fargate-go/internal/stack"
	"github.com/lex00/wetwire-fargate-go/internal/synth"
	"github.com/lex00/wetwire-fargate-go/internal/template"
)

func newBuildCmd(global *globalOptions) *cobra.Command {
	var (
		outputFormat string
		outputFile   string
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Generate the CloudFormation template",
		Long: `Build declares the stack and writes its CloudFormation template.

Examples:
    wetwire-fargate build
    wetwire-fargate build -o template.json
    wetwire-fargate build --format yaml --config stack.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, err := global.loadStack(cmd.Context())
			if err != nil {
				return err
			}
			return outputResult(buildStack(st), outputFormat, outputFile)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "json", "Output format: json or yaml")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")

	return cmd
}

func buildStack(st *stack.Stack) wetwire.BuildResult {
	tmpl, syn, err := synth.Build(st)
	if err != nil {
		return wetwire.BuildResult{Success: false, Errors: []string{err.Error()}}
	}
	return wetwire.BuildResult{
		Success:   true,
		Template:  *tmpl,
		Resources: syn.Names(),
	}
}

func encodeTemplate(tmpl *wetwire.Template, format string) ([]byte, error) {
	switch format {
	case "json":
		return template.ToJSON(tmpl)
	case "yaml":
		return template.ToYAML(tmpl)
	default:
		return nil, fmt.Errorf("unknown format: %s", format)
	}
}

func outputResult(result wetwire.BuildResult, format, outputFile string) error {
	if !result.Success {
		for _, e := range result.Errors {
			fmt.Fprintln(os.Stderr, e)
		}
		return fmt.Errorf("build failed")
	}

	data, err := encodeTemplate(&result.Template, format)
	if err != nil {
		return err
	}

	if outputFile == "" {
		fmt.Println(string(data))
		return nil
	}
	return os.WriteFile(outputFile, data, 0644)
}
