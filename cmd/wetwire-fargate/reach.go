package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	wetwire "github.com/lex00/wetwire-fargate-go"
	"github.com/lex00/wetwire-fargate-go/internal/reach"
	"github.com/lex00/wetwire-fargate-go/internal/stack"
)

func newReachCmd(global *globalOptions) *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "reach",
		Short: "Show which callers can reach the service",
		Long: `Reach evaluates every caller, and a client on the internet, against the
security group rules of the declared stack. Nothing is dialed.

Examples:
    wetwire-fargate reach
    wetwire-fargate reach --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, err := global.loadStack(cmd.Context())
			if err != nil {
				return err
			}
			return writeReach(os.Stdout, reachResults(st), outputFormat)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "text", "Output format: text or json")

	return cmd
}

func reachResults(st *stack.Stack) []wetwire.ReachResult {
	verdicts := reach.EvaluateStack(st)
	results := make([]wetwire.ReachResult, 0, len(verdicts))
	for _, v := range verdicts {
		results = append(results, wetwire.ReachResult{
			Source:    v.Source,
			Placement: string(v.Placement),
			Allowed:   v.Allowed,
			Reason:    v.Reason,
		})
	}
	return results
}

func writeReach(w io.Writer, results []wetwire.ReachResult, format string) error {
	switch format {
	case "json":
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case "text":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "SOURCE\tPLACEMENT\tVERDICT\tREASON")
		for _, r := range results {
			verdict := "DENIED"
			if r.Allowed {
				verdict = "ALLOWED"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Source, r.Placement, verdict, r.Reason)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}
