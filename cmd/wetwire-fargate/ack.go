package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lex00/wetwire-fargate-go/internal/ack"
)

func newACKCmd(global *globalOptions) *cobra.Command {
	var (
		namespace  string
		outputFile string
	)

	cmd := &cobra.Command{
		Use:   "ack",
		Short: "Render the network as ACK EC2 custom resources",
		Long: `Ack writes the VPC, subnets and security groups as AWS Controllers for
Kubernetes EC2 resources, for clusters that manage networking with ACK.

Examples:
    wetwire-fargate ack | kubectl apply -f -
    wetwire-fargate ack --namespace network -o network.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, err := global.loadStack(cmd.Context())
			if err != nil {
				return err
			}
			data, err := ack.Render(st, ack.Options{Namespace: namespace}).ToYAML()
			if err != nil {
				return err
			}
			if outputFile == "" {
				fmt.Print(string(data))
				return nil
			}
			return os.WriteFile(outputFile, data, 0644)
		},
	}

	cmd.Flags().StringVarP(&namespace, "namespace", "n", "", "Namespace for the rendered objects")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")

	return cmd
}
