// Command wetwire-fargate declares a private Fargate service behind an
// internal load balancer and the scheduled Lambda callers that reach it.
//
// Usage:
//
//	wetwire-fargate build              Generate CloudFormation template
//	wetwire-fargate validate           Check topology and lint the template
//	wetwire-fargate reach              Show which callers can reach the service
//	wetwire-fargate run --once         Fire every caller once
//	wetwire-fargate version            Show version
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var global globalOptions

	rootCmd := &cobra.Command{
		Use:   "wetwire-fargate",
		Short: "Private Fargate service with scheduled Lambda callers",
		Long: `wetwire-fargate declares a VPC, an internal Application Load Balancer
fronting a Fargate service, and three Lambda functions that POST to it on a
schedule: one in the caller security group, one in the VPC without it, and
one outside the VPC. Only the first can reach the service.

The declaration comes from a YAML file (--config or WETWIRE_FARGATE_CONFIG)
layered over built-in defaults:

    wetwire-fargate build -f yaml > template.yaml
    wetwire-fargate reach`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&global.configFile, "config", "c", "", "Config file (default: $WETWIRE_FARGATE_CONFIG)")
	rootCmd.PersistentFlags().BoolVar(&global.lookupZones, "lookup-zones", false, "Resolve availability zones with EC2 DescribeAvailabilityZones")

	rootCmd.AddCommand(
		newBuildCmd(&global),
		newValidateCmd(&global),
		newGraphCmd(&global),
		newReachCmd(&global),
		newDiffCmd(),
		newACKCmd(&global),
		newWatchCmd(&global),
		newRunCmd(&global),
		newVersionCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("wetwire-fargate %s\n", getVersion())
		},
	}
}
