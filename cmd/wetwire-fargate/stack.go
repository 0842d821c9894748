package main

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/lex00/wetwire-fargate-go/internal/config"
	"github.com/lex00/wetwire-fargate-go/internal/stack"
	"github.com/lex00/wetwire-fargate-go/internal/zones"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configFile  string
	lookupZones bool
}

// loadConfig reads the config file named by --config, falling back to the
// environment.
func (g *globalOptions) loadConfig() (*config.Config, error) {
	if g.configFile != "" {
		return config.LoadFile(g.configFile)
	}
	return config.Load()
}

// loadStack builds the declared stack, asking EC2 for zone names first when
// --lookup-zones is set.
func (g *globalOptions) loadStack(ctx context.Context) (*config.Config, *stack.Stack, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	opts, err := cfg.StackOptions()
	if err != nil {
		return nil, nil, err
	}

	if g.lookupZones {
		var loadOpts []func(*awsconfig.LoadOptions) error
		if cfg.Region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("loading AWS config: %w", err)
		}
		if err := zones.Resolve(ctx, zones.NewEC2ListerFromConfig(awsCfg), &opts.Network); err != nil {
			return nil, nil, err
		}
	}

	st, err := stack.New(opts)
	if err != nil {
		return nil, nil, err
	}
	return cfg, st, nil
}
