// Package stack assembles the full topology: address space, internal load
// balancer with its Fargate service, and the scheduled callers.
package stack

import (
	"fmt"
	"time"

	"github.com/lex00/wetwire-fargate-go/internal/placement"
	"github.com/lex00/wetwire-fargate-go/internal/topology"
	"github.com/lex00/wetwire-fargate-go/internal/trigger"
)

// ServiceSecurityGroup is shared by the load balancer and the service tasks.
const ServiceSecurityGroup = "FargateSecurityGroup"

// Options declare a stack.
type Options struct {
	Name    string
	Network topology.Options
	Service placement.Options
	Trigger trigger.Options
}

// DefaultOptions returns a two-zone VPC with /24 private and public tiers,
// the sample image and a one-minute schedule.
func DefaultOptions() Options {
	return Options{
		Name: "PrivateFargateWithLambda",
		Network: topology.Options{
			CIDR:   "10.0.0.0/16",
			MaxAZs: 2,
			Tiers: []topology.SubnetTier{
				{Name: "PrivateSubnet", Egress: topology.PrivateWithEgress, CIDRMask: 24},
				{Name: "PublicSubnet", Egress: topology.Public, CIDRMask: 24},
			},
		},
		Service: placement.Options{Image: placement.DefaultImage},
		Trigger: trigger.Options{
			Schedule: trigger.Schedule{Rate: time.Minute},
			Timeout:  trigger.DefaultTimeout,
		},
	}
}

// Stack is a fully declared topology.
type Stack struct {
	Name    string
	Network *topology.AddressSpace
	Service *placement.Placement
	Trigger *trigger.Declaration
}

// New declares the stack in dependency order: network, then service
// placement, then the callers bound to the service endpoint.
func New(opts Options) (*Stack, error) {
	if opts.Name == "" {
		return nil, &topology.ConfigurationError{Field: "stackName", Reason: "stack name is empty"}
	}

	space, err := topology.NewBuilder(opts.Network).Build()
	if err != nil {
		return nil, fmt.Errorf("building network: %w", err)
	}

	if _, err := space.AddSecurityGroup(ServiceSecurityGroup, "Security Group for Fargate ALB", true); err != nil {
		return nil, err
	}
	lb, err := placement.NewInternalLoadBalancer(space, "ALB", ServiceSecurityGroup)
	if err != nil {
		return nil, fmt.Errorf("declaring load balancer: %w", err)
	}
	svc, err := placement.Place(space, ServiceSecurityGroup, lb, opts.Service)
	if err != nil {
		return nil, fmt.Errorf("placing service: %w", err)
	}

	trig, err := trigger.Declare(space, svc.Endpoint, opts.Trigger)
	if err != nil {
		return nil, fmt.Errorf("declaring trigger: %w", err)
	}

	return &Stack{
		Name:    opts.Name,
		Network: space,
		Service: svc,
		Trigger: trig,
	}, nil
}

// Bind returns a copy of the callers targeting a concrete load balancer DNS
// name, as they are configured at run time.
func (s *Stack) Bind(dnsName string) []trigger.Caller {
	endpoint := s.Service.Endpoint.WithDNSName(dnsName)
	callers := make([]trigger.Caller, 0, len(s.Trigger.Callers))
	for _, c := range s.Trigger.Callers {
		c.Target = endpoint
		env := make(map[string]string, len(c.Environment))
		for k, v := range c.Environment {
			env[k] = v
		}
		env[trigger.EnvTargetURL] = dnsName
		c.Environment = env
		callers = append(callers, c)
	}
	return callers
}
