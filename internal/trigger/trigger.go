// Package trigger declares the scheduled callers of the service: three
// Lambda functions with different network placements, fired together by one
// EventBridge rule.
package trigger

import (
	"fmt"
	"time"

	"github.com/lex00/wetwire-fargate-go/internal/placement"
	"github.com/lex00/wetwire-fargate-go/internal/topology"
)

// Placement is where a caller runs relative to the VPC.
type Placement string

const (
	// PlacementNone runs outside the VPC.
	PlacementNone Placement = "none"
	// PlacementPrivate runs in the private tier with a default group only.
	PlacementPrivate Placement = "vpc-private"
	// PlacementPrivateWithSG runs in the private tier in the caller group.
	PlacementPrivateWithSG Placement = "vpc-private-with-sg"
)

// EnvTargetURL carries the load balancer DNS name into every caller.
const EnvTargetURL = "FARGATE_ALB_URL"

const (
	DefaultTimeout       = 60 * time.Second
	DefaultSecurityGroup = "LambdaSecurityGroup"
	DefaultRuleName      = "LambdaInvokeRule"
	DefaultMemorySize    = 128
	Architecture         = "arm64"
	Runtime              = "provided.al2023"
	Handler              = "bootstrap"
)

// Caller is one scheduled Lambda function.
type Caller struct {
	Name           string
	Placement      Placement
	Tier           string
	SecurityGroups []string
	Target         placement.ServiceEndpoint
	Timeout        time.Duration
	MemorySize     int
	Architecture   string
	Runtime        string
	Handler        string
	Role           string
	Environment    map[string]string
}

// InVPC reports whether the caller has network interfaces in the VPC.
func (c Caller) InVPC() bool {
	return c.Placement != PlacementNone
}

// Rule fires every target on a fixed schedule.
type Rule struct {
	Name     string
	Schedule Schedule
	// Targets are caller names in declaration order
	Targets []string
}

// Declaration is everything trigger.Declare adds to a stack.
type Declaration struct {
	SecurityGroup string
	Role          placement.Role
	Callers       []Caller
	Rule          Rule
}

// Caller looks up a caller by name.
func (d *Declaration) Caller(name string) (Caller, bool) {
	for _, c := range d.Callers {
		if c.Name == name {
			return c, true
		}
	}
	return Caller{}, false
}

// Options tune the trigger declaration.
type Options struct {
	Schedule      Schedule
	Timeout       time.Duration
	SecurityGroup string
	RuleName      string
}

// Declare adds the caller security group and its paired rules to space, and
// declares the three callers bound to endpoint.
func Declare(space *topology.AddressSpace, endpoint placement.ServiceEndpoint, opts Options) (*Declaration, error) {
	if opts.Schedule.Rate == 0 {
		opts.Schedule = Schedule{Rate: time.Minute}
	}
	if err := opts.Schedule.Validate(); err != nil {
		return nil, err
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Timeout < time.Second || opts.Timeout > 15*time.Minute {
		return nil, &topology.ConfigurationError{Field: "timeout", Reason: fmt.Sprintf("%s outside 1s-15m", opts.Timeout)}
	}
	if opts.SecurityGroup == "" {
		opts.SecurityGroup = DefaultSecurityGroup
	}
	if opts.RuleName == "" {
		opts.RuleName = DefaultRuleName
	}
	if _, ok := space.Tier(endpoint.Tier); !ok {
		return nil, &topology.ConfigurationError{Field: "endpoint.tier", Reason: fmt.Sprintf("unknown tier %q", endpoint.Tier)}
	}

	sg := opts.SecurityGroup
	if _, err := space.AddSecurityGroup(sg, "Lambda Security Group", true); err != nil {
		return nil, err
	}
	if err := space.AddEgress(sg, endpoint.SecurityGroup, topology.TCP, endpoint.Port, "allow traffic to the Fargate security group"); err != nil {
		return nil, err
	}
	if err := space.AllowIngress(sg, endpoint.SecurityGroup, topology.TCP, endpoint.Port,
		fmt.Sprintf("allow traffic on port %d from the Lambda security group", endpoint.Port)); err != nil {
		return nil, err
	}

	// A VPC function declared without groups gets a fresh group with no rules.
	defaultGroup := "FargateLambdaInPrivateVPCSecurityGroup"
	if _, err := space.AddSecurityGroup(defaultGroup, "Automatic security group for Lambda Function", true); err != nil {
		return nil, err
	}

	role := placement.Role{
		Name:      "LambdaRole",
		AssumedBy: "lambda.amazonaws.com",
		ManagedPolicies: []string{
			"service-role/AWSLambdaBasicExecutionRole",
			"service-role/AWSLambdaVPCAccessExecutionRole",
		},
	}

	base := func(name string, p Placement, tier string, groups []string) Caller {
		return Caller{
			Name:           name,
			Placement:      p,
			Tier:           tier,
			SecurityGroups: groups,
			Target:         endpoint,
			Timeout:        opts.Timeout,
			MemorySize:     DefaultMemorySize,
			Architecture:   Architecture,
			Runtime:        Runtime,
			Handler:        Handler,
			Role:           role.Name,
			Environment:    map[string]string{EnvTargetURL: endpoint.DNSName},
		}
	}

	callers := []Caller{
		base("FargateLambdaInPrivateVPCWithSG", PlacementPrivateWithSG, endpoint.Tier, []string{sg}),
		base("FargateLambdaInPrivateVPC", PlacementPrivate, endpoint.Tier, []string{defaultGroup}),
		base("FargateLambda", PlacementNone, "", nil),
	}

	targets := make([]string, 0, len(callers))
	for _, c := range callers {
		targets = append(targets, c.Name)
	}

	return &Declaration{
		SecurityGroup: sg,
		Role:          role,
		Callers:       callers,
		Rule: Rule{
			Name:     opts.RuleName,
			Schedule: opts.Schedule,
			Targets:  targets,
		},
	}, nil
}
