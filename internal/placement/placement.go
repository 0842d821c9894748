// Package placement binds the Fargate service to the private tier of an
// address space behind an internal application load balancer.
package placement

import (
	"errors"
	"fmt"

	wetwire "github.com/lex00/wetwire-fargate-go"
	"github.com/lex00/wetwire-fargate-go/internal/topology"
)

// ListenerPort is the only port the load balancer and containers expose.
const ListenerPort = 80

const (
	DefaultImage        = "amazon/amazon-ecs-sample"
	DefaultCPU          = 256
	DefaultMemory       = 512
	DefaultDesiredCount = 1
	ContainerName       = "web"
)

var (
	// ErrInternetFacing rejects load balancers that are not internal.
	ErrInternetFacing = errors.New("load balancer must be internal")
	// ErrPublicPlacement rejects placement in a tier routed to the internet
	// or with public addresses.
	ErrPublicPlacement = errors.New("service must not be placed publicly")
)

// LoadBalancer describes the application load balancer fronting the service.
type LoadBalancer struct {
	// Name is the logical id (e.g., "ALB")
	Name          string
	Internal      bool
	Tier          string
	SecurityGroup string
}

// NewInternalLoadBalancer declares an internal load balancer in the first
// private-with-egress tier of space.
func NewInternalLoadBalancer(space *topology.AddressSpace, name, securityGroup string) (LoadBalancer, error) {
	tier, ok := space.TierByEgress(topology.PrivateWithEgress)
	if !ok {
		return LoadBalancer{}, &topology.ConfigurationError{
			Field:  "loadBalancer.tier",
			Reason: "no PRIVATE_WITH_EGRESS tier to place the load balancer in",
			Err:    ErrPublicPlacement,
		}
	}
	return LoadBalancer{Name: name, Internal: true, Tier: tier.Name, SecurityGroup: securityGroup}, nil
}

// Role is an IAM role attached to the service or the callers.
type Role struct {
	Name            string
	AssumedBy       string
	ManagedPolicies []string
	// InlinePolicies maps a policy name to the allowed actions
	InlinePolicies map[string][]string
}

// Service is the Fargate service declaration.
type Service struct {
	Name            string
	Cluster         string
	Image           string
	ContainerPort   int
	DesiredCount    int
	CPU             int
	Memory          int
	AssignPublicIP  bool
	Tier            string
	SecurityGroups  []string
	TaskRole        Role
	OperatingSystem string
	CPUArchitecture string
}

// ServiceEndpoint is how callers address the service.
type ServiceEndpoint struct {
	// DNSName is the literal load balancer name, known only at run time
	DNSName string
	// DNSNameRef is the deploy-time token for the load balancer name
	DNSNameRef    wetwire.AttrRef
	Port          int
	Tier          string
	SecurityGroup string
	LoadBalancer  string
}

// WithDNSName returns a copy of e bound to a concrete DNS name.
func (e ServiceEndpoint) WithDNSName(name string) ServiceEndpoint {
	e.DNSName = name
	return e
}

// URL returns the address callers POST to.
func (e ServiceEndpoint) URL() string {
	return "http://" + e.DNSName
}

// Options tune the service.
type Options struct {
	Name           string
	Image          string
	DesiredCount   int
	CPU            int
	Memory         int
	AssignPublicIP bool
	// Tier defaults to the load balancer's tier
	Tier string
}

// Placement is the result of Place.
type Placement struct {
	LoadBalancer LoadBalancer
	Service      Service
	Endpoint     ServiceEndpoint
	// HealthCheckPath is probed by the target group
	HealthCheckPath string
}

// Place binds a service to the private tier behind lb and opens the
// load balancer group to the service group on ListenerPort.
func Place(space *topology.AddressSpace, securityGroup string, lb LoadBalancer, opts Options) (*Placement, error) {
	if !lb.Internal {
		return nil, &topology.ConfigurationError{
			Field:  "loadBalancer.internal",
			Reason: fmt.Sprintf("load balancer %s is internet-facing", lb.Name),
			Err:    ErrInternetFacing,
		}
	}
	if err := requirePrivate(space, "loadBalancer.tier", lb.Tier); err != nil {
		return nil, err
	}

	tier := opts.Tier
	if tier == "" {
		tier = lb.Tier
	}
	if err := requirePrivate(space, "service.tier", tier); err != nil {
		return nil, err
	}
	if opts.AssignPublicIP {
		return nil, &topology.ConfigurationError{
			Field:  "service.assignPublicIp",
			Reason: "tasks must not receive public addresses",
			Err:    ErrPublicPlacement,
		}
	}
	for _, group := range []string{securityGroup, lb.SecurityGroup} {
		if _, ok := space.SecurityGroup(group); !ok {
			return nil, &topology.ConfigurationError{
				Field:  "service.securityGroup",
				Reason: fmt.Sprintf("unknown security group %q", group),
			}
		}
	}

	if err := space.AllowIngress(lb.SecurityGroup, securityGroup, topology.TCP, ListenerPort, "Load balancer to target"); err != nil {
		return nil, fmt.Errorf("opening service port: %w", err)
	}

	svc := Service{
		Name:            orDefault(opts.Name, "Service"),
		Cluster:         "Cluster",
		Image:           orDefault(opts.Image, DefaultImage),
		ContainerPort:   ListenerPort,
		DesiredCount:    orDefaultInt(opts.DesiredCount, DefaultDesiredCount),
		CPU:             orDefaultInt(opts.CPU, DefaultCPU),
		Memory:          orDefaultInt(opts.Memory, DefaultMemory),
		Tier:            tier,
		SecurityGroups:  []string{securityGroup},
		OperatingSystem: "LINUX",
		CPUArchitecture: "X86_64",
		TaskRole: Role{
			Name:      "TaskRole",
			AssumedBy: "ecs-tasks.amazonaws.com",
			InlinePolicies: map[string][]string{
				"CloudWatchPolicy": {"logs:CreateLogGroup", "logs:CreateLogStream", "logs:PutLogEvents"},
			},
		},
	}

	return &Placement{
		LoadBalancer: lb,
		Service:      svc,
		Endpoint: ServiceEndpoint{
			DNSNameRef:    wetwire.AttrRef{Resource: lb.Name, Attribute: "DNSName"},
			Port:          ListenerPort,
			Tier:          tier,
			SecurityGroup: securityGroup,
			LoadBalancer:  lb.Name,
		},
		HealthCheckPath: "/",
	}, nil
}

func requirePrivate(space *topology.AddressSpace, field, name string) error {
	tier, ok := space.Tier(name)
	if !ok {
		return &topology.ConfigurationError{Field: field, Reason: fmt.Sprintf("unknown tier %q", name)}
	}
	if tier.Egress != topology.PrivateWithEgress {
		return &topology.ConfigurationError{
			Field:  field,
			Reason: fmt.Sprintf("tier %q is %s", name, tier.Egress),
			Err:    ErrPublicPlacement,
		}
	}
	return nil
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func orDefaultInt(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}
