// Package reach answers "may this source open a connection to the service
// endpoint" from the security group adjacency map, before anything dials.
package reach

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lex00/wetwire-fargate-go/internal/caller"
	"github.com/lex00/wetwire-fargate-go/internal/placement"
	"github.com/lex00/wetwire-fargate-go/internal/stack"
	"github.com/lex00/wetwire-fargate-go/internal/topology"
	"github.com/lex00/wetwire-fargate-go/internal/trigger"
)

// Internet is the name of the synthetic source outside the VPC.
const Internet = "internet"

// Source is a prospective client of the endpoint.
type Source struct {
	Name      string
	Placement trigger.Placement
	// Tier is empty for sources outside the VPC
	Tier           string
	SecurityGroups []string
}

// FromCaller describes a declared caller as a source.
func FromCaller(c trigger.Caller) Source {
	return Source{Name: c.Name, Placement: c.Placement, Tier: c.Tier, SecurityGroups: c.SecurityGroups}
}

// InternetSource is a client on the public internet.
func InternetSource() Source {
	return Source{Name: Internet, Placement: trigger.PlacementNone}
}

// Verdict is the outcome of one evaluation.
type Verdict struct {
	Source    string
	Placement trigger.Placement
	Allowed   bool
	Reason    string
	// Rule is the ingress edge that admitted the source
	Rule *topology.Rule
}

// Err returns nil for allowed verdicts and a network rejection otherwise.
func (v Verdict) Err(endpoint placement.ServiceEndpoint) error {
	if v.Allowed {
		return nil
	}
	return &caller.RejectionError{Target: endpoint.URL(), Reason: v.Reason}
}

// Evaluate decides whether src can reach endpoint.
//
// The load balancer is internal, so its name resolves only inside the VPC:
// a source without a tier is denied outright. A source inside the VPC needs
// one of its groups to hold an ingress edge into the endpoint group on the
// endpoint port, paired with egress.
func Evaluate(space *topology.AddressSpace, endpoint placement.ServiceEndpoint, src Source) Verdict {
	v := Verdict{Source: src.Name, Placement: src.Placement}

	if src.Placement == trigger.PlacementNone || src.Tier == "" {
		v.Reason = "source is outside the VPC; the internal load balancer is not routable from there"
		return v
	}
	if _, ok := space.Tier(src.Tier); !ok {
		v.Reason = fmt.Sprintf("tier %q is not part of the address space", src.Tier)
		return v
	}
	if len(src.SecurityGroups) == 0 {
		v.Reason = "source has no security groups"
		return v
	}

	for _, group := range src.SecurityGroups {
		if rule, ok := space.Allows(group, endpoint.SecurityGroup, topology.TCP, endpoint.Port); ok {
			v.Allowed = true
			v.Rule = &rule
			v.Reason = "ingress " + rule.String()
			return v
		}
	}

	groups := append([]string(nil), src.SecurityGroups...)
	sort.Strings(groups)
	v.Reason = fmt.Sprintf("no ingress rule into %s on %s/%d from [%s]",
		endpoint.SecurityGroup, topology.TCP, endpoint.Port, strings.Join(groups, ", "))
	return v
}

// EvaluateStack evaluates every declared caller plus the internet.
func EvaluateStack(st *stack.Stack) []Verdict {
	endpoint := st.Service.Endpoint
	verdicts := make([]Verdict, 0, len(st.Trigger.Callers)+1)
	for _, c := range st.Trigger.Callers {
		verdicts = append(verdicts, Evaluate(st.Network, endpoint, FromCaller(c)))
	}
	verdicts = append(verdicts, Evaluate(st.Network, endpoint, InternetSource()))
	return verdicts
}

// Guard checks callers before they dial.
type Guard struct {
	space *topology.AddressSpace
}

// NewGuard creates a guard over the stack's adjacency map.
func NewGuard(st *stack.Stack) *Guard {
	return &Guard{space: st.Network}
}

// Check returns a network rejection when c may not reach its target.
func (g *Guard) Check(c trigger.Caller) error {
	return Evaluate(g.space, c.Target, FromCaller(c)).Err(c.Target)
}
