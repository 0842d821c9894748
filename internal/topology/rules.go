package topology

import (
	"fmt"
	"sort"
)

// Protocol is an IP protocol as CloudFormation spells it.
type Protocol string

const (
	TCP Protocol = "tcp"
	// AllTraffic matches every protocol and port.
	AllTraffic Protocol = "-1"
)

// Direction of a security group rule.
type Direction string

const (
	Inbound  Direction = "ingress"
	Outbound Direction = "egress"
)

// SecurityGroup is a capability set: membership in a group grants whatever
// the rules naming the group allow.
type SecurityGroup struct {
	Name        string
	Description string
	// AllowAllOutbound lets members open connections to any destination
	// without explicit egress rules.
	AllowAllOutbound bool
}

// Rule is a directed edge of the adjacency map, from Source group to
// Destination group.
type Rule struct {
	Direction   Direction
	Source      string
	Destination string
	Protocol    Protocol
	Port        int
	Description string
}

func (r Rule) key() string {
	return fmt.Sprintf("%s|%s|%s|%s|%d", r.Direction, r.Source, r.Destination, r.Protocol, r.Port)
}

func (r Rule) matches(proto Protocol, port int) bool {
	if r.Protocol == AllTraffic {
		return true
	}
	return r.Protocol == proto && r.Port == port
}

// String renders the rule as "src -> dst tcp/80".
func (r Rule) String() string {
	if r.Protocol == AllTraffic {
		return fmt.Sprintf("%s -> %s all", r.Source, r.Destination)
	}
	return fmt.Sprintf("%s -> %s %s/%d", r.Source, r.Destination, r.Protocol, r.Port)
}

// Rules is the adjacency map of security group rules. Ingress rules are
// indexed by destination and egress rules by source.
type Rules struct {
	ingress map[string][]Rule
	egress  map[string][]Rule
	seen    map[string]bool
}

func newRules() *Rules {
	return &Rules{
		ingress: make(map[string][]Rule),
		egress:  make(map[string][]Rule),
		seen:    make(map[string]bool),
	}
}

// add records a rule, returning false for duplicates.
func (r *Rules) add(rule Rule) bool {
	if r.seen[rule.key()] {
		return false
	}
	r.seen[rule.key()] = true
	switch rule.Direction {
	case Inbound:
		r.ingress[rule.Destination] = append(r.ingress[rule.Destination], rule)
	case Outbound:
		r.egress[rule.Source] = append(r.egress[rule.Source], rule)
	}
	return true
}

func (r *Rules) findIngress(src, dst string, proto Protocol, port int) (Rule, bool) {
	for _, rule := range r.ingress[dst] {
		if rule.Source == src && rule.matches(proto, port) {
			return rule, true
		}
	}
	return Rule{}, false
}

func (r *Rules) hasEgress(src, dst string, proto Protocol, port int) bool {
	for _, rule := range r.egress[src] {
		if rule.Destination == dst && rule.matches(proto, port) {
			return true
		}
	}
	return false
}

// AddSecurityGroup declares a new group.
func (s *AddressSpace) AddSecurityGroup(name, description string, allowAllOutbound bool) (*SecurityGroup, error) {
	if name == "" {
		return nil, configErr("securityGroup.name", "group name is empty")
	}
	if _, ok := s.groups[name]; ok {
		return nil, configErr("securityGroup.name", "duplicate security group %q", name)
	}
	g := &SecurityGroup{Name: name, Description: description, AllowAllOutbound: allowAllOutbound}
	s.groups[name] = g
	s.order = append(s.order, name)
	return g, nil
}

// SecurityGroup looks up a group by name.
func (s *AddressSpace) SecurityGroup(name string) (*SecurityGroup, bool) {
	g, ok := s.groups[name]
	return g, ok
}

// SecurityGroups returns groups in declaration order.
func (s *AddressSpace) SecurityGroups() []*SecurityGroup {
	out := make([]*SecurityGroup, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.groups[name])
	}
	return out
}

// AllowIngress lets members of src open connections into dst.
// Re-adding an existing rule is a no-op.
func (s *AddressSpace) AllowIngress(src, dst string, proto Protocol, port int, description string) error {
	rule, err := s.rule(Inbound, src, dst, proto, port, description)
	if err != nil {
		return err
	}
	s.rules.add(rule)
	return nil
}

// AddEgress lets members of src send to members of dst.
func (s *AddressSpace) AddEgress(src, dst string, proto Protocol, port int, description string) error {
	rule, err := s.rule(Outbound, src, dst, proto, port, description)
	if err != nil {
		return err
	}
	s.rules.add(rule)
	return nil
}

func (s *AddressSpace) rule(dir Direction, src, dst string, proto Protocol, port int, description string) (Rule, error) {
	if _, ok := s.groups[src]; !ok {
		return Rule{}, configErr("rule.source", "unknown security group %q", src)
	}
	if _, ok := s.groups[dst]; !ok {
		return Rule{}, configErr("rule.destination", "unknown security group %q", dst)
	}
	switch proto {
	case TCP:
		if port < 1 || port > 65535 {
			return Rule{}, configErr("rule.port", "port %d out of range", port)
		}
	case AllTraffic:
		port = 0
	default:
		return Rule{}, configErr("rule.protocol", "unsupported protocol %q", proto)
	}
	return Rule{
		Direction:   dir,
		Source:      src,
		Destination: dst,
		Protocol:    proto,
		Port:        port,
		Description: description,
	}, nil
}

// Allows reports whether a member of src may open a connection to a member
// of dst. Both sides must agree: an ingress rule on dst naming src, and
// either allow-all-outbound on src or a matching egress rule.
func (s *AddressSpace) Allows(src, dst string, proto Protocol, port int) (Rule, bool) {
	g, ok := s.groups[src]
	if !ok {
		return Rule{}, false
	}
	rule, ok := s.rules.findIngress(src, dst, proto, port)
	if !ok {
		return Rule{}, false
	}
	if g.AllowAllOutbound || s.rules.hasEgress(src, dst, proto, port) {
		return rule, true
	}
	return Rule{}, false
}

// IngressTo returns the ingress rules guarding dst.
func (s *AddressSpace) IngressTo(dst string) []Rule {
	out := make([]Rule, len(s.rules.ingress[dst]))
	copy(out, s.rules.ingress[dst])
	return out
}

// Rules returns every rule, sorted for deterministic output.
func (s *AddressSpace) Rules() []Rule {
	var out []Rule
	for _, rules := range s.rules.ingress {
		out = append(out, rules...)
	}
	for _, rules := range s.rules.egress {
		out = append(out, rules...)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].key() < out[j].key()
	})
	return out
}

// EgressFrom returns the explicit egress rules of src.
func (s *AddressSpace) EgressFrom(src string) []Rule {
	out := make([]Rule, len(s.rules.egress[src]))
	copy(out, s.rules.egress[src])
	return out
}
