package topology

import (
	"net"
)

// AddressSpace is a built VPC: its subnets and the security groups that
// guard traffic between workloads placed in them.
//
// Subnets and tiers are immutable after Build. Security groups and rules are
// added while the stack is declared and only read afterwards.
type AddressSpace struct {
	CIDR  *net.IPNet
	Zones []string

	tiers   []SubnetTier
	subnets []Subnet
	groups  map[string]*SecurityGroup
	order   []string
	rules   *Rules
}

// Tiers returns the subnet tiers in declaration order.
func (s *AddressSpace) Tiers() []SubnetTier {
	out := make([]SubnetTier, len(s.tiers))
	copy(out, s.tiers)
	return out
}

// Tier looks up a tier by name.
func (s *AddressSpace) Tier(name string) (SubnetTier, bool) {
	for _, t := range s.tiers {
		if t.Name == name {
			return t, true
		}
	}
	return SubnetTier{}, false
}

// TierByEgress returns the first tier with the given egress.
func (s *AddressSpace) TierByEgress(egress Egress) (SubnetTier, bool) {
	return tierByEgress(s.tiers, egress)
}

// Subnets returns every subnet, grouped by tier then zone.
func (s *AddressSpace) Subnets() []Subnet {
	out := make([]Subnet, len(s.subnets))
	copy(out, s.subnets)
	return out
}

// SubnetsFor returns the subnets of one tier, one per zone.
func (s *AddressSpace) SubnetsFor(tier string) []Subnet {
	var out []Subnet
	for _, sn := range s.subnets {
		if sn.Tier == tier {
			out = append(out, sn)
		}
	}
	return out
}

// Contains reports whether ip falls inside the VPC block.
func (s *AddressSpace) Contains(ip net.IP) bool {
	return s.CIDR.Contains(ip)
}

// SubnetFor returns the subnet containing ip.
func (s *AddressSpace) SubnetFor(ip net.IP) (Subnet, bool) {
	for _, sn := range s.subnets {
		if sn.CIDR.Contains(ip) {
			return sn, true
		}
	}
	return Subnet{}, false
}
