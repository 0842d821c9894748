// Package topology builds the network address space of the stack: a VPC CIDR
// carved into subnet tiers replicated across availability zones, plus the
// security groups and rule adjacency map that decide which groups may talk.
//
// Subnets are allocated the way the CDK Vpc construct does it: tiers in
// declaration order, one block per zone, consecutive blocks of the tier's
// mask starting at the VPC base address.
package topology

import (
	"bytes"
	"fmt"
	"net"

	"github.com/apparentlymart/go-cidr/cidr"
)

// Egress classifies how a subnet tier reaches the internet.
type Egress string

const (
	// PrivateWithEgress subnets have no inbound internet route and reach
	// out through a NAT gateway.
	PrivateWithEgress Egress = "PRIVATE_WITH_EGRESS"
	// Public subnets route through the internet gateway.
	Public Egress = "PUBLIC"
)

const (
	// MinZones is the replication floor for every tier.
	MinZones = 2
	// DefaultZoneCapacity is assumed when the region's zones are unknown.
	DefaultZoneCapacity = 3
	// MaxSubnetMask is the smallest subnet AWS accepts (/28).
	MaxSubnetMask = 28
	// MinVPCMask is the largest VPC AWS accepts (/16).
	MinVPCMask = 16
)

// SubnetTier is a named class of subnets sharing an egress policy.
type SubnetTier struct {
	Name     string
	Egress   Egress
	CIDRMask int
}

// Subnet is one tier's block in one zone.
type Subnet struct {
	Tier   string
	Egress Egress
	// Zone is the zone index, 0-based
	Zone int
	// ZoneName is empty when zones are resolved at deploy time
	ZoneName string
	CIDR     *net.IPNet
}

// LogicalName returns the CloudFormation logical id of the subnet,
// e.g. "PrivateSubnet1".
func (s Subnet) LogicalName() string {
	return fmt.Sprintf("%s%d", s.Tier, s.Zone+1)
}

// Options declares the address space.
type Options struct {
	// CIDR is the VPC block (e.g., "10.0.0.0/16")
	CIDR string
	// MaxAZs is the number of zones every tier is replicated across
	MaxAZs int
	// Zones optionally names the region's available zones
	Zones []string
	// ZoneCapacity bounds MaxAZs; defaults to len(Zones) or DefaultZoneCapacity
	ZoneCapacity int
	Tiers        []SubnetTier
}

// Builder validates Options and allocates subnets.
type Builder struct {
	opts Options
}

// NewBuilder creates a builder for the given options.
func NewBuilder(opts Options) *Builder {
	return &Builder{opts: opts}
}

// Build validates the declaration and returns the allocated address space.
func (b *Builder) Build() (*AddressSpace, error) {
	_, vpc, err := net.ParseCIDR(b.opts.CIDR)
	if err != nil {
		return nil, configErr("cidr", "%q is not a CIDR block", b.opts.CIDR)
	}
	if vpc.IP.To4() == nil {
		return nil, configErr("cidr", "%q is not an IPv4 block", b.opts.CIDR)
	}
	prefix, _ := vpc.Mask.Size()
	if prefix < MinVPCMask || prefix > MaxSubnetMask {
		return nil, configErr("cidr", "prefix /%d outside /%d-/%d", prefix, MinVPCMask, MaxSubnetMask)
	}

	capacity := b.opts.ZoneCapacity
	if capacity == 0 {
		capacity = len(b.opts.Zones)
	}
	if capacity == 0 {
		capacity = DefaultZoneCapacity
	}
	if b.opts.MaxAZs < MinZones {
		return nil, configErr("maxAzs", "%d zones cannot replicate a tier; need at least %d", b.opts.MaxAZs, MinZones)
	}
	if b.opts.MaxAZs > capacity {
		return nil, configErr("maxAzs", "%d zones requested but the region offers %d", b.opts.MaxAZs, capacity)
	}

	if len(b.opts.Tiers) == 0 {
		return nil, configErr("tiers", "at least one subnet tier is required")
	}
	seen := make(map[string]bool)
	for i, tier := range b.opts.Tiers {
		field := fmt.Sprintf("tiers[%d]", i)
		if tier.Name == "" {
			return nil, configErr(field+".name", "tier name is empty")
		}
		if seen[tier.Name] {
			return nil, configErr(field+".name", "duplicate tier %q", tier.Name)
		}
		seen[tier.Name] = true
		if tier.Egress != PrivateWithEgress && tier.Egress != Public {
			return nil, configErr(field+".egress", "unknown egress %q", tier.Egress)
		}
		if tier.CIDRMask <= prefix || tier.CIDRMask > MaxSubnetMask {
			return nil, configErr(field+".cidrMask", "/%d outside /%d-/%d for VPC %s", tier.CIDRMask, prefix+1, MaxSubnetMask, vpc)
		}
	}

	// NAT gateways for private tiers live in the public tier of the same zone
	if _, ok := tierByEgress(b.opts.Tiers, PrivateWithEgress); ok {
		if _, ok := tierByEgress(b.opts.Tiers, Public); !ok {
			return nil, configErr("tiers", "a %s tier needs a %s tier to host its NAT gateways", PrivateWithEgress, Public)
		}
	}

	zones := make([]string, b.opts.MaxAZs)
	for i := range zones {
		if i < len(b.opts.Zones) {
			zones[i] = b.opts.Zones[i]
		}
	}

	subnets, err := allocate(vpc, prefix, zones, b.opts.Tiers)
	if err != nil {
		return nil, err
	}

	tiers := make([]SubnetTier, len(b.opts.Tiers))
	copy(tiers, b.opts.Tiers)

	return &AddressSpace{
		CIDR:    vpc,
		Zones:   zones,
		tiers:   tiers,
		subnets: subnets,
		groups:  make(map[string]*SecurityGroup),
		rules:   newRules(),
	}, nil
}

// allocate carves consecutive, aligned blocks for every tier and zone.
func allocate(vpc *net.IPNet, prefix int, zones []string, tiers []SubnetTier) ([]Subnet, error) {
	var (
		subnets []Subnet
		blocks  []*net.IPNet
	)
	cursor := vpc.IP.To4()

	for i, tier := range tiers {
		newBits := tier.CIDRMask - prefix
		for zone, name := range zones {
			block, err := nextBlock(vpc, newBits, cursor)
			if err != nil {
				return nil, configErr(fmt.Sprintf("tiers[%d]", i), "address space %s exhausted allocating %s zone %d", vpc, tier.Name, zone+1)
			}
			_, last := cidr.AddressRange(block)
			cursor = cidr.Inc(last).To4()
			blocks = append(blocks, block)
			subnets = append(subnets, Subnet{
				Tier:     tier.Name,
				Egress:   tier.Egress,
				Zone:     zone,
				ZoneName: name,
				CIDR:     block,
			})
		}
	}

	if err := cidr.VerifyNoOverlap(blocks, vpc); err != nil {
		return nil, configErr("tiers", "%v", err)
	}
	return subnets, nil
}

// nextBlock returns the first aligned block at or after cursor.
func nextBlock(vpc *net.IPNet, newBits int, cursor net.IP) (*net.IPNet, error) {
	for num := 0; num < 1<<newBits; num++ {
		block, err := cidr.Subnet(vpc, newBits, num)
		if err != nil {
			return nil, err
		}
		if bytes.Compare(block.IP.To4(), cursor) >= 0 {
			return block, nil
		}
	}
	return nil, fmt.Errorf("no free /%d block", newBits)
}

func tierByEgress(tiers []SubnetTier, e Egress) (SubnetTier, bool) {
	for _, t := range tiers {
		if t.Egress == e {
			return t, true
		}
	}
	return SubnetTier{}, false
}
