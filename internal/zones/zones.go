// Package zones resolves the availability zones a stack can be replicated
// across.
package zones

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/lex00/wetwire-fargate-go/internal/topology"
)

// Lister returns the zone names available in the current region.
type Lister interface {
	List(ctx context.Context) ([]string, error)
}

// Static is a fixed zone list.
type Static []string

func (s Static) List(context.Context) ([]string, error) {
	return append([]string(nil), s...), nil
}

// EC2API is the subset of the EC2 client used by EC2Lister.
type EC2API interface {
	DescribeAvailabilityZones(ctx context.Context, params *ec2.DescribeAvailabilityZonesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeAvailabilityZonesOutput, error)
}

// EC2Lister asks EC2 for the region's available zones. Local zones and
// wavelength zones are excluded.
type EC2Lister struct {
	client EC2API
}

// NewEC2Lister creates a lister around an EC2 client.
func NewEC2Lister(client EC2API) *EC2Lister {
	return &EC2Lister{client: client}
}

// NewEC2ListerFromConfig creates a lister from an AWS config.
func NewEC2ListerFromConfig(cfg aws.Config) *EC2Lister {
	return NewEC2Lister(ec2.NewFromConfig(cfg))
}

func (l *EC2Lister) List(ctx context.Context) ([]string, error) {
	out, err := l.client.DescribeAvailabilityZones(ctx, &ec2.DescribeAvailabilityZonesInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("state"), Values: []string{"available"}},
			{Name: aws.String("zone-type"), Values: []string{"availability-zone"}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("describing availability zones: %w", err)
	}

	names := make([]string, 0, len(out.AvailabilityZones))
	for _, az := range out.AvailabilityZones {
		if az.State != ec2types.AvailabilityZoneStateAvailable {
			continue
		}
		if name := aws.ToString(az.ZoneName); name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Resolve fills opts.Zones and opts.ZoneCapacity from l. An empty result
// leaves opts unchanged so the topology builder falls back to its default
// capacity.
func Resolve(ctx context.Context, l Lister, opts *topology.Options) error {
	names, err := l.List(ctx)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return nil
	}
	opts.ZoneCapacity = len(names)
	if len(opts.Zones) == 0 {
		opts.Zones = names
	}
	return nil
}
