package trigger

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lex00/wetwire-fargate-go/internal/placement"
	"github.com/lex00/wetwire-fargate-go/internal/topology"
)

func placed(t *testing.T) (*topology.AddressSpace, *placement.Placement) {
	t.Helper()
	space, err := topology.NewBuilder(topology.Options{
		CIDR:   "10.0.0.0/16",
		MaxAZs: 2,
		Tiers: []topology.SubnetTier{
			{Name: "PrivateSubnet", Egress: topology.PrivateWithEgress, CIDRMask: 24},
			{Name: "PublicSubnet", Egress: topology.Public, CIDRMask: 24},
		},
	}).Build()
	require.NoError(t, err)
	_, err = space.AddSecurityGroup("FargateSecurityGroup", "Security Group for Fargate ALB", true)
	require.NoError(t, err)
	lb, err := placement.NewInternalLoadBalancer(space, "ALB", "FargateSecurityGroup")
	require.NoError(t, err)
	p, err := placement.Place(space, "FargateSecurityGroup", lb, placement.Options{})
	require.NoError(t, err)
	return space, p
}

func TestDeclare_ThreeCallers(t *testing.T) {
	space, p := placed(t)

	d, err := Declare(space, p.Endpoint, Options{})
	require.NoError(t, err)

	require.Len(t, d.Callers, 3)
	assert.Equal(t, PlacementPrivateWithSG, d.Callers[0].Placement)
	assert.Equal(t, []string{"LambdaSecurityGroup"}, d.Callers[0].SecurityGroups)
	assert.Equal(t, PlacementPrivate, d.Callers[1].Placement)
	assert.Equal(t, []string{"FargateLambdaInPrivateVPCSecurityGroup"}, d.Callers[1].SecurityGroups)
	assert.Equal(t, PlacementNone, d.Callers[2].Placement)
	assert.False(t, d.Callers[2].InVPC())
	assert.Empty(t, d.Callers[2].SecurityGroups)

	for _, c := range d.Callers {
		assert.Equal(t, 60*time.Second, c.Timeout)
		assert.Equal(t, "arm64", c.Architecture)
		assert.Equal(t, p.Endpoint, c.Target)
		assert.Contains(t, c.Environment, EnvTargetURL)
	}

	assert.Equal(t, "LambdaInvokeRule", d.Rule.Name)
	assert.Equal(t, "rate(1 minute)", d.Rule.Schedule.Expression())
	assert.Equal(t, []string{"FargateLambdaInPrivateVPCWithSG", "FargateLambdaInPrivateVPC", "FargateLambda"}, d.Rule.Targets)

	assert.Len(t, d.Role.ManagedPolicies, 2)

	c, ok := d.Caller("FargateLambda")
	require.True(t, ok)
	assert.Equal(t, PlacementNone, c.Placement)
}

func TestDeclare_PairsCallerRules(t *testing.T) {
	space, p := placed(t)
	_, err := Declare(space, p.Endpoint, Options{})
	require.NoError(t, err)

	rule, ok := space.Allows("LambdaSecurityGroup", "FargateSecurityGroup", topology.TCP, 80)
	require.True(t, ok)
	assert.Equal(t, "allow traffic on port 80 from the Lambda security group", rule.Description)
	assert.Len(t, space.EgressFrom("LambdaSecurityGroup"), 1)

	_, ok = space.Allows("FargateLambdaInPrivateVPCSecurityGroup", "FargateSecurityGroup", topology.TCP, 80)
	assert.False(t, ok)
}

func TestDeclare_Errors(t *testing.T) {
	t.Run("sub-minute schedule", func(t *testing.T) {
		space, p := placed(t)
		_, err := Declare(space, p.Endpoint, Options{Schedule: Schedule{Rate: 30 * time.Second}})
		assert.True(t, errors.Is(err, topology.ErrConfiguration))
	})
	t.Run("timeout too long", func(t *testing.T) {
		space, p := placed(t)
		_, err := Declare(space, p.Endpoint, Options{Timeout: time.Hour})
		assert.True(t, errors.Is(err, topology.ErrConfiguration))
	})
	t.Run("declared twice", func(t *testing.T) {
		space, p := placed(t)
		_, err := Declare(space, p.Endpoint, Options{})
		require.NoError(t, err)
		_, err = Declare(space, p.Endpoint, Options{})
		assert.True(t, errors.Is(err, topology.ErrConfiguration))
	})
}

func TestParseSchedule(t *testing.T) {
	tests := []struct {
		expr    string
		rate    time.Duration
		wantErr bool
	}{
		{"rate(1 minute)", time.Minute, false},
		{"rate(5 minutes)", 5 * time.Minute, false},
		{"rate(1 hour)", time.Hour, false},
		{"rate(2 days)", 48 * time.Hour, false},
		{"rate(1 minutes)", 0, true},
		{"rate(5 minute)", 0, true},
		{"rate(0 minutes)", 0, true},
		{"cron(0 12 * * ? *)", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			s, err := ParseSchedule(tt.expr)
			if tt.wantErr {
				assert.True(t, errors.Is(err, topology.ErrConfiguration))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.rate, s.Rate)
			assert.Equal(t, tt.expr, s.Expression())
		})
	}
}
