package stack

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lex00/wetwire-fargate-go/internal/placement"
	"github.com/lex00/wetwire-fargate-go/internal/topology"
	"github.com/lex00/wetwire-fargate-go/internal/trigger"
)

func TestNew_Default(t *testing.T) {
	st, err := New(DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, "PrivateFargateWithLambda", st.Name)
	assert.Len(t, st.Network.Subnets(), 4)
	assert.Equal(t, "PrivateSubnet", st.Service.Service.Tier)
	assert.True(t, st.Service.LoadBalancer.Internal)
	assert.Len(t, st.Trigger.Callers, 3)

	var groups []string
	for _, g := range st.Network.SecurityGroups() {
		groups = append(groups, g.Name)
	}
	assert.Equal(t, []string{"FargateSecurityGroup", "LambdaSecurityGroup", "FargateLambdaInPrivateVPCSecurityGroup"}, groups)

	var sources []string
	for _, r := range st.Network.IngressTo(ServiceSecurityGroup) {
		sources = append(sources, r.Source)
	}
	assert.ElementsMatch(t, []string{"FargateSecurityGroup", "LambdaSecurityGroup"}, sources)
}

func TestNew_PropagatesConfigurationErrors(t *testing.T) {
	t.Run("network", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Network.MaxAZs = 1
		_, err := New(opts)
		assert.True(t, errors.Is(err, topology.ErrConfiguration))
	})
	t.Run("public only", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Network.Tiers = opts.Network.Tiers[1:]
		_, err := New(opts)
		assert.True(t, errors.Is(err, placement.ErrPublicPlacement))
	})
	t.Run("public ip", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Service.AssignPublicIP = true
		_, err := New(opts)
		assert.True(t, errors.Is(err, placement.ErrPublicPlacement))
	})
	t.Run("no name", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Name = ""
		_, err := New(opts)
		assert.True(t, errors.Is(err, topology.ErrConfiguration))
	})
}

func TestBind(t *testing.T) {
	st, err := New(DefaultOptions())
	require.NoError(t, err)

	callers := st.Bind("internal-alb-123.us-east-1.elb.amazonaws.com")
	require.Len(t, callers, 3)
	for _, c := range callers {
		assert.Equal(t, "http://internal-alb-123.us-east-1.elb.amazonaws.com", c.Target.URL())
		assert.Equal(t, "internal-alb-123.us-east-1.elb.amazonaws.com", c.Environment[trigger.EnvTargetURL])
	}

	// the declaration itself stays unbound
	assert.Empty(t, st.Trigger.Callers[0].Target.DNSName)
	assert.Empty(t, st.Trigger.Callers[0].Environment[trigger.EnvTargetURL])
}
