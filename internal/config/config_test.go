package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lex00/wetwire-fargate-go/internal/topology"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvConfigFile, "AWS_REGION", "LOG_LEVEL", "FARGATE_ALB_URL", "METRICS_ADDR"} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "PrivateFargateWithLambda", cfg.StackName)
	assert.Equal(t, "10.0.0.0/16", cfg.VPCCIDR)
	assert.Equal(t, 2, cfg.MaxAZs)
	assert.Len(t, cfg.Tiers, 2)
	assert.Equal(t, "rate(1 minute)", cfg.Schedule)
	assert.Equal(t, 60*time.Second, cfg.InvocationTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "", cfg.TargetURL)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("AWS_REGION", "eu-west-1")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("FARGATE_ALB_URL", "internal-alb.example")
	t.Setenv("METRICS_ADDR", ":9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "eu-west-1", cfg.Region)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "internal-alb.example", cfg.TargetURL)
	assert.Equal(t, ":9090", cfg.MetricsAddr)
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "stack.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
stackName: Polling
vpcCidr: 10.20.0.0/16
maxAzs: 3
zoneCapacity: 3
tiers:
  - name: App
    type: PRIVATE_WITH_EGRESS
    cidrMask: 22
  - name: Edge
    type: PUBLIC
    cidrMask: 26
schedule: rate(5 minutes)
invocationTimeout: 30s
`), 0644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Polling", cfg.StackName)
	assert.Equal(t, 30*time.Second, cfg.InvocationTimeout)

	st, err := cfg.Stack()
	require.NoError(t, err)
	assert.Len(t, st.Network.Subnets(), 6)
	assert.Equal(t, "App", st.Service.Service.Tier)
	assert.Equal(t, 5*time.Minute, st.Trigger.Rule.Schedule.Rate)
	assert.Equal(t, 30*time.Second, st.Trigger.Callers[0].Timeout)
}

func TestLoad_FromEnvPath(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "stack.yaml")
	require.NoError(t, os.WriteFile(path, []byte("stackName: FromEnv\n"), 0644))
	t.Setenv(EnvConfigFile, path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "FromEnv", cfg.StackName)
	assert.Equal(t, 2, cfg.MaxAZs)
}

func TestLoadFile_Errors(t *testing.T) {
	clearEnv(t)

	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tiers: [unclosed"), 0644))
	_, err = LoadFile(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"missing stack name", func(c *Config) { c.StackName = "" }, "stackName"},
		{"bad cidr", func(c *Config) { c.VPCCIDR = "10.0.0.0" }, "vpcCidr"},
		{"bad tier type", func(c *Config) { c.Tiers[0].Type = "ISOLATED" }, "tiers[0].type"},
		{"tier mask", func(c *Config) { c.Tiers[1].CIDRMask = 30 }, "tiers[1].cidrMask"},
		{"bad schedule", func(c *Config) { c.Schedule = "every minute" }, "schedule"},
		{"no image", func(c *Config) { c.Image = "" }, "image"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, topology.ErrConfiguration))

			var cfgErr *topology.ConfigurationError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestStack_TopologyErrorsSurface(t *testing.T) {
	cfg := Default()
	cfg.MaxAZs = 4
	cfg.ZoneCapacity = 2

	require.NoError(t, cfg.Validate())
	_, err := cfg.Stack()
	assert.True(t, errors.Is(err, topology.ErrConfiguration))
}
