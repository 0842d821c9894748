// Package config loads the stack declaration and runtime settings from
// defaults, an optional YAML file and environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/lex00/wetwire-fargate-go/internal/placement"
	"github.com/lex00/wetwire-fargate-go/internal/stack"
	"github.com/lex00/wetwire-fargate-go/internal/topology"
	"github.com/lex00/wetwire-fargate-go/internal/trigger"
)

// EnvConfigFile points at the YAML file read by Load.
const EnvConfigFile = "WETWIRE_FARGATE_CONFIG"

var validate = validator.New()

func init() {
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	validate.RegisterValidation("rate", func(fl validator.FieldLevel) bool {
		_, err := trigger.ParseSchedule(fl.Field().String())
		return err == nil
	})
}

// Tier is a subnet tier as written in the config file.
type Tier struct {
	Name     string `yaml:"name" validate:"required"`
	Type     string `yaml:"type" validate:"required,oneof=PRIVATE_WITH_EGRESS PUBLIC"`
	CIDRMask int    `yaml:"cidrMask" validate:"required,min=16,max=28"`
}

type Config struct {
	StackName   string `yaml:"stackName" validate:"required"`
	ServiceName string `yaml:"serviceName"`
	Region      string `yaml:"region"`

	VPCCIDR      string   `yaml:"vpcCidr" validate:"required,cidrv4"`
	MaxAZs       int      `yaml:"maxAzs" validate:"required,min=1"`
	Zones        []string `yaml:"zones"`
	ZoneCapacity int      `yaml:"zoneCapacity" validate:"min=0"`
	Tiers        []Tier   `yaml:"tiers" validate:"required,min=1,dive"`

	Image        string `yaml:"image" validate:"required"`
	DesiredCount int    `yaml:"desiredCount" validate:"min=0"`

	Schedule          string        `yaml:"schedule" validate:"required,rate"`
	InvocationTimeout time.Duration `yaml:"invocationTimeout"`

	// TargetURL is the load balancer DNS name callers POST to at run time
	TargetURL   string `yaml:"targetUrl"`
	LogLevel    string `yaml:"logLevel"`
	MetricsAddr string `yaml:"metricsAddr"`
}

// Default returns the two-zone private/public topology polled every minute.
func Default() *Config {
	return &Config{
		StackName:   "PrivateFargateWithLambda",
		ServiceName: "wetwire-fargate",
		VPCCIDR:     "10.0.0.0/16",
		MaxAZs:      2,
		Tiers: []Tier{
			{Name: "PrivateSubnet", Type: string(topology.PrivateWithEgress), CIDRMask: 24},
			{Name: "PublicSubnet", Type: string(topology.Public), CIDRMask: 24},
		},
		Image:             placement.DefaultImage,
		DesiredCount:      placement.DefaultDesiredCount,
		Schedule:          "rate(1 minute)",
		InvocationTimeout: trigger.DefaultTimeout,
		LogLevel:          "info",
	}
}

// Load reads the file named by WETWIRE_FARGATE_CONFIG, if any.
func Load() (*Config, error) {
	return LoadFile(getEnv(EnvConfigFile, ""))
}

// LoadFile applies path (when non-empty) and the environment over the
// defaults, then validates the result.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	cfg.Region = getEnv("AWS_REGION", cfg.Region)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.TargetURL = getEnv(trigger.EnvTargetURL, cfg.TargetURL)
	cfg.MetricsAddr = getEnv("METRICS_ADDR", cfg.MetricsAddr)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints. Topology-level constraints (zone
// capacity, address exhaustion) are checked when the stack is built.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		reason := fmt.Sprintf("failed %q", fe.Tag())
		if fe.Param() != "" {
			reason = fmt.Sprintf("failed %q (%s)", fe.Tag(), fe.Param())
		}
		return &topology.ConfigurationError{Field: field, Reason: reason}
	}
	return fmt.Errorf("validation error: %w", err)
}

// StackOptions converts the config into a stack declaration.
func (c *Config) StackOptions() (stack.Options, error) {
	schedule, err := trigger.ParseSchedule(c.Schedule)
	if err != nil {
		return stack.Options{}, err
	}

	tiers := make([]topology.SubnetTier, 0, len(c.Tiers))
	for _, t := range c.Tiers {
		tiers = append(tiers, topology.SubnetTier{
			Name:     t.Name,
			Egress:   topology.Egress(t.Type),
			CIDRMask: t.CIDRMask,
		})
	}

	return stack.Options{
		Name: c.StackName,
		Network: topology.Options{
			CIDR:         c.VPCCIDR,
			MaxAZs:       c.MaxAZs,
			Zones:        c.Zones,
			ZoneCapacity: c.ZoneCapacity,
			Tiers:        tiers,
		},
		Service: placement.Options{
			Image:        c.Image,
			DesiredCount: c.DesiredCount,
		},
		Trigger: trigger.Options{
			Schedule: schedule,
			Timeout:  c.InvocationTimeout,
		},
	}, nil
}

// Stack builds the declared stack.
func (c *Config) Stack() (*stack.Stack, error) {
	opts, err := c.StackOptions()
	if err != nil {
		return nil, err
	}
	return stack.New(opts)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
