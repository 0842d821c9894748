// Package wetwire_fargate models a private Fargate service behind an internal
// load balancer, polled on a schedule by Lambda callers with different network
// placements.
//
// The topology is declared in Go:
//
//	st, err := stack.New(stack.DefaultOptions())
//
// The wetwire-fargate CLI synthesizes it into a CloudFormation template, checks
// which callers can reach the service, and can drive the scheduled fan-out locally.
package wetwire_fargate

import (
	"encoding/json"
)

// AttrRef represents a GetAtt reference to a resource attribute.
//
// When serialized to CloudFormation JSON, AttrRef becomes:
//
//	{"Fn::GetAtt": ["ALB", "DNSName"]}
type AttrRef struct {
	// Resource is the logical name of the referenced resource
	Resource string
	// Attribute is the attribute name (e.g., "Arn", "DNSName")
	Attribute string
}

// MarshalJSON serializes AttrRef to CloudFormation GetAtt syntax.
func (a AttrRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string][]string{
		"Fn::GetAtt": {a.Resource, a.Attribute},
	})
}

// IsZero returns true if the AttrRef has not been populated.
func (a AttrRef) IsZero() bool {
	return a.Resource == "" && a.Attribute == ""
}

// DeclaredResource is a resource emitted by the synthesizer.
type DeclaredResource struct {
	// Name is the CloudFormation logical ID
	Name string
	// Type is the short Go-style type (e.g., "ec2.Subnet", "lambda.Function")
	Type string
	// Component is the model component that owns the resource
	// ("network", "service" or "trigger")
	Component string
	// Dependencies are logical names referenced through Ref or GetAtt
	Dependencies []string
	// DependsOn are explicit ordering constraints with no data reference
	DependsOn []string
	// AttrRefs records GetAtt usages, for graph styling
	AttrRefs []AttrRef
}

// Template represents a CloudFormation template.
type Template struct {
	AWSTemplateFormatVersion string                 `json:"AWSTemplateFormatVersion" yaml:"AWSTemplateFormatVersion"`
	Description              string                 `json:"Description,omitempty" yaml:"Description,omitempty"`
	Parameters               map[string]Parameter   `json:"Parameters,omitempty" yaml:"Parameters,omitempty"`
	Resources                map[string]ResourceDef `json:"Resources" yaml:"Resources"`
	Outputs                  map[string]Output      `json:"Outputs,omitempty" yaml:"Outputs,omitempty"`
}

// ResourceDef is a single resource in the CloudFormation template.
type ResourceDef struct {
	Type       string         `json:"Type" yaml:"Type"`
	Properties map[string]any `json:"Properties,omitempty" yaml:"Properties,omitempty"`
	DependsOn  []string       `json:"DependsOn,omitempty" yaml:"DependsOn,omitempty"`
}

// Parameter is a CloudFormation template parameter.
type Parameter struct {
	Type        string `json:"Type" yaml:"Type"`
	Description string `json:"Description,omitempty" yaml:"Description,omitempty"`
	Default     any    `json:"Default,omitempty" yaml:"Default,omitempty"`
}

// Output is a CloudFormation template output.
type Output struct {
	Description string        `json:"Description,omitempty" yaml:"Description,omitempty"`
	Value       any           `json:"Value" yaml:"Value"`
	Export      *OutputExport `json:"Export,omitempty" yaml:"Export,omitempty"`
}

// OutputExport names a cross-stack export.
type OutputExport struct {
	Name any `json:"Name" yaml:"Name"`
}

// BuildResult is the JSON output from `wetwire-fargate build`.
type BuildResult struct {
	Success   bool     `json:"success"`
	Template  Template `json:"template,omitempty"`
	Resources []string `json:"resources,omitempty"`
	Errors    []string `json:"errors,omitempty"`
}

// ValidateResult is the JSON output from `wetwire-fargate validate`.
type ValidateResult struct {
	Success   bool     `json:"success"`
	Resources int      `json:"resources"`
	Errors    []string `json:"errors,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
}

// SchemaError is a resource property that fails the offline schema check.
type SchemaError struct {
	Resource string `json:"resource"`
	Property string `json:"property"`
	Message  string `json:"message"`
}

func (e SchemaError) Error() string {
	return e.Resource + "." + e.Property + ": " + e.Message
}

// ReachResult is a single row of `wetwire-fargate reach`.
type ReachResult struct {
	Source    string `json:"source"`
	Placement string `json:"placement"`
	Allowed   bool   `json:"allowed"`
	Reason    string `json:"reason"`
}

// TemplateDiff lists resource-level differences between two templates.
type TemplateDiff struct {
	Added    []DiffEntry `json:"added,omitempty"`
	Removed  []DiffEntry `json:"removed,omitempty"`
	Modified []DiffEntry `json:"modified,omitempty"`
}

// DiffEntry describes one changed resource.
type DiffEntry struct {
	Resource string   `json:"resource"`
	Type     string   `json:"type"`
	Changes  []string `json:"changes,omitempty"`
	// Replacement is set when a changed property forces CloudFormation to
	// replace the resource (for example a subnet CIDR).
	Replacement bool `json:"replacement,omitempty"`
}

// DiffSummary counts the entries of a TemplateDiff.
type DiffSummary struct {
	Added        int `json:"added"`
	Removed      int `json:"removed"`
	Modified     int `json:"modified"`
	Replacements int `json:"replacements"`
	Total        int `json:"total"`
}
