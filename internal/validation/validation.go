// Package validation checks a declared stack before it is deployed.
//
// Three layers run:
//   - topology checks: the placement and reachability properties the stack
//     must hold, evaluated on the declaration itself
//   - schema: required properties and enumerated values of the synthesized
//     resources, checked offline
//   - cfn-lint-go: the synthesized CloudFormation template (library dependency)
package validation

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/apparentlymart/go-cidr/cidr"
	"github.com/hashicorp/go-multierror"
	"github.com/lex00/cfn-lint-go/pkg/lint"

	wetwire "github.com/lex00/wetwire-fargate-go"
	"github.com/lex00/wetwire-fargate-go/internal/reach"
	"github.com/lex00/wetwire-fargate-go/internal/schema"
	"github.com/lex00/wetwire-fargate-go/internal/stack"
	"github.com/lex00/wetwire-fargate-go/internal/synth"
	"github.com/lex00/wetwire-fargate-go/internal/template"
	"github.com/lex00/wetwire-fargate-go/internal/topology"
	"github.com/lex00/wetwire-fargate-go/internal/trigger"
)

// ErrViolation marks a failed topology check.
var ErrViolation = errors.New("topology check failed")

// Violation is one failed topology check.
type Violation struct {
	Check   string
	Message string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("%s: %s", v.Check, v.Message)
}

func (v *Violation) Unwrap() error { return ErrViolation }

// CfnLintResult contains the result of running cfn-lint.
type CfnLintResult struct {
	Passed        bool     `json:"passed"`
	Errors        []string `json:"errors"`
	Warnings      []string `json:"warnings"`
	Informational []string `json:"informational"`
}

// TotalIssues returns the total number of issues found.
func (r CfnLintResult) TotalIssues() int {
	return len(r.Errors) + len(r.Warnings) + len(r.Informational)
}

// CheckStack evaluates the topology checks on st and returns every
// violation, or nil.
func CheckStack(st *stack.Stack) error {
	var merr *multierror.Error
	fail := func(check, format string, args ...any) {
		merr = multierror.Append(merr, &Violation{Check: check, Message: fmt.Sprintf(format, args...)})
	}

	space := st.Network
	if len(space.Zones) < topology.MinZones {
		fail("zones", "%d zones; need at least %d", len(space.Zones), topology.MinZones)
	}

	var blocks []*net.IPNet
	for _, sn := range space.Subnets() {
		if !space.CIDR.Contains(sn.CIDR.IP) {
			fail("subnets", "%s (%s) is outside %s", sn.LogicalName(), sn.CIDR, space.CIDR)
		}
		blocks = append(blocks, sn.CIDR)
	}
	if err := cidr.VerifyNoOverlap(blocks, space.CIDR); err != nil {
		fail("subnets", "%v", err)
	}
	for _, tier := range space.Tiers() {
		if n := len(space.SubnetsFor(tier.Name)); n != len(space.Zones) {
			fail("subnets", "tier %s has %d subnets across %d zones", tier.Name, n, len(space.Zones))
		}
	}

	lb := st.Service.LoadBalancer
	if !lb.Internal {
		fail("loadBalancer", "%s is internet-facing", lb.Name)
	}
	for _, placed := range []struct{ check, tier string }{
		{"loadBalancer", lb.Tier},
		{"service", st.Service.Service.Tier},
	} {
		tier, ok := space.Tier(placed.tier)
		if !ok || tier.Egress != topology.PrivateWithEgress {
			fail(placed.check, "tier %q is not %s", placed.tier, topology.PrivateWithEgress)
		}
	}
	if st.Service.Service.AssignPublicIP {
		fail("service", "tasks receive public addresses")
	}

	for _, c := range st.Trigger.Callers {
		if c.Target.LoadBalancer != lb.Name || c.Target.Port != st.Service.Endpoint.Port {
			fail("callers", "%s targets %s:%d, not the service endpoint", c.Name, c.Target.LoadBalancer, c.Target.Port)
		}
	}

	for _, v := range reach.EvaluateStack(st) {
		switch {
		case v.Placement == trigger.PlacementPrivateWithSG && !v.Allowed:
			fail("reachability", "%s holds the caller group but cannot reach the service: %s", v.Source, v.Reason)
		case v.Source == reach.Internet && v.Allowed:
			fail("reachability", "the service is reachable from the internet")
		case v.Placement != trigger.PlacementPrivateWithSG && v.Allowed:
			fail("reachability", "%s runs %s but reaches the service: %s", v.Source, v.Placement, v.Reason)
		}
	}

	return merr.ErrorOrNil()
}

// LintTemplate writes tmpl to a temporary file and runs cfn-lint-go on it.
func LintTemplate(tmpl *wetwire.Template) (*CfnLintResult, error) {
	data, err := template.ToYAML(tmpl)
	if err != nil {
		return nil, fmt.Errorf("serializing template: %w", err)
	}

	dir, err := os.MkdirTemp("", "wetwire-fargate-lint-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "template.yaml")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("writing template: %w", err)
	}
	return RunCfnLint(path)
}

// RunCfnLint runs cfn-lint-go on the given template file.
func RunCfnLint(templatePath string) (*CfnLintResult, error) {
	if _, err := os.Stat(templatePath); err != nil {
		return &CfnLintResult{
			Passed: false,
			Errors: []string{fmt.Sprintf("Template file not found: %s", templatePath)},
		}, nil
	}

	linter := lint.New(lint.Options{})
	matches, err := linter.LintFile(templatePath)
	if err != nil {
		return &CfnLintResult{
			Passed: false,
			Errors: []string{fmt.Sprintf("Linter error: %v", err)},
		}, nil
	}

	result := &CfnLintResult{
		Errors:        []string{},
		Warnings:      []string{},
		Informational: []string{},
	}

	for _, match := range matches {
		formatted := formatMatch(match)

		switch match.Level {
		case "Error":
			result.Errors = append(result.Errors, formatted)
		case "Warning":
			result.Warnings = append(result.Warnings, formatted)
		default:
			result.Informational = append(result.Informational, formatted)
		}
	}

	// Passed if no errors (warnings are acceptable)
	result.Passed = len(result.Errors) == 0
	return result, nil
}

// formatMatch formats a cfn-lint-go match for display.
func formatMatch(match lint.Match) string {
	if len(match.Location.Path) == 0 {
		return fmt.Sprintf("%s: %s", match.Rule.ID, match.Message)
	}
	parts := make([]string, len(match.Location.Path))
	for i, p := range match.Location.Path {
		parts[i] = fmt.Sprintf("%v", p)
	}
	return fmt.Sprintf("%s: %s (at %s)", match.Rule.ID, match.Message, strings.Join(parts, "/"))
}

// Options control Validate.
type Options struct {
	// SkipLint disables cfn-lint-go.
	SkipLint bool
}

// Validate runs the topology checks, the schema checks and, unless
// disabled, lints the synthesized template.
func Validate(st *stack.Stack, opts Options) (*wetwire.ValidateResult, error) {
	result := &wetwire.ValidateResult{Success: true}

	if err := CheckStack(st); err != nil {
		var merr *multierror.Error
		if errors.As(err, &merr) {
			for _, e := range merr.Errors {
				result.Errors = append(result.Errors, e.Error())
			}
		} else {
			result.Errors = append(result.Errors, err.Error())
		}
	}

	tmpl, _, err := synth.Build(st)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("synthesis: %v", err))
		result.Success = false
		return result, nil
	}
	result.Resources = len(tmpl.Resources)

	schemaResult := schema.ValidateTemplate(tmpl, schema.Options{})
	for _, e := range schemaResult.Errors {
		result.Errors = append(result.Errors, e.Error())
	}
	for _, w := range schemaResult.Warnings {
		result.Warnings = append(result.Warnings, w.Error())
	}

	if !opts.SkipLint {
		lintResult, err := LintTemplate(tmpl)
		if err != nil {
			return nil, fmt.Errorf("running cfn-lint: %w", err)
		}
		result.Errors = append(result.Errors, lintResult.Errors...)
		result.Warnings = append(result.Warnings, lintResult.Warnings...)
	}

	result.Success = len(result.Errors) == 0
	return result, nil
}
