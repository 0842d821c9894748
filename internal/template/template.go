// Package template builds CloudFormation templates from declared resources.
package template

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	wetwire "github.com/lex00/wetwire-fargate-go"
)

// Builder constructs CloudFormation templates from declared resources.
type Builder struct {
	resources   map[string]wetwire.DeclaredResource
	values      map[string]any // resource properties, serialized through JSON
	parameters  map[string]wetwire.Parameter
	outputs     map[string]wetwire.Output
	description string
}

// NewBuilder creates a template builder from declared resources.
func NewBuilder(resources map[string]wetwire.DeclaredResource) *Builder {
	return &Builder{
		resources:  resources,
		values:     make(map[string]any),
		parameters: make(map[string]wetwire.Parameter),
		outputs:    make(map[string]wetwire.Output),
	}
}

// SetValue associates resource properties with a logical name.
func (b *Builder) SetValue(name string, value any) {
	b.values[name] = value
}

// SetParameter adds a template parameter.
func (b *Builder) SetParameter(name string, p wetwire.Parameter) {
	b.parameters[name] = p
}

// SetOutput adds a template output.
func (b *Builder) SetOutput(name string, o wetwire.Output) {
	b.outputs[name] = o
}

// SetDescription sets the template description.
func (b *Builder) SetDescription(d string) {
	b.description = d
}

// Build constructs the CloudFormation template.
func (b *Builder) Build() (*wetwire.Template, error) {
	order, err := b.Order()
	if err != nil {
		return nil, err
	}

	template := &wetwire.Template{
		AWSTemplateFormatVersion: "2010-09-09",
		Description:              b.description,
		Resources:                make(map[string]wetwire.ResourceDef),
	}

	if len(b.parameters) > 0 {
		template.Parameters = make(map[string]wetwire.Parameter, len(b.parameters))
		for name, p := range b.parameters {
			template.Parameters[name] = p
		}
	}

	for _, name := range order {
		res := b.resources[name]

		resourceType := cfResourceType(res.Type)
		if resourceType == "" {
			return nil, fmt.Errorf("unknown resource type: %s", res.Type)
		}

		props, err := serializeResource(b.values[name])
		if err != nil {
			return nil, fmt.Errorf("serializing %s: %w", name, err)
		}
		for _, ref := range References(props) {
			if !b.resolvable(ref) {
				return nil, fmt.Errorf("%s references undeclared %q", name, ref)
			}
		}

		var dependsOn []string
		for _, dep := range res.DependsOn {
			if _, ok := b.resources[dep]; !ok {
				return nil, fmt.Errorf("%s depends on undeclared %q", name, dep)
			}
			dependsOn = append(dependsOn, dep)
		}
		sort.Strings(dependsOn)

		template.Resources[name] = wetwire.ResourceDef{
			Type:       resourceType,
			Properties: props,
			DependsOn:  dependsOn,
		}
	}

	if len(b.outputs) > 0 {
		template.Outputs = make(map[string]wetwire.Output, len(b.outputs))
		for name, o := range b.outputs {
			value, err := Normalize(o.Value)
			if err != nil {
				return nil, fmt.Errorf("serializing output %s: %w", name, err)
			}
			for _, ref := range References(value) {
				if !b.resolvable(ref) {
					return nil, fmt.Errorf("output %s references undeclared %q", name, ref)
				}
			}
			o.Value = value
			template.Outputs[name] = o
		}
	}

	return template, nil
}

func (b *Builder) resolvable(ref string) bool {
	if strings.HasPrefix(ref, "AWS::") {
		return true
	}
	if _, ok := b.resources[ref]; ok {
		return true
	}
	_, ok := b.parameters[ref]
	return ok
}

// serializeResource converts a Go value to CloudFormation properties.
func serializeResource(value any) (map[string]any, error) {
	if value == nil {
		return nil, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}

	var props map[string]any
	if err := json.Unmarshal(data, &props); err != nil {
		return nil, err
	}
	return props, nil
}

// Normalize round-trips value through JSON so intrinsics appear as plain
// maps and slices.
func Normalize(value any) (any, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

var subVar = regexp.MustCompile(`\$\{([^}!][^}]*)\}`)

// References returns the logical names a normalized value refers to through
// Ref, Fn::GetAtt or Fn::Sub, sorted and deduplicated.
func References(value any) []string {
	seen := make(map[string]bool)
	collectRefs(value, seen)

	refs := make([]string, 0, len(seen))
	for name := range seen {
		refs = append(refs, name)
	}
	sort.Strings(refs)
	return refs
}

func collectRefs(value any, seen map[string]bool) {
	switch v := value.(type) {
	case map[string]any:
		if ref, ok := v["Ref"].(string); ok && len(v) == 1 {
			seen[ref] = true
			return
		}
		if getAtt, ok := v["Fn::GetAtt"].([]any); ok && len(v) == 1 && len(getAtt) > 0 {
			if name, ok := getAtt[0].(string); ok {
				seen[name] = true
			}
			return
		}
		if sub, ok := v["Fn::Sub"].(string); ok && len(v) == 1 {
			for _, m := range subVar.FindAllStringSubmatch(sub, -1) {
				seen[strings.SplitN(m[1], ".", 2)[0]] = true
			}
			return
		}
		for _, val := range v {
			collectRefs(val, seen)
		}
	case []any:
		for _, elem := range v {
			collectRefs(elem, seen)
		}
	}
}

// GetAtts returns the Fn::GetAtt usages in a normalized value.
func GetAtts(value any) []wetwire.AttrRef {
	var out []wetwire.AttrRef
	var walk func(v any)
	walk = func(v any) {
		switch v := v.(type) {
		case map[string]any:
			if getAtt, ok := v["Fn::GetAtt"].([]any); ok && len(v) == 1 && len(getAtt) == 2 {
				res, _ := getAtt[0].(string)
				attr, _ := getAtt[1].(string)
				out = append(out, wetwire.AttrRef{Resource: res, Attribute: attr})
				return
			}
			keys := make([]string, 0, len(v))
			for k := range v {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				walk(v[k])
			}
		case []any:
			for _, elem := range v {
				walk(elem)
			}
		}
	}
	walk(value)
	return out
}

// Order returns resource names in dependency order.
func (b *Builder) Order() ([]string, error) {
	graph := make(map[string][]string)
	inDegree := make(map[string]int)

	for name := range b.resources {
		graph[name] = nil
		inDegree[name] = 0
	}

	for name, res := range b.resources {
		for _, dep := range dependencies(res) {
			if _, exists := b.resources[dep]; exists {
				graph[dep] = append(graph[dep], name)
				inDegree[name]++
			}
		}
	}

	// Kahn's algorithm
	var queue []string
	for name, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, name)
		}
	}
	sort.Strings(queue)

	var result []string
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		result = append(result, node)

		for _, neighbor := range graph[node] {
			inDegree[neighbor]--
			if inDegree[neighbor] == 0 {
				queue = append(queue, neighbor)
				sort.Strings(queue)
			}
		}
	}

	if len(result) != len(b.resources) {
		return nil, b.detectCycle()
	}

	return result, nil
}

func dependencies(res wetwire.DeclaredResource) []string {
	deps := make([]string, 0, len(res.Dependencies)+len(res.DependsOn))
	deps = append(deps, res.Dependencies...)
	return append(deps, res.DependsOn...)
}

// detectCycle finds and reports a cycle in the dependency graph.
func (b *Builder) detectCycle() error {
	visited := make(map[string]bool)
	path := make(map[string]bool)

	names := make([]string, 0, len(b.resources))
	for name := range b.resources {
		names = append(names, name)
	}
	sort.Strings(names)

	var cycle []string
	var findCycle func(node string) bool
	findCycle = func(node string) bool {
		visited[node] = true
		path[node] = true

		for _, dep := range dependencies(b.resources[node]) {
			if _, exists := b.resources[dep]; !exists {
				continue
			}
			if !visited[dep] {
				if findCycle(dep) {
					cycle = append([]string{node}, cycle...)
					return true
				}
			} else if path[dep] {
				cycle = append([]string{dep, node}, cycle...)
				return true
			}
		}

		path[node] = false
		return false
	}

	for _, name := range names {
		if !visited[name] && findCycle(name) {
			break
		}
	}

	if len(cycle) == 0 {
		return errors.New("circular dependency detected")
	}

	msg := "circular dependency detected:\n"
	for i, name := range cycle {
		res := b.resources[name]
		msg += fmt.Sprintf("  %s (%s)", name, res.Type)
		if i < len(cycle)-1 {
			msg += "\n    → "
		}
	}
	return errors.New(msg)
}

// cfResourceType converts a short Go-style type to a CloudFormation type.
// e.g., "ec2.Subnet" -> "AWS::EC2::Subnet"
func cfResourceType(goType string) string {
	parts := strings.SplitN(goType, ".", 2)
	if len(parts) != 2 || parts[1] == "" {
		return ""
	}

	service, ok := services[parts[0]]
	if !ok {
		return ""
	}
	return "AWS::" + service + "::" + parts[1]
}

// services maps package-style names to CloudFormation service names.
var services = map[string]string{
	"ec2":                    "EC2",
	"ecs":                    "ECS",
	"elasticloadbalancingv2": "ElasticLoadBalancingV2",
	"events":                 "Events",
	"iam":                    "IAM",
	"lambda":                 "Lambda",
	"logs":                   "Logs",
}

// ToJSON serializes the template to JSON.
func ToJSON(t *wetwire.Template) ([]byte, error) {
	return json.MarshalIndent(t, "", "  ")
}

// ToYAML serializes the template to YAML.
func ToYAML(t *wetwire.Template) ([]byte, error) {
	return yaml.Marshal(t)
}
