// Package schema checks synthesized resources against an offline subset of
// the CloudFormation resource schemas: required properties, primitive types
// and enumerated values. It catches synthesis mistakes without a network
// round trip or a cfn-lint run.
package schema

import (
	"fmt"
	"sort"
	"strings"

	wetwire "github.com/lex00/wetwire-fargate-go"
)

// Options configures schema validation.
type Options struct {
	// Strict reports properties missing from the schema as warnings
	Strict bool
}

// Result contains schema validation results.
type Result struct {
	Valid    bool
	Errors   []wetwire.SchemaError
	Warnings []wetwire.SchemaError
}

// ResourceSchema lists what is checked for one resource type.
type ResourceSchema struct {
	Required   []string
	Properties map[string]PropertySchema
}

// PropertySchema defines the schema for a property.
type PropertySchema struct {
	Type          string
	AllowedValues []string
}

var (
	str     = PropertySchema{Type: "String"}
	integer = PropertySchema{Type: "Integer"}
	boolean = PropertySchema{Type: "Boolean"}
	list    = PropertySchema{Type: "List"}
	object  = PropertySchema{Type: "Map"}
	anyJSON = PropertySchema{Type: "Json"}
)

func oneOf(values ...string) PropertySchema {
	return PropertySchema{Type: "String", AllowedValues: values}
}

// resourceSchemas covers every type the synthesizer emits.
var resourceSchemas = map[string]ResourceSchema{
	"AWS::EC2::VPC": {
		Required: []string{"CidrBlock"},
		Properties: map[string]PropertySchema{
			"CidrBlock":          str,
			"EnableDnsHostnames": boolean,
			"EnableDnsSupport":   boolean,
			"InstanceTenancy":    oneOf("default", "dedicated", "host"),
			"Tags":               list,
		},
	},
	"AWS::EC2::InternetGateway": {
		Properties: map[string]PropertySchema{"Tags": list},
	},
	"AWS::EC2::VPCGatewayAttachment": {
		Required: []string{"VpcId"},
		Properties: map[string]PropertySchema{
			"VpcId":             str,
			"InternetGatewayId": str,
		},
	},
	"AWS::EC2::Subnet": {
		Required: []string{"VpcId"},
		Properties: map[string]PropertySchema{
			"VpcId":               str,
			"CidrBlock":           str,
			"AvailabilityZone":    str,
			"MapPublicIpOnLaunch": boolean,
			"Tags":                list,
		},
	},
	"AWS::EC2::RouteTable": {
		Required:   []string{"VpcId"},
		Properties: map[string]PropertySchema{"VpcId": str, "Tags": list},
	},
	"AWS::EC2::SubnetRouteTableAssociation": {
		Required:   []string{"RouteTableId", "SubnetId"},
		Properties: map[string]PropertySchema{"RouteTableId": str, "SubnetId": str},
	},
	"AWS::EC2::Route": {
		Required: []string{"RouteTableId"},
		Properties: map[string]PropertySchema{
			"RouteTableId":         str,
			"DestinationCidrBlock": str,
			"GatewayId":            str,
			"NatGatewayId":         str,
		},
	},
	"AWS::EC2::EIP": {
		Properties: map[string]PropertySchema{"Domain": oneOf("vpc", "standard"), "Tags": list},
	},
	"AWS::EC2::NatGateway": {
		Required: []string{"SubnetId"},
		Properties: map[string]PropertySchema{
			"SubnetId":     str,
			"AllocationId": str,
			"Tags":         list,
		},
	},
	"AWS::EC2::SecurityGroup": {
		Required: []string{"GroupDescription"},
		Properties: map[string]PropertySchema{
			"GroupDescription":    str,
			"VpcId":               str,
			"SecurityGroupEgress": list,
			"Tags":                list,
		},
	},
	"AWS::EC2::SecurityGroupIngress": {
		Required: []string{"IpProtocol"},
		Properties: map[string]PropertySchema{
			"GroupId":               str,
			"SourceSecurityGroupId": str,
			"IpProtocol":            str,
			"FromPort":              integer,
			"ToPort":                integer,
			"Description":           str,
		},
	},
	"AWS::EC2::SecurityGroupEgress": {
		Required: []string{"GroupId", "IpProtocol"},
		Properties: map[string]PropertySchema{
			"GroupId":                    str,
			"DestinationSecurityGroupId": str,
			"IpProtocol":                 str,
			"FromPort":                   integer,
			"ToPort":                     integer,
			"Description":                str,
		},
	},
	"AWS::ElasticLoadBalancingV2::LoadBalancer": {
		Properties: map[string]PropertySchema{
			"Scheme":                 oneOf("internal", "internet-facing"),
			"Type":                   oneOf("application", "network", "gateway"),
			"Subnets":                list,
			"SecurityGroups":         list,
			"LoadBalancerAttributes": list,
		},
	},
	"AWS::ElasticLoadBalancingV2::TargetGroup": {
		Properties: map[string]PropertySchema{
			"Port":                  integer,
			"Protocol":              oneOf("HTTP", "HTTPS", "TCP", "TLS", "UDP", "TCP_UDP", "GENEVE"),
			"TargetType":            oneOf("instance", "ip", "lambda", "alb"),
			"VpcId":                 str,
			"HealthCheckPath":       str,
			"TargetGroupAttributes": list,
		},
	},
	"AWS::ElasticLoadBalancingV2::Listener": {
		Required: []string{"DefaultActions", "LoadBalancerArn"},
		Properties: map[string]PropertySchema{
			"LoadBalancerArn": str,
			"Port":            integer,
			"Protocol":        oneOf("HTTP", "HTTPS", "TCP", "TLS", "UDP", "TCP_UDP", "GENEVE"),
			"DefaultActions":  list,
		},
	},
	"AWS::ECS::Cluster": {},
	"AWS::ECS::TaskDefinition": {
		Properties: map[string]PropertySchema{
			"Family":                  str,
			"Cpu":                     str,
			"Memory":                  str,
			"NetworkMode":             oneOf("bridge", "host", "awsvpc", "none"),
			"RequiresCompatibilities": list,
			"RuntimePlatform":         object,
			"ExecutionRoleArn":        str,
			"TaskRoleArn":             str,
			"ContainerDefinitions":    list,
		},
	},
	"AWS::ECS::Service": {
		Properties: map[string]PropertySchema{
			"Cluster":                       str,
			"TaskDefinition":                str,
			"DesiredCount":                  integer,
			"LaunchType":                    oneOf("EC2", "FARGATE", "EXTERNAL"),
			"HealthCheckGracePeriodSeconds": integer,
			"LoadBalancers":                 list,
			"NetworkConfiguration":          object,
		},
	},
	"AWS::IAM::Role": {
		Required: []string{"AssumeRolePolicyDocument"},
		Properties: map[string]PropertySchema{
			"AssumeRolePolicyDocument": anyJSON,
			"ManagedPolicyArns":        list,
			"Policies":                 list,
		},
	},
	"AWS::Logs::LogGroup": {
		Properties: map[string]PropertySchema{"RetentionInDays": integer},
	},
	"AWS::Lambda::Function": {
		Required: []string{"Code", "Role"},
		Properties: map[string]PropertySchema{
			"Code":          object,
			"Handler":       str,
			"Runtime":       str,
			"Architectures": list,
			"MemorySize":    integer,
			"Timeout":       integer,
			"Role":          str,
			"Environment":   object,
			"VpcConfig":     object,
		},
	},
	"AWS::Lambda::Permission": {
		Required: []string{"Action", "FunctionName", "Principal"},
		Properties: map[string]PropertySchema{
			"Action":       str,
			"FunctionName": str,
			"Principal":    str,
			"SourceArn":    str,
		},
	},
	"AWS::Events::Rule": {
		Properties: map[string]PropertySchema{
			"ScheduleExpression": str,
			"State":              oneOf("ENABLED", "DISABLED"),
			"Targets":            list,
		},
	},
}

// ValidateTemplate validates every resource of template.
func ValidateTemplate(template *wetwire.Template, opts Options) *Result {
	result := &Result{Valid: true}

	for name, resource := range template.Resources {
		errs, warnings := validateResource(name, resource, opts)
		result.Errors = append(result.Errors, errs...)
		result.Warnings = append(result.Warnings, warnings...)
	}

	sortErrors(result.Errors)
	sortErrors(result.Warnings)
	result.Valid = len(result.Errors) == 0
	return result
}

func validateResource(name string, resource wetwire.ResourceDef, opts Options) (errs, warnings []wetwire.SchemaError) {
	if !isValidResourceType(resource.Type) {
		return []wetwire.SchemaError{{
			Resource: name,
			Property: "Type",
			Message:  fmt.Sprintf("invalid resource type format: %s", resource.Type),
		}}, nil
	}

	schema, ok := resourceSchemas[resource.Type]
	if !ok {
		warnings = append(warnings, wetwire.SchemaError{
			Resource: name,
			Property: "Type",
			Message:  fmt.Sprintf("unknown resource type: %s (schema not available for validation)", resource.Type),
		})
		return errs, warnings
	}

	for _, required := range schema.Required {
		if _, exists := resource.Properties[required]; !exists {
			errs = append(errs, wetwire.SchemaError{
				Resource: name,
				Property: required,
				Message:  fmt.Sprintf("missing required property: %s", required),
			})
		}
	}

	for propName, propValue := range resource.Properties {
		propSchema, ok := schema.Properties[propName]
		if !ok {
			if opts.Strict {
				warnings = append(warnings, wetwire.SchemaError{
					Resource: name,
					Property: propName,
					Message:  fmt.Sprintf("unknown property: %s", propName),
				})
			}
			continue
		}
		errs = append(errs, validateProperty(name, propName, propValue, propSchema)...)
	}

	return errs, warnings
}

// isValidResourceType checks for the AWS::Service::Resource form.
func isValidResourceType(resourceType string) bool {
	if strings.HasPrefix(resourceType, "Custom::") {
		return true
	}
	parts := strings.Split(resourceType, "::")
	return len(parts) == 3 && parts[0] == "AWS" && parts[1] != "" && parts[2] != ""
}

func validateProperty(resource, property string, value any, schema PropertySchema) []wetwire.SchemaError {
	if isIntrinsic(value) {
		return nil
	}
	if !isValidType(value, schema.Type) {
		return []wetwire.SchemaError{{
			Resource: resource,
			Property: property,
			Message:  fmt.Sprintf("expected type %s, got %T", schema.Type, value),
		}}
	}

	if s, ok := value.(string); ok && len(schema.AllowedValues) > 0 {
		for _, allowed := range schema.AllowedValues {
			if s == allowed {
				return nil
			}
		}
		return []wetwire.SchemaError{{
			Resource: resource,
			Property: property,
			Message:  fmt.Sprintf("value %q not in allowed values: %v", s, schema.AllowedValues),
		}}
	}
	return nil
}

func isIntrinsic(value any) bool {
	m, ok := value.(map[string]any)
	if !ok || len(m) != 1 {
		return false
	}
	for key := range m {
		return key == "Ref" || strings.HasPrefix(key, "Fn::")
	}
	return false
}

// isValidType checks a decoded JSON value against a schema primitive.
func isValidType(value any, expectedType string) bool {
	switch expectedType {
	case "String":
		_, ok := value.(string)
		return ok
	case "Integer":
		switch v := value.(type) {
		case int, int32, int64:
			return true
		case float64:
			return v == float64(int64(v))
		}
		return false
	case "Boolean":
		_, ok := value.(bool)
		return ok
	case "List":
		_, ok := value.([]any)
		return ok
	case "Map":
		_, ok := value.(map[string]any)
		return ok
	default:
		return true
	}
}

func sortErrors(errs []wetwire.SchemaError) {
	sort.Slice(errs, func(i, j int) bool {
		if errs[i].Resource != errs[j].Resource {
			return errs[i].Resource < errs[j].Resource
		}
		return errs[i].Property < errs[j].Property
	})
}
