package template

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wetwire "github.com/lex00/wetwire-fargate-go"
)

func TestBuilder_Build_SimpleResource(t *testing.T) {
	builder := NewBuilder(map[string]wetwire.DeclaredResource{
		"VPC": {Name: "VPC", Type: "ec2.VPC", Component: "network"},
	})
	builder.SetValue("VPC", map[string]any{"CidrBlock": "10.0.0.0/16"})
	builder.SetDescription("test stack")

	template, err := builder.Build()
	require.NoError(t, err)

	assert.Equal(t, "2010-09-09", template.AWSTemplateFormatVersion)
	assert.Equal(t, "test stack", template.Description)
	require.Len(t, template.Resources, 1)

	vpc := template.Resources["VPC"]
	assert.Equal(t, "AWS::EC2::VPC", vpc.Type)
	assert.Equal(t, "10.0.0.0/16", vpc.Properties["CidrBlock"])
}

func TestBuilder_Build_WithDependencies(t *testing.T) {
	builder := NewBuilder(map[string]wetwire.DeclaredResource{
		"VPC":                  {Name: "VPC", Type: "ec2.VPC"},
		"FargateSecurityGroup": {Name: "FargateSecurityGroup", Type: "ec2.SecurityGroup", Dependencies: []string{"VPC"}},
		"ALB": {
			Name:         "ALB",
			Type:         "elasticloadbalancingv2.LoadBalancer",
			Dependencies: []string{"FargateSecurityGroup"},
		},
	})
	builder.SetValue("VPC", map[string]any{"CidrBlock": "10.0.0.0/16"})
	builder.SetValue("FargateSecurityGroup", map[string]any{
		"GroupDescription": "Security Group for Fargate ALB",
		"VpcId":            map[string]any{"Ref": "VPC"},
	})
	builder.SetValue("ALB", map[string]any{
		"Scheme":         "internal",
		"SecurityGroups": []any{wetwire.AttrRef{Resource: "FargateSecurityGroup", Attribute: "GroupId"}},
	})

	template, err := builder.Build()
	require.NoError(t, err)
	assert.Len(t, template.Resources, 3)

	alb := template.Resources["ALB"]
	groups := alb.Properties["SecurityGroups"].([]any)
	assert.Contains(t, groups[0].(map[string]any), "Fn::GetAtt")
}

func TestBuilder_Build_UnresolvedReference(t *testing.T) {
	builder := NewBuilder(map[string]wetwire.DeclaredResource{
		"Subnet": {Name: "Subnet", Type: "ec2.Subnet"},
	})
	builder.SetValue("Subnet", map[string]any{"VpcId": map[string]any{"Ref": "MissingVPC"}})

	_, err := builder.Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `undeclared "MissingVPC"`)
}

func TestBuilder_Build_ParametersAndPseudo(t *testing.T) {
	builder := NewBuilder(map[string]wetwire.DeclaredResource{
		"Fn": {Name: "Fn", Type: "lambda.Function"},
	})
	builder.SetParameter("CodeBucket", wetwire.Parameter{Type: "String"})
	builder.SetValue("Fn", map[string]any{
		"Code":   map[string]any{"S3Bucket": map[string]any{"Ref": "CodeBucket"}},
		"Region": map[string]any{"Ref": "AWS::Region"},
	})

	template, err := builder.Build()
	require.NoError(t, err)
	assert.Contains(t, template.Parameters, "CodeBucket")
}

func TestBuilder_Build_DependsOnAndOutputs(t *testing.T) {
	builder := NewBuilder(map[string]wetwire.DeclaredResource{
		"Listener": {Name: "Listener", Type: "elasticloadbalancingv2.Listener"},
		"ALB":      {Name: "ALB", Type: "elasticloadbalancingv2.LoadBalancer"},
		"Service":  {Name: "Service", Type: "ecs.Service", DependsOn: []string{"Listener"}},
	})
	builder.SetOutput("FargateAlbUrl", wetwire.Output{
		Value: wetwire.AttrRef{Resource: "ALB", Attribute: "DNSName"},
	})

	template, err := builder.Build()
	require.NoError(t, err)

	assert.Equal(t, []string{"Listener"}, template.Resources["Service"].DependsOn)
	assert.Equal(t, map[string]any{"Fn::GetAtt": []any{"ALB", "DNSName"}}, template.Outputs["FargateAlbUrl"].Value)
}

func TestBuilder_Build_UnknownType(t *testing.T) {
	builder := NewBuilder(map[string]wetwire.DeclaredResource{
		"Bucket": {Name: "Bucket", Type: "s3.Bucket"},
	})
	_, err := builder.Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown resource type")
}

func TestBuilder_Order(t *testing.T) {
	builder := NewBuilder(map[string]wetwire.DeclaredResource{
		"Route":      {Name: "Route", Type: "ec2.Route", Dependencies: []string{"RouteTable"}},
		"RouteTable": {Name: "RouteTable", Type: "ec2.RouteTable", Dependencies: []string{"VPC"}},
		"VPC":        {Name: "VPC", Type: "ec2.VPC"},
	})

	order, err := builder.Order()
	require.NoError(t, err)
	assert.Equal(t, []string{"VPC", "RouteTable", "Route"}, order)
}

func TestBuilder_DetectCycle(t *testing.T) {
	builder := NewBuilder(map[string]wetwire.DeclaredResource{
		"A": {Name: "A", Type: "ec2.SecurityGroup", Dependencies: []string{"B"}},
		"B": {Name: "B", Type: "ec2.SecurityGroup", Dependencies: []string{"C"}},
		"C": {Name: "C", Type: "ec2.SecurityGroup", DependsOn: []string{"A"}},
	})

	_, err := builder.Order()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circular dependency")
	assert.Contains(t, err.Error(), "(ec2.SecurityGroup)")
}

func TestReferences(t *testing.T) {
	var value any
	require.NoError(t, json.Unmarshal([]byte(`{
		"VpcId": {"Ref": "VPC"},
		"Groups": [{"Fn::GetAtt": ["LambdaSecurityGroup", "GroupId"]}],
		"Arn": {"Fn::Sub": "arn:${AWS::Partition}:iam::aws:policy/x-${LambdaRole.Arn}-${!Literal}"},
		"Plain": "Ref"
	}`), &value))

	assert.Equal(t, []string{"AWS::Partition", "LambdaRole", "LambdaSecurityGroup", "VPC"}, References(value))
}

func TestCfResourceType(t *testing.T) {
	assert.Equal(t, "AWS::EC2::Subnet", cfResourceType("ec2.Subnet"))
	assert.Equal(t, "AWS::ElasticLoadBalancingV2::TargetGroup", cfResourceType("elasticloadbalancingv2.TargetGroup"))
	assert.Equal(t, "AWS::Events::Rule", cfResourceType("events.Rule"))
	assert.Equal(t, "", cfResourceType("Subnet"))
	assert.Equal(t, "", cfResourceType("ec2."))
}

func TestToJSON(t *testing.T) {
	template := &wetwire.Template{
		AWSTemplateFormatVersion: "2010-09-09",
		Resources: map[string]wetwire.ResourceDef{
			"VPC": {Type: "AWS::EC2::VPC", Properties: map[string]any{"CidrBlock": "10.0.0.0/16"}},
		},
	}

	data, err := ToJSON(template)
	require.NoError(t, err)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.Equal(t, "2010-09-09", parsed["AWSTemplateFormatVersion"])
	vpc := parsed["Resources"].(map[string]any)["VPC"].(map[string]any)
	assert.Equal(t, "AWS::EC2::VPC", vpc["Type"])
}

func TestToYAML(t *testing.T) {
	template := &wetwire.Template{
		AWSTemplateFormatVersion: "2010-09-09",
		Resources: map[string]wetwire.ResourceDef{
			"VPC": {Type: "AWS::EC2::VPC", Properties: map[string]any{"CidrBlock": "10.0.0.0/16"}},
		},
	}

	data, err := ToYAML(template)
	require.NoError(t, err)
	assert.Contains(t, string(data), "AWSTemplateFormatVersion")
	assert.Contains(t, string(data), "AWS::EC2::VPC")
}

func TestGetAtts(t *testing.T) {
	value, err := Normalize(map[string]any{
		"Role": wetwire.AttrRef{Resource: "LambdaRole", Attribute: "Arn"},
		"Env":  map[string]any{"URL": wetwire.AttrRef{Resource: "ALB", Attribute: "DNSName"}},
	})
	require.NoError(t, err)

	assert.Equal(t, []wetwire.AttrRef{
		{Resource: "ALB", Attribute: "DNSName"},
		{Resource: "LambdaRole", Attribute: "Arn"},
	}, GetAtts(value))
}
