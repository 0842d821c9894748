package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wetwire "github.com/lex00/wetwire-fargate-go"
	"github.com/lex00/wetwire-fargate-go/internal/stack"
	"github.com/lex00/wetwire-fargate-go/internal/synth"
)

func TestValidateTemplate_Synthesized(t *testing.T) {
	st, err := stack.New(stack.DefaultOptions())
	require.NoError(t, err)
	tmpl, _, err := synth.Build(st)
	require.NoError(t, err)

	result := ValidateTemplate(tmpl, Options{Strict: true})
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Warnings)
}

func TestValidateTemplate_Errors(t *testing.T) {
	tests := []struct {
		name     string
		resource wetwire.ResourceDef
		property string
		message  string
	}{
		{
			name:     "missing required",
			resource: wetwire.ResourceDef{Type: "AWS::Lambda::Function", Properties: map[string]any{"Code": map[string]any{}}},
			property: "Role",
			message:  "missing required property",
		},
		{
			name:     "allowed values",
			resource: wetwire.ResourceDef{Type: "AWS::ElasticLoadBalancingV2::LoadBalancer", Properties: map[string]any{"Scheme": "public"}},
			property: "Scheme",
			message:  "not in allowed values",
		},
		{
			name:     "wrong type",
			resource: wetwire.ResourceDef{Type: "AWS::Logs::LogGroup", Properties: map[string]any{"RetentionInDays": "30"}},
			property: "RetentionInDays",
			message:  "expected type Integer",
		},
		{
			name:     "fractional integer",
			resource: wetwire.ResourceDef{Type: "AWS::Logs::LogGroup", Properties: map[string]any{"RetentionInDays": 7.5}},
			property: "RetentionInDays",
			message:  "expected type Integer",
		},
		{
			name:     "bad type format",
			resource: wetwire.ResourceDef{Type: "EC2::Subnet"},
			property: "Type",
			message:  "invalid resource type format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateTemplate(&wetwire.Template{
				Resources: map[string]wetwire.ResourceDef{"Res": tt.resource},
			}, Options{})

			assert.False(t, result.Valid)
			require.Len(t, result.Errors, 1)
			assert.Equal(t, "Res", result.Errors[0].Resource)
			assert.Equal(t, tt.property, result.Errors[0].Property)
			assert.Contains(t, result.Errors[0].Message, tt.message)
		})
	}
}

func TestValidateTemplate_IntrinsicsPass(t *testing.T) {
	result := ValidateTemplate(&wetwire.Template{
		Resources: map[string]wetwire.ResourceDef{
			"Service": {
				Type: "AWS::ECS::Service",
				Properties: map[string]any{
					"DesiredCount": map[string]any{"Ref": "DesiredCount"},
					"LaunchType":   map[string]any{"Fn::If": []any{"UseFargate", "FARGATE", "EC2"}},
				},
			},
		},
	}, Options{})
	assert.True(t, result.Valid)
}

func TestValidateTemplate_Warnings(t *testing.T) {
	tmpl := &wetwire.Template{
		Resources: map[string]wetwire.ResourceDef{
			"Bucket":  {Type: "AWS::S3::Bucket"},
			"Cluster": {Type: "AWS::ECS::Cluster", Properties: map[string]any{"ClusterName": "web"}},
		},
	}

	result := ValidateTemplate(tmpl, Options{})
	assert.True(t, result.Valid)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0].Message, "unknown resource type")

	strict := ValidateTemplate(tmpl, Options{Strict: true})
	require.Len(t, strict.Warnings, 2)
	assert.Equal(t, "Bucket", strict.Warnings[0].Resource)
	assert.Equal(t, "Cluster", strict.Warnings[1].Resource)
	assert.Contains(t, strict.Warnings[1].Message, "unknown property: ClusterName")
}

func TestSchemaError_Error(t *testing.T) {
	err := wetwire.SchemaError{Resource: "ALB", Property: "Scheme", Message: "bad"}
	assert.Equal(t, "ALB.Scheme: bad", err.Error())
}
