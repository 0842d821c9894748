// Package intrinsics provides the CloudFormation intrinsic functions used when
// synthesizing the Fargate topology.
//
// Core intrinsic types are re-exported from cloudformation-schema-go:
//
//	Ref{"VPC"} → {"Ref": "VPC"}
//	GetAtt{"ALB", "DNSName"} → {"Fn::GetAtt": ["ALB", "DNSName"]}
//	Select{0, GetAZs{}} → {"Fn::Select": [0, {"Fn::GetAZs": ""}]}
package intrinsics

import (
	"github.com/lex00/cloudformation-schema-go/intrinsics"
)

type (
	// Ref represents a CloudFormation Ref intrinsic function.
	Ref = intrinsics.Ref

	// GetAtt represents a CloudFormation Fn::GetAtt intrinsic function.
	GetAtt = intrinsics.GetAtt

	// Sub represents a CloudFormation Fn::Sub intrinsic function.
	Sub = intrinsics.Sub

	// Join represents a CloudFormation Fn::Join intrinsic function.
	Join = intrinsics.Join

	// Select represents a CloudFormation Fn::Select intrinsic function.
	Select = intrinsics.Select

	// GetAZs represents a CloudFormation Fn::GetAZs intrinsic function.
	GetAZs = intrinsics.GetAZs

	// Tag represents a CloudFormation resource tag.
	Tag = intrinsics.Tag
)

// GroupID returns the GetAtt for a security group's id.
func GroupID(logicalName string) GetAtt {
	return GetAtt{LogicalName: logicalName, Attribute: "GroupId"}
}

// Arn returns the GetAtt for a resource's Arn attribute.
func Arn(logicalName string) GetAtt {
	return GetAtt{LogicalName: logicalName, Attribute: "Arn"}
}

// AvailabilityZone selects the zone at index from the region's zone list.
// A non-empty name is returned as a literal.
func AvailabilityZone(index int, name string) any {
	if name != "" {
		return name
	}
	return Select{Index: index, List: GetAZs{Region: ""}}
}

// ManagedPolicyArn builds a partition-aware AWS managed policy ARN.
//
//	ManagedPolicyArn("service-role/AWSLambdaBasicExecutionRole")
func ManagedPolicyArn(name string) Sub {
	return Sub{String: "arn:${AWS::Partition}:iam::aws:policy/" + name}
}
