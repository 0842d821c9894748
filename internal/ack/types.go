package ack

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// APIVersion is the group/version of the ACK EC2 controller.
const APIVersion = "ec2.services.k8s.aws/v1alpha1"

// VPC represents an ACK EC2 VPC resource.
// +kubebuilder:object:root=true
type VPC struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec VPCSpec `json:"spec,omitempty"`
}

// VPCSpec defines the desired state of a VPC.
type VPCSpec struct {
	CIDRBlocks         []*string `json:"cidrBlocks,omitempty"`
	EnableDNSHostnames *bool     `json:"enableDNSHostnames,omitempty"`
	EnableDNSSupport   *bool     `json:"enableDNSSupport,omitempty"`
	// InstanceTenancy is default, dedicated or host
	InstanceTenancy *string `json:"instanceTenancy,omitempty"`
	Tags            []*Tag  `json:"tags,omitempty"`
}

// Subnet represents an ACK EC2 Subnet resource.
// +kubebuilder:object:root=true
type Subnet struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec SubnetSpec `json:"spec,omitempty"`
}

// SubnetSpec defines the desired state of a Subnet.
type SubnetSpec struct {
	AvailabilityZone    *string                      `json:"availabilityZone,omitempty"`
	CIDRBlock           *string                      `json:"cidrBlock,omitempty"`
	VPCRef              *AWSResourceReferenceWrapper `json:"vpcRef,omitempty"`
	MapPublicIPOnLaunch *bool                        `json:"mapPublicIPOnLaunch,omitempty"`
	Tags                []*Tag                       `json:"tags,omitempty"`
}

// SecurityGroup represents an ACK EC2 SecurityGroup resource.
// +kubebuilder:object:root=true
type SecurityGroup struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec SecurityGroupSpec `json:"spec,omitempty"`
}

// SecurityGroupSpec defines the desired state of a SecurityGroup.
type SecurityGroupSpec struct {
	Description  *string                      `json:"description,omitempty"`
	Name         *string                      `json:"name,omitempty"`
	VPCRef       *AWSResourceReferenceWrapper `json:"vpcRef,omitempty"`
	IngressRules []*IPPermission              `json:"ingressRules,omitempty"`
	EgressRules  []*IPPermission              `json:"egressRules,omitempty"`
	Tags         []*Tag                       `json:"tags,omitempty"`
}

// IPPermission describes a security group rule.
type IPPermission struct {
	FromPort         *int64             `json:"fromPort,omitempty"`
	ToPort           *int64             `json:"toPort,omitempty"`
	IPProtocol       *string            `json:"ipProtocol,omitempty"`
	IPRanges         []*IPRange         `json:"ipRanges,omitempty"`
	UserIDGroupPairs []*UserIDGroupPair `json:"userIDGroupPairs,omitempty"`
}

// IPRange describes an IPv4 address range.
type IPRange struct {
	CIDRIP      *string `json:"cidrIP,omitempty"`
	Description *string `json:"description,omitempty"`
}

// UserIDGroupPair names the peer group of a rule.
type UserIDGroupPair struct {
	Description *string `json:"description,omitempty"`
	GroupName   *string `json:"groupName,omitempty"`
}

// Tag represents an AWS tag.
type Tag struct {
	Key   *string `json:"key,omitempty"`
	Value *string `json:"value,omitempty"`
}

// AWSResourceReferenceWrapper wraps a reference to another ACK resource.
type AWSResourceReferenceWrapper struct {
	From *AWSResourceReference `json:"from,omitempty"`
}

// AWSResourceReference references an ACK resource by name.
type AWSResourceReference struct {
	Name *string `json:"name,omitempty"`
}
