// Package ack renders the network layer of a stack as AWS Controllers for
// Kubernetes (ACK) EC2 custom resources: the VPC, its subnets and the
// security groups with their rules.
package ack

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/aws/aws-sdk-go-v2/aws"
	"gopkg.in/yaml.v3"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/lex00/wetwire-fargate-go/internal/stack"
	"github.com/lex00/wetwire-fargate-go/internal/topology"
)

// Options tune Render.
type Options struct {
	Namespace string
}

// Manifest is the rendered resource set in apply order.
type Manifest struct {
	VPC            VPC
	Subnets        []Subnet
	SecurityGroups []SecurityGroup
}

// Objects returns every resource in apply order.
func (m *Manifest) Objects() []any {
	objs := []any{m.VPC}
	for _, s := range m.Subnets {
		objs = append(objs, s)
	}
	for _, g := range m.SecurityGroups {
		objs = append(objs, g)
	}
	return objs
}

// Render converts the address space and security groups of st.
func Render(st *stack.Stack, opts Options) *Manifest {
	space := st.Network
	prefix := Name(st.Name)
	vpcName := prefix + "-vpc"

	meta := func(name string, labels map[string]string) metav1.ObjectMeta {
		l := map[string]string{"app.kubernetes.io/part-of": prefix}
		for k, v := range labels {
			l[k] = v
		}
		return metav1.ObjectMeta{Name: name, Namespace: opts.Namespace, Labels: l}
	}
	vpcRef := &AWSResourceReferenceWrapper{From: &AWSResourceReference{Name: aws.String(vpcName)}}

	m := &Manifest{
		VPC: VPC{
			TypeMeta:   metav1.TypeMeta{APIVersion: APIVersion, Kind: "VPC"},
			ObjectMeta: meta(vpcName, nil),
			Spec: VPCSpec{
				CIDRBlocks:         []*string{aws.String(space.CIDR.String())},
				EnableDNSHostnames: aws.Bool(true),
				EnableDNSSupport:   aws.Bool(true),
				InstanceTenancy:    aws.String("default"),
				Tags:               tags("Name", st.Name+"/VPC"),
			},
		},
	}

	for _, sn := range space.Subnets() {
		spec := SubnetSpec{
			CIDRBlock:           aws.String(sn.CIDR.String()),
			VPCRef:              vpcRef,
			MapPublicIPOnLaunch: aws.Bool(sn.Egress == topology.Public),
			Tags:                tags("Name", st.Name+"/"+sn.LogicalName(), "SubnetTier", sn.Tier),
		}
		if sn.ZoneName != "" {
			spec.AvailabilityZone = aws.String(sn.ZoneName)
		}
		m.Subnets = append(m.Subnets, Subnet{
			TypeMeta: metav1.TypeMeta{APIVersion: APIVersion, Kind: "Subnet"},
			ObjectMeta: meta(prefix+"-"+Name(sn.LogicalName()), map[string]string{
				"wetwire.io/tier":   Name(sn.Tier),
				"wetwire.io/egress": strings.ToLower(strings.ReplaceAll(string(sn.Egress), "_", "-")),
			}),
			Spec: spec,
		})
	}

	for _, g := range space.SecurityGroups() {
		spec := SecurityGroupSpec{
			Description: aws.String(g.Description),
			Name:        aws.String(g.Name),
			VPCRef:      vpcRef,
			Tags:        tags("Name", st.Name+"/"+g.Name),
		}
		for _, r := range space.IngressTo(g.Name) {
			spec.IngressRules = append(spec.IngressRules, permission(r, r.Source))
		}
		if g.AllowAllOutbound {
			spec.EgressRules = append(spec.EgressRules, &IPPermission{
				IPProtocol: aws.String("-1"),
				IPRanges: []*IPRange{{
					CIDRIP:      aws.String("0.0.0.0/0"),
					Description: aws.String("Allow all outbound traffic by default"),
				}},
			})
		} else {
			for _, r := range space.EgressFrom(g.Name) {
				spec.EgressRules = append(spec.EgressRules, permission(r, r.Destination))
			}
		}
		m.SecurityGroups = append(m.SecurityGroups, SecurityGroup{
			TypeMeta:   metav1.TypeMeta{APIVersion: APIVersion, Kind: "SecurityGroup"},
			ObjectMeta: meta(prefix+"-"+Name(g.Name), nil),
			Spec:       spec,
		})
	}

	return m
}

func permission(r topology.Rule, peer string) *IPPermission {
	p := &IPPermission{
		IPProtocol: aws.String(string(r.Protocol)),
		UserIDGroupPairs: []*UserIDGroupPair{{
			Description: aws.String(r.Description),
			GroupName:   aws.String(peer),
		}},
	}
	if r.Protocol != topology.AllTraffic {
		p.FromPort = aws.Int64(int64(r.Port))
		p.ToPort = aws.Int64(int64(r.Port))
	}
	return p
}

func tags(kv ...string) []*Tag {
	out := make([]*Tag, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, &Tag{Key: aws.String(kv[i]), Value: aws.String(kv[i+1])})
	}
	return out
}

// Name converts a logical id to a Kubernetes object name:
// "FargateLambdaInPrivateVPCSecurityGroup" -> "fargate-lambda-in-private-vpc-security-group".
func Name(id string) string {
	runes := []rune(id)
	var b strings.Builder
	for i, r := range runes {
		if i > 0 {
			prev := runes[i-1]
			switch {
			case unicode.IsUpper(r) && (unicode.IsLower(prev) || unicode.IsDigit(prev)):
				b.WriteByte('-')
			case unicode.IsUpper(r) && unicode.IsUpper(prev) && i+1 < len(runes) && unicode.IsLower(runes[i+1]):
				b.WriteByte('-')
			case unicode.IsDigit(r) && unicode.IsLetter(prev):
				b.WriteByte('-')
			}
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		} else if b.Len() > 0 && !strings.HasSuffix(b.String(), "-") {
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), "-")
}

// ToYAML writes the manifest as a multi-document YAML stream. Objects are
// encoded through their JSON tags first so the output matches kubectl.
func (m *Manifest) ToYAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)

	for _, obj := range m.Objects() {
		data, err := json.Marshal(obj)
		if err != nil {
			return nil, fmt.Errorf("encoding %T: %w", obj, err)
		}
		var doc map[string]any
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		if md, ok := doc["metadata"].(map[string]any); ok && md["creationTimestamp"] == nil {
			delete(md, "creationTimestamp")
		}
		if err := enc.Encode(doc); err != nil {
			return nil, err
		}
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
