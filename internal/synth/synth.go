// Package synth turns a declared stack into CloudFormation resources.
//
// Every resource is recorded as a wetwire.DeclaredResource plus its property
// value. Dependencies are not declared by hand; they are read back from the
// Ref, Fn::GetAtt and Fn::Sub usages in the properties.
package synth

import (
	"fmt"
	"sort"
	"time"

	wetwire "github.com/lex00/wetwire-fargate-go"
	. "github.com/lex00/wetwire-fargate-go/intrinsics"
	"github.com/lex00/wetwire-fargate-go/internal/placement"
	"github.com/lex00/wetwire-fargate-go/internal/stack"
	"github.com/lex00/wetwire-fargate-go/internal/template"
	"github.com/lex00/wetwire-fargate-go/internal/topology"
	"github.com/lex00/wetwire-fargate-go/internal/trigger"
)

// Components group resources by the part of the stack that declared them.
const (
	ComponentNetwork = "network"
	ComponentService = "service"
	ComponentTrigger = "trigger"
)

// Template parameters for the caller deployment package.
const (
	ParamCodeBucket = "CallerCodeBucket"
	ParamCodeKey    = "CallerCodeKey"
)

// OutputURL exports the load balancer DNS name.
const OutputURL = "FargateAlbUrl"

// Synthesis is the resource set of one stack.
type Synthesis struct {
	Description string
	Resources   map[string]wetwire.DeclaredResource
	Values      map[string]any
	Parameters  map[string]wetwire.Parameter
	Outputs     map[string]wetwire.Output
}

// Names returns the logical names of every resource, sorted.
func (s *Synthesis) Names() []string {
	names := make([]string, 0, len(s.Resources))
	for name := range s.Resources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Builder loads the synthesis into a template builder.
func (s *Synthesis) Builder() *template.Builder {
	b := template.NewBuilder(s.Resources)
	for name, value := range s.Values {
		b.SetValue(name, value)
	}
	for name, p := range s.Parameters {
		b.SetParameter(name, p)
	}
	for name, o := range s.Outputs {
		b.SetOutput(name, o)
	}
	b.SetDescription(s.Description)
	return b
}

// Build synthesizes st and builds the template.
func Build(st *stack.Stack) (*wetwire.Template, *Synthesis, error) {
	syn, err := Synthesize(st)
	if err != nil {
		return nil, nil, err
	}
	tmpl, err := syn.Builder().Build()
	if err != nil {
		return nil, nil, err
	}
	return tmpl, syn, nil
}

// Synthesize declares the resources of st.
func Synthesize(st *stack.Stack) (*Synthesis, error) {
	s := &synth{
		st: st,
		out: &Synthesis{
			Description: fmt.Sprintf("%s: internal Fargate service with scheduled Lambda callers", st.Name),
			Resources:   make(map[string]wetwire.DeclaredResource),
			Values:      make(map[string]any),
			Parameters:  make(map[string]wetwire.Parameter),
			Outputs:     make(map[string]wetwire.Output),
		},
		refs: make(map[string][]string),
	}

	s.network()
	s.securityGroups()
	s.service()
	s.trigger()
	if s.err != nil {
		return nil, s.err
	}
	s.link()
	return s.out, nil
}

type synth struct {
	st   *stack.Stack
	out  *Synthesis
	refs map[string][]string
	err  error
}

func (s *synth) add(name, goType, component string, props any, dependsOn ...string) {
	if s.err != nil {
		return
	}
	if _, dup := s.out.Resources[name]; dup {
		s.err = fmt.Errorf("resource %s declared twice", name)
		return
	}
	normalized, err := template.Normalize(props)
	if err != nil {
		s.err = fmt.Errorf("serializing %s: %w", name, err)
		return
	}
	s.refs[name] = template.References(normalized)
	s.out.Resources[name] = wetwire.DeclaredResource{
		Name:      name,
		Type:      goType,
		Component: component,
		DependsOn: dependsOn,
		AttrRefs:  template.GetAtts(normalized),
	}
	s.out.Values[name] = props
}

// link keeps only the references that name declared resources.
func (s *synth) link() {
	for name, refs := range s.refs {
		res := s.out.Resources[name]
		for _, ref := range refs {
			if _, ok := s.out.Resources[ref]; ok && ref != name {
				res.Dependencies = append(res.Dependencies, ref)
			}
		}
		s.out.Resources[name] = res
	}
}

func nameTag(suffix string) []Tag {
	return []Tag{{Key: "Name", Value: Sub{String: "${AWS::StackName}/" + suffix}}}
}

func (s *synth) network() {
	space := s.st.Network

	s.add("VPC", "ec2.VPC", ComponentNetwork, Json{
		"CidrBlock":          space.CIDR.String(),
		"EnableDnsHostnames": true,
		"EnableDnsSupport":   true,
		"InstanceTenancy":    "default",
		"Tags":               nameTag("VPC"),
	})

	publicTier, hasPublic := space.TierByEgress(topology.Public)
	if !hasPublic {
		s.privateSubnets(nil)
		return
	}

	s.add("InternetGateway", "ec2.InternetGateway", ComponentNetwork, Json{
		"Tags": nameTag("InternetGateway"),
	})
	s.add("VPCGatewayAttachment", "ec2.VPCGatewayAttachment", ComponentNetwork, Json{
		"VpcId":             Ref{LogicalName: "VPC"},
		"InternetGatewayId": Ref{LogicalName: "InternetGateway"},
	})

	_, hasPrivate := space.TierByEgress(topology.PrivateWithEgress)
	nat := make(map[int]string)
	for _, sn := range space.Subnets() {
		if sn.Egress != topology.Public {
			continue
		}
		name := sn.LogicalName()
		s.subnet(sn, true)
		s.add(name+"DefaultRoute", "ec2.Route", ComponentNetwork, Json{
			"RouteTableId":         Ref{LogicalName: name + "RouteTable"},
			"DestinationCidrBlock": "0.0.0.0/0",
			"GatewayId":            Ref{LogicalName: "InternetGateway"},
		}, "VPCGatewayAttachment")

		// only the first public tier hosts NAT gateways
		if !hasPrivate || sn.Tier != publicTier.Name {
			continue
		}
		s.add(name+"EIP", "ec2.EIP", ComponentNetwork, Json{
			"Domain": "vpc",
			"Tags":   nameTag(name),
		})
		s.add(name+"NATGateway", "ec2.NatGateway", ComponentNetwork, Json{
			"SubnetId":     Ref{LogicalName: name},
			"AllocationId": GetAtt{LogicalName: name + "EIP", Attribute: "AllocationId"},
			"Tags":         nameTag(name),
		}, name+"DefaultRoute", name+"RouteTableAssociation")
		nat[sn.Zone] = name + "NATGateway"
	}
	s.privateSubnets(nat)
}

func (s *synth) privateSubnets(nat map[int]string) {
	for _, sn := range s.st.Network.Subnets() {
		if sn.Egress != topology.PrivateWithEgress {
			continue
		}
		s.subnet(sn, false)
		gw, ok := nat[sn.Zone]
		if !ok {
			if s.err == nil {
				s.err = fmt.Errorf("no NAT gateway in zone %d for %s", sn.Zone+1, sn.LogicalName())
			}
			return
		}
		name := sn.LogicalName()
		s.add(name+"DefaultRoute", "ec2.Route", ComponentNetwork, Json{
			"RouteTableId":         Ref{LogicalName: name + "RouteTable"},
			"DestinationCidrBlock": "0.0.0.0/0",
			"NatGatewayId":         Ref{LogicalName: gw},
		})
	}
}

func (s *synth) subnet(sn topology.Subnet, public bool) {
	name := sn.LogicalName()
	subnetType := "Private"
	if public {
		subnetType = "Public"
	}
	tags := append(nameTag(name),
		Tag{Key: "SubnetTier", Value: sn.Tier},
		Tag{Key: "SubnetType", Value: subnetType},
	)

	s.add(name, "ec2.Subnet", ComponentNetwork, Json{
		"VpcId":               Ref{LogicalName: "VPC"},
		"CidrBlock":           sn.CIDR.String(),
		"AvailabilityZone":    AvailabilityZone(sn.Zone, sn.ZoneName),
		"MapPublicIpOnLaunch": public,
		"Tags":                tags,
	})
	s.add(name+"RouteTable", "ec2.RouteTable", ComponentNetwork, Json{
		"VpcId": Ref{LogicalName: "VPC"},
		"Tags":  nameTag(name),
	})
	s.add(name+"RouteTableAssociation", "ec2.SubnetRouteTableAssociation", ComponentNetwork, Json{
		"RouteTableId": Ref{LogicalName: name + "RouteTable"},
		"SubnetId":     Ref{LogicalName: name},
	})
}

func (s *synth) subnetRefs(tier string) []any {
	var refs []any
	for _, sn := range s.st.Network.SubnetsFor(tier) {
		refs = append(refs, Ref{LogicalName: sn.LogicalName()})
	}
	return refs
}

func groupIDs(groups []string) []any {
	ids := make([]any, 0, len(groups))
	for _, g := range groups {
		ids = append(ids, GroupID(g))
	}
	return ids
}

func component(group string, st *stack.Stack) string {
	if group == st.Trigger.SecurityGroup {
		return ComponentTrigger
	}
	for _, c := range st.Trigger.Callers {
		for _, g := range c.SecurityGroups {
			if g == group {
				return ComponentTrigger
			}
		}
	}
	return ComponentService
}

func (s *synth) securityGroups() {
	space := s.st.Network
	for _, g := range space.SecurityGroups() {
		egress := []any{Json{
			"CidrIp":      "0.0.0.0/0",
			"IpProtocol":  "-1",
			"Description": "Allow all outbound traffic by default",
		}}
		if !g.AllowAllOutbound {
			// a rule matching nothing suppresses the implicit allow-all
			egress = []any{Json{
				"CidrIp":      "255.255.255.255/32",
				"IpProtocol":  "icmp",
				"FromPort":    252,
				"ToPort":      86,
				"Description": "Disallow all traffic",
			}}
		}
		s.add(g.Name, "ec2.SecurityGroup", component(g.Name, s.st), Json{
			"GroupDescription":    g.Description,
			"VpcId":               Ref{LogicalName: "VPC"},
			"SecurityGroupEgress": egress,
			"Tags":                nameTag(g.Name),
		})
	}

	for _, r := range space.Rules() {
		switch r.Direction {
		case topology.Inbound:
			props := ruleProps(r)
			props["GroupId"] = GroupID(r.Destination)
			props["SourceSecurityGroupId"] = GroupID(r.Source)
			s.add(RuleName(r), "ec2.SecurityGroupIngress", component(r.Destination, s.st), props)
		case topology.Outbound:
			src, _ := space.SecurityGroup(r.Source)
			if src != nil && src.AllowAllOutbound {
				continue
			}
			props := ruleProps(r)
			props["GroupId"] = GroupID(r.Source)
			props["DestinationSecurityGroupId"] = GroupID(r.Destination)
			s.add(RuleName(r), "ec2.SecurityGroupEgress", component(r.Source, s.st), props)
		}
	}
}

// RuleName is the logical id of a rule resource, e.g.
// "FargateSecurityGroupFromLambdaSecurityGroupPort80".
func RuleName(r topology.Rule) string {
	port := fmt.Sprintf("Port%d", r.Port)
	if r.Protocol == topology.AllTraffic {
		port = "AllTraffic"
	}
	if r.Direction == topology.Outbound {
		return r.Source + "To" + r.Destination + port
	}
	return r.Destination + "From" + r.Source + port
}

func ruleProps(r topology.Rule) Json {
	props := Json{
		"IpProtocol":  string(r.Protocol),
		"Description": r.Description,
	}
	if r.Protocol != topology.AllTraffic {
		props["FromPort"] = r.Port
		props["ToPort"] = r.Port
	}
	return props
}

func (s *synth) service() {
	p := s.st.Service
	lb, svc := p.LoadBalancer, p.Service

	scheme := "internet-facing"
	if lb.Internal {
		scheme = "internal"
	}
	s.add(lb.Name, "elasticloadbalancingv2.LoadBalancer", ComponentService, Json{
		"Scheme":         scheme,
		"Type":           "application",
		"Subnets":        s.subnetRefs(lb.Tier),
		"SecurityGroups": Any(GroupID(lb.SecurityGroup)),
		"LoadBalancerAttributes": Any(
			Json{"Key": "deletion_protection.enabled", "Value": "false"},
		),
	})
	s.add("TargetGroup", "elasticloadbalancingv2.TargetGroup", ComponentService, Json{
		"Port":            p.Endpoint.Port,
		"Protocol":        "HTTP",
		"TargetType":      "ip",
		"VpcId":           Ref{LogicalName: "VPC"},
		"HealthCheckPath": p.HealthCheckPath,
		"TargetGroupAttributes": Any(
			Json{"Key": "stickiness.enabled", "Value": "false"},
		),
	})
	s.add("Listener", "elasticloadbalancingv2.Listener", ComponentService, Json{
		"LoadBalancerArn": Ref{LogicalName: lb.Name},
		"Port":            p.Endpoint.Port,
		"Protocol":        "HTTP",
		"DefaultActions": Any(Json{
			"Type":           "forward",
			"TargetGroupArn": Ref{LogicalName: "TargetGroup"},
		}),
	})

	s.add(svc.Cluster, "ecs.Cluster", ComponentService, nil)
	s.role(svc.TaskRole, ComponentService)
	s.add("TaskExecutionRole", "iam.Role", ComponentService, Json{
		"AssumeRolePolicyDocument": AssumeRolePolicy("ecs-tasks.amazonaws.com"),
		"ManagedPolicyArns":        Any(ManagedPolicyArn("service-role/AmazonECSTaskExecutionRolePolicy")),
	})
	s.add("ServiceLogGroup", "logs.LogGroup", ComponentService, Json{
		"RetentionInDays": 30,
	})

	s.add("TaskDefinition", "ecs.TaskDefinition", ComponentService, Json{
		"Family":                  Sub{String: "${AWS::StackName}-" + svc.Name},
		"Cpu":                     fmt.Sprint(svc.CPU),
		"Memory":                  fmt.Sprint(svc.Memory),
		"NetworkMode":             "awsvpc",
		"RequiresCompatibilities": Any("FARGATE"),
		"RuntimePlatform": Json{
			"OperatingSystemFamily": svc.OperatingSystem,
			"CpuArchitecture":       svc.CPUArchitecture,
		},
		"ExecutionRoleArn": Arn("TaskExecutionRole"),
		"TaskRoleArn":      Arn(svc.TaskRole.Name),
		"ContainerDefinitions": Any(Json{
			"Name":      "web",
			"Image":     svc.Image,
			"Essential": true,
			"PortMappings": Any(Json{
				"ContainerPort": svc.ContainerPort,
				"Protocol":      "tcp",
			}),
			"LogConfiguration": Json{
				"LogDriver": "awslogs",
				"Options": Json{
					"awslogs-group":         Ref{LogicalName: "ServiceLogGroup"},
					"awslogs-stream-prefix": svc.Name,
					"awslogs-region":        AWS_REGION,
				},
			},
		}),
	})

	assign := "DISABLED"
	if svc.AssignPublicIP {
		assign = "ENABLED"
	}
	s.add(svc.Name, "ecs.Service", ComponentService, Json{
		"Cluster":                       Ref{LogicalName: svc.Cluster},
		"TaskDefinition":                Ref{LogicalName: "TaskDefinition"},
		"DesiredCount":                  svc.DesiredCount,
		"LaunchType":                    "FARGATE",
		"HealthCheckGracePeriodSeconds": 60,
		"LoadBalancers": Any(Json{
			"ContainerName":  "web",
			"ContainerPort":  svc.ContainerPort,
			"TargetGroupArn": Ref{LogicalName: "TargetGroup"},
		}),
		"NetworkConfiguration": Json{
			"AwsvpcConfiguration": Json{
				"AssignPublicIp": assign,
				"Subnets":        s.subnetRefs(svc.Tier),
				"SecurityGroups": groupIDs(svc.SecurityGroups),
			},
		},
	}, "Listener")

	s.out.Outputs[OutputURL] = wetwire.Output{
		Description: "DNS name of the internal load balancer",
		Value:       p.Endpoint.DNSNameRef,
		Export:      &wetwire.OutputExport{Name: Sub{String: "${AWS::StackName}-" + OutputURL}},
	}
}

func (s *synth) role(r placement.Role, comp string) {
	props := Json{
		"AssumeRolePolicyDocument": AssumeRolePolicy(r.AssumedBy),
	}
	if len(r.ManagedPolicies) > 0 {
		arns := make([]any, 0, len(r.ManagedPolicies))
		for _, p := range r.ManagedPolicies {
			arns = append(arns, ManagedPolicyArn(p))
		}
		props["ManagedPolicyArns"] = arns
	}
	if len(r.InlinePolicies) > 0 {
		names := make([]string, 0, len(r.InlinePolicies))
		for name := range r.InlinePolicies {
			names = append(names, name)
		}
		sort.Strings(names)

		policies := make([]any, 0, len(names))
		for _, name := range names {
			policies = append(policies, Json{
				"PolicyName": name,
				"PolicyDocument": NewPolicyDocument(PolicyStatement{
					Effect:   "Allow",
					Action:   r.InlinePolicies[name],
					Resource: "*",
				}),
			})
		}
		props["Policies"] = policies
	}
	s.add(r.Name, "iam.Role", comp, props)
}

func (s *synth) trigger() {
	decl := s.st.Trigger
	s.role(decl.Role, ComponentTrigger)

	s.out.Parameters[ParamCodeBucket] = wetwire.Parameter{
		Type:        "String",
		Description: "S3 bucket holding the caller deployment package",
	}
	s.out.Parameters[ParamCodeKey] = wetwire.Parameter{
		Type:        "String",
		Description: "S3 key of the caller deployment package",
		Default:     "fargate-caller.zip",
	}

	for _, c := range decl.Callers {
		props := Json{
			"Code": Json{
				"S3Bucket": Ref{LogicalName: ParamCodeBucket},
				"S3Key":    Ref{LogicalName: ParamCodeKey},
			},
			"Handler":       c.Handler,
			"Runtime":       c.Runtime,
			"Architectures": Any(c.Architecture),
			"MemorySize":    c.MemorySize,
			"Timeout":       int(c.Timeout / time.Second),
			"Role":          Arn(c.Role),
			"Environment": Json{
				"Variables": Json{
					trigger.EnvTargetURL: c.Target.DNSNameRef,
				},
			},
		}
		if c.InVPC() {
			props["VpcConfig"] = Json{
				"SubnetIds":        s.subnetRefs(c.Tier),
				"SecurityGroupIds": groupIDs(c.SecurityGroups),
			}
		}
		s.add(c.Name, "lambda.Function", ComponentTrigger, props)
	}

	targets := make([]any, 0, len(decl.Rule.Targets))
	for i, name := range decl.Rule.Targets {
		targets = append(targets, Json{
			"Arn": Arn(name),
			"Id":  fmt.Sprintf("Target%d", i),
		})
	}
	s.add(decl.Rule.Name, "events.Rule", ComponentTrigger, Json{
		"ScheduleExpression": decl.Rule.Schedule.Expression(),
		"State":              "ENABLED",
		"Targets":            targets,
	})

	for _, name := range decl.Rule.Targets {
		s.add(name+"Permission", "lambda.Permission", ComponentTrigger, Json{
			"Action":       "lambda:InvokeFunction",
			"FunctionName": Arn(name),
			"Principal":    "events.amazonaws.com",
			"SourceArn":    Arn(decl.Rule.Name),
		})
	}
}
