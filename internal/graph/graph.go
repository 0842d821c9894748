// Package graph generates DOT and Mermaid graphs of a synthesized stack: the
// resource dependency graph and the security group reachability graph.
package graph

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/emicklei/dot"

	wetwire "github.com/lex00/wetwire-fargate-go"
	"github.com/lex00/wetwire-fargate-go/internal/reach"
	"github.com/lex00/wetwire-fargate-go/internal/stack"
	"github.com/lex00/wetwire-fargate-go/internal/topology"
)

// Format specifies the output format for the graph.
type Format string

const (
	// FormatDOT outputs Graphviz DOT format.
	FormatDOT Format = "dot"
	// FormatMermaid outputs Mermaid format for GitHub/markdown rendering.
	FormatMermaid Format = "mermaid"
)

// Generator creates dependency graphs from declared resources.
type Generator struct {
	// IncludeParameters includes parameter references in the graph.
	IncludeParameters bool

	// Format specifies the output format (dot or mermaid). Defaults to dot.
	Format Format

	// ClusterByComponent groups resources into network, service and trigger.
	ClusterByComponent bool
}

// Generate creates a dependency graph and writes it to w.
func (g *Generator) Generate(resources map[string]wetwire.DeclaredResource, parameters map[string]wetwire.Parameter, w io.Writer) error {
	return g.write(g.buildGraph(resources, parameters), w)
}

// GenerateString is a convenience method that returns the graph as a string.
func (g *Generator) GenerateString(resources map[string]wetwire.DeclaredResource, parameters map[string]wetwire.Parameter) (string, error) {
	var sb strings.Builder
	if err := g.Generate(resources, parameters, &sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// Reachability writes the security group graph of st: which groups admit
// which, which callers hold which groups, and the verdict for every source.
func (g *Generator) Reachability(st *stack.Stack, w io.Writer) error {
	return g.write(buildReachGraph(st), w)
}

func (g *Generator) write(graph *dot.Graph, w io.Writer) error {
	format := g.Format
	if format == "" {
		format = FormatDOT
	}

	var output string
	if format == FormatMermaid {
		output = dot.MermaidGraph(graph, dot.MermaidTopToBottom)
	} else {
		output = graph.String()
	}

	_, err := w.Write([]byte(output))
	return err
}

func newGraph() *dot.Graph {
	graph := dot.NewGraph(dot.Directed)
	graph.Attr("rankdir", "TB")

	graph.NodeInitializer(func(n dot.Node) {
		n.Attr("shape", "box")
		n.Attr("fontname", "Arial")
	})
	graph.EdgeInitializer(func(e dot.Edge) {
		e.Attr("fontname", "Arial")
		e.Attr("fontsize", "10")
	})
	return graph
}

// buildGraph creates the dot.Graph structure from declared resources.
func (g *Generator) buildGraph(resources map[string]wetwire.DeclaredResource, parameters map[string]wetwire.Parameter) *dot.Graph {
	graph := newGraph()

	// GetAtt references are drawn in blue
	getAttRefs := make(map[string]bool)
	for name, res := range resources {
		for _, ref := range res.AttrRefs {
			getAttRefs[name+"->"+ref.Resource] = true
		}
	}

	names := sortedNames(resources)
	if g.ClusterByComponent {
		g.addClusteredNodes(graph, resources, names)
	} else {
		for _, name := range names {
			graph.Node(name).Label(nodeLabel(name, resources[name].Type))
		}
	}

	if g.IncludeParameters {
		for name := range parameters {
			n := graph.Node(name)
			n.Attr("shape", "ellipse")
			n.Attr("style", "dashed")
			n.Label(name)
		}
	}

	for _, name := range names {
		res := resources[name]
		for _, dep := range res.Dependencies {
			if _, ok := resources[dep]; !ok {
				continue
			}
			e := graph.Edge(graph.Node(name), graph.Node(dep))
			if getAttRefs[name+"->"+dep] {
				e.Attr("color", "blue")
			}
		}
		for _, dep := range res.DependsOn {
			if _, ok := resources[dep]; !ok {
				continue
			}
			graph.Edge(graph.Node(name), graph.Node(dep)).Attr("style", "dashed")
		}
		if g.IncludeParameters {
			for _, dep := range res.Dependencies {
				if _, ok := parameters[dep]; ok {
					graph.Edge(graph.Node(name), graph.Node(dep)).Attr("style", "dotted")
				}
			}
		}
	}

	return graph
}

var clusterColors = map[string]string{
	"network": "lightyellow",
	"service": "lightblue",
	"trigger": "lightpink",
}

// addClusteredNodes adds resource nodes grouped by the component that
// declared them.
func (g *Generator) addClusteredNodes(graph *dot.Graph, resources map[string]wetwire.DeclaredResource, names []string) {
	byComponent := make(map[string][]string)
	for _, name := range names {
		byComponent[resources[name].Component] = append(byComponent[resources[name].Component], name)
	}

	components := make([]string, 0, len(byComponent))
	for c := range byComponent {
		components = append(components, c)
	}
	sort.Strings(components)

	for _, component := range components {
		if component == "" {
			for _, name := range byComponent[component] {
				graph.Node(name).Label(nodeLabel(name, resources[name].Type))
			}
			continue
		}
		cluster := graph.Subgraph("cluster_"+component, dot.ClusterOption{})
		cluster.Attr("label", component)
		cluster.Attr("style", "rounded")
		if color, ok := clusterColors[component]; ok {
			cluster.Attr("bgcolor", color)
		}
		for _, name := range byComponent[component] {
			cluster.Node(name).Label(nodeLabel(name, resources[name].Type))
		}
	}
}

func buildReachGraph(st *stack.Stack) *dot.Graph {
	graph := newGraph()
	space := st.Network
	endpoint := st.Service.Endpoint

	groups := graph.Subgraph("cluster_groups", dot.ClusterOption{})
	groups.Attr("label", "security groups")
	groups.Attr("style", "rounded")
	for _, sg := range space.SecurityGroups() {
		n := groups.Node(sg.Name)
		n.Attr("shape", "ellipse")
		n.Label(sg.Name)
	}

	for _, r := range space.Rules() {
		e := graph.Edge(graph.Node(r.Source), graph.Node(r.Destination))
		e.Label(string(r.Direction) + " " + portLabel(r))
		if r.Direction == topology.Outbound {
			e.Attr("style", "dashed")
		}
	}

	svc := graph.Node(endpoint.LoadBalancer)
	svc.Attr("shape", "doubleoctagon")
	svc.Label(fmt.Sprintf("%s\\n(internal :%d)", endpoint.LoadBalancer, endpoint.Port))
	graph.Edge(graph.Node(endpoint.SecurityGroup), svc).Attr("style", "dotted")

	for _, c := range st.Trigger.Callers {
		n := graph.Node(c.Name)
		n.Label(c.Name + "\\n[" + string(c.Placement) + "]")
		for _, sg := range c.SecurityGroups {
			graph.Edge(n, graph.Node(sg)).Attr("style", "dotted").Attr("arrowhead", "none")
		}
	}
	inet := graph.Node(reach.Internet)
	inet.Attr("shape", "diamond")

	for _, v := range reach.EvaluateStack(st) {
		e := graph.Edge(graph.Node(v.Source), svc)
		if v.Allowed {
			e.Attr("color", "darkgreen")
			e.Label("allowed")
		} else {
			e.Attr("color", "red")
			e.Attr("style", "dashed")
			e.Label("denied")
		}
	}
	return graph
}

func portLabel(r topology.Rule) string {
	if r.Protocol == topology.AllTraffic {
		return "all"
	}
	return fmt.Sprintf("%s/%d", r.Protocol, r.Port)
}

func sortedNames(resources map[string]wetwire.DeclaredResource) []string {
	names := make([]string, 0, len(resources))
	for name := range resources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func nodeLabel(name, goType string) string {
	return name + "\\n[" + goTypeToCFType(goType) + "]"
}

// goTypeToCFType converts a Go type to CloudFormation type format.
// e.g., "ec2.Subnet" -> "AWS::EC2::Subnet"
func goTypeToCFType(goType string) string {
	parts := strings.Split(goType, ".")
	if len(parts) == 2 {
		service := strings.ToUpper(parts[0][:1]) + parts[0][1:]
		if upper, ok := acronyms[parts[0]]; ok {
			service = upper
		}
		return "AWS::" + service + "::" + parts[1]
	}
	return goType
}

var acronyms = map[string]string{
	"ec2":                    "EC2",
	"ecs":                    "ECS",
	"iam":                    "IAM",
	"elasticloadbalancingv2": "ElasticLoadBalancingV2",
}
