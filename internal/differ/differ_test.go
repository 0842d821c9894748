package differ

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	wetwire "github.com/lex00/wetwire-fargate-go"
	"github.com/lex00/wetwire-fargate-go/internal/stack"
	"github.com/lex00/wetwire-fargate-go/internal/synth"
	"github.com/lex00/wetwire-fargate-go/internal/template"
)

func TestCompare(t *testing.T) {
	t1 := &wetwire.Template{
		Resources: map[string]wetwire.ResourceDef{
			"Cluster":  {Type: "AWS::ECS::Cluster"},
			"LogGroup": {Type: "AWS::Logs::LogGroup", Properties: map[string]any{"RetentionInDays": 30}},
			"Old":      {Type: "AWS::Logs::LogGroup"},
		},
	}

	t2 := &wetwire.Template{
		Resources: map[string]wetwire.ResourceDef{
			"Cluster":  {Type: "AWS::ECS::Cluster"},
			"LogGroup": {Type: "AWS::Logs::LogGroup", Properties: map[string]any{"RetentionInDays": 7}},
			"New":      {Type: "AWS::Logs::LogGroup"},
		},
	}

	result, err := Compare(t1, t2, Options{})
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}

	if len(result.Diff.Removed) != 1 || result.Diff.Removed[0].Resource != "Old" {
		t.Errorf("Removed = %+v, want [Old]", result.Diff.Removed)
	}
	if len(result.Diff.Added) != 1 || result.Diff.Added[0].Resource != "New" {
		t.Errorf("Added = %+v, want [New]", result.Diff.Added)
	}
	if len(result.Diff.Modified) != 1 {
		t.Fatalf("Modified = %d, want 1", len(result.Diff.Modified))
	}
	if result.Diff.Modified[0].Replacement {
		t.Error("log retention change should update in place")
	}
	if result.Summary.Total != 3 {
		t.Errorf("Summary.Total = %d, want 3", result.Summary.Total)
	}
}

func TestCompareIdentical(t *testing.T) {
	st, err := stack.New(stack.DefaultOptions())
	if err != nil {
		t.Fatalf("stack.New() error = %v", err)
	}
	tmpl, _, err := synth.Build(st)
	if err != nil {
		t.Fatalf("synth.Build() error = %v", err)
	}

	result, err := Compare(tmpl, tmpl, Options{})
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if result.Summary.Total != 0 {
		t.Errorf("Summary.Total = %d, want 0 for identical templates", result.Summary.Total)
	}
}

func TestCompareNil(t *testing.T) {
	if _, err := Compare(nil, &wetwire.Template{}, Options{}); err == nil {
		t.Error("expected error for nil template")
	}
}

func TestCompareReplacement(t *testing.T) {
	subnet := func(cidr string) *wetwire.Template {
		return &wetwire.Template{
			Resources: map[string]wetwire.ResourceDef{
				"PrivateSubnet1": {
					Type: "AWS::EC2::Subnet",
					Properties: map[string]any{
						"CidrBlock": cidr,
						"VpcId":     map[string]any{"Ref": "VPC"},
					},
				},
			},
		}
	}

	result, err := Compare(subnet("10.0.0.0/24"), subnet("10.0.8.0/24"), Options{})
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if len(result.Diff.Modified) != 1 {
		t.Fatalf("Modified = %d, want 1", len(result.Diff.Modified))
	}
	entry := result.Diff.Modified[0]
	if !entry.Replacement {
		t.Error("CIDR change should force replacement")
	}
	if len(entry.Changes) != 1 || entry.Changes[0] != "CidrBlock modified" {
		t.Errorf("Changes = %v", entry.Changes)
	}
	if result.Summary.Replacements != 1 {
		t.Errorf("Summary.Replacements = %d, want 1", result.Summary.Replacements)
	}
}

func TestCompareTypeChange(t *testing.T) {
	t1 := &wetwire.Template{
		Resources: map[string]wetwire.ResourceDef{
			"Rule": {Type: "AWS::EC2::SecurityGroupIngress"},
		},
	}
	t2 := &wetwire.Template{
		Resources: map[string]wetwire.ResourceDef{
			"Rule": {Type: "AWS::EC2::SecurityGroupEgress"},
		},
	}

	result, err := Compare(t1, t2, Options{})
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if len(result.Diff.Modified) != 1 {
		t.Fatalf("Modified = %d, want 1", len(result.Diff.Modified))
	}
	entry := result.Diff.Modified[0]
	if !strings.HasPrefix(entry.Changes[0], "Type changed") || !entry.Replacement {
		t.Errorf("expected type change with replacement, got %+v", entry)
	}
}

func TestCompareProperties(t *testing.T) {
	tests := []struct {
		name   string
		props1 map[string]any
		props2 map[string]any
		want   []string
	}{
		{
			name:   "identical",
			props1: map[string]any{"Port": 80},
			props2: map[string]any{"Port": 80},
		},
		{
			name:   "added property",
			props1: map[string]any{},
			props2: map[string]any{"HealthCheckPath": "/"},
			want:   []string{"HealthCheckPath added"},
		},
		{
			name:   "removed property",
			props1: map[string]any{"HealthCheckPath": "/"},
			props2: map[string]any{},
			want:   []string{"HealthCheckPath removed"},
		},
		{
			name:   "nested property",
			props1: map[string]any{"RuntimePlatform": map[string]any{"CpuArchitecture": "X86_64", "OperatingSystemFamily": "LINUX"}},
			props2: map[string]any{"RuntimePlatform": map[string]any{"CpuArchitecture": "ARM64", "OperatingSystemFamily": "LINUX"}},
			want:   []string{"RuntimePlatform.CpuArchitecture modified"},
		},
		{
			name:   "intrinsic is a leaf",
			props1: map[string]any{"VpcId": map[string]any{"Ref": "VPC"}},
			props2: map[string]any{"VpcId": map[string]any{"Ref": "OtherVPC"}},
			want:   []string{"VpcId modified"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			changes := compareProperties("", tt.props1, tt.props2, Options{})
			if strings.Join(changes, ",") != strings.Join(tt.want, ",") {
				t.Errorf("compareProperties() = %v, want %v", changes, tt.want)
			}
		})
	}
}

func TestCompareIgnoreOrder(t *testing.T) {
	props := func(subnets ...any) map[string]any {
		return map[string]any{"Subnets": subnets}
	}
	a := props(map[string]any{"Ref": "PrivateSubnet1"}, map[string]any{"Ref": "PrivateSubnet2"})
	b := props(map[string]any{"Ref": "PrivateSubnet2"}, map[string]any{"Ref": "PrivateSubnet1"})

	if changes := compareProperties("", a, b, Options{}); len(changes) != 1 {
		t.Errorf("ordered compare: changes = %v, want 1", changes)
	}
	if changes := compareProperties("", a, b, Options{IgnoreOrder: true}); len(changes) != 0 {
		t.Errorf("unordered compare: changes = %v, want none", changes)
	}
}

func TestCompareFiles(t *testing.T) {
	st, err := stack.New(stack.DefaultOptions())
	if err != nil {
		t.Fatalf("stack.New() error = %v", err)
	}
	tmpl, _, err := synth.Build(st)
	if err != nil {
		t.Fatalf("synth.Build() error = %v", err)
	}

	dir := t.TempDir()
	jsonData, err := template.ToJSON(tmpl)
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}
	yamlData, err := template.ToYAML(tmpl)
	if err != nil {
		t.Fatalf("ToYAML() error = %v", err)
	}
	jsonPath := filepath.Join(dir, "a.json")
	yamlPath := filepath.Join(dir, "b.yaml")
	if err := os.WriteFile(jsonPath, jsonData, 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(yamlPath, yamlData, 0644); err != nil {
		t.Fatal(err)
	}

	result, err := CompareFiles(jsonPath, yamlPath, Options{})
	if err != nil {
		t.Fatalf("CompareFiles() error = %v", err)
	}
	if result.Summary.Added != 0 || result.Summary.Removed != 0 {
		t.Errorf("Summary = %+v, want no added or removed resources", result.Summary)
	}

	if _, err := CompareFiles(filepath.Join(dir, "missing.json"), yamlPath, Options{}); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestEqualStringSlices(t *testing.T) {
	tests := []struct {
		a, b []string
		want bool
	}{
		{nil, nil, true},
		{[]string{}, []string{}, true},
		{[]string{"Listener"}, []string{"Listener"}, true},
		{[]string{"a"}, []string{"b"}, false},
		{[]string{"a"}, []string{"a", "b"}, false},
	}

	for _, tt := range tests {
		got := equalStringSlices(tt.a, tt.b)
		if got != tt.want {
			t.Errorf("equalStringSlices(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
