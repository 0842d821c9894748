package template

import (
	"fmt"
	"testing"

	wetwire "github.com/lex00/wetwire-fargate-go"
)

// BenchmarkBuild builds chains of subnets hanging off one VPC.
func BenchmarkBuild(b *testing.B) {
	for _, size := range []int{10, 50, 200} {
		b.Run(fmt.Sprintf("subnets_%d", size), func(b *testing.B) {
			resources := map[string]wetwire.DeclaredResource{
				"VPC": {Name: "VPC", Type: "ec2.VPC"},
			}
			builder := NewBuilder(resources)
			builder.SetValue("VPC", map[string]any{"CidrBlock": "10.0.0.0/16"})

			for i := 0; i < size; i++ {
				name := fmt.Sprintf("Subnet%d", i)
				resources[name] = wetwire.DeclaredResource{Name: name, Type: "ec2.Subnet", Dependencies: []string{"VPC"}}
				builder.SetValue(name, map[string]any{
					"VpcId":     map[string]any{"Ref": "VPC"},
					"CidrBlock": fmt.Sprintf("10.0.%d.0/24", i%256),
				})
			}

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := builder.Build(); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
