package tree

import (
	"fmt"
	"strings"
	"testing"
)

// build returns a root with `branches` branches, each holding `leaves` leaves.
func build(branches, leaves int) *Node {
	root := &Node{Key: "root", Label: "Root", Type: TypeRoot}
	for b := 0; b < branches; b++ {
		br := &Node{Key: fmt.Sprintf("b%d", b), Label: fmt.Sprintf("Branch %d", b), Type: TypeBranch}
		for l := 0; l < leaves; l++ {
			br.Children = append(br.Children, &Node{Key: fmt.Sprintf("b%d_l%d", b, l), Label: "Leaf", Type: TypeLeaf})
		}
		root.Children = append(root.Children, br)
	}
	return root
}

func defaultLimits() Limits {
	return Limits{MaxChildrenPerNode: 8, GenerateDepth: 2, MinNodes: 3, MaxNodes: 50}
}

func TestCountDepthFlatten(t *testing.T) {
	root := build(4, 3)
	if got := Count(root); got != 17 {
		t.Fatalf("Count: want=17 got=%d", got)
	}
	if got := Depth(root); got != 3 {
		t.Fatalf("Depth: want=3 got=%d", got)
	}
	flat := Flatten(root)
	if len(flat) != 17 || flat[0] != root || flat[1].Key != "b0" || flat[2].Key != "b0_l0" {
		t.Fatalf("Flatten: unexpected pre-order")
	}
	if Count(nil) != 0 || Depth(nil) != 0 || Flatten(nil) != nil {
		t.Fatalf("nil tree helpers: want zero values")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name     string
		tree     *Node
		lim      Limits
		valid    bool
		contains []string
	}{
		{name: "seventeen nodes depth three", tree: build(4, 3), lim: defaultLimits(), valid: true},
		{name: "two nodes", tree: build(1, 0), lim: defaultLimits(), contains: []string{"Node count 2 is too small (min 3)"}},
		{name: "sixty nodes", tree: func() *Node {
			root := build(0, 0)
			for i := 0; i < 59; i++ {
				root.Children = append(root.Children, &Node{Key: fmt.Sprintf("c%d", i), Label: "c"})
			}
			return root
		}(), lim: Limits{MaxChildrenPerNode: 100, GenerateDepth: 2}, contains: []string{"Node count 60 exceeds limit of 50"}},
		{name: "too deep", tree: func() *Node {
			root := build(1, 1)
			root.Children[0].Children[0].Children = []*Node{{Key: "deep", Label: "Deep"}}
			return root
		}(), lim: defaultLimits(), contains: []string{"Tree depth 4 exceeds generate depth 2"}},
		{name: "too many children", tree: build(9, 0), lim: defaultLimits(), contains: []string{`Node "Root" has 9 children (max 8)`}},
		{name: "blank labels collected together", tree: func() *Node {
			root := build(2, 1)
			root.Label = "  "
			root.Children[1].Label = ""
			return root
		}(), lim: defaultLimits(), contains: []string{`Child node with key "b1" has no label`, "Root node has no label"}},
		{name: "nil tree", tree: nil, lim: defaultLimits(), contains: []string{"No tree data generated"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Validate(tc.tree, tc.lim)
			if got.IsValid != tc.valid {
				t.Fatalf("IsValid: want=%v got=%v issues=%v", tc.valid, got.IsValid, got.Issues)
			}
			joined := strings.Join(got.Issues, "\n")
			for _, want := range tc.contains {
				if !strings.Contains(joined, want) {
					t.Fatalf("issues: want %q in %v", want, got.Issues)
				}
			}
		})
	}
}

func TestValidateConfigurableCeiling(t *testing.T) {
	got := Validate(build(4, 3), Limits{MaxChildrenPerNode: 8, GenerateDepth: 2, MaxNodes: 10})
	if got.IsValid {
		t.Fatalf("IsValid: want=false with MaxNodes=10")
	}
	if got.Issues[0] != "Node count 17 exceeds limit of 10" {
		t.Fatalf("issue: got=%q", got.Issues[0])
	}
}

func TestExtractJSON(t *testing.T) {
	cases := map[string]string{
		"```json\n{\"a\":1}\n```":            `{"a":1}`,
		"Here you go ```{\"a\":2}``` thanks": `{"a":2}`,
		"prefix {\"a\":{\"b\":3}} suffix":    `{"a":{"b":3}}`,
		"  {\"a\":4}  ":                      `{"a":4}`,
		"no json here":                       "no json here",
	}
	for in, want := range cases {
		if got := ExtractJSON(in); got != want {
			t.Fatalf("ExtractJSON(%q): want=%q got=%q", in, want, got)
		}
	}
}

func TestParse(t *testing.T) {
	text := "```json\n" + `{"key":"root","label":"Go","type":"root","isExpandable":true,"children":[
		{"key":"a","label":"A","type":"branch","children":[{"key":"a","label":"A1","type":"leaf"}]},
		{"label":"B","type":"branch","children":null},
		null
	]}` + "\n```"
	root, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if Count(root) != 4 {
		t.Fatalf("Count: want=4 got=%d", Count(root))
	}
	keys := map[string]bool{}
	for _, n := range Flatten(root) {
		if n.Key == "" || keys[n.Key] {
			t.Fatalf("keys must be unique and non-empty: got %q", n.Key)
		}
		keys[n.Key] = true
	}
	if root.Children[0].Children[0].Key != "a_2" {
		t.Fatalf("duplicate key rename: want=a_2 got=%q", root.Children[0].Children[0].Key)
	}

	for _, bad := range []string{"I cannot help with that", "null", "[1,2]", ""} {
		if _, err := Parse(bad); err == nil {
			t.Fatalf("Parse(%q): want error", bad)
		}
	}
}
