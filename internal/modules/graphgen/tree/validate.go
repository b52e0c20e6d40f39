package tree

import (
	"fmt"
	"strings"
)

const (
	DefaultMinNodes = 3
	DefaultMaxNodes = 50
)

// Limits bounds an acceptable tree. MaxNodes is a product ceiling and is not
// derived from the branching settings.
type Limits struct {
	MaxChildrenPerNode int
	GenerateDepth      int
	MinNodes           int
	MaxNodes           int
}

type Verdict struct {
	IsValid bool     `json:"isValid"`
	Issues  []string `json:"issues"`
}

// Validate collects every structural violation of root against lim.
func Validate(root *Node, lim Limits) Verdict {
	if root == nil {
		return Verdict{IsValid: false, Issues: []string{"No tree data generated"}}
	}
	if lim.MinNodes <= 0 {
		lim.MinNodes = DefaultMinNodes
	}
	if lim.MaxNodes <= 0 {
		lim.MaxNodes = DefaultMaxNodes
	}

	issues := []string{}
	count := Count(root)
	depth := Depth(root)

	if count > lim.MaxNodes {
		issues = append(issues, fmt.Sprintf("Node count %d exceeds limit of %d", count, lim.MaxNodes))
	}
	if count < lim.MinNodes {
		issues = append(issues, fmt.Sprintf("Node count %d is too small (min %d)", count, lim.MinNodes))
	}
	if depth > lim.GenerateDepth+1 {
		issues = append(issues, fmt.Sprintf("Tree depth %d exceeds generate depth %d", depth, lim.GenerateDepth))
	}

	issues = checkChildren(root, lim.MaxChildrenPerNode, issues)

	if strings.TrimSpace(root.Label) == "" {
		issues = append(issues, "Root node has no label")
	}
	return Verdict{IsValid: len(issues) == 0, Issues: issues}
}

func checkChildren(n *Node, maxChildren int, issues []string) []string {
	if maxChildren > 0 && len(n.Children) > maxChildren {
		issues = append(issues, fmt.Sprintf("Node %q has %d children (max %d)", n.Label, len(n.Children), maxChildren))
	}
	for _, c := range n.Children {
		if c == nil {
			issues = append(issues, fmt.Sprintf("Node %q has an empty child", n.Label))
			continue
		}
		if strings.TrimSpace(c.Label) == "" {
			issues = append(issues, fmt.Sprintf("Child node with key %q has no label", c.Key))
		}
		issues = checkChildren(c, maxChildren, issues)
	}
	return issues
}
