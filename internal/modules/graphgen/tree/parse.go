package tree

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var fencedBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

var ErrNoTree = errors.New("no tree object in model output")

// ExtractJSON pulls the JSON payload out of a model response: a fenced code
// block wins, then the outermost brace pair, then the trimmed text itself.
func ExtractJSON(text string) string {
	text = strings.TrimSpace(text)
	if m := fencedBlock.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start != -1 && end > start {
		return text[start : end+1]
	}
	return text
}

// Parse decodes a model response into a tree and normalizes its keys.
func Parse(text string) (*Node, error) {
	raw := ExtractJSON(text)
	var root *Node
	if err := json.Unmarshal([]byte(raw), &root); err != nil {
		return nil, fmt.Errorf("parse tree json: %w", err)
	}
	if root == nil {
		return nil, ErrNoTree
	}
	pruneNilChildren(root)
	EnsureUniqueKeys(root)
	return root, nil
}

func pruneNilChildren(n *Node) {
	kept := n.Children[:0]
	for _, c := range n.Children {
		if c != nil {
			pruneNilChildren(c)
			kept = append(kept, c)
		}
	}
	n.Children = kept
}
