package graphgen

import (
	"github.com/yungbote/knowtree-backend/internal/modules/graphgen/tree"
	"github.com/yungbote/knowtree-backend/internal/platform/envutil"
)

// Config bounds one generation run. It is fixed once the run starts.
type Config struct {
	MaxChildrenPerNode int `json:"maxChildrenPerNode"`
	GenerateDepth      int `json:"generateDepth"`
	MaxTotalDepth      int `json:"maxTotalDepth"`
	MaxTotalNodes      int `json:"maxTotalNodes"`
	MaxRetries         int `json:"maxRetries"`
}

func DefaultConfig() Config {
	return Config{
		MaxChildrenPerNode: 8,
		GenerateDepth:      2,
		MaxTotalDepth:      4,
		MaxTotalNodes:      tree.DefaultMaxNodes,
		MaxRetries:         2,
	}
}

// ConfigFromEnv reads GRAPH_* overrides on top of DefaultConfig.
func ConfigFromEnv() Config {
	d := DefaultConfig()
	return Config{
		MaxChildrenPerNode: envutil.Int("GRAPH_MAX_CHILDREN", d.MaxChildrenPerNode),
		GenerateDepth:      envutil.Int("GRAPH_GENERATE_DEPTH", d.GenerateDepth),
		MaxTotalDepth:      envutil.Int("GRAPH_MAX_TOTAL_DEPTH", d.MaxTotalDepth),
		MaxTotalNodes:      envutil.Int("GRAPH_MAX_TOTAL_NODES", d.MaxTotalNodes),
		MaxRetries:         envutil.Int("GRAPH_MAX_RETRIES", d.MaxRetries),
	}
}

// Overrides are caller-supplied config fields. A nil field keeps the base
// value, so an explicit zero (MaxRetries: 0) is distinguishable from unset.
type Overrides struct {
	MaxChildrenPerNode *int `json:"maxChildrenPerNode,omitempty"`
	GenerateDepth      *int `json:"generateDepth,omitempty"`
	MaxTotalDepth      *int `json:"maxTotalDepth,omitempty"`
	MaxTotalNodes      *int `json:"maxTotalNodes,omitempty"`
	MaxRetries         *int `json:"maxRetries,omitempty"`
}

// Merge returns base with every set field of o applied. Children and depth
// floor at 1, retries at 0. Non-positive ceilings are ignored.
func Merge(base Config, o *Overrides) Config {
	out := base
	if o != nil {
		if o.MaxChildrenPerNode != nil {
			out.MaxChildrenPerNode = *o.MaxChildrenPerNode
		}
		if o.GenerateDepth != nil {
			out.GenerateDepth = *o.GenerateDepth
		}
		if o.MaxTotalDepth != nil && *o.MaxTotalDepth > 0 {
			out.MaxTotalDepth = *o.MaxTotalDepth
		}
		if o.MaxTotalNodes != nil && *o.MaxTotalNodes > 0 {
			out.MaxTotalNodes = *o.MaxTotalNodes
		}
		if o.MaxRetries != nil {
			out.MaxRetries = *o.MaxRetries
		}
	}
	out.MaxChildrenPerNode = max(out.MaxChildrenPerNode, 1)
	out.GenerateDepth = max(out.GenerateDepth, 1)
	out.MaxRetries = max(out.MaxRetries, 0)
	return out
}

func (c Config) limits() tree.Limits {
	return tree.Limits{
		MaxChildrenPerNode: c.MaxChildrenPerNode,
		GenerateDepth:      c.GenerateDepth,
		MinNodes:           tree.DefaultMinNodes,
		MaxNodes:           c.MaxTotalNodes,
	}
}
