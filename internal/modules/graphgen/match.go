package graphgen

import (
	"context"
	"encoding/json"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/knowtree-backend/internal/data/repos/catalog"
	"github.com/yungbote/knowtree-backend/internal/modules/graphgen/prompts"
	"github.com/yungbote/knowtree-backend/internal/modules/graphgen/tree"
	"github.com/yungbote/knowtree-backend/internal/pkg/dbctx"
	"github.com/yungbote/knowtree-backend/internal/platform/logger"
)

const (
	minRelevance     = 0.3
	maxMatchesPerKey = 3
)

// Commas (ASCII and full-width), the enumeration comma, and whitespace.
var tagDelimiters = regexp.MustCompile(`[,，、\s]+`)

// Tags derives coarse lookup tags from a node label.
func Tags(label string) []string {
	var out []string
	for _, t := range tagDelimiters.Split(label, -1) {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

type matchResponse struct {
	Matches []struct {
		ResourceID     string  `json:"resourceId"`
		RelevanceScore float64 `json:"relevanceScore"`
	} `json:"matches"`
}

// matchResources never fails. Nodes without candidates make no LLM call, and
// a node whose scoring fails simply gets no matches.
func (w *Workflow) matchResources(ctx context.Context, st *State, log *logger.Logger) {
	st.ResourceMatches = []ResourceMatch{}
	if st.Tree == nil || st.Analysis == nil {
		return
	}
	nodes := tree.Flatten(st.Tree)
	if st.expanding() && len(nodes) > 0 {
		// The expansion root already exists with its own resources.
		nodes = nodes[1:]
	}

	var (
		mu    sync.Mutex
		byKey = map[string][]ScoredResource{}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.matchLimit)
	for _, n := range nodes {
		g.Go(func() error {
			scored := w.matchNode(gctx, st, n, log)
			if len(scored) == 0 {
				return nil
			}
			mu.Lock()
			byKey[n.Key] = scored
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	// Assemble in tree order so the result does not depend on completion order.
	for _, n := range nodes {
		if scored, ok := byKey[n.Key]; ok {
			st.ResourceMatches = append(st.ResourceMatches, ResourceMatch{NodeKey: n.Key, Resources: scored})
		}
	}
	log.Info("Resources matched", "nodes", len(nodes), "matched", len(st.ResourceMatches))
}

func (w *Workflow) matchNode(ctx context.Context, st *State, n *tree.Node, log *logger.Logger) []ScoredResource {
	candidates, err := w.resources.FindByTags(dbctx.New(ctx), Tags(n.Label), st.Analysis.Domain, catalog.DefaultCandidateLimit)
	if err != nil {
		log.Warn("Resource candidate lookup failed", "node_key", n.Key, "error", err)
		return nil
	}
	if len(candidates) == 0 {
		return nil
	}

	in := prompts.Input{NodeLabel: n.Label, NodeDescription: n.Description}
	known := make(map[uuid.UUID]bool, len(candidates))
	for _, c := range candidates {
		known[c.ID] = true
		in.Candidates = append(in.Candidates, prompts.Candidate{ID: c.ID.String(), Title: c.Title, Description: c.Description})
	}
	p, err := w.prompts.Build(prompts.MatchResources, in)
	if err != nil {
		log.Warn("Resource match prompt failed", "node_key", n.Key, "error", err)
		return nil
	}
	c, err := w.llm.Complete(ctx, st.Provider, p.Messages, p.Options)
	if err != nil {
		log.Warn("Resource scoring failed", "node_key", n.Key, "error", err)
		return nil
	}
	return parseMatches(c.Content, known)
}

// parseMatches keeps known resources scoring at least minRelevance, best
// first, capped at maxMatchesPerKey.
func parseMatches(content string, known map[uuid.UUID]bool) []ScoredResource {
	var resp matchResponse
	if err := json.Unmarshal([]byte(tree.ExtractJSON(content)), &resp); err != nil {
		return nil
	}
	seen := map[uuid.UUID]bool{}
	var out []ScoredResource
	for _, m := range resp.Matches {
		id, err := uuid.Parse(strings.TrimSpace(m.ResourceID))
		if err != nil || !known[id] || seen[id] {
			continue
		}
		score := min(m.RelevanceScore, 1)
		if score < minRelevance {
			continue
		}
		seen[id] = true
		out = append(out, ScoredResource{ResourceID: id, RelevanceScore: score})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RelevanceScore > out[j].RelevanceScore })
	if len(out) > maxMatchesPerKey {
		out = out[:maxMatchesPerKey]
	}
	return out
}
