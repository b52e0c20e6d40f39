package graphgen

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	types "github.com/yungbote/knowtree-backend/internal/domain"
	"github.com/yungbote/knowtree-backend/internal/pkg/dbctx"
)

const defaultExpandDepth = 2

type ExpandRequest struct {
	GraphID    uuid.UUID
	NodeID     uuid.UUID
	Depth      int
	UserID     uuid.UUID
	Provider   string
	OnProgress ProgressFunc
}

type ExpandResult struct {
	GraphID  uuid.UUID          `json:"graphId"`
	NodeID   uuid.UUID          `json:"nodeId"`
	Children []*types.GraphNode `json:"children"`
	State    *State             `json:"state"`
}

// Expand grows the subtree under an existing node. Only newly created direct
// children are returned; deeper descendants are reachable through them.
func (w *Workflow) Expand(ctx context.Context, req ExpandRequest) (*ExpandResult, error) {
	dbc := dbctx.New(ctx)
	graph, err := w.graphs.GetByID(dbc, req.GraphID)
	if err != nil {
		return nil, err
	}
	if graph == nil {
		return nil, ErrGraphNotFound
	}
	node, err := w.nodes.GetByID(dbc, req.NodeID)
	if err != nil {
		return nil, err
	}
	if node == nil || node.GraphID != graph.ID {
		return nil, ErrNodeNotFound
	}
	if node.DepthLevel+1 >= w.defaults.MaxTotalDepth {
		return nil, ErrMaxDepthReached
	}

	path, err := w.ancestorPath(dbc, node)
	if err != nil {
		return nil, err
	}

	input := graph.Title
	if graph.TopicID != nil {
		if topic, terr := w.topics.GetByID(dbc, *graph.TopicID); terr == nil && topic != nil && topic.Name != "" {
			input = topic.Name
		}
	}

	depth := req.Depth
	if depth <= 0 {
		depth = defaultExpandDepth
	}
	res, err := w.Run(ctx, input, RunOptions{
		UserID:   req.UserID,
		Provider: req.Provider,
		Config:   &Overrides{GenerateDepth: &depth},
		GraphID:  graph.ID,
		ParentContext: &ParentContext{
			NodeID:          node.ID,
			NodeLabel:       node.Label,
			NodeDescription: node.Description,
			DepthLevel:      node.DepthLevel,
			Path:            path,
		},
		OnProgress: req.OnProgress,
	})
	if err != nil {
		return nil, err
	}

	created := make(map[uuid.UUID]bool, len(res.State.NodeIDs))
	for _, id := range res.State.NodeIDs {
		created[id] = true
	}
	children, err := w.nodes.ListChildren(dbctx.New(ctx), node.ID)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	out := make([]*types.GraphNode, 0, len(children))
	for _, c := range children {
		if created[c.ID] {
			out = append(out, c)
		}
	}
	return &ExpandResult{GraphID: graph.ID, NodeID: node.ID, Children: out, State: res.State}, nil
}

// ancestorPath returns labels from the root down to node.
func (w *Workflow) ancestorPath(dbc dbctx.Context, node *types.GraphNode) ([]string, error) {
	path := []string{node.Label}
	seen := map[uuid.UUID]bool{node.ID: true}
	cur := node
	for cur.ParentID != nil && !seen[*cur.ParentID] {
		parent, err := w.nodes.GetByID(dbc, *cur.ParentID)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			break
		}
		seen[parent.ID] = true
		path = append([]string{parent.Label}, path...)
		cur = parent
	}
	return path, nil
}
