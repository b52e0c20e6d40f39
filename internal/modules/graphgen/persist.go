package graphgen

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/knowtree-backend/internal/domain"
	"github.com/yungbote/knowtree-backend/internal/modules/graphgen/tree"
	"github.com/yungbote/knowtree-backend/internal/pkg/dbctx"
	"github.com/yungbote/knowtree-backend/internal/platform/logger"
)

func (w *Workflow) persist(ctx context.Context, st *State, log *logger.Logger) error {
	if st.Tree == nil || st.Analysis == nil {
		return errors.New("no tree data to persist")
	}
	if !st.expanding() {
		if err := w.createGraph(ctx, st); err != nil {
			return err
		}
	}

	rows := buildNodeRows(st)
	var graph *types.KnowledgeGraph
	err := w.db.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: txx}
		if len(rows) > 0 {
			if _, err := w.nodes.Create(dbc, rows); err != nil {
				return fmt.Errorf("create nodes: %w", err)
			}
		}
		st.NodeIDs = make(map[string]uuid.UUID, len(rows))
		for _, n := range rows {
			st.NodeIDs[n.NodeKey] = n.ID
		}
		if err := w.linkResources(dbc, st); err != nil {
			return err
		}

		updates := map[string]interface{}{"status": types.GraphStatusCompleted}
		if st.expanding() {
			if err := w.nodes.MarkExpanded(dbc, st.ParentContext.NodeID); err != nil {
				return fmt.Errorf("mark expanded: %w", err)
			}
			count, err := w.nodes.CountByGraph(dbc, st.GraphID)
			if err != nil {
				return err
			}
			depth, err := w.nodes.MaxDepthByGraph(dbc, st.GraphID)
			if err != nil {
				return err
			}
			st.NodeCount, st.MaxDepth = int(count), depth
		} else {
			st.NodeCount = len(rows)
			st.MaxDepth = 0
			for _, n := range rows {
				st.MaxDepth = max(st.MaxDepth, n.DepthLevel)
			}
		}
		updates["node_count"] = st.NodeCount
		updates["max_depth"] = st.MaxDepth
		if err := w.graphs.UpdateFields(dbc, st.GraphID, updates); err != nil {
			return fmt.Errorf("update graph: %w", err)
		}
		g, err := w.graphs.GetByID(dbc, st.GraphID)
		if err != nil {
			return err
		}
		graph = g
		return nil
	})
	if err != nil {
		return err
	}
	log.Info("Graph persisted", "graph_id", st.GraphID.String(), "new_nodes", len(rows), "node_count", st.NodeCount)

	if w.mirror != nil && graph != nil {
		if merr := w.mirror.SyncGraph(ctx, graph, rows); merr != nil {
			log.Warn("Graph mirror sync failed", "graph_id", st.GraphID.String(), "error", merr)
		}
	}
	return nil
}

// createGraph registers the topic and a graph in the generating state. It
// commits on its own so a failed run can still be marked failed afterwards.
func (w *Workflow) createGraph(ctx context.Context, st *State) error {
	dbc := dbctx.New(ctx)
	topic, err := w.topics.FindOrCreate(dbc, st.UserInput, st.Analysis.Domain)
	if err != nil {
		return fmt.Errorf("find topic: %w", err)
	}
	if err := w.topics.IncrementSearchCount(dbc, topic.ID); err != nil {
		return fmt.Errorf("count topic search: %w", err)
	}

	provider := st.LLMProvider
	if provider == "" {
		provider = st.Provider
	}
	g := &types.KnowledgeGraph{
		TopicID:     &topic.ID,
		Title:       st.Tree.Label,
		Summary:     st.Analysis.Scope,
		Status:      types.GraphStatusGenerating,
		LLMProvider: provider,
		LLMModel:    st.LLMModel,
	}
	if st.UserID != uuid.Nil {
		uid := st.UserID
		g.CreatedBy = &uid
	}
	if err := w.graphs.Create(dbc, g); err != nil {
		return fmt.Errorf("create graph: %w", err)
	}
	st.GraphID = g.ID
	st.createdGraph = true
	return nil
}

// buildNodeRows flattens the tree into rows in pre-order with ids assigned up
// front. On expansion the tree root is the existing parent node and is skipped.
func buildNodeRows(st *State) []*types.GraphNode {
	var rows []*types.GraphNode
	var add func(n *tree.Node, parentID *uuid.UUID, depth, order int)
	add = func(n *tree.Node, parentID *uuid.UUID, depth, order int) {
		row := &types.GraphNode{
			ID:           uuid.New(),
			GraphID:      st.GraphID,
			ParentID:     parentID,
			NodeKey:      n.Key,
			Label:        n.Label,
			Description:  n.Description,
			NodeType:     nodeType(n, parentID == nil),
			DepthLevel:   depth,
			SortOrder:    order,
			IsExpandable: n.IsExpandable,
			IsExpanded:   len(n.Children) > 0,
		}
		rows = append(rows, row)
		id := row.ID
		for i, c := range n.Children {
			add(c, &id, depth+1, i)
		}
	}

	if st.expanding() {
		parentID := st.ParentContext.NodeID
		for i, c := range st.Tree.Children {
			add(c, &parentID, st.ParentContext.DepthLevel+1, i)
		}
		return rows
	}
	add(st.Tree, nil, 0, 0)
	return rows
}

func nodeType(n *tree.Node, isRoot bool) string {
	switch {
	case isRoot:
		return types.NodeTypeRoot
	case n.Type == tree.TypeBranch || n.Type == tree.TypeLeaf:
		return n.Type
	case len(n.Children) > 0:
		return types.NodeTypeBranch
	default:
		return types.NodeTypeLeaf
	}
}

// linkResources writes the matched resources of nodes created by this run.
// The first resource of each match is the primary one.
func (w *Workflow) linkResources(dbc dbctx.Context, st *State) error {
	var links []*types.NodeResource
	for _, m := range st.ResourceMatches {
		nodeID, ok := st.NodeIDs[m.NodeKey]
		if !ok {
			continue
		}
		for i, r := range m.Resources {
			links = append(links, &types.NodeResource{
				NodeID:         nodeID,
				ResourceID:     r.ResourceID,
				RelevanceScore: r.RelevanceScore,
				IsPrimary:      i == 0,
			})
		}
	}
	if len(links) == 0 {
		return nil
	}
	if _, err := w.nodeResources.Create(dbc, links); err != nil {
		return fmt.Errorf("link resources: %w", err)
	}
	return nil
}
