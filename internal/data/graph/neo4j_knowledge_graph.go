// Package graph mirrors persisted knowledge trees into Neo4j for traversal
// queries. The relational store stays the system of record.
package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	types "github.com/yungbote/knowtree-backend/internal/domain"
	"github.com/yungbote/knowtree-backend/internal/platform/logger"
	"github.com/yungbote/knowtree-backend/internal/platform/neo4jdb"
)

type KnowledgeGraphMirror struct {
	client *neo4jdb.Client
	log    *logger.Logger
}

// NewKnowledgeGraphMirror returns nil when client is nil so callers can pass
// the result straight into optional wiring.
func NewKnowledgeGraphMirror(client *neo4jdb.Client, log *logger.Logger) *KnowledgeGraphMirror {
	if client == nil || client.Driver == nil {
		return nil
	}
	return &KnowledgeGraphMirror{client: client, log: log.With("service", "KnowledgeGraphMirror")}
}

type syncPayload struct {
	Graph map[string]any
	Nodes []map[string]any
	// Roots link the graph to its root node; Children link parent to child.
	Roots    []map[string]any
	Children []map[string]any
}

func buildSyncPayload(g *types.KnowledgeGraph, nodes []*types.GraphNode, now string) (*syncPayload, error) {
	if g == nil || g.ID == uuid.Nil {
		return nil, fmt.Errorf("neo4j knowledge graph sync: missing graph")
	}
	topicID := ""
	if g.TopicID != nil {
		topicID = g.TopicID.String()
	}
	p := &syncPayload{
		Graph: map[string]any{
			"id":         g.ID.String(),
			"topic_id":   topicID,
			"title":      g.Title,
			"summary":    g.Summary,
			"status":     g.Status,
			"node_count": int64(g.NodeCount),
			"max_depth":  int64(g.MaxDepth),
			"synced_at":  now,
		},
	}
	for _, n := range nodes {
		if n == nil || n.ID == uuid.Nil {
			continue
		}
		p.Nodes = append(p.Nodes, map[string]any{
			"id":            n.ID.String(),
			"graph_id":      g.ID.String(),
			"key":           n.NodeKey,
			"label":         n.Label,
			"description":   n.Description,
			"type":          n.NodeType,
			"depth":         int64(n.DepthLevel),
			"sort_order":    int64(n.SortOrder),
			"is_expandable": n.IsExpandable,
			"synced_at":     now,
		})
		if n.ParentID == nil || *n.ParentID == uuid.Nil {
			p.Roots = append(p.Roots, map[string]any{"graph_id": g.ID.String(), "node_id": n.ID.String()})
			continue
		}
		p.Children = append(p.Children, map[string]any{
			"parent_id":  n.ParentID.String(),
			"child_id":   n.ID.String(),
			"sort_order": int64(n.SortOrder),
		})
	}
	return p, nil
}

// SyncGraph merges the graph and the given nodes. Parents of new nodes may
// come from an earlier sync, so CHILD edges match on existing nodes.
func (m *KnowledgeGraphMirror) SyncGraph(ctx context.Context, g *types.KnowledgeGraph, nodes []*types.GraphNode) error {
	if m == nil {
		return nil
	}
	p, err := buildSyncPayload(g, nodes, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return err
	}

	session := m.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: m.client.Database,
	})
	defer session.Close(ctx)

	for _, stmt := range []string{
		`CREATE CONSTRAINT knowledge_graph_id_unique IF NOT EXISTS FOR (g:KnowledgeGraph) REQUIRE g.id IS UNIQUE`,
		`CREATE CONSTRAINT graph_node_id_unique IF NOT EXISTS FOR (n:GraphNode) REQUIRE n.id IS UNIQUE`,
	} {
		if res, err := session.Run(ctx, stmt, nil); err != nil {
			m.log.Warn("neo4j schema init failed (continuing)", "error", err)
		} else {
			_, _ = res.Consume(ctx)
		}
	}

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		run := func(cypher string, params map[string]any) error {
			res, err := tx.Run(ctx, cypher, params)
			if err != nil {
				return err
			}
			_, err = res.Consume(ctx)
			return err
		}
		if err := run(`
MERGE (g:KnowledgeGraph {id: $graph.id})
SET g += $graph
`, map[string]any{"graph": p.Graph}); err != nil {
			return nil, err
		}
		if len(p.Nodes) > 0 {
			if err := run(`
UNWIND $nodes AS n
MERGE (x:GraphNode {id: n.id})
SET x += n
`, map[string]any{"nodes": p.Nodes}); err != nil {
				return nil, err
			}
		}
		if len(p.Roots) > 0 {
			if err := run(`
UNWIND $rels AS r
MATCH (g:KnowledgeGraph {id: r.graph_id})
MATCH (n:GraphNode {id: r.node_id})
MERGE (g)-[:HAS_ROOT]->(n)
`, map[string]any{"rels": p.Roots}); err != nil {
				return nil, err
			}
		}
		if len(p.Nodes) > 0 {
			if err := run(`
UNWIND $nodes AS n
MATCH (g:KnowledgeGraph {id: n.graph_id})
MATCH (x:GraphNode {id: n.id})
MERGE (g)-[:HAS_NODE]->(x)
`, map[string]any{"nodes": p.Nodes}); err != nil {
				return nil, err
			}
		}
		if len(p.Children) > 0 {
			if err := run(`
UNWIND $rels AS r
MATCH (a:GraphNode {id: r.parent_id})
MATCH (b:GraphNode {id: r.child_id})
MERGE (a)-[e:CHILD]->(b)
SET e.sort_order = r.sort_order
`, map[string]any{"rels": p.Children}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("neo4j knowledge graph sync: %w", err)
	}
	m.log.Info("Knowledge graph mirrored", "graph_id", g.ID.String(), "nodes", len(p.Nodes))
	return nil
}
