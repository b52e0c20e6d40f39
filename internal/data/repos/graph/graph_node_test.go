package graph

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/knowtree-backend/internal/data/repos/testutil"
	types "github.com/yungbote/knowtree-backend/internal/domain"
	"github.com/yungbote/knowtree-backend/internal/pkg/dbctx"
)

func TestGraphNodeRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	graphs := NewKnowledgeGraphRepo(db, testutil.Logger(t))
	nodes := NewGraphNodeRepo(db, testutil.Logger(t))

	g := &types.KnowledgeGraph{Title: "g", Status: types.GraphStatusGenerating}
	if err := graphs.Create(dbc, g); err != nil {
		t.Fatalf("Create graph: %v", err)
	}

	root := &types.GraphNode{GraphID: g.ID, NodeKey: "root", Label: "Root", NodeType: types.NodeTypeRoot}
	if _, err := nodes.Create(dbc, []*types.GraphNode{root}); err != nil {
		t.Fatalf("Create root: %v", err)
	}
	children := []*types.GraphNode{
		{GraphID: g.ID, ParentID: &root.ID, NodeKey: "b", Label: "B", NodeType: types.NodeTypeLeaf, DepthLevel: 1, SortOrder: 1},
		{GraphID: g.ID, ParentID: &root.ID, NodeKey: "a", Label: "A", NodeType: types.NodeTypeLeaf, DepthLevel: 1, SortOrder: 0},
	}
	if _, err := nodes.Create(dbc, children); err != nil {
		t.Fatalf("Create children: %v", err)
	}

	got, err := nodes.ListChildren(dbc, root.ID)
	if err != nil {
		t.Fatalf("ListChildren: %v", err)
	}
	if len(got) != 2 || got[0].NodeKey != "a" || got[1].NodeKey != "b" {
		t.Fatalf("ListChildren order: got=%v", got)
	}

	all, err := nodes.ListByGraph(dbc, g.ID)
	if err != nil {
		t.Fatalf("ListByGraph: %v", err)
	}
	if len(all) != 3 || all[0].ID != root.ID {
		t.Fatalf("ListByGraph: want root first of 3 got=%d", len(all))
	}

	n, err := nodes.CountByGraph(dbc, g.ID)
	if err != nil || n != 3 {
		t.Fatalf("CountByGraph: want=3 got=%d err=%v", n, err)
	}
	depth, err := nodes.MaxDepthByGraph(dbc, g.ID)
	if err != nil || depth != 1 {
		t.Fatalf("MaxDepthByGraph: want=1 got=%d err=%v", depth, err)
	}

	if err := nodes.MarkExpanded(dbc, root.ID); err != nil {
		t.Fatalf("MarkExpanded: %v", err)
	}
	reloaded, err := nodes.GetByID(dbc, root.ID)
	if err != nil || reloaded == nil || !reloaded.IsExpanded {
		t.Fatalf("GetByID after MarkExpanded: got=%+v err=%v", reloaded, err)
	}

	missing, err := nodes.GetByID(dbc, uuid.New())
	if err != nil || missing != nil {
		t.Fatalf("GetByID missing: want nil got=%v err=%v", missing, err)
	}

	if err := graphs.UpdateFields(dbc, g.ID, map[string]interface{}{"status": types.GraphStatusCompleted, "node_count": 3}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	gg, err := graphs.GetByID(dbc, g.ID)
	if err != nil || gg.Status != types.GraphStatusCompleted || gg.NodeCount != 3 {
		t.Fatalf("GetByID graph: got=%+v err=%v", gg, err)
	}
}

func TestNodeResourceRepoSkipsDuplicates(t *testing.T) {
	db := testutil.DB(t)
	dbc := dbctx.New(context.Background())
	repo := NewNodeResourceRepo(db, testutil.Logger(t))

	nodeID, resID := uuid.New(), uuid.New()
	if _, err := repo.Create(dbc, []*types.NodeResource{{NodeID: nodeID, ResourceID: resID, RelevanceScore: 0.9, IsPrimary: true}}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := repo.Create(dbc, []*types.NodeResource{{NodeID: nodeID, ResourceID: resID, RelevanceScore: 0.5}}); err != nil {
		t.Fatalf("Create duplicate: %v", err)
	}
	rows, err := repo.ListByNodeIDs(dbc, []uuid.UUID{nodeID})
	if err != nil {
		t.Fatalf("ListByNodeIDs: %v", err)
	}
	if len(rows) != 1 || rows[0].RelevanceScore != 0.9 {
		t.Fatalf("ListByNodeIDs: want single original row got=%+v", rows)
	}
}
