package graphgen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/knowtree-backend/internal/data/repos"
	"github.com/yungbote/knowtree-backend/internal/data/repos/testutil"
	types "github.com/yungbote/knowtree-backend/internal/domain"
	"github.com/yungbote/knowtree-backend/internal/modules/graphgen/tree"
	"github.com/yungbote/knowtree-backend/internal/pkg/dbctx"
	"github.com/yungbote/knowtree-backend/internal/platform/llm"
)

// scriptedLLM answers by prompt kind. Tree responses are consumed in order;
// the last one repeats once the script runs out.
type scriptedLLM struct {
	mu       sync.Mutex
	analysis string
	trees    []string
	match    func(user string) string
	calls    map[string]int
}

func (s *scriptedLLM) Complete(_ context.Context, _ string, msgs []llm.Message, _ llm.Options) (llm.Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = map[string]int{}
	}
	system, user := msgs[0].Content, msgs[len(msgs)-1].Content
	out := llm.Completion{Provider: "fake", Model: "fake-1"}
	switch {
	case strings.Contains(system, "classifying"):
		s.calls["analyze"]++
		out.Content = s.analysis
	case strings.Contains(system, "structuring"):
		i := s.calls["tree"]
		s.calls["tree"]++
		if i >= len(s.trees) {
			i = len(s.trees) - 1
		}
		out.Content = s.trees[i]
	case strings.Contains(system, "matching"):
		s.calls["match"]++
		if s.match != nil {
			out.Content = s.match(user)
		}
	default:
		return llm.Completion{}, errors.New("unexpected prompt")
	}
	return out, nil
}

func (s *scriptedLLM) count(kind string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[kind]
}

const csAnalysis = `{"domain":"computer science","scope":"supervised learning basics","difficulty":"Beginner"}`

// treeJSON renders a root with the given number of branches and leaves per branch.
func treeJSON(t *testing.T, rootLabel string, branches, leaves int) string {
	t.Helper()
	root := &tree.Node{Key: "root", Label: rootLabel, Type: tree.TypeRoot, IsExpandable: true}
	for b := 0; b < branches; b++ {
		br := &tree.Node{Key: fmt.Sprintf("b%d", b), Label: fmt.Sprintf("Branch %d", b), Type: tree.TypeBranch, IsExpandable: true}
		for l := 0; l < leaves; l++ {
			br.Children = append(br.Children, &tree.Node{
				Key:          fmt.Sprintf("b%d_l%d", b, l),
				Label:        fmt.Sprintf("Leaf %d.%d", b, l),
				Type:         tree.TypeLeaf,
				IsExpandable: true,
			})
		}
		root.Children = append(root.Children, br)
	}
	raw, err := json.Marshal(root)
	if err != nil {
		t.Fatalf("marshal tree: %v", err)
	}
	return string(raw)
}

type harness struct {
	db    *gorm.DB
	wf    *Workflow
	llm   *scriptedLLM
	deps  Deps
	nodes repos.GraphNodeRepo
}

func newHarness(t *testing.T, fake *scriptedLLM, tweak func(*Deps)) *harness {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	d := Deps{
		DB:            db,
		Log:           log,
		LLM:           fake,
		Graphs:        repos.NewKnowledgeGraphRepo(db, log),
		Nodes:         repos.NewGraphNodeRepo(db, log),
		NodeResources: repos.NewNodeResourceRepo(db, log),
		Topics:        repos.NewTopicRepo(db, log),
		Resources:     repos.NewResourceRepo(db, log),
	}
	if tweak != nil {
		tweak(&d)
	}
	wf, err := New(d)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &harness{db: db, wf: wf, llm: fake, deps: d, nodes: d.Nodes}
}

func (h *harness) graph(t *testing.T, id uuid.UUID) *types.KnowledgeGraph {
	t.Helper()
	g, err := h.deps.Graphs.GetByID(dbctx.New(context.Background()), id)
	if err != nil || g == nil {
		t.Fatalf("load graph %s: %v", id, err)
	}
	return g
}

func TestRunPersistsSeventeenNodeTree(t *testing.T) {
	fake := &scriptedLLM{analysis: csAnalysis}
	h := newHarness(t, fake, nil)
	fake.trees = []string{treeJSON(t, "Supervised Learning", 4, 3)}

	ctx := context.Background()
	res0 := testutil.SeedResource(t, ctx, h.db, "intro", "computer science", 0.9, "branch")
	fake.match = func(string) string {
		return fmt.Sprintf(`{"matches":[{"resourceId":%q,"relevanceScore":0.8},{"resourceId":%q,"relevanceScore":0.95},{"resourceId":%q,"relevanceScore":0.1}]}`,
			res0.ID, uuid.New(), res0.ID)
	}

	var events []Event
	userID := uuid.New()
	res, err := h.wf.Run(ctx, "supervised learning", RunOptions{
		UserID:     userID,
		OnProgress: func(e Event) { events = append(events, e) },
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	wantSteps := []string{StepAnalyzeInput, StepGenerateTree, StepValidateTree, StepMatchResources, StepPersistGraph, StepComplete}
	if len(events) != len(wantSteps) {
		t.Fatalf("events: want=%d got=%d (%+v)", len(wantSteps), len(events), events)
	}
	for i, e := range events {
		if e.Step != wantSteps[i] {
			t.Fatalf("event %d: want=%s got=%s", i, wantSteps[i], e.Step)
		}
		if i > 0 && e.Progress < events[i-1].Progress {
			t.Fatalf("progress went backwards at %s: %d < %d", e.Step, e.Progress, events[i-1].Progress)
		}
	}
	last := events[len(events)-1]
	if last.Progress != 100 || last.Data["graphId"] != res.GraphID.String() {
		t.Fatalf("complete event: want graphId=%s got=%+v", res.GraphID, last)
	}

	st := res.State
	if st.RetryCount != 0 || !st.Validation.IsValid {
		t.Fatalf("validation: want valid first attempt got retries=%d verdict=%+v", st.RetryCount, st.Validation)
	}
	if st.Analysis.Difficulty != DifficultyBeginner {
		t.Fatalf("difficulty: want=%s got=%s", DifficultyBeginner, st.Analysis.Difficulty)
	}

	g := h.graph(t, res.GraphID)
	if g.Status != types.GraphStatusCompleted || g.NodeCount != 17 || g.MaxDepth != 2 {
		t.Fatalf("graph: want completed/17/2 got %s/%d/%d", g.Status, g.NodeCount, g.MaxDepth)
	}
	if g.Title != "Supervised Learning" || g.CreatedBy == nil || *g.CreatedBy != userID || g.LLMProvider != "fake" {
		t.Fatalf("graph metadata: got %+v", g)
	}

	rows, err := h.nodes.ListByGraph(dbctx.New(ctx), res.GraphID)
	if err != nil {
		t.Fatalf("ListByGraph: %v", err)
	}
	if len(rows) != 17 {
		t.Fatalf("rows: want=17 got=%d", len(rows))
	}
	if rows[0].ParentID != nil || rows[0].NodeType != types.NodeTypeRoot || !rows[0].IsExpanded {
		t.Fatalf("root row: got %+v", rows[0])
	}

	// Only branch labels share the "branch" tag, and only the known
	// resource above the relevance floor survives.
	if got := fake.count("match"); got != 4 {
		t.Fatalf("match calls: want=4 got=%d", got)
	}
	if len(st.ResourceMatches) != 4 {
		t.Fatalf("resource matches: want=4 got=%d", len(st.ResourceMatches))
	}
	ids := make([]uuid.UUID, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	links, err := h.deps.NodeResources.ListByNodeIDs(dbctx.New(ctx), ids)
	if err != nil {
		t.Fatalf("ListByNodeIDs: %v", err)
	}
	if len(links) != 4 {
		t.Fatalf("links: want=4 got=%d", len(links))
	}
	for _, l := range links {
		if l.ResourceID != res0.ID || !l.IsPrimary || l.RelevanceScore != 0.8 {
			t.Fatalf("link: got %+v", l)
		}
	}
}

func TestRunRetriesUnparseableTree(t *testing.T) {
	fake := &scriptedLLM{analysis: csAnalysis}
	h := newHarness(t, fake, nil)
	fake.trees = []string{"I cannot do that", "still prose", treeJSON(t, "Topic", 2, 1)}

	var events []Event
	res, err := h.wf.Run(context.Background(), "topic", RunOptions{
		OnProgress: func(e Event) { events = append(events, e) },
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State.RetryCount != 2 {
		t.Fatalf("RetryCount: want=2 got=%d", res.State.RetryCount)
	}
	if res.State.NodeCount != 5 || res.State.Error != "" {
		t.Fatalf("state: want 5 nodes and no error got %d %q", res.State.NodeCount, res.State.Error)
	}
	if got := fake.count("tree"); got != 3 {
		t.Fatalf("tree calls: want=3 got=%d", got)
	}
	for i := 1; i < len(events); i++ {
		if events[i].Progress < events[i-1].Progress {
			t.Fatalf("progress went backwards at %d: %+v", i, events)
		}
	}
}

func TestRunProceedsWithLastInvalidTree(t *testing.T) {
	fake := &scriptedLLM{analysis: csAnalysis}
	h := newHarness(t, fake, nil)
	// Two nodes never satisfies the minimum.
	fake.trees = []string{treeJSON(t, "Tiny", 1, 0)}

	res, err := h.wf.Run(context.Background(), "tiny", RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State.RetryCount != 3 || res.State.Validation.IsValid {
		t.Fatalf("want 3 failed validations got retries=%d verdict=%+v", res.State.RetryCount, res.State.Validation)
	}
	if res.State.NodeCount != 2 {
		t.Fatalf("NodeCount: want=2 got=%d", res.State.NodeCount)
	}
}

func TestRunFailsWhenNoTreeParses(t *testing.T) {
	fake := &scriptedLLM{analysis: "not json", trees: []string{"nope"}}
	h := newHarness(t, fake, nil)

	var events []Event
	_, err := h.wf.Run(context.Background(), "topic", RunOptions{
		OnProgress: func(e Event) { events = append(events, e) },
	})
	if !errors.Is(err, ErrNoTree) {
		t.Fatalf("err: want=%v got=%v", ErrNoTree, err)
	}
	last := events[len(events)-1]
	if last.Step != StepError || last.Progress != 0 || !strings.Contains(last.Message, ErrNoTree.Error()) {
		t.Fatalf("error event: got %+v", last)
	}
	var graphs int64
	if err := h.db.Model(&types.KnowledgeGraph{}).Count(&graphs).Error; err != nil {
		t.Fatalf("count graphs: %v", err)
	}
	if graphs != 0 {
		t.Fatalf("graphs: want=0 got=%d", graphs)
	}
}

type failingLinks struct {
	repos.NodeResourceRepo
}

func (failingLinks) Create(dbctx.Context, []*types.NodeResource) ([]*types.NodeResource, error) {
	return nil, errors.New("disk full")
}

func TestRunMarksCreatedGraphFailed(t *testing.T) {
	fake := &scriptedLLM{analysis: csAnalysis}
	h := newHarness(t, fake, func(d *Deps) { d.NodeResources = failingLinks{} })
	fake.trees = []string{treeJSON(t, "Topic", 2, 1)}

	res0 := testutil.SeedResource(t, context.Background(), h.db, "r", "computer science", 0.5, "branch")
	fake.match = func(string) string {
		return fmt.Sprintf(`{"matches":[{"resourceId":%q,"relevanceScore":0.9}]}`, res0.ID)
	}

	_, err := h.wf.Run(context.Background(), "topic", RunOptions{})
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("err: want disk full got %v", err)
	}
	var g types.KnowledgeGraph
	if err := h.db.First(&g).Error; err != nil {
		t.Fatalf("load graph: %v", err)
	}
	if g.Status != types.GraphStatusFailed {
		t.Fatalf("status: want=%s got=%s", types.GraphStatusFailed, g.Status)
	}
	var nodes int64
	h.db.Model(&types.GraphNode{}).Count(&nodes)
	if nodes != 0 {
		t.Fatalf("nodes after rollback: want=0 got=%d", nodes)
	}
}

func TestExpandAddsOnlyNewChildren(t *testing.T) {
	fake := &scriptedLLM{analysis: csAnalysis}
	h := newHarness(t, fake, nil)
	fake.trees = []string{treeJSON(t, "Supervised Learning", 4, 3)}

	ctx := context.Background()
	res, err := h.wf.Run(ctx, "supervised learning", RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	branchID := res.State.NodeIDs["b0"]

	// The expansion tree reuses keys that already exist in the graph.
	fake.trees = []string{treeJSON(t, "Branch 0", 3, 0)}
	out, err := h.wf.Expand(ctx, ExpandRequest{GraphID: res.GraphID, NodeID: branchID})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(out.Children) != 3 {
		t.Fatalf("children: want=3 got=%d", len(out.Children))
	}
	for _, c := range out.Children {
		if c.ParentID == nil || *c.ParentID != branchID || c.DepthLevel != 2 {
			t.Fatalf("child: got parent=%v depth=%d", c.ParentID, c.DepthLevel)
		}
	}
	if path := out.State.ParentContext.Path; len(path) != 2 || path[0] != "Supervised Learning" || path[1] != "Branch 0" {
		t.Fatalf("path: got %v", path)
	}

	g := h.graph(t, res.GraphID)
	if g.NodeCount != 20 || g.MaxDepth != 2 || g.Status != types.GraphStatusCompleted {
		t.Fatalf("graph: want 20/2/completed got %d/%d/%s", g.NodeCount, g.MaxDepth, g.Status)
	}
	all, err := h.nodes.ListByGraph(dbctx.New(ctx), res.GraphID)
	if err != nil {
		t.Fatalf("ListByGraph: %v", err)
	}
	if len(all) != 20 {
		t.Fatalf("rows: want=20 got=%d", len(all))
	}
	roots := 0
	for _, n := range all {
		if n.ParentID == nil {
			roots++
		}
	}
	if roots != 1 {
		t.Fatalf("roots: want=1 got=%d", roots)
	}
}

func TestExpandRejectsDeepAndUnknownNodes(t *testing.T) {
	fake := &scriptedLLM{analysis: csAnalysis}
	h := newHarness(t, fake, func(d *Deps) {
		d.Defaults = Config{MaxChildrenPerNode: 8, GenerateDepth: 2, MaxTotalDepth: 3, MaxTotalNodes: 50, MaxRetries: 2}
	})
	fake.trees = []string{treeJSON(t, "Root", 2, 2)}

	ctx := context.Background()
	res, err := h.wf.Run(ctx, "root", RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	_, err = h.wf.Expand(ctx, ExpandRequest{GraphID: res.GraphID, NodeID: res.State.NodeIDs["b0_l0"]})
	if !errors.Is(err, ErrMaxDepthReached) {
		t.Fatalf("leaf: want=%v got=%v", ErrMaxDepthReached, err)
	}
	_, err = h.wf.Expand(ctx, ExpandRequest{GraphID: res.GraphID, NodeID: uuid.New()})
	if !errors.Is(err, ErrNodeNotFound) {
		t.Fatalf("unknown node: want=%v got=%v", ErrNodeNotFound, err)
	}
	_, err = h.wf.Expand(ctx, ExpandRequest{GraphID: uuid.New(), NodeID: res.State.NodeIDs["b0"]})
	if !errors.Is(err, ErrGraphNotFound) {
		t.Fatalf("unknown graph: want=%v got=%v", ErrGraphNotFound, err)
	}
}

func TestRunRejectsEmptyInput(t *testing.T) {
	h := newHarness(t, &scriptedLLM{}, nil)
	if _, err := h.wf.Run(context.Background(), "   ", RunOptions{}); !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("err: want=%v got=%v", ErrEmptyInput, err)
	}
	if got := h.llm.count("analyze"); got != 0 {
		t.Fatalf("analyze calls: want=0 got=%d", got)
	}
}

func TestParseAnalysisFallback(t *testing.T) {
	got := parseAnalysis("sorry, no JSON here", "rust ownership")
	if got.Domain != FallbackDomain || got.Scope != "rust ownership" || got.Difficulty != DifficultyIntermediate {
		t.Fatalf("fallback: got %+v", got)
	}
	got = parseAnalysis("```json\n{\"domain\":\"programming\",\"difficulty\":\"expert\"}\n```", "rust ownership")
	if got.Domain != "programming" || got.Scope != "rust ownership" || got.Difficulty != DifficultyIntermediate {
		t.Fatalf("partial: got %+v", got)
	}
}

func TestParseMatchesFiltersAndRanks(t *testing.T) {
	a, b, c, d := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	known := map[uuid.UUID]bool{a: true, b: true, c: true, d: true}
	content := fmt.Sprintf(`{"matches":[
		{"resourceId":%q,"relevanceScore":0.4},
		{"resourceId":%q,"relevanceScore":0.2},
		{"resourceId":%q,"relevanceScore":0.9},
		{"resourceId":%q,"relevanceScore":0.7},
		{"resourceId":%q,"relevanceScore":0.99},
		{"resourceId":"not-a-uuid","relevanceScore":0.99},
		{"resourceId":%q,"relevanceScore":0.6}
	]}`, a, b, c, d, uuid.New(), a)

	got := parseMatches(content, known)
	if len(got) != 3 {
		t.Fatalf("len: want=3 got=%d (%+v)", len(got), got)
	}
	if got[0].ResourceID != c || got[1].ResourceID != d || got[2].ResourceID != a {
		t.Fatalf("order: got %+v", got)
	}
	if parseMatches("garbage", known) != nil {
		t.Fatalf("garbage: want nil")
	}
}

func TestTags(t *testing.T) {
	got := Tags("Linear  regression, loss，gradient、descent")
	want := []string{"Linear", "regression", "loss", "gradient", "descent"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("Tags: want=%v got=%v", want, got)
	}
}

func intp(v int) *int { return &v }

func TestMergeConfig(t *testing.T) {
	got := Merge(DefaultConfig(), &Overrides{GenerateDepth: intp(3)})
	if got.GenerateDepth != 3 || got.MaxChildrenPerNode != 8 || got.MaxRetries != 2 {
		t.Fatalf("Merge: got %+v", got)
	}

	zero := Merge(DefaultConfig(), &Overrides{MaxRetries: intp(0)})
	if zero.MaxRetries != 0 {
		t.Fatalf("Merge MaxRetries=0: want=0 got=%d", zero.MaxRetries)
	}

	clamped := Merge(DefaultConfig(), &Overrides{MaxRetries: intp(-1), MaxChildrenPerNode: intp(0), MaxTotalNodes: intp(0)})
	if clamped.MaxRetries != 0 || clamped.MaxChildrenPerNode != 1 || clamped.MaxTotalNodes != tree.DefaultMaxNodes {
		t.Fatalf("Merge clamp: got %+v", clamped)
	}

	if got := Merge(DefaultConfig(), nil); got != DefaultConfig() {
		t.Fatalf("Merge nil: want=%+v got=%+v", DefaultConfig(), got)
	}
}

func TestRunWithZeroRetriesMakesOneAttempt(t *testing.T) {
	fake := &scriptedLLM{analysis: csAnalysis}
	h := newHarness(t, fake, nil)
	fake.trees = []string{treeJSON(t, "Tiny", 1, 0)}

	res, err := h.wf.Run(context.Background(), "tiny", RunOptions{Config: &Overrides{MaxRetries: intp(0)}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := fake.count("tree"); got != 1 {
		t.Fatalf("tree calls: want=1 got=%d", got)
	}
	if res.State.Config.MaxRetries != 0 || res.State.Validation.IsValid {
		t.Fatalf("state: got config=%+v verdict=%+v", res.State.Config, res.State.Validation)
	}
}
