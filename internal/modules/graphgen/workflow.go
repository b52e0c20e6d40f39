// Package graphgen turns a free-text topic into a persisted knowledge tree by
// sequencing LLM-driven stages: analyze, generate and validate with bounded
// retries, match resources, then persist.
package graphgen

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/yungbote/knowtree-backend/internal/data/repos"
	types "github.com/yungbote/knowtree-backend/internal/domain"
	"github.com/yungbote/knowtree-backend/internal/modules/graphgen/prompts"
	"github.com/yungbote/knowtree-backend/internal/modules/knowledge/retrieval"
	"github.com/yungbote/knowtree-backend/internal/observability"
	"github.com/yungbote/knowtree-backend/internal/pkg/dbctx"
	"github.com/yungbote/knowtree-backend/internal/platform/llm"
	"github.com/yungbote/knowtree-backend/internal/platform/logger"
)

var (
	ErrEmptyInput      = errors.New("user input is required")
	ErrNoTree          = errors.New("failed to parse tree JSON from LLM response")
	ErrGraphNotFound   = errors.New("graph not found")
	ErrNodeNotFound    = errors.New("node not found")
	ErrMaxDepthReached = errors.New("node is already at the maximum depth")
)

// LLM is the completion capability the workflow needs; *llm.Gateway satisfies it.
type LLM interface {
	Complete(ctx context.Context, provider string, messages []llm.Message, opts llm.Options) (llm.Completion, error)
}

type Retriever interface {
	Retrieve(ctx context.Context, query string, kbIDs []uuid.UUID, topK int) []retrieval.Result
}

type KBAccess interface {
	AccessibleIDs(dbc dbctx.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

// GraphMirror receives a copy of every persisted tree. Failures are logged only.
type GraphMirror interface {
	SyncGraph(ctx context.Context, graph *types.KnowledgeGraph, nodes []*types.GraphNode) error
}

type Deps struct {
	DB            *gorm.DB
	Log           *logger.Logger
	LLM           LLM
	Prompts       *prompts.Registry
	Graphs        repos.KnowledgeGraphRepo
	Nodes         repos.GraphNodeRepo
	NodeResources repos.NodeResourceRepo
	Topics        repos.TopicRepo
	Resources     repos.ResourceRepo

	// Optional collaborators.
	KBs       KBAccess
	Retriever Retriever
	Mirror    GraphMirror

	Defaults         Config
	MatchConcurrency int
}

type Workflow struct {
	db            *gorm.DB
	log           *logger.Logger
	llm           LLM
	prompts       *prompts.Registry
	graphs        repos.KnowledgeGraphRepo
	nodes         repos.GraphNodeRepo
	nodeResources repos.NodeResourceRepo
	topics        repos.TopicRepo
	resources     repos.ResourceRepo
	kbs           KBAccess
	retriever     Retriever
	mirror        GraphMirror
	defaults      Config
	matchLimit    int
}

func New(d Deps) (*Workflow, error) {
	if d.DB == nil || d.Log == nil || d.LLM == nil || d.Graphs == nil || d.Nodes == nil ||
		d.NodeResources == nil || d.Topics == nil || d.Resources == nil {
		return nil, fmt.Errorf("graphgen: missing deps")
	}
	if d.Prompts == nil {
		p, err := prompts.Default()
		if err != nil {
			return nil, fmt.Errorf("graphgen: load prompts: %w", err)
		}
		d.Prompts = p
	}
	if d.Defaults == (Config{}) {
		d.Defaults = DefaultConfig()
	}
	if d.MatchConcurrency <= 0 {
		d.MatchConcurrency = 4
	}
	return &Workflow{
		db:            d.DB,
		log:           d.Log.With("service", "GraphWorkflow"),
		llm:           d.LLM,
		prompts:       d.Prompts,
		graphs:        d.Graphs,
		nodes:         d.Nodes,
		nodeResources: d.NodeResources,
		topics:        d.Topics,
		resources:     d.Resources,
		kbs:           d.KBs,
		retriever:     d.Retriever,
		mirror:        d.Mirror,
		defaults:      d.Defaults,
		matchLimit:    d.MatchConcurrency,
	}, nil
}

// Defaults returns the configuration runs start from.
func (w *Workflow) Defaults() Config { return w.defaults }

type RunOptions struct {
	UserID        uuid.UUID
	Provider      string
	Config        *Overrides
	ParentContext *ParentContext
	// GraphID targets an existing graph; required when ParentContext is set.
	GraphID    uuid.UUID
	OnProgress ProgressFunc
}

type Result struct {
	GraphID uuid.UUID `json:"graphId"`
	State   *State    `json:"state"`
}

// Run drives one generation or expansion to completion. Persistence happens
// at most once per call; calling Run again always inserts new rows.
func (w *Workflow) Run(ctx context.Context, userInput string, opts RunOptions) (*Result, error) {
	userInput = strings.TrimSpace(userInput)
	if userInput == "" {
		return nil, ErrEmptyInput
	}
	if opts.ParentContext != nil && opts.GraphID == uuid.Nil {
		return nil, fmt.Errorf("expansion requires a graph id")
	}

	st := &State{
		UserInput:       userInput,
		Config:          Merge(w.defaults, opts.Config),
		ParentContext:   opts.ParentContext,
		GraphID:         opts.GraphID,
		UserID:          opts.UserID,
		Provider:        strings.TrimSpace(opts.Provider),
		ResourceMatches: []ResourceMatch{},
		CurrentStep:     StepInit,
	}
	emit := monotonic(opts.OnProgress)

	mode := "generate"
	if st.expanding() {
		mode = "expand"
	}
	ctx, span := observability.StartSpan(ctx, "graphgen.run",
		attribute.String("graphgen.mode", mode),
		attribute.String("graphgen.provider", st.Provider),
	)
	log := w.log.With("mode", mode, "user_id", st.UserID.String())
	log.Info("Graph workflow started", "input", userInput, "graph_id", st.GraphID.String())

	err := w.run(ctx, st, emit, log)
	observability.EndSpan(span, err)
	if err != nil {
		st.Error = err.Error()
		log.Error("Graph workflow failed", "step", st.CurrentStep, "error", err)
		if st.createdGraph && st.GraphID != uuid.Nil {
			if uerr := w.graphs.UpdateFields(dbctx.New(context.WithoutCancel(ctx)), st.GraphID, map[string]interface{}{
				"status": types.GraphStatusFailed,
			}); uerr != nil {
				log.Warn("Failed to mark graph failed", "graph_id", st.GraphID.String(), "error", uerr)
			}
		}
		observability.Current().ObserveWorkflowRun(mode, "error")
		emit(Event{Step: StepError, Progress: 0, Message: "generation failed: " + err.Error()})
		return nil, err
	}

	observability.Current().ObserveWorkflowRun(mode, "success")
	emit(Event{
		Step:     StepComplete,
		Progress: 100,
		Message:  "knowledge graph ready",
		Data:     map[string]any{"graphId": st.GraphID.String(), "nodeCount": st.NodeCount, "maxDepth": st.MaxDepth},
	})
	st.CurrentStep = StepComplete
	log.Info("Graph workflow completed", "graph_id", st.GraphID.String(), "node_count", st.NodeCount, "retries", st.RetryCount)
	return &Result{GraphID: st.GraphID, State: st}, nil
}

func (w *Workflow) run(ctx context.Context, st *State, emit ProgressFunc, log *logger.Logger) error {
	emit(Event{Step: StepAnalyzeInput, Progress: 15, Message: "analyzing knowledge domain"})
	if err := w.stage(ctx, st, StepAnalyzeInput, func(ctx context.Context) error {
		return w.analyzeInput(ctx, st, log)
	}); err != nil {
		return err
	}

	if w.wantsContext(st) {
		emit(Event{Step: StepRetrieveContext, Progress: 20, Message: "retrieving reference passages"})
		_ = w.stage(ctx, st, StepRetrieveContext, func(ctx context.Context) error {
			w.retrieveContext(ctx, st, log)
			return nil
		})
	}

	if err := w.generateAndValidate(ctx, st, emit, log); err != nil {
		return err
	}

	emit(Event{Step: StepMatchResources, Progress: 70, Message: "matching learning resources"})
	_ = w.stage(ctx, st, StepMatchResources, func(ctx context.Context) error {
		w.matchResources(ctx, st, log)
		return nil
	})

	emit(Event{Step: StepPersistGraph, Progress: 90, Message: "saving knowledge graph"})
	return w.stage(ctx, st, StepPersistGraph, func(ctx context.Context) error {
		return w.persist(ctx, st, log)
	})
}

// stage runs fn inside a span named after step and records its duration.
func (w *Workflow) stage(ctx context.Context, st *State, step string, fn func(context.Context) error) error {
	st.CurrentStep = step
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "graphgen."+step)
	err := fn(ctx)
	observability.EndSpan(span, err)
	status := "ok"
	if err != nil {
		status = "error"
	}
	observability.Current().ObserveWorkflowStage(step, status, time.Since(start))
	return err
}

func (w *Workflow) complete(ctx context.Context, st *State, p prompts.Prompt) (llm.Completion, error) {
	c, err := w.llm.Complete(ctx, st.Provider, p.Messages, p.Options)
	if err != nil {
		return llm.Completion{}, err
	}
	if st.LLMProvider == "" {
		st.LLMProvider = c.Provider
		st.LLMModel = c.Model
	}
	return c, nil
}
