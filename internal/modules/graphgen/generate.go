package graphgen

import (
	"context"
	"strings"

	"github.com/yungbote/knowtree-backend/internal/modules/graphgen/prompts"
	"github.com/yungbote/knowtree-backend/internal/modules/graphgen/tree"
	"github.com/yungbote/knowtree-backend/internal/observability"
	"github.com/yungbote/knowtree-backend/internal/platform/logger"
)

const nodeBudgetHint = 25

// generateAndValidate runs up to MaxRetries+1 attempts. Parse and validation
// failures re-prompt; exhausting the budget proceeds with the last parsed
// tree. Only LLM call errors, or never parsing a tree at all, are fatal.
func (w *Workflow) generateAndValidate(ctx context.Context, st *State, emit ProgressFunc, log *logger.Logger) error {
	for attempt := 0; attempt <= st.Config.MaxRetries; attempt++ {
		msg := "generating knowledge structure"
		if attempt > 0 {
			msg = "regenerating knowledge structure"
		}
		emit(Event{Step: StepGenerateTree, Progress: generateProgress(attempt), Message: msg})

		var parsed *tree.Node
		err := w.stage(ctx, st, StepGenerateTree, func(ctx context.Context) error {
			var gerr error
			parsed, gerr = w.generateTree(ctx, st)
			return gerr
		})
		if err != nil {
			return err
		}
		if parsed == nil {
			st.RetryCount = attempt + 1
			observability.Current().IncWorkflowRetry("parse")
			log.Warn("Tree response was not valid JSON", "attempt", attempt+1)
			continue
		}
		st.Tree = parsed
		st.Error = ""

		emit(Event{Step: StepValidateTree, Progress: 55, Message: "validating knowledge structure"})
		_ = w.stage(ctx, st, StepValidateTree, func(context.Context) error {
			v := tree.Validate(st.Tree, st.Config.limits())
			st.Validation = &v
			return nil
		})
		if st.Validation.IsValid {
			return nil
		}
		st.RetryCount = attempt + 1
		observability.Current().IncWorkflowRetry("validation")
		log.Warn("Tree validation failed", "attempt", attempt+1, "issues", strings.Join(st.Validation.Issues, "; "))
	}

	if st.Tree == nil {
		return ErrNoTree
	}
	st.Error = ""
	log.Warn("Validation failed after retries; proceeding with last tree", "retries", st.RetryCount)
	return nil
}

// generateTree returns a nil tree, with st.Error set, when the response
// cannot be parsed.
func (w *Workflow) generateTree(ctx context.Context, st *State) (*tree.Node, error) {
	name, in := w.treePromptInput(st)
	p, err := w.prompts.Build(name, in)
	if err != nil {
		return nil, err
	}
	c, err := w.complete(ctx, st, p)
	if err != nil {
		return nil, err
	}
	root, perr := tree.Parse(c.Content)
	if perr != nil {
		st.Error = ErrNoTree.Error()
		return nil, nil
	}
	return root, nil
}

func (w *Workflow) treePromptInput(st *State) (prompts.Name, prompts.Input) {
	cfg := st.Config
	in := prompts.Input{
		UserInput:      st.UserInput,
		GenerateDepth:  cfg.GenerateDepth,
		FirstLevelMax:  min(6, cfg.MaxChildrenPerNode),
		SecondLevelMax: min(5, cfg.MaxChildrenPerNode),
		NodeBudget:     min(nodeBudgetHint, cfg.MaxTotalNodes),
		MaxTotalDepth:  cfg.MaxTotalDepth,
		References:     formatReferences(st),
	}
	if st.Analysis != nil {
		in.Domain = st.Analysis.Domain
		in.Scope = st.Analysis.Scope
		in.Difficulty = st.Analysis.Difficulty
	}
	if st.Validation != nil && !st.Validation.IsValid {
		in.Issues = st.Validation.Issues
	}
	if pc := st.ParentContext; pc != nil {
		in.NodeLabel = pc.NodeLabel
		in.NodeDescription = pc.NodeDescription
		in.Path = strings.Join(pc.Path, " → ")
		in.PathDepth = len(pc.Path)
		return prompts.ExpandTree, in
	}
	return prompts.GenerateTree, in
}
