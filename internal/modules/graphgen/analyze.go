package graphgen

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/yungbote/knowtree-backend/internal/modules/graphgen/prompts"
	"github.com/yungbote/knowtree-backend/internal/modules/graphgen/tree"
	"github.com/yungbote/knowtree-backend/internal/platform/logger"
)

// analyzeInput runs once. LLM errors are fatal; unreadable output falls back
// to a generic analysis since later stages only use it as context.
func (w *Workflow) analyzeInput(ctx context.Context, st *State, log *logger.Logger) error {
	p, err := w.prompts.Build(prompts.AnalyzeInput, prompts.Input{UserInput: st.UserInput})
	if err != nil {
		return err
	}
	c, err := w.complete(ctx, st, p)
	if err != nil {
		return err
	}
	st.Analysis = parseAnalysis(c.Content, st.UserInput)
	log.Info("Input analyzed", "domain", st.Analysis.Domain, "difficulty", st.Analysis.Difficulty)
	return nil
}

func parseAnalysis(content, userInput string) *Analysis {
	fallback := &Analysis{Domain: FallbackDomain, Scope: userInput, Difficulty: DifficultyIntermediate}
	var raw Analysis
	if err := json.Unmarshal([]byte(tree.ExtractJSON(content)), &raw); err != nil {
		return fallback
	}
	out := &Analysis{
		Domain:     strings.TrimSpace(raw.Domain),
		Scope:      strings.TrimSpace(raw.Scope),
		Difficulty: strings.ToLower(strings.TrimSpace(raw.Difficulty)),
	}
	if out.Domain == "" {
		out.Domain = fallback.Domain
	}
	if out.Scope == "" {
		out.Scope = fallback.Scope
	}
	switch out.Difficulty {
	case DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced:
	default:
		out.Difficulty = DifficultyIntermediate
	}
	return out
}
