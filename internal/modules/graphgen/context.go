package graphgen

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/knowtree-backend/internal/pkg/dbctx"
	"github.com/yungbote/knowtree-backend/internal/platform/logger"
)

const (
	referenceTopK     = 10
	referenceMaxChars = 600
)

func (w *Workflow) wantsContext(st *State) bool {
	return st.UserID != uuid.Nil && w.kbs != nil && w.retriever != nil
}

// retrieveContext attaches knowledge-base passages to the run. Any failure
// leaves the run without references.
func (w *Workflow) retrieveContext(ctx context.Context, st *State, log *logger.Logger) {
	kbIDs, err := w.kbs.AccessibleIDs(dbctx.New(ctx), st.UserID)
	if err != nil {
		log.Warn("Knowledge base lookup failed; continuing without references", "error", err)
		return
	}
	if len(kbIDs) == 0 {
		return
	}
	query := st.UserInput
	if st.Analysis != nil {
		query = strings.Join([]string{st.UserInput, st.Analysis.Domain, st.Analysis.Scope}, " ")
	}
	st.References = w.retriever.Retrieve(ctx, query, kbIDs, referenceTopK)
	log.Info("Reference passages retrieved", "count", len(st.References), "kb_count", len(kbIDs))
}

func formatReferences(st *State) string {
	if len(st.References) == 0 {
		return ""
	}
	var b strings.Builder
	for i, r := range st.References {
		content := strings.TrimSpace(r.Content)
		if runes := []rune(content); len(runes) > referenceMaxChars {
			content = string(runes[:referenceMaxChars]) + "..."
		}
		source := r.Source
		if r.HeadingPath != "" {
			source += " > " + r.HeadingPath
		}
		fmt.Fprintf(&b, "[%d] (%s) %s\n", i+1, source, content)
	}
	return strings.TrimRight(b.String(), "\n")
}
