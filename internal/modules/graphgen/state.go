package graphgen

import (
	"github.com/google/uuid"

	"github.com/yungbote/knowtree-backend/internal/modules/graphgen/tree"
	"github.com/yungbote/knowtree-backend/internal/modules/knowledge/retrieval"
)

const (
	DifficultyBeginner     = "beginner"
	DifficultyIntermediate = "intermediate"
	DifficultyAdvanced     = "advanced"

	// FallbackDomain is used when the analysis response cannot be read.
	FallbackDomain = "generic"
)

type Analysis struct {
	Domain     string `json:"domain"`
	Scope      string `json:"scope"`
	Difficulty string `json:"difficulty"`
}

// ParentContext is set only when expanding an existing node. The generated
// tree's root stands for that node and is never persisted again.
type ParentContext struct {
	NodeID          uuid.UUID `json:"nodeId"`
	NodeLabel       string    `json:"nodeLabel"`
	NodeDescription string    `json:"nodeDescription"`
	DepthLevel      int       `json:"depthLevel"`
	// Path lists ancestor labels from the root down to the node itself.
	Path []string `json:"path"`
}

type ScoredResource struct {
	ResourceID     uuid.UUID `json:"resourceId"`
	RelevanceScore float64   `json:"relevanceScore"`
}

// ResourceMatch holds at most three resources for one node, best first.
type ResourceMatch struct {
	NodeKey   string           `json:"nodeKey"`
	Resources []ScoredResource `json:"resources"`
}

// State is owned by exactly one run.
type State struct {
	UserInput     string         `json:"userInput"`
	Config        Config         `json:"config"`
	ParentContext *ParentContext `json:"parentContext,omitempty"`
	GraphID       uuid.UUID      `json:"graphId"`
	UserID        uuid.UUID      `json:"userId"`
	Provider      string         `json:"provider,omitempty"`

	Analysis        *Analysis          `json:"analysis,omitempty"`
	References      []retrieval.Result `json:"references,omitempty"`
	Tree            *tree.Node         `json:"tree,omitempty"`
	Validation      *tree.Verdict      `json:"validation,omitempty"`
	ResourceMatches []ResourceMatch    `json:"resourceMatches"`

	// NodeIDs maps every node key persisted by this run to its row id.
	NodeIDs   map[string]uuid.UUID `json:"nodeIds,omitempty"`
	NodeCount int                  `json:"nodeCount"`
	MaxDepth  int                  `json:"maxDepth"`

	LLMProvider string `json:"llmProvider,omitempty"`
	LLMModel    string `json:"llmModel,omitempty"`

	RetryCount  int    `json:"retryCount"`
	CurrentStep string `json:"currentStep"`
	Error       string `json:"error,omitempty"`

	createdGraph bool
}

func (s *State) expanding() bool { return s.ParentContext != nil }
