package domain

import (
	"github.com/yungbote/knowtree-backend/internal/domain/catalog"
	"github.com/yungbote/knowtree-backend/internal/domain/graph"
	"github.com/yungbote/knowtree-backend/internal/domain/knowledge"
)

type (
	KnowledgeGraph = graph.KnowledgeGraph
	GraphNode      = graph.GraphNode
	NodeResource   = graph.NodeResource

	KnowledgeBase  = knowledge.KnowledgeBase
	KbCollaborator = knowledge.KbCollaborator
	KbDocument     = knowledge.KbDocument
	KbChunk        = knowledge.KbChunk

	Topic    = catalog.Topic
	Resource = catalog.Resource
)

const (
	GraphStatusGenerating = graph.GraphStatusGenerating
	GraphStatusCompleted  = graph.GraphStatusCompleted
	GraphStatusFailed     = graph.GraphStatusFailed

	NodeTypeRoot   = graph.NodeTypeRoot
	NodeTypeBranch = graph.NodeTypeBranch
	NodeTypeLeaf   = graph.NodeTypeLeaf

	VisibilityPrivate = knowledge.VisibilityPrivate
	VisibilityShared  = knowledge.VisibilityShared
	VisibilityPublic  = knowledge.VisibilityPublic

	DocumentStatusPending    = knowledge.DocumentStatusPending
	DocumentStatusProcessing = knowledge.DocumentStatusProcessing
	DocumentStatusCompleted  = knowledge.DocumentStatusCompleted
	DocumentStatusFailed     = knowledge.DocumentStatusFailed
)

// AllModels lists every persisted type in migration order.
func AllModels() []any {
	return []any{
		&Topic{},
		&Resource{},
		&KnowledgeGraph{},
		&GraphNode{},
		&NodeResource{},
		&KnowledgeBase{},
		&KbCollaborator{},
		&KbDocument{},
		&KbChunk{},
	}
}
