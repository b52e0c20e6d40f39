package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/knowtree-backend/internal/data/repos/catalog"
	"github.com/yungbote/knowtree-backend/internal/data/repos/graph"
	"github.com/yungbote/knowtree-backend/internal/data/repos/knowledge"
	"github.com/yungbote/knowtree-backend/internal/platform/logger"
)

type KnowledgeGraphRepo = graph.KnowledgeGraphRepo
type GraphNodeRepo = graph.GraphNodeRepo
type NodeResourceRepo = graph.NodeResourceRepo

type KnowledgeBaseRepo = knowledge.KnowledgeBaseRepo
type KbDocumentRepo = knowledge.KbDocumentRepo
type KbChunkRepo = knowledge.KbChunkRepo
type ChunkHit = knowledge.ChunkHit

type TopicRepo = catalog.TopicRepo
type ResourceRepo = catalog.ResourceRepo

func NewKnowledgeGraphRepo(db *gorm.DB, baseLog *logger.Logger) KnowledgeGraphRepo {
	return graph.NewKnowledgeGraphRepo(db, baseLog)
}
func NewGraphNodeRepo(db *gorm.DB, baseLog *logger.Logger) GraphNodeRepo {
	return graph.NewGraphNodeRepo(db, baseLog)
}
func NewNodeResourceRepo(db *gorm.DB, baseLog *logger.Logger) NodeResourceRepo {
	return graph.NewNodeResourceRepo(db, baseLog)
}

func NewKnowledgeBaseRepo(db *gorm.DB, baseLog *logger.Logger) KnowledgeBaseRepo {
	return knowledge.NewKnowledgeBaseRepo(db, baseLog)
}
func NewKbDocumentRepo(db *gorm.DB, baseLog *logger.Logger) KbDocumentRepo {
	return knowledge.NewKbDocumentRepo(db, baseLog)
}
func NewKbChunkRepo(db *gorm.DB, baseLog *logger.Logger) KbChunkRepo {
	return knowledge.NewKbChunkRepo(db, baseLog)
}

func NewTopicRepo(db *gorm.DB, baseLog *logger.Logger) TopicRepo {
	return catalog.NewTopicRepo(db, baseLog)
}
func NewResourceRepo(db *gorm.DB, baseLog *logger.Logger) ResourceRepo {
	return catalog.NewResourceRepo(db, baseLog)
}
