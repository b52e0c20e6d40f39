package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/knowtree-backend/internal/data/repos"
	"github.com/yungbote/knowtree-backend/internal/platform/logger"
)

type Repos struct {
	KnowledgeGraph repos.KnowledgeGraphRepo
	GraphNode      repos.GraphNodeRepo
	NodeResource   repos.NodeResourceRepo
	KnowledgeBase  repos.KnowledgeBaseRepo
	KbDocument     repos.KbDocumentRepo
	KbChunk        repos.KbChunkRepo
	Topic          repos.TopicRepo
	Resource       repos.ResourceRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		KnowledgeGraph: repos.NewKnowledgeGraphRepo(db, log),
		GraphNode:      repos.NewGraphNodeRepo(db, log),
		NodeResource:   repos.NewNodeResourceRepo(db, log),
		KnowledgeBase:  repos.NewKnowledgeBaseRepo(db, log),
		KbDocument:     repos.NewKbDocumentRepo(db, log),
		KbChunk:        repos.NewKbChunkRepo(db, log),
		Topic:          repos.NewTopicRepo(db, log),
		Resource:       repos.NewResourceRepo(db, log),
	}
}
