package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/knowtree-backend/internal/http/handlers"
	httpMW "github.com/yungbote/knowtree-backend/internal/http/middleware"
	"github.com/yungbote/knowtree-backend/internal/observability"
	"github.com/yungbote/knowtree-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	Metrics        *observability.Metrics
	ServiceName    string
	AuthMiddleware *httpMW.AuthMiddleware

	HealthHandler    *httpH.HealthHandler
	GraphHandler     *httpH.GraphHandler
	KnowledgeHandler *httpH.KnowledgeHandler
	LLMHandler       *httpH.LLMHandler
	RealtimeHandler  *httpH.RealtimeHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.RequestContext())
	if cfg.Log != nil {
		r.Use(httpMW.RequestLogger(cfg.Log))
	}
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS())

	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapF(cfg.Metrics.WriteHTTP))
	}

	protected := r.Group("/api")
	if cfg.AuthMiddleware != nil {
		protected.Use(cfg.AuthMiddleware.RequireAuth())
	}
	{
		// Graphs
		if cfg.GraphHandler != nil {
			protected.GET("/graphs", cfg.GraphHandler.History)
			protected.POST("/graphs/generate", cfg.GraphHandler.Generate)
			protected.GET("/graphs/generate/stream", cfg.GraphHandler.GenerateStream)
			protected.GET("/graphs/:id", cfg.GraphHandler.GetGraph)
			protected.POST("/graphs/:id/nodes/:nodeId/expand", cfg.GraphHandler.Expand)
		}

		// Knowledge bases
		if cfg.KnowledgeHandler != nil {
			protected.POST("/knowledge-bases", cfg.KnowledgeHandler.CreateKnowledgeBase)
			protected.DELETE("/knowledge-bases/:kbId", cfg.KnowledgeHandler.DeleteKnowledgeBase)
			protected.GET("/knowledge-bases/:kbId/documents", cfg.KnowledgeHandler.ListDocuments)
			protected.POST("/knowledge-bases/:kbId/documents", cfg.KnowledgeHandler.Upload)
			protected.DELETE("/knowledge-bases/:kbId/documents/:docId", cfg.KnowledgeHandler.DeleteDocument)
			protected.POST("/knowledge/retrieve", cfg.KnowledgeHandler.Retrieve)
			protected.POST("/knowledge/reindex", cfg.KnowledgeHandler.Reindex)
		}

		// LLM
		if cfg.LLMHandler != nil {
			protected.GET("/llm/providers", cfg.LLMHandler.Providers)
			protected.GET("/llm/health", cfg.LLMHandler.Health)
			protected.POST("/llm/complete/stream", cfg.LLMHandler.CompleteStream)
		}

		// Realtime (SSE)
		if cfg.RealtimeHandler != nil {
			protected.GET("/events", cfg.RealtimeHandler.Events)
		}
	}

	return r
}
