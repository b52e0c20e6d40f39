package app

import (
	"context"
	"fmt"

	httpapi "github.com/yungbote/knowtree-backend/internal/http"
	httpH "github.com/yungbote/knowtree-backend/internal/http/handlers"
	httpMW "github.com/yungbote/knowtree-backend/internal/http/middleware"
	"github.com/yungbote/knowtree-backend/internal/platform/authjwt"
)

// NewServer wires handlers and middleware over the App.
func (a *App) NewServer() (*httpapi.Server, error) {
	signer, err := authjwt.New(a.Cfg.JWTSecretKey, a.Cfg.AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("init jwt: %w", err)
	}
	log := a.Log
	return httpapi.NewServer(httpapi.RouterConfig{
		Log:            log,
		Metrics:        a.Metrics,
		ServiceName:    a.Cfg.ServiceName,
		AuthMiddleware: httpMW.NewAuthMiddleware(log, signer),

		HealthHandler: httpH.NewHealthHandler(a.Retrieve),
		GraphHandler: httpH.NewGraphHandler(
			log,
			a.Graphs,
			a.Repos.KnowledgeGraph,
			a.Repos.GraphNode,
			a.Repos.NodeResource,
			a.Hub,
			a.Events,
		),
		KnowledgeHandler: httpH.NewKnowledgeHandler(log, a.Ingest, a.Retrieve, a.Repos.KnowledgeBase, a.Repos.KbDocument, a.Cfg.UploadDir),
		LLMHandler:       httpH.NewLLMHandler(log, a.LLM),
		RealtimeHandler:  httpH.NewRealtimeHandler(log, a.Hub),
	}), nil
}

// Serve starts background loops and blocks serving HTTP until ctx is done.
func (a *App) Serve(ctx context.Context) error {
	srv, err := a.NewServer()
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		return err
	}
	addr := ":" + a.Cfg.Port
	a.Log.Info("Server listening", "address", addr, "retrieval", a.Retrieve.Mode())
	return srv.Run(ctx, addr)
}
