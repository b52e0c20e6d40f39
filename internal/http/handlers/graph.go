package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/knowtree-backend/internal/data/repos"
	types "github.com/yungbote/knowtree-backend/internal/domain"
	"github.com/yungbote/knowtree-backend/internal/http/response"
	"github.com/yungbote/knowtree-backend/internal/modules/graphgen"
	"github.com/yungbote/knowtree-backend/internal/pkg/dbctx"
	"github.com/yungbote/knowtree-backend/internal/platform/apierr"
	"github.com/yungbote/knowtree-backend/internal/platform/ctxutil"
	"github.com/yungbote/knowtree-backend/internal/platform/llm"
	"github.com/yungbote/knowtree-backend/internal/platform/logger"
	"github.com/yungbote/knowtree-backend/internal/realtime"
	"github.com/yungbote/knowtree-backend/internal/realtime/bus"
)

// GraphGenerator is satisfied by *graphgen.Workflow.
type GraphGenerator interface {
	Run(ctx context.Context, userInput string, opts graphgen.RunOptions) (*graphgen.Result, error)
	Expand(ctx context.Context, req graphgen.ExpandRequest) (*graphgen.ExpandResult, error)
}

type GraphHandler struct {
	log           *logger.Logger
	gen           GraphGenerator
	graphs        repos.KnowledgeGraphRepo
	nodes         repos.GraphNodeRepo
	nodeResources repos.NodeResourceRepo
	hub           *realtime.SSEHub
	events        bus.Bus
}

func NewGraphHandler(
	log *logger.Logger,
	gen GraphGenerator,
	graphs repos.KnowledgeGraphRepo,
	nodes repos.GraphNodeRepo,
	nodeResources repos.NodeResourceRepo,
	hub *realtime.SSEHub,
	events bus.Bus,
) *GraphHandler {
	return &GraphHandler{
		log:           log.With("handler", "GraphHandler"),
		gen:           gen,
		graphs:        graphs,
		nodes:         nodes,
		nodeResources: nodeResources,
		hub:           hub,
		events:        events,
	}
}

type generateRequest struct {
	Input    string              `json:"input"`
	Provider string              `json:"provider"`
	Config   *graphgen.Overrides `json:"config"`
}

// Generate runs a workflow to completion. Progress goes to the caller's
// realtime channel.
func (h *GraphHandler) Generate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	userID := ctxutil.UserID(c.Request.Context())
	res, err := h.gen.Run(c.Request.Context(), req.Input, graphgen.RunOptions{
		UserID:     userID,
		Provider:   req.Provider,
		Config:     req.Config,
		OnProgress: h.publisher(c.Request.Context(), UserChannel(userID)),
	})
	if err != nil {
		h.respondWorkflowError(c, err)
		return
	}
	response.RespondOK(c, gin.H{
		"graphId":   res.GraphID,
		"nodeCount": res.State.NodeCount,
		"maxDepth":  res.State.MaxDepth,
	})
}

// GenerateStream runs a workflow and streams its progress as SSE. The run
// continues if the client goes away; the graph is still persisted.
func (h *GraphHandler) GenerateStream(c *gin.Context) {
	input := strings.TrimSpace(c.Query("input"))
	if input == "" {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", graphgen.ErrEmptyInput)
		return
	}
	userID := ctxutil.UserID(c.Request.Context())
	channel := RunChannel(uuid.New())

	client := h.hub.NewSSEClient(userID)
	h.hub.AddChannel(client, channel)
	defer h.hub.CloseClient(client)

	ctx := context.WithoutCancel(c.Request.Context())
	userProgress := h.publisher(ctx, UserChannel(userID))
	go func() {
		_, _ = h.gen.Run(ctx, input, graphgen.RunOptions{
			UserID:   userID,
			Provider: c.Query("provider"),
			OnProgress: func(e graphgen.Event) {
				h.hub.Broadcast(progressMessage(channel, e))
				userProgress(e)
			},
		})
	}()

	h.hub.Stream(c.Writer, c.Request, client, func(m realtime.SSEMessage) bool {
		return m.Event == realtime.SSEEventGraphCompleted || m.Event == realtime.SSEEventGraphFailed
	})
}

// publisher forwards progress to channel over the event bus.
func (h *GraphHandler) publisher(ctx context.Context, channel string) graphgen.ProgressFunc {
	if h.events == nil {
		return func(graphgen.Event) {}
	}
	return func(e graphgen.Event) {
		if err := h.events.Publish(ctx, progressMessage(channel, e)); err != nil {
			h.log.Warn("Failed to publish progress", "channel", channel, "error", err)
		}
	}
}

func progressMessage(channel string, e graphgen.Event) realtime.SSEMessage {
	ev := realtime.SSEEventGraphProgress
	switch e.Step {
	case graphgen.StepComplete:
		ev = realtime.SSEEventGraphCompleted
	case graphgen.StepError:
		ev = realtime.SSEEventGraphFailed
	}
	return realtime.SSEMessage{Channel: channel, Event: ev, Data: e}
}

func (h *GraphHandler) GetGraph(c *gin.Context) {
	graphID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	dbc := dbctx.New(c.Request.Context())
	graph, err := h.graphs.GetByID(dbc, graphID)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "load_graph_failed", err)
		return
	}
	if graph == nil {
		response.RespondError(c, http.StatusNotFound, "graph_not_found", graphgen.ErrGraphNotFound)
		return
	}
	nodes, err := h.nodes.ListByGraph(dbc, graphID)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "load_nodes_failed", err)
		return
	}
	ids := make([]uuid.UUID, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.ID)
	}
	links, err := h.nodeResources.ListByNodeIDs(dbc, ids)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "load_resources_failed", err)
		return
	}
	if links == nil {
		links = []*types.NodeResource{}
	}
	response.RespondOK(c, gin.H{"graph": graph, "nodes": nodes, "resources": links})
}

// History lists the caller's most recent graphs.
func (h *GraphHandler) History(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	limit = min(max(limit, 1), 100)
	graphs, err := h.graphs.ListByCreator(dbctx.New(c.Request.Context()), ctxutil.UserID(c.Request.Context()), limit)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "list_graphs_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"graphs": graphs})
}

type expandRequest struct {
	Depth    int    `json:"depth"`
	Provider string `json:"provider"`
}

func (h *GraphHandler) Expand(c *gin.Context) {
	graphID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	nodeID, ok := uuidParam(c, "nodeId")
	if !ok {
		return
	}
	var req expandRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
			return
		}
	}
	userID := ctxutil.UserID(c.Request.Context())
	res, err := h.gen.Expand(c.Request.Context(), graphgen.ExpandRequest{
		GraphID:    graphID,
		NodeID:     nodeID,
		Depth:      req.Depth,
		UserID:     userID,
		Provider:   req.Provider,
		OnProgress: h.publisher(c.Request.Context(), UserChannel(userID)),
	})
	if err != nil {
		h.respondWorkflowError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"graphId": res.GraphID, "nodeId": res.NodeID, "children": res.Children})
}

func (h *GraphHandler) respondWorkflowError(c *gin.Context, err error) {
	ae := workflowAPIError(err)
	if ae.Status >= http.StatusInternalServerError {
		h.log.Error("Graph workflow failed", "error", err)
	}
	response.RespondAPIError(c, ae, "generation_failed")
}

func workflowAPIError(err error) *apierr.Error {
	switch {
	case errors.Is(err, graphgen.ErrEmptyInput):
		return apierr.New(http.StatusBadRequest, "invalid_request", err)
	case errors.Is(err, graphgen.ErrGraphNotFound):
		return apierr.New(http.StatusNotFound, "graph_not_found", err)
	case errors.Is(err, graphgen.ErrNodeNotFound):
		return apierr.New(http.StatusNotFound, "node_not_found", err)
	case errors.Is(err, graphgen.ErrMaxDepthReached):
		return apierr.New(http.StatusConflict, "max_depth_reached", err)
	case llm.IsNotConfigured(err):
		return apierr.New(http.StatusBadRequest, "provider_not_configured", err)
	case errors.Is(err, graphgen.ErrNoTree):
		return apierr.New(http.StatusBadGateway, "generation_failed", err)
	default:
		return apierr.From(err, "generation_failed")
	}
}

// UserChannel carries every progress event for one user.
func UserChannel(userID uuid.UUID) string { return "user:" + userID.String() }

// RunChannel carries the events of one streamed generation.
func RunChannel(runID uuid.UUID) string { return "graph-run:" + runID.String() }

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil || id == uuid.Nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_"+strings.ToLower(name), errors.New("invalid "+name))
		return uuid.Nil, false
	}
	return id, true
}
