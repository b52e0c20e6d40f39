package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/knowtree-backend/internal/platform/ctxutil"
	"github.com/yungbote/knowtree-backend/internal/platform/logger"
	"github.com/yungbote/knowtree-backend/internal/realtime"
)

// subscribablePrefixes lists the channel families a caller may join besides
// their own user channel.
var subscribablePrefixes = []string{"graph-run:", "document:"}

type RealtimeHandler struct {
	log *logger.Logger
	hub *realtime.SSEHub
}

func NewRealtimeHandler(log *logger.Logger, hub *realtime.SSEHub) *RealtimeHandler {
	return &RealtimeHandler{log: log.With("handler", "RealtimeHandler"), hub: hub}
}

// Events opens an SSE stream on the caller's user channel plus any
// comma-separated ?channels= entries.
func (h *RealtimeHandler) Events(c *gin.Context) {
	userID := ctxutil.UserID(c.Request.Context())
	client := h.hub.NewSSEClient(userID)
	defer h.hub.CloseClient(client)

	h.hub.AddChannel(client, UserChannel(userID))
	for _, ch := range strings.Split(c.Query("channels"), ",") {
		if ch = strings.TrimSpace(ch); allowedChannel(ch) {
			h.hub.AddChannel(client, ch)
		}
	}
	h.log.Debug("SSE stream open", "user_id", userID.String(), "channels", len(client.Channels))
	h.hub.ServeHTTP(c.Writer, c.Request, client)
}

func allowedChannel(ch string) bool {
	for _, p := range subscribablePrefixes {
		if strings.HasPrefix(ch, p) && len(ch) > len(p) {
			return true
		}
	}
	return false
}
