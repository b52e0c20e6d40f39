package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// VectorState is satisfied by *retrieval.Engine.
type VectorState interface {
	Mode() string
}

type HealthHandler struct {
	vectors VectorState
}

func NewHealthHandler(vectors VectorState) *HealthHandler { return &HealthHandler{vectors: vectors} }

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	out := gin.H{"status": "ok"}
	if h.vectors != nil {
		out["retrieval"] = h.vectors.Mode()
	}
	c.JSON(http.StatusOK, out)
}
