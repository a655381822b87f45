package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ccs-host/internal/models"
)

// ReasoningSource provides a point-in-time view of the effort-injection
// link's rewrite activity.
type ReasoningSource interface {
	Snapshot() models.ReasoningStatus
}

/**
 * ReasoningController serves the reasoning link's side channel
 * @description
 * - GET /__ccs/reasoning answers with aggregate counts per effort, the
 *   last rewrite decisions, the per-model override map and the default
 *   effort; request and response bodies are never part of the payload
 */
type ReasoningController struct {
	source ReasoningSource
}

// NewReasoningController creates the controller over a rewrite source.
func NewReasoningController(source ReasoningSource) *ReasoningController {
	return &ReasoningController{source: source}
}

// Status handles GET /__ccs/reasoning.
func (c *ReasoningController) Status(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, c.source.Snapshot())
}
