package gemini

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MattyMroz/geminicli2api/internal/models"
)

// ListModels implements GET /v1beta/models with full model descriptors.
func (h *Handler) ListModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"models": models.Supported})
}
