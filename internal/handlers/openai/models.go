package openai

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MattyMroz/geminicli2api/internal/models"
)

// modelCreated is the fixed creation timestamp OpenAI clients expect to see
// on listed models.
const modelCreated = 1677610602

// ListModels implements GET /v1/models: one entry per catalog variant,
// identifiers stripped of the models/ prefix.
func (h *Handler) ListModels(c *gin.Context) {
	data := make([]gin.H, 0, len(models.Supported))
	for _, m := range models.Supported {
		id := models.ShortName(m.Name)
		data = append(data, gin.H{
			"id":       id,
			"object":   "model",
			"created":  modelCreated,
			"owned_by": "google",
			"root":     id,
			"parent":   nil,
		})
	}
	c.JSON(http.StatusOK, gin.H{"object": "list", "data": data})
}
