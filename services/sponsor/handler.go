package sponsor

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"sponsorportal/pkg/auth"
	"sponsorportal/pkg/errutil"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Stats handles GET /sponsors/:userId/stats. A sponsor without donations gets the
// default bronze view.
func (h *Handler) Stats(c *gin.Context) {
	userID, err := auth.ResolveUserID(c, c.Param("userId"))
	if err != nil {
		c.Error(err)
		return
	}

	stats, err := h.service.FindByUser(c.Request.Context(), userID)
	if err != nil {
		c.Error(errutil.Internal("failed to load sponsor stats", err))
		return
	}

	c.JSON(http.StatusOK, stats.View(userID, h.service.Currency()))
}
