package webhook

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"sponsorportal/pkg/errutil"
)

const maxBodyBytes = 1 << 20

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Receive handles POST /webhook. The body is read raw; signature verification
// needs the exact bytes the processor signed.
func (h *Handler) Receive(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		c.Error(errutil.BadRequest("unreadable body", err))
		return
	}

	outcome, err := h.service.Handle(c.Request.Context(), body, c.GetHeader("Stripe-Signature"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, Response{Received: true, Duplicate: outcome == OutcomeDuplicate})
}
