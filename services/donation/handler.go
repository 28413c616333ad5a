package donation

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"sponsorportal/pkg/auth"
	"sponsorportal/pkg/db/pagination"
	"sponsorportal/pkg/errutil"
	"sponsorportal/services/payment"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Checkout handles POST /checkout. Amount is checked before identity so an invalid
// amount answers 400 even for anonymous callers.
func (h *Handler) Checkout(c *gin.Context) {
	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	if !(payment.Amount{Value: req.Amount, Currency: req.Currency}).Valid() {
		c.Error(errutil.BadRequest("Monto inválido", payment.ErrInvalidAmount))
		return
	}

	userID, err := auth.ResolveUserID(c, req.UserID)
	if err != nil {
		c.Error(err)
		return
	}
	req.UserID = userID

	resp, err := h.service.Checkout(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) List(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		c.Error(err)
		return
	}

	userID, err := auth.ResolveUserID(c, c.Query("userId"))
	if err != nil {
		c.Error(err)
		return
	}

	rows, info, err := h.service.List(c.Request.Context(), userID, page)
	if err != nil {
		c.Error(err)
		return
	}

	views := make([]View, 0, len(rows))
	for _, d := range rows {
		views = append(views, d.View())
	}

	c.JSON(http.StatusOK, gin.H{"data": views, "page_info": info})
}
