package report

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"sponsorportal/pkg/access"
	"sponsorportal/pkg/auth"
	"sponsorportal/pkg/errutil"
	"sponsorportal/pkg/featureflags"
	"sponsorportal/pkg/task"
)

const defaultListLimit = 24

type Handler struct {
	service    *Service
	authorizer access.Authorizer
	queue      task.Enqueuer
	flags      featureflags.FeatureFlag
}

type HandlerParams struct {
	fx.In
	Service    *Service
	Authorizer access.Authorizer
	Queue      task.Enqueuer            `optional:"true"`
	Flags      featureflags.FeatureFlag `optional:"true"`
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{service: p.Service, authorizer: p.Authorizer, queue: p.Queue, flags: p.Flags}
}

func (h *Handler) asyncEnabled(c *gin.Context, userID string) bool {
	if async, _ := strconv.ParseBool(c.Query("async")); !async || h.queue == nil {
		return false
	}
	if h.flags == nil {
		return true
	}
	return h.flags.Enabled(c.Request.Context(), featureflags.AsyncReports, userID, true)
}

// resolve returns the report owner. Token callers are checked against the policy, a
// claimed userId without a token is accepted as is.
func (h *Handler) resolve(c *gin.Context, claimed, action string) (string, error) {
	userID, err := auth.ResolveUserID(c, claimed)
	if err != nil {
		return "", err
	}
	if id, ok := auth.IdentityFrom(c); ok {
		allowed, err := h.authorizer.Allowed(id.Role, access.ResourceReports, action)
		if err != nil {
			return "", errutil.Internal("authorization failed", err)
		}
		if !allowed {
			return "", errutil.Forbidden("forbidden", nil)
		}
	}
	return userID, nil
}

// Generate handles POST /reports. With ?async=true, a queue and the async_reports
// flag on, the report is queued and the response is 202 with the task id.
func (h *Handler) Generate(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	userID, err := h.resolve(c, req.UserID, access.ActionWrite)
	if err != nil {
		c.Error(err)
		return
	}
	req.UserID = userID

	if h.asyncEnabled(c, userID) {
		if err := validate(req); err != nil {
			c.Error(err)
			return
		}
		id, err := Enqueue(c.Request.Context(), h.queue, req)
		if err != nil {
			c.Error(errutil.Internal("failed to queue report", err))
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"taskId": id})
		return
	}

	r, err := h.service.Generate(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, r.View())
}

func (h *Handler) List(c *gin.Context) {
	userID, err := h.resolve(c, c.Query("userId"), access.ActionRead)
	if err != nil {
		c.Error(err)
		return
	}

	limit := defaultListLimit
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 && v <= 100 {
		limit = v
	}

	rows, err := h.service.List(c.Request.Context(), userID, limit)
	if err != nil {
		c.Error(err)
		return
	}

	views := make([]View, 0, len(rows))
	for _, r := range rows {
		views = append(views, r.View())
	}
	c.JSON(http.StatusOK, gin.H{"data": views})
}
