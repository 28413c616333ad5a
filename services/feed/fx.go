package feed

import (
	"go.uber.org/fx"

	"sponsorportal/pkg/access"
	"sponsorportal/pkg/httpapi"
	"sponsorportal/pkg/middleware"
)

var Module = fx.Module("feed.service",
	fx.Provide(NewService, NewHandler),
	fx.Invoke(registerRoutes),
)

func registerRoutes(r *httpapi.Router, h *Handler, authorizer access.Authorizer) {
	r.API.GET("/feed", h.List)
	r.API.GET("/feed/mine", h.ListMine)

	write := middleware.Authorize(authorizer, access.ResourceFeed, access.ActionWrite)
	r.API.POST("/feed", write, h.Create)
	r.API.DELETE("/feed/:id", write, h.Delete)
}
