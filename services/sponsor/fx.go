package sponsor

import (
	"go.uber.org/fx"

	"sponsorportal/pkg/httpapi"
)

var Module = fx.Module("sponsor.service",
	fx.Provide(NewService, NewHandler),
	fx.Invoke(registerRoutes),
)

func registerRoutes(r *httpapi.Router, h *Handler) {
	r.API.GET("/sponsors/:userId/stats", h.Stats)
}
