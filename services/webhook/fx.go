package webhook

import (
	"go.uber.org/fx"

	"sponsorportal/pkg/httpapi"
)

var Module = fx.Module("webhook.service",
	fx.Provide(NewService, NewHandler),
	fx.Invoke(registerRoutes),
)

func registerRoutes(r *httpapi.Router, h *Handler) {
	r.Public.POST("/webhook", h.Receive)
}
