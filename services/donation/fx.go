package donation

import (
	"go.uber.org/fx"

	"sponsorportal/pkg/httpapi"
)

var Module = fx.Module("donation.service",
	fx.Provide(NewService, NewHandler),
	fx.Invoke(registerRoutes),
)

func registerRoutes(r *httpapi.Router, h *Handler) {
	r.API.POST("/checkout", h.Checkout)
	r.API.GET("/donations", h.List)
}
