package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"

	"sponsorportal/pkg/auth"
	"sponsorportal/pkg/config"
	"sponsorportal/pkg/health"
	"sponsorportal/pkg/middleware"
)

var Module = fx.Module("httpapi",
	fx.Provide(NewRouter),
	fx.Invoke(registerOperationalRoutes),
)

// Router splits the engine into routes reachable without identity (probes, the
// processor webhook) and API routes that resolve a bearer token when one is sent.
type Router struct {
	Public gin.IRouter
	API    gin.IRouter
}

func NewRouter(engine *gin.Engine, verifier auth.Verifier) *Router {
	return &Router{
		Public: engine,
		API:    engine.Group("", middleware.Authenticate(verifier)),
	}
}

// registerOperationalRoutes mounts the probes, the prometheus scrape endpoint and the
// public Stripe configuration the checkout page needs.
func registerOperationalRoutes(r *Router, h health.HealthService, cfg *config.Config) {
	r.Public.GET("/healthz", h.Liveness)
	r.Public.GET("/readyz", h.Readiness)
	r.Public.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Public.GET("/config/stripe", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"publishableKey": cfg.Stripe.PublishableKey,
			"currency":       cfg.Stripe.Currency,
		})
	})
}
