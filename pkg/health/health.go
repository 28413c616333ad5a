package health

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("health", fx.Provide(ProvideHealth))

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

type Dependency struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type Health struct {
	Status  string       `json:"status"`
	Message string       `json:"message"`
	Deps    []Dependency `json:"deps,omitempty"`
}

type HealthService interface {
	Liveness(c *gin.Context)
	Readiness(c *gin.Context)
}

type health struct {
	db    *gorm.DB
	redis redis.UniversalClient
}

type HealthParams struct {
	fx.In
	DB    *gorm.DB      `optional:"true"`
	Redis *redis.Client `optional:"true"`
}

func ProvideHealth(p HealthParams) HealthService {
	h := &health{db: p.DB}
	if p.Redis != nil {
		h.redis = p.Redis
	}
	return h
}

func (h *health) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, &Health{
		Status:  StatusHealthy,
		Message: "OK",
	})
}

// Readiness pings every wired dependency and answers 503 when one of them fails.
func (h *health) Readiness(c *gin.Context) {
	this := &Health{
		Status:  StatusHealthy,
		Message: "OK",
	}

	deps := make([]Dependency, 0)
	if h.db != nil {
		dep := Dependency{
			Name:    h.db.Name(),
			Status:  StatusHealthy,
			Message: "OK",
		}

		sql, err := h.db.DB()
		if err == nil {
			err = sql.PingContext(c.Request.Context())
		}
		if err != nil {
			dep.Status = StatusUnhealthy
			dep.Message = err.Error()
		}

		deps = append(deps, dep)
	}

	if h.redis != nil {
		dep := Dependency{
			Name:    "redis",
			Status:  StatusHealthy,
			Message: "OK",
		}

		if err := h.redis.Ping(c.Request.Context()).Err(); err != nil {
			dep.Status = StatusUnhealthy
			dep.Message = err.Error()
		}

		deps = append(deps, dep)
	}

	this.Deps = deps

	code := http.StatusOK
	for _, d := range deps {
		if d.Status != StatusHealthy {
			this.Status = StatusUnhealthy
			this.Message = "dependency unavailable"
			code = http.StatusServiceUnavailable
			break
		}
	}

	c.JSON(code, this)
}
