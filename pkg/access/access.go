package access

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	stringadapter "github.com/casbin/casbin/v2/persist/string-adapter"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"sponsorportal/pkg/config"
)

var Module = fx.Module("access", fx.Provide(New))

const (
	ResourceFeed    = "feed"
	ResourceReports = "reports"

	ActionRead  = "read"
	ActionWrite = "write"
)

const defaultModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj && r.act == p.act
`

const defaultPolicy = `
p, sponsor, feed, read
p, sponsor, reports, read
p, sponsor, reports, write
p, missionary, feed, write
g, missionary, sponsor
g, admin, missionary
`

type Authorizer interface {
	Allowed(role, resource, action string) (bool, error)
}

type enforcer struct {
	e *casbin.Enforcer
}

// New loads the casbin model and policy from the configured files, or the built-in
// role table when none are configured.
func New(cfg *config.Config) (Authorizer, error) {
	if cfg.AccessControl.Model != "" && cfg.AccessControl.Policy != "" {
		e, err := casbin.NewEnforcer(cfg.AccessControl.Model, cfg.AccessControl.Policy)
		if err != nil {
			return nil, fmt.Errorf("casbin: %w", err)
		}
		zap.L().Info("access control loaded", zap.String("policy", cfg.AccessControl.Policy))
		return &enforcer{e: e}, nil
	}

	return NewDefault()
}

func NewDefault() (Authorizer, error) {
	m, err := model.NewModelFromString(defaultModel)
	if err != nil {
		return nil, fmt.Errorf("casbin model: %w", err)
	}

	e, err := casbin.NewEnforcer(m, stringadapter.NewAdapter(defaultPolicy))
	if err != nil {
		return nil, fmt.Errorf("casbin: %w", err)
	}
	return &enforcer{e: e}, nil
}

func (a *enforcer) Allowed(role, resource, action string) (bool, error) {
	return a.e.Enforce(role, resource, action)
}
