package report

import (
	"github.com/hibiken/asynq"
	"go.uber.org/fx"

	"sponsorportal/pkg/httpapi"
	"sponsorportal/pkg/taskname"
)

var Module = fx.Module("report.service",
	fx.Provide(NewService, NewHandler),
	fx.Invoke(registerRoutes),
)

// TaskModule runs report generation inside the worker.
var TaskModule = fx.Module("report.task",
	fx.Provide(NewService, NewScheduler),
	fx.Invoke(registerTasks, StartScheduler),
)

func registerRoutes(r *httpapi.Router, h *Handler) {
	r.API.POST("/reports", h.Generate)
	r.API.GET("/reports", h.List)
}

func registerTasks(mux *asynq.ServeMux, s *Service) {
	mux.HandleFunc(taskname.ReportGenerate, s.HandleGenerateTask)
}
