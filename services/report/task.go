package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"sponsorportal/pkg/errutil"
	"sponsorportal/pkg/task"
	"sponsorportal/pkg/taskname"
)

const maxGenerateRetry = 5

// Enqueue schedules an asynchronous Generate. The task id is derived from the user and
// period, so a request for a period that is already queued is reported as queued.
func Enqueue(ctx context.Context, q task.Enqueuer, req GenerateRequest) (string, error) {
	payload, err := json.Marshal(GeneratePayload{UserID: req.UserID, Month: req.Month, Year: req.Year})
	if err != nil {
		return "", err
	}

	id := taskID(req)
	_, err = q.Enqueue(ctx, asynq.NewTask(taskname.ReportGenerate, payload),
		asynq.TaskID(id),
		asynq.Queue(taskname.QueueReports),
		asynq.MaxRetry(maxGenerateRetry),
		asynq.Timeout(time.Minute),
	)
	if err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		return "", err
	}
	return id, nil
}

func taskID(req GenerateRequest) string {
	return fmt.Sprintf("%s:%s:%04d-%02d", taskname.ReportGenerate, req.UserID, req.Year, req.Month)
}

// HandleGenerateTask is the asynq handler for taskname.ReportGenerate.
func (s *Service) HandleGenerateTask(ctx context.Context, t *asynq.Task) error {
	var payload GeneratePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		zap.L().Error("invalid report payload", zap.Error(err))
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}

	r, err := s.Generate(ctx, GenerateRequest{UserID: payload.UserID, Month: payload.Month, Year: payload.Year})
	if err != nil {
		if errutil.ToBaseError(err).Code.HTTPStatus() < 500 {
			zap.L().Warn("dropping report task", zap.String("user_id", payload.UserID), zap.Error(err))
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	zap.L().Info("report task finished", zap.String("user_id", r.UserID), zap.String("code", r.Code))
	return nil
}
