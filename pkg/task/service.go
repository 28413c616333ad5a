package task

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"sponsorportal/pkg/logger"
)

// Enqueuer is the part of asynq.Client the services depend on.
type Enqueuer interface {
	Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type enqueuer struct {
	client *asynq.Client
}

func NewEnqueuer(client *asynq.Client) Enqueuer {
	return &enqueuer{client: client}
}

func (e *enqueuer) Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	info, err := e.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", task.Type(), err)
	}

	logger.FromContext(ctx).Debug("task enqueued",
		zap.String("task_type", task.Type()),
		zap.String("task_id", info.ID),
		zap.String("queue", info.Queue),
	)
	return info, nil
}
