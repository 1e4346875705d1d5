package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/davibasa/Enter-Fellowship-sub001/pkg/logger"
	"github.com/davibasa/Enter-Fellowship-sub001/pkg/queue"
)

// JobHandler runs one queued extraction.
type JobHandler interface {
	HandleJob(ctx context.Context, task *queue.Task) error
}

type ExtractionWorker struct {
	BaseWorker
	handler JobHandler
}

func NewExtractionWorker(cfg *Config, handler JobHandler, log logger.Logger) (*ExtractionWorker, error) {
	if cfg.Queues == nil {
		cfg.Queues = queue.Weights()
	}
	server := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB},
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues:      cfg.Queues,
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				return time.Duration(n) * 30 * time.Second
			},
		},
	)

	w := newExtractionWorker(handler, log)
	w.server = server
	return w, nil
}

func newExtractionWorker(handler JobHandler, log logger.Logger) *ExtractionWorker {
	if log == nil {
		log = logger.NewNop()
	}
	w := &ExtractionWorker{
		BaseWorker: BaseWorker{
			mux:      asynq.NewServeMux(),
			logger:   log.Named("worker"),
			stopChan: make(chan struct{}),
		},
		handler: handler,
	}
	w.mux.HandleFunc(queue.TaskTypeExtractionRun, w.handleExtraction)
	return w
}

func (w *ExtractionWorker) handleExtraction(ctx context.Context, t *asynq.Task) error {
	var task queue.Task
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		w.logger.Error("Failed to unmarshal task", logger.Error(err))
		return fmt.Errorf("failed to unmarshal task: %w: %w", err, asynq.SkipRetry)
	}
	if task.ID == "" || len(task.Request.Schema) == 0 {
		w.logger.Error("Invalid task data", logger.String("taskId", task.ID))
		return fmt.Errorf("invalid task data: missing required fields: %w", asynq.SkipRetry)
	}

	ctx = logger.WithTraceID(ctx, task.TraceID)
	log := logger.FromContext(ctx, w.logger).With(logger.String("taskId", task.ID))
	log.Info("Processing extraction task", logger.Int("fields", len(task.Request.Schema)))

	writeStatus(t, log, `{"status":"running","progress":0}`)
	if err := w.handler.HandleJob(ctx, &task); err != nil {
		writeStatus(t, log, fmt.Sprintf(`{"status":"failed","error":%q}`, err.Error()))
		return err
	}
	writeStatus(t, log, `{"status":"completed","progress":100}`)
	return nil
}

// writeStatus records progress on the asynq task when it runs under a server.
func writeStatus(t *asynq.Task, log logger.Logger, status string) {
	rw := t.ResultWriter()
	if rw == nil {
		return
	}
	if _, err := rw.Write([]byte(status)); err != nil {
		log.Error("Failed to write task status", logger.Error(err))
	}
}

func (w *ExtractionWorker) Start(ctx context.Context) error {
	go func() {
		if err := w.server.Run(w.mux); err != nil {
			w.logger.Error("Worker server stopped", logger.Error(err))
		}
	}()

	go func() {
		select {
		case <-ctx.Done():
			w.Stop()
		case <-w.stopChan:
		}
	}()
	return nil
}
