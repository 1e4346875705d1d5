package worker

import (
	"context"

	"github.com/hibiken/asynq"

	"github.com/davibasa/Enter-Fellowship-sub001/pkg/logger"
)

type Worker interface {
	Start(ctx context.Context) error
	Stop() error
}

type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Concurrency   int
	Queues        map[string]int
}

type BaseWorker struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	logger   logger.Logger
	stopChan chan struct{}
}

func (w *BaseWorker) Stop() error {
	select {
	case <-w.stopChan:
		return nil
	default:
	}
	close(w.stopChan)
	w.server.Shutdown()
	return nil
}

// Done is closed once Stop has been called.
func (w *BaseWorker) Done() <-chan struct{} {
	return w.stopChan
}
