package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/davibasa/Enter-Fellowship-sub001/config"
	"github.com/davibasa/Enter-Fellowship-sub001/internal/models"
)

const TaskTypeExtractionRun = "extraction:run"

// Priority queues, highest weight first.
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

var queueNames = []string{QueueCritical, QueueDefault, QueueLow}

// ErrTaskNotFound is returned for ids unknown to both redis and asynq.
var ErrTaskNotFound = errors.New("task not found")

const statusTTL = 24 * time.Hour

type Queue interface {
	Enqueue(ctx context.Context, task *Task) error
	GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error)
	CancelTask(ctx context.Context, taskID string) error
	SaveFinalStatus(ctx context.Context, status *TaskStatus) error
}

// Task is one queued extraction.
type Task struct {
	ID        string                   `json:"id"`
	Type      string                   `json:"type"`
	Priority  int                      `json:"priority"`
	TraceID   string                   `json:"traceId"`
	Request   models.ExtractionRequest `json:"request"`
	Metadata  map[string]string        `json:"metadata,omitempty"`
	CreatedAt time.Time                `json:"createdAt"`
}

type TaskStatus struct {
	TaskID     string           `json:"taskId"`
	TraceID    string           `json:"traceId,omitempty"`
	Status     models.JobStatus `json:"status"`
	Progress   float64          `json:"progress"`
	Error      string           `json:"error,omitempty"`
	StartedAt  time.Time        `json:"startedAt"`
	FinishedAt time.Time        `json:"finishedAt,omitempty"`
}

type AsynqQueue struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	redis     *redis.Client
	cfg       *QueueConfig
}

type QueueConfig struct {
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	MaxRetries     int
	ProcessTimeout time.Duration
}

// GetQueue connects to the redis configured in the environment.
func GetQueue() (*AsynqQueue, error) {
	rc := config.GetRedisConfig()
	return NewAsynqQueue(&QueueConfig{
		RedisAddr:      rc.Addr,
		RedisPassword:  rc.Password,
		RedisDB:        rc.DB,
		MaxRetries:     3,
		ProcessTimeout: 10 * time.Minute,
	})
}

func NewAsynqQueue(cfg *QueueConfig) (*AsynqQueue, error) {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	return &AsynqQueue{
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
		redis:     redisClient,
		cfg:       cfg,
	}, nil
}

// Redis exposes the status connection so the result cache can share it.
func (q *AsynqQueue) Redis() *redis.Client {
	return q.redis
}

func (q *AsynqQueue) Close() error {
	return errors.Join(q.client.Close(), q.inspector.Close(), q.redis.Close())
}

func (q *AsynqQueue) Enqueue(ctx context.Context, task *Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	opts := []asynq.Option{
		asynq.MaxRetry(q.cfg.MaxRetries),
		asynq.Timeout(q.cfg.ProcessTimeout),
		asynq.TaskID(task.ID),
		asynq.Queue(queueForPriority(task.Priority)),
		asynq.Retention(statusTTL),
	}

	info, err := q.client.EnqueueContext(ctx, asynq.NewTask(task.Type, payload), opts...)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	task.ID = info.ID
	return nil
}

// GetTaskStatus prefers the final status saved by the worker and falls back
// to asking asynq about live tasks.
func (q *AsynqQueue) GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	data, err := q.redis.Get(ctx, statusKey(taskID)).Bytes()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get status from redis: %w", err)
	}
	if err == nil {
		var status TaskStatus
		if err := json.Unmarshal(data, &status); err != nil {
			return nil, fmt.Errorf("failed to unmarshal status: %w", err)
		}
		return &status, nil
	}

	for _, name := range queueNames {
		info, err := q.inspector.GetTaskInfo(name, taskID)
		if err == nil {
			return convertAsynqStatus(info), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
}

// CancelTask deletes a queued task or signals a running one.
func (q *AsynqQueue) CancelTask(ctx context.Context, taskID string) error {
	for _, name := range queueNames {
		info, err := q.inspector.GetTaskInfo(name, taskID)
		if err != nil {
			continue
		}
		if info.State == asynq.TaskStateCompleted {
			return fmt.Errorf("%w: %s already finished", ErrTaskNotFound, taskID)
		}
		if info.State == asynq.TaskStateActive {
			if err := q.inspector.CancelProcessing(taskID); err != nil {
				return fmt.Errorf("failed to cancel running task: %w", err)
			}
		} else if err := q.inspector.DeleteTask(name, taskID); err != nil {
			return fmt.Errorf("failed to cancel task: %w", err)
		}
		return q.SaveFinalStatus(ctx, &TaskStatus{
			TaskID:     taskID,
			Status:     models.StatusCancelled,
			FinishedAt: time.Now(),
		})
	}
	return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
}

func (q *AsynqQueue) SaveFinalStatus(ctx context.Context, status *TaskStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	if err := q.redis.Set(ctx, statusKey(status.TaskID), data, statusTTL).Err(); err != nil {
		return fmt.Errorf("failed to save status: %w", err)
	}
	return nil
}

func statusKey(taskID string) string {
	return "job_status:" + taskID
}

func queueForPriority(priority int) string {
	switch priority {
	case 1:
		return QueueCritical
	case 2:
		return QueueDefault
	default:
		return QueueLow
	}
}

// Weights is the asynq queue priority configuration for workers.
func Weights() map[string]int {
	return map[string]int{QueueCritical: 6, QueueDefault: 3, QueueLow: 1}
}

func convertAsynqStatus(info *asynq.TaskInfo) *TaskStatus {
	status := &TaskStatus{
		TaskID:    info.ID,
		StartedAt: info.NextProcessAt,
	}

	switch info.State {
	case asynq.TaskStatePending, asynq.TaskStateScheduled:
		status.Status = models.StatusPending
	case asynq.TaskStateActive:
		status.Status = models.StatusRunning
		status.Progress = 0.5
	case asynq.TaskStateCompleted:
		status.Status = models.StatusCompleted
		status.Progress = 1.0
		status.FinishedAt = info.CompletedAt
	case asynq.TaskStateRetry:
		status.Status = models.StatusRunning
		status.Error = info.LastErr
	case asynq.TaskStateArchived:
		status.Status = models.StatusFailed
		status.Error = info.LastErr
	}
	return status
}
