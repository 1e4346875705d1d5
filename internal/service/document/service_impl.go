package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/davibasa/Enter-Fellowship-sub001/internal/agent"
	"github.com/davibasa/Enter-Fellowship-sub001/internal/agent/labels"
	"github.com/davibasa/Enter-Fellowship-sub001/internal/models"
	"github.com/davibasa/Enter-Fellowship-sub001/internal/utils/validator"
	"github.com/davibasa/Enter-Fellowship-sub001/pkg/cache"
	"github.com/davibasa/Enter-Fellowship-sub001/pkg/converters"
	"github.com/davibasa/Enter-Fellowship-sub001/pkg/logger"
	"github.com/davibasa/Enter-Fellowship-sub001/pkg/queue"
	"github.com/davibasa/Enter-Fellowship-sub001/pkg/storage"
)

type ServiceConfig struct {
	MaxBatchSize  int
	MaxConcurrent int
	JobTimeout    time.Duration
	MaxLines      int
}

func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		MaxBatchSize:  100,
		MaxConcurrent: 5,
		JobTimeout:    10 * time.Minute,
		MaxLines:      200,
	}
}

// Deps are the collaborators of the service. Cache, Archive and Queue are
// optional; without them caching, archiving and batch jobs are off.
type Deps struct {
	Extractor  Extractor
	Detector   LabelDetector
	Processors ProcessorSource
	Converter  converters.DocumentConverter
	Validator  *validator.DocumentValidator
	Cache      cache.ResultCache
	Archive    *storage.ResultArchive
	Queue      queue.Queue
}

type Service struct {
	deps   Deps
	logger logger.Logger
	config *ServiceConfig
	now    func() time.Time
}

func NewService(deps Deps, log logger.Logger, cfg *ServiceConfig) *Service {
	if cfg == nil {
		cfg = DefaultServiceConfig()
	}
	if log == nil {
		log = logger.NewNop()
	}
	if deps.Converter == nil {
		deps.Converter = converters.NewTextConverter()
	}
	if deps.Validator == nil {
		deps.Validator = validator.NewDocumentValidator(log, nil)
	}
	return &Service{
		deps:   deps,
		logger: log.Named("extraction-service"),
		config: cfg,
		now:    time.Now,
	}
}

// ExtractText runs the pipeline, consulting the result cache when the
// request asks for it. Completed results are archived.
func (s *Service) ExtractText(ctx context.Context, req *models.ExtractionRequest) (*models.ExtractionResult, error) {
	if err := validator.ValidateExtractionRequest(req); err != nil {
		return nil, err
	}
	log := logger.FromContext(ctx, s.logger)

	useCache := req.Options.EnableCaching && s.deps.Cache != nil
	if useCache {
		if hit, ok := s.deps.Cache.Get(ctx, req); ok {
			log.Info("Serving cached result", logger.String("cachedTraceId", hit.TraceID))
			return hit, nil
		}
	}

	result, err := s.deps.Extractor.Extract(ctx, req)
	if err != nil {
		return nil, err
	}

	if useCache {
		if err := s.deps.Cache.Set(ctx, req, result); err != nil {
			log.Warn("Failed to cache result", logger.Error(err))
		}
	}
	if s.deps.Archive != nil {
		if err := s.deps.Archive.Save(ctx, result); err != nil {
			log.Warn("Failed to archive result", logger.Error(err))
		}
	}
	return result, nil
}

// ExtractFile reads the upload's text and extracts req.Schema from it.
// req.Text is ignored.
func (s *Service) ExtractFile(ctx context.Context, upload Upload, req *models.ExtractionRequest) (*FileExtraction, error) {
	doc, err := s.ReadDocument(ctx, upload)
	if err != nil {
		return nil, err
	}

	fileReq := *req
	fileReq.Text = doc.Text
	result, err := s.ExtractText(ctx, &fileReq)
	if err != nil {
		return nil, err
	}
	return &FileExtraction{Document: doc, Result: result}, nil
}

// ReadDocument validates an upload and converts it to plain text.
func (s *Service) ReadDocument(ctx context.Context, upload Upload) (*models.DocumentText, error) {
	log := logger.FromContext(ctx, s.logger).With(logger.String("fileName", upload.Name))

	check, err := s.deps.Validator.Validate(uploadFile{upload.Reader}, upload.Name, upload.Size)
	if err != nil {
		return nil, fmt.Errorf("failed to validate upload: %w", err)
	}
	if err := check.AsError(); err != nil {
		log.Warn("Upload rejected", logger.Error(err))
		return nil, err
	}

	if s.deps.Processors == nil {
		return nil, fmt.Errorf("%w: document processors", ErrUnavailable)
	}
	processor, mimeType, err := s.deps.Processors.GetProcessor(upload.Name)
	if err != nil {
		return nil, invalidUpload("UNSUPPORTED_FILE", err.Error())
	}
	if _, err := upload.Reader.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind upload: %w", err)
	}

	chunks, err := processor.Process(ctx, upload.Reader)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, invalidUpload("UNREADABLE_FILE", fmt.Sprintf("failed to read document: %v", err))
	}

	doc, err := s.deps.Converter.Convert(upload.Name, agent.FileType(mimeType), chunks)
	if errors.Is(err, converters.ErrNoText) {
		return nil, invalidUpload("NO_TEXT", err.Error())
	}
	if err != nil {
		return nil, err
	}
	log.Info("Document text extracted",
		logger.String("fileType", string(doc.FileType)),
		logger.Int("pages", doc.PageCount),
		logger.Int("textLength", len(doc.Text)),
	)
	return doc, nil
}

func invalidUpload(code, msg string) error {
	return &validator.RequestError{Errors: []validator.ValidationError{{Code: code, Message: msg, Field: "file"}}}
}

// SubmitBatch validates every request before queueing any of them.
func (s *Service) SubmitBatch(ctx context.Context, reqs []models.ExtractionRequest, priority int) ([]*models.ExtractionJob, error) {
	if s.deps.Queue == nil {
		return nil, fmt.Errorf("%w: queue", ErrUnavailable)
	}
	if len(reqs) == 0 {
		return nil, invalidBatch("EMPTY_BATCH", "batch must contain at least one request")
	}
	if len(reqs) > s.config.MaxBatchSize {
		return nil, invalidBatch("BATCH_TOO_LARGE", fmt.Sprintf("batch exceeds %d requests", s.config.MaxBatchSize))
	}
	for i := range reqs {
		if err := validator.ValidateExtractionRequest(&reqs[i]); err != nil {
			return nil, fmt.Errorf("request %d: %w", i, err)
		}
	}

	jobs := make([]*models.ExtractionJob, len(reqs))
	var mu sync.Mutex
	var submitted []string

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.MaxConcurrent)
	for i := range reqs {
		g.Go(func() error {
			job, err := s.submit(gctx, reqs[i], priority)
			if err != nil {
				return err
			}
			jobs[i] = job
			mu.Lock()
			submitted = append(submitted, job.ID)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Error("Batch submission failed",
			logger.Int("submitted", len(submitted)),
			logger.Error(err),
		)
		return nil, err
	}

	s.logger.Info("Batch submitted", logger.Int("jobs", len(jobs)), logger.Int("priority", priority))
	return jobs, nil
}

func invalidBatch(code, msg string) error {
	return &validator.RequestError{Errors: []validator.ValidationError{{Code: code, Message: msg, Field: "requests"}}}
}

func (s *Service) submit(ctx context.Context, req models.ExtractionRequest, priority int) (*models.ExtractionJob, error) {
	now := s.now()
	task := &queue.Task{
		ID:        uuid.NewString(),
		Type:      queue.TaskTypeExtractionRun,
		Priority:  priority,
		TraceID:   uuid.NewString(),
		Request:   req,
		Metadata:  map[string]string{"label": req.Label},
		CreatedAt: now,
	}
	if err := s.deps.Queue.Enqueue(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	if err := s.deps.Queue.SaveFinalStatus(ctx, &queue.TaskStatus{
		TaskID:    task.ID,
		TraceID:   task.TraceID,
		Status:    models.StatusPending,
		StartedAt: now,
	}); err != nil {
		s.logger.Warn("Failed to save initial status", logger.String("taskId", task.ID), logger.Error(err))
	}

	return &models.ExtractionJob{
		ID:        task.ID,
		Status:    models.StatusPending,
		Type:      task.Type,
		Priority:  priority,
		TraceID:   task.TraceID,
		Metadata:  task.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// HandleJob runs one queued extraction and records its final status.
func (s *Service) HandleJob(ctx context.Context, task *queue.Task) error {
	if task == nil || task.ID == "" {
		return fmt.Errorf("invalid task: missing id")
	}
	if task.TraceID != "" {
		ctx = logger.WithTraceID(ctx, task.TraceID)
	}
	log := logger.FromContext(ctx, s.logger).With(logger.String("taskId", task.ID))

	ctx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	started := s.now()
	s.saveStatus(ctx, log, &queue.TaskStatus{
		TaskID:    task.ID,
		TraceID:   task.TraceID,
		Status:    models.StatusRunning,
		Progress:  0.1,
		StartedAt: started,
	})

	result, err := s.ExtractText(ctx, &task.Request)
	final := &queue.TaskStatus{
		TaskID:     task.ID,
		TraceID:    task.TraceID,
		StartedAt:  started,
		FinishedAt: s.now(),
	}
	if err != nil {
		final.Status = models.StatusFailed
		final.Error = err.Error()
		if errors.Is(err, context.Canceled) {
			final.Status = models.StatusCancelled
		}
		// Status writes must outlive the job context.
		s.saveStatus(context.WithoutCancel(ctx), log, final)
		log.Error("Extraction job failed", logger.Error(err))
		return err
	}

	final.Status = models.StatusCompleted
	final.Progress = 1
	final.TraceID = result.TraceID
	s.saveStatus(context.WithoutCancel(ctx), log, final)
	log.Info("Extraction job completed",
		logger.Float64("confidence", result.Confidence),
		logger.Int("missing", result.Missing),
	)
	return nil
}

func (s *Service) saveStatus(ctx context.Context, log logger.Logger, status *queue.TaskStatus) {
	if s.deps.Queue == nil {
		return
	}
	if err := s.deps.Queue.SaveFinalStatus(ctx, status); err != nil {
		log.Warn("Failed to save job status", logger.String("status", string(status.Status)), logger.Error(err))
	}
}

func (s *Service) GetJobStatus(ctx context.Context, jobID string) (*models.ExtractionJob, error) {
	if s.deps.Queue == nil {
		return nil, fmt.Errorf("%w: queue", ErrUnavailable)
	}
	status, err := s.deps.Queue.GetTaskStatus(ctx, jobID)
	if err != nil {
		if errors.Is(err, queue.ErrTaskNotFound) {
			return nil, fmt.Errorf("%w: job %s", ErrNotFound, jobID)
		}
		return nil, err
	}

	updated := status.FinishedAt
	if updated.IsZero() {
		updated = status.StartedAt
	}
	return &models.ExtractionJob{
		ID:        status.TaskID,
		Status:    status.Status,
		Type:      queue.TaskTypeExtractionRun,
		Progress:  status.Progress,
		Error:     status.Error,
		TraceID:   status.TraceID,
		CreatedAt: status.StartedAt,
		UpdatedAt: updated,
	}, nil
}

func (s *Service) GetResult(ctx context.Context, traceID string) (*models.ExtractionResult, error) {
	if s.deps.Archive == nil {
		return nil, fmt.Errorf("%w: archive", ErrUnavailable)
	}
	result, err := s.deps.Archive.Load(ctx, traceID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: result %s", ErrNotFound, traceID)
		}
		return nil, err
	}
	return result, nil
}

func (s *Service) CancelJob(ctx context.Context, jobID string) error {
	if s.deps.Queue == nil {
		return fmt.Errorf("%w: queue", ErrUnavailable)
	}
	if err := s.deps.Queue.CancelTask(ctx, jobID); err != nil {
		if errors.Is(err, queue.ErrTaskNotFound) {
			return fmt.Errorf("%w: job %s", ErrNotFound, jobID)
		}
		return err
	}
	s.logger.Info("Job cancelled", logger.String("taskId", jobID))
	return nil
}

// DetectLabels finds field labels in text and returns the text without them.
func (s *Service) DetectLabels(ctx context.Context, schema models.Schema, text string) (*models.LabelDetection, error) {
	if err := validator.ValidateLabelRequest(schema, text); err != nil {
		return nil, err
	}
	if s.deps.Detector == nil {
		return nil, fmt.Errorf("%w: label detector", ErrUnavailable)
	}

	lines := make([]string, 0)
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
		if s.config.MaxLines > 0 && len(lines) == s.config.MaxLines {
			break
		}
	}

	detected, err := s.deps.Detector.DetectAll(ctx, schema, lines)
	if err != nil {
		return nil, err
	}
	if detected == nil {
		detected = []models.DetectedLabel{}
	}
	return &models.LabelDetection{
		Labels:       detected,
		StrippedText: labels.StripLabels(strings.Join(lines, "\n"), detected),
	}, nil
}

// uploadFile adds the no-op Close a multipart.File needs.
type uploadFile struct {
	File
}

func (uploadFile) Close() error {
	return nil
}
