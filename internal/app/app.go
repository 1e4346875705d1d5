package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/davibasa/Enter-Fellowship-sub001/config"
	"github.com/davibasa/Enter-Fellowship-sub001/internal/agent"
	"github.com/davibasa/Enter-Fellowship-sub001/internal/agent/document/ocr"
	"github.com/davibasa/Enter-Fellowship-sub001/internal/agent/labels"
	"github.com/davibasa/Enter-Fellowship-sub001/internal/agent/nlp"
	"github.com/davibasa/Enter-Fellowship-sub001/internal/service/document"
	"github.com/davibasa/Enter-Fellowship-sub001/internal/service/extraction"
	"github.com/davibasa/Enter-Fellowship-sub001/pkg/cache"
	"github.com/davibasa/Enter-Fellowship-sub001/pkg/health"
	"github.com/davibasa/Enter-Fellowship-sub001/pkg/logger"
	"github.com/davibasa/Enter-Fellowship-sub001/pkg/queue"
	"github.com/davibasa/Enter-Fellowship-sub001/pkg/storage"
)

// Runtime is a fully wired service plus the resources it owns.
type Runtime struct {
	Service *document.Service
	Health  *health.Reporter
	Archive *storage.ResultArchive
	Queue   *queue.AsynqQueue

	processors *agent.ProcessorFactory
}

// Build wires the pipeline from cfg. With backends set it also
// connects redis (queue, cache) and object storage (archive); the CLI runs
// without them.
func Build(ctx context.Context, cfg *config.ExtractionConfig, log logger.Logger, backends bool) (*Runtime, error) {
	clients := nlp.NewClients(cfg.Remote, &http.Client{}, log)
	detector := labels.NewDetector(cfg.Labels, clients.Embedding, log)
	orchestrator := extraction.NewOrchestrator(extraction.DepsFromClients(clients, detector), cfg.Pipeline, log)

	imageProcessor, err := ocr.NewProcessor(ctx, log)
	if err != nil {
		log.Warn("Image uploads disabled", logger.Error(err))
	}
	factory := agent.NewProcessorFactory(log, imageProcessor)

	rt := &Runtime{
		Health:     health.NewReporter(clients.Probes(), 5*time.Second, log),
		processors: factory,
	}
	deps := document.Deps{
		Extractor:  orchestrator,
		Detector:   detector,
		Processors: factory,
	}

	if backends {
		rc := config.GetRedisConfig()
		q, err := queue.NewAsynqQueue(&queue.QueueConfig{
			RedisAddr:      rc.Addr,
			RedisPassword:  rc.Password,
			RedisDB:        rc.DB,
			MaxRetries:     cfg.Worker.MaxRetries,
			ProcessTimeout: cfg.Worker.JobTimeout,
		})
		if err != nil {
			return nil, err
		}
		rt.Queue = q
		deps.Queue = q
		deps.Cache = cache.NewRedisCache(q.Redis(), cfg.Cache.TTL, log)

		if cfg.Storage.Type != "none" {
			store, err := storage.NewStorage(storage.StorageType(cfg.Storage.Type), log)
			if err != nil {
				log.Warn("Result archive disabled", logger.String("storage", cfg.Storage.Type), logger.Error(err))
			} else {
				rt.Archive = storage.NewResultArchive(store, log)
				deps.Archive = rt.Archive
			}
		}
	}

	svcCfg := document.DefaultServiceConfig()
	svcCfg.MaxConcurrent = cfg.Worker.Concurrency
	svcCfg.JobTimeout = cfg.Worker.JobTimeout
	svcCfg.MaxLines = cfg.Pipeline.MaxLines
	rt.Service = document.NewService(deps, log, svcCfg)
	return rt, nil
}

func (r *Runtime) Close() error {
	var errs []error
	if r.processors != nil {
		errs = append(errs, r.processors.Close())
	}
	if r.Queue != nil {
		errs = append(errs, r.Queue.Close())
	}
	return errors.Join(errs...)
}
