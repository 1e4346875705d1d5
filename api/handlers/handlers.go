package handlers

import (
	"github.com/davibasa/Enter-Fellowship-sub001/internal/service/document"
	"github.com/davibasa/Enter-Fellowship-sub001/pkg/logger"
)

type Handlers struct {
	Extraction *ExtractionHandler
	Health     *HealthHandler
}

func NewHandlers(
	service document.ExtractionService,
	health Snapshotter,
	logger logger.Logger,
) *Handlers {
	return &Handlers{
		Extraction: NewExtractionHandler(service, logger),
		Health:     NewHealthHandler(health),
	}
}
