package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/davibasa/Enter-Fellowship-sub001/pkg/health"
)

// Snapshotter reports adapter circuit states.
type Snapshotter interface {
	Snapshot() []health.Status
}

type HealthHandler struct {
	reporter Snapshotter
}

func NewHealthHandler(reporter Snapshotter) *HealthHandler {
	return &HealthHandler{reporter: reporter}
}

// Check answers 200 even with open circuits; those only degrade results.
func (h *HealthHandler) Check(c *gin.Context) {
	var adapters []health.Status
	if h.reporter != nil {
		adapters = h.reporter.Snapshot()
	}
	status := "ok"
	for _, a := range adapters {
		if !a.Serving {
			status = "degraded"
			break
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": status, "adapters": adapters})
}
