// Package ingestion implements the write side of the accounting API:
// record creation and the one-shot update that closes a record.
package ingestion

import (
	"github.com/auditor-dev/auditor/internal/core/storage"
	"github.com/auditor-dev/auditor/internal/telemetry"
	"github.com/gin-gonic/gin"
)

// Service handles record writes against the backing store.
type Service struct {
	store            storage.RecordStore
	metrics          *telemetry.Metrics
	maxBodySizeBytes int
}

// NewService creates the ingestion service.
// maxBodySizeMB bounds request bodies; metrics may be nil in tests.
func NewService(store storage.RecordStore, metrics *telemetry.Metrics, maxBodySizeMB int) *Service {
	if maxBodySizeMB <= 0 {
		maxBodySizeMB = 1
	}
	return &Service{
		store:            store,
		metrics:          metrics,
		maxBodySizeBytes: maxBodySizeMB * 1024 * 1024,
	}
}

// RegisterRoutes registers the write routes on the given router.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.POST("/record", s.AddHandler)
	r.PUT("/record", s.UpdateHandler)
}
