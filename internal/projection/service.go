// Package projection implements the read side of the accounting API:
// filtered record listings and single-record lookup.
package projection

import (
	"errors"
	"log/slog"
	"net/http"

	v1 "github.com/auditor-dev/auditor/internal/api/v1"
	httperr "github.com/auditor-dev/auditor/internal/core/errors"
	"github.com/auditor-dev/auditor/internal/core/storage"
	"github.com/gin-gonic/gin"
)

// Service serves record queries against the backing store.
type Service struct {
	store storage.RecordStore
}

func NewService(store storage.RecordStore) *Service {
	return &Service{store: store}
}

// RegisterRoutes registers the read routes on the given router.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.GET("/records", s.ListHandler)
	r.GET("/record/:record_id", s.GetHandler)
}

// ListHandler handles GET /records with the documented filter syntax
// (meta.<key>=<value>, start_time_gte=<RFC3339>, sort_by, order, ...).
// Unknown filter keys are a client error.
func (s *Service) ListHandler(c *gin.Context) {
	query, err := parseQuery(c.Request.URL.Query())
	if err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			Error:   httperr.KindBadFilter,
			Message: err.Error(),
		})
		return
	}

	records, err := s.store.GetAll(c.Request.Context(), query)
	if err != nil {
		slog.Error("Failed to query records", "error", err)
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			Error:   httperr.KindInternal,
			Message: "Failed to query records",
		})
		return
	}

	// An empty result is a 200 with an empty list, never null.
	if records == nil {
		records = []*v1.Record{}
	}
	c.JSON(http.StatusOK, records)
}

// GetHandler handles GET /record/:record_id.
func (s *Service) GetHandler(c *gin.Context) {
	id, err := v1.ParseName(c.Param("record_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			Error:   httperr.KindValidation,
			Message: err.Error(),
		})
		return
	}

	rec, err := s.store.GetOne(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, httperr.ErrorResponse{
				Error:   httperr.KindNotFound,
				Message: "Record not found",
			})
			return
		}
		slog.Error("Failed to fetch record", "error", err, "record_id", id)
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			Error:   httperr.KindInternal,
			Message: "Failed to fetch record",
		})
		return
	}

	c.JSON(http.StatusOK, rec)
}
