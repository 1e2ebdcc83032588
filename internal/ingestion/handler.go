package ingestion

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	v1 "github.com/auditor-dev/auditor/internal/api/v1"
	httperr "github.com/auditor-dev/auditor/internal/core/errors"
	"github.com/auditor-dev/auditor/internal/core/storage"
	"github.com/gin-gonic/gin"
)

const (
	msgReadBodyFailed  = "Failed to read request body"
	msgInvalidRecord   = "Invalid record body"
	msgPersistFailed   = "Failed to persist record"
	msgDuplicateRecord = "Record already exists"
	msgRecordNotFound  = "Record not found"
	msgAlreadyClosed   = "Record already has a different stop_time"
)

// writeError carries the structured HTTP error shape from a helper back to
// the handler. Helpers return this instead of writing to gin.Context
// directly, keeping them decoupled from HTTP.
type writeError struct {
	statusCode int
	kind       string
	message    string
}

func (e *writeError) Error() string {
	return e.message
}

// AddHandler handles POST /record.
func (s *Service) AddHandler(c *gin.Context) {
	var add v1.RecordAdd
	if werr := s.decodeBody(c, &add); werr != nil {
		s.reject(c, werr)
		return
	}
	if err := add.Validate(); err != nil {
		slog.Warn("Record validation failed", "error", err, "record_id", add.RecordID)
		s.reject(c, &writeError{
			statusCode: http.StatusBadRequest,
			kind:       httperr.KindValidation,
			message:    err.Error(),
		})
		return
	}

	if err := s.store.Insert(c.Request.Context(), &add); err != nil {
		s.reject(c, classifyStoreError(err, add.RecordID))
		return
	}

	slog.Info("Added record", "record_id", add.RecordID, "components", len(add.Components))
	if s.metrics != nil {
		s.metrics.RecordsIngested.Inc()
	}
	c.JSON(http.StatusOK, v1.NewRecord(add))
}

// UpdateHandler handles PUT /record.
func (s *Service) UpdateHandler(c *gin.Context) {
	var upd v1.RecordUpdate
	if werr := s.decodeBody(c, &upd); werr != nil {
		s.reject(c, werr)
		return
	}
	if err := upd.Validate(); err != nil {
		slog.Warn("Update validation failed", "error", err, "record_id", upd.RecordID)
		s.reject(c, &writeError{
			statusCode: http.StatusBadRequest,
			kind:       httperr.KindValidation,
			message:    err.Error(),
		})
		return
	}

	rec, err := s.store.Update(c.Request.Context(), &upd)
	if err != nil {
		s.reject(c, classifyStoreError(err, upd.RecordID))
		return
	}

	slog.Info("Updated record", "record_id", rec.RecordID, "runtime", rec.Runtime)
	if s.metrics != nil {
		s.metrics.RecordsUpdated.Inc()
	}
	c.JSON(http.StatusOK, rec)
}

// decodeBody reads the size-limited request body and unmarshals it into
// dst. Field-level validation happens inside the unmarshalers, so an
// invalid name or negative amount fails the whole record here.
func (s *Service) decodeBody(c *gin.Context, dst interface{}) *writeError {
	maxBytes := int64(s.maxBodySizeBytes)
	limitedBody := io.LimitReader(c.Request.Body, maxBytes+1)

	bodyBytes, err := io.ReadAll(limitedBody)
	if err != nil {
		slog.Error("Failed to read request body", "error", err)
		return &writeError{
			statusCode: http.StatusInternalServerError,
			kind:       httperr.KindInternal,
			message:    msgReadBodyFailed,
		}
	}

	if int64(len(bodyBytes)) > maxBytes {
		slog.Warn("Request body exceeds maximum size", "size", len(bodyBytes), "max", maxBytes)
		return &writeError{
			statusCode: http.StatusRequestEntityTooLarge,
			kind:       httperr.KindValidation,
			message:    "Request body exceeds maximum allowed size",
		}
	}

	if err := json.Unmarshal(bodyBytes, dst); err != nil {
		slog.Warn("Invalid record body received", "error", err, "payload_size", len(bodyBytes))
		return &writeError{
			statusCode: http.StatusBadRequest,
			kind:       httperr.KindValidation,
			message:    msgInvalidRecord + ": " + err.Error(),
		}
	}
	return nil
}

// classifyStoreError maps store errors onto the HTTP status policy.
func classifyStoreError(err error, recordID v1.Name) *writeError {
	switch {
	case errors.Is(err, storage.ErrDuplicate):
		slog.Info("Duplicate record rejected", "record_id", recordID)
		return &writeError{
			statusCode: http.StatusConflict,
			kind:       httperr.KindDuplicate,
			message:    msgDuplicateRecord,
		}
	case errors.Is(err, storage.ErrNotFound):
		slog.Info("Update for unknown record rejected", "record_id", recordID)
		return &writeError{
			statusCode: http.StatusNotFound,
			kind:       httperr.KindNotFound,
			message:    msgRecordNotFound,
		}
	case errors.Is(err, storage.ErrAlreadyClosed):
		slog.Info("Update for closed record rejected", "record_id", recordID)
		return &writeError{
			statusCode: http.StatusBadRequest,
			kind:       httperr.KindAlreadyClosed,
			message:    msgAlreadyClosed,
		}
	case errors.Is(err, storage.ErrInvalidUpdate):
		slog.Info("Inconsistent update rejected", "record_id", recordID, "error", err)
		return &writeError{
			statusCode: http.StatusBadRequest,
			kind:       httperr.KindValidation,
			message:    err.Error(),
		}
	default:
		slog.Error("Failed to persist record", "error", err, "record_id", recordID)
		return &writeError{
			statusCode: http.StatusInternalServerError,
			kind:       httperr.KindInternal,
			message:    msgPersistFailed,
		}
	}
}

// reject serializes a writeError as the JSON HTTP response.
func (s *Service) reject(c *gin.Context, werr *writeError) {
	if s.metrics != nil {
		s.metrics.RequestsRejected.WithLabelValues(werr.kind).Inc()
	}
	c.JSON(werr.statusCode, httperr.ErrorResponse{
		Error:   werr.kind,
		Message: werr.message,
	})
}
