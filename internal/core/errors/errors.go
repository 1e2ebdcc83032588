package errors

// Error kinds serialized in the "error" field of API error bodies.
const (
	KindInternal      = "internal_error"
	KindValidation    = "validation"
	KindBadFilter     = "bad_filter"
	KindNotFound      = "not_found"
	KindDuplicate     = "duplicate"
	KindAlreadyClosed = "already_closed"
)

// ErrorResponse is the error body returned by every API endpoint.
// Internal error chains are logged server-side, never serialized here.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
