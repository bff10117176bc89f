package server

import "net/http"

// Numeric error codes returned in the "error_code" field. The thousands digit
// is the family; values are stable across releases.
const (
	// Validation (1xxx)
	ErrCodeInvalidArgument     = 1000
	ErrCodeInvalidJSON         = 1001
	ErrCodeRequestTooLarge     = 1002
	ErrCodeInvalidQuery        = 1003
	ErrCodeInvalidID           = 1004
	ErrCodeInvalidMediaType    = 1005
	ErrCodeMediaTypeNotAllowed = 1006
	ErrCodeInvalidMultipart    = 1007
	ErrCodeMissingRequired     = 1009
	ErrCodeRangeNotSatisfiable = 1015

	// Domain state (2xxx)
	ErrCodeMediaNotFound = 2001
	ErrCodeBlobReclaimed = 2002

	// Limits (3xxx)
	ErrCodeResourceExhausted = 3003

	// Internal/system (4xxx)
	ErrCodeInternal     = 4001
	ErrCodeStoreFailure = 4002
)

// errorClass ties an HTTP status to its string code and the numeric code used
// when the error does not name a more specific one.
type errorClass struct {
	status      int
	code        string
	defaultCode int
}

var (
	classInvalid       = errorClass{http.StatusBadRequest, "invalid_argument", ErrCodeInvalidArgument}
	classNotFound      = errorClass{http.StatusNotFound, "not_found", ErrCodeMediaNotFound}
	classConflict      = errorClass{http.StatusConflict, "conflict", ErrCodeBlobReclaimed}
	classTooLarge      = errorClass{http.StatusRequestEntityTooLarge, "request_too_large", ErrCodeRequestTooLarge}
	classUnsatisfiable = errorClass{http.StatusRequestedRangeNotSatisfiable, "range_not_satisfiable", ErrCodeRangeNotSatisfiable}
	classExhausted     = errorClass{http.StatusTooManyRequests, "resource_exhausted", ErrCodeResourceExhausted}
	classInternal      = errorClass{http.StatusInternalServerError, "internal", ErrCodeInternal}
)

// noisy reports whether rejections of this class deserve a warn log.
func (c errorClass) noisy() bool {
	return c.status == http.StatusRequestEntityTooLarge || c.status == http.StatusTooManyRequests
}
