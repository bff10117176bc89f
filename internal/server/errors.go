package server

import (
	"errors"
)

// apiError is an error that knows how it is reported over HTTP.
type apiError struct {
	class   errorClass
	errCode int
	err     error
}

func (e *apiError) Error() string {
	if e.err == nil {
		return e.class.code
	}
	return e.err.Error()
}

func (e *apiError) Unwrap() error {
	return e.err
}

// newAPIError classifies err. An error that is already classified keeps its
// original class, so the innermost decision wins.
func newAPIError(class errorClass, errCode int, err error) error {
	var existing *apiError
	if errors.As(err, &existing) {
		return existing
	}
	return &apiError{class: class, errCode: errCode, err: err}
}

func badRequestCode(err error, code int) error {
	return newAPIError(classInvalid, code, err)
}

func notFoundCode(err error, code int) error {
	return newAPIError(classNotFound, code, err)
}

func conflictCode(err error, code int) error {
	return newAPIError(classConflict, code, err)
}

func tooLarge(err error) error {
	return newAPIError(classTooLarge, ErrCodeRequestTooLarge, err)
}

func rangeNotSatisfiable(err error) error {
	return newAPIError(classUnsatisfiable, ErrCodeRangeNotSatisfiable, err)
}

func tooManyRequests(err error) error {
	return newAPIError(classExhausted, ErrCodeResourceExhausted, err)
}

func internalError(err error) error {
	return newAPIError(classInternal, ErrCodeInternal, err)
}

func storeFailure(err error) error {
	return newAPIError(classInternal, ErrCodeStoreFailure, err)
}

// classify returns the class and numeric code err is reported with.
// Unclassified errors are internal.
func classify(err error) (errorClass, int) {
	var apiErr *apiError
	if !errors.As(err, &apiErr) {
		return classInternal, ErrCodeInternal
	}
	code := apiErr.errCode
	if code == 0 {
		code = apiErr.class.defaultCode
	}
	return apiErr.class, code
}

func statusOf(err error) int {
	class, _ := classify(err)
	return class.status
}
