package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ruteri/tee-capsule-ledger/api"
	"github.com/ruteri/tee-capsule-ledger/interfaces"
)

// RequestError is a transport level failure with the status to answer.
type RequestError struct {
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string { return e.Err.Error() }

func (e *RequestError) Unwrap() error { return e.Err }

func badRequest(err error) error {
	return &RequestError{StatusCode: http.StatusBadRequest, Err: err}
}

func notFound(what string) error {
	return &RequestError{StatusCode: http.StatusNotFound, Err: errors.New(what + " not found")}
}

func statusForClass(c interfaces.ErrorClass) int {
	switch c {
	case interfaces.ClassNotFound:
		return http.StatusNotFound
	case interfaces.ClassUnauthorized:
		return http.StatusForbidden
	case interfaces.ClassGuard, interfaces.ClassCapacity, interfaces.ClassProtocol:
		return http.StatusConflict
	case interfaces.ClassResource:
		return http.StatusPaymentRequired
	default:
		return http.StatusBadRequest
	}
}

func errorResponse(err error) (int, api.ErrorResponse) {
	var le *interfaces.LedgerError
	if errors.As(err, &le) {
		return statusForClass(le.Class), api.ErrorResponse{Error: le.Name, Class: le.Class.String(), Message: le.Message}
	}
	var re *RequestError
	if errors.As(err, &re) {
		return re.StatusCode, api.ErrorResponse{Error: http.StatusText(re.StatusCode), Message: re.Error()}
	}
	return http.StatusInternalServerError, api.ErrorResponse{Error: "Internal", Message: "internal server error"}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
