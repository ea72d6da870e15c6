// Package apierrors defines the stable error taxonomy surfaced to HTTP
// callers and the helpers that render it.
package apierrors

import (
	"encoding/json"
	"net/http"
)

// Kind is one of the stable, externally-visible error identifiers.
type Kind string

const (
	KindGeneralUnknown        Kind = "general_unknown"
	KindGeneralRouteNotFound  Kind = "general_route_not_found"
	KindExecutionBadRequest   Kind = "execution_bad_request"
	KindExecutionTimeout      Kind = "execution_timeout"
	KindExecutionBadJSON      Kind = "execution_bad_json"
	KindRuntimeNotFound       Kind = "runtime_not_found"
	KindRuntimeConflict       Kind = "runtime_conflict"
	KindRuntimeFailed         Kind = "runtime_failed"
	KindRuntimeTimeout        Kind = "runtime_timeout"
	KindLogsTimeout           Kind = "logs_timeout"
	KindCommandTimeout        Kind = "command_timeout"
	KindCommandFailed         Kind = "command_failed"
)

// Error is the concrete type returned by every operation in this module.
// It always carries an HTTP status and implements the error interface so
// it can be returned and wrapped like any other Go error.
type Error struct {
	Type    Kind   `json:"type"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func (e *Error) Error() string {
	return e.Message
}

func new_(kind Kind, code int, message string) *Error {
	return &Error{Type: kind, Message: message, Code: code}
}

func GeneralUnknown(message string) *Error {
	return new_(KindGeneralUnknown, http.StatusInternalServerError, message)
}

func GeneralRouteNotFound(message string) *Error {
	return new_(KindGeneralRouteNotFound, http.StatusNotFound, message)
}

func ExecutionBadRequest(message string) *Error {
	return new_(KindExecutionBadRequest, http.StatusBadRequest, message)
}

func ExecutionTimeout(message string) *Error {
	return new_(KindExecutionTimeout, http.StatusRequestTimeout, message)
}

func ExecutionBadJSON(message string) *Error {
	return new_(KindExecutionBadJSON, http.StatusBadRequest, message)
}

func RuntimeNotFound(message string) *Error {
	return new_(KindRuntimeNotFound, http.StatusNotFound, message)
}

func RuntimeConflict(message string) *Error {
	return new_(KindRuntimeConflict, http.StatusConflict, message)
}

func RuntimeFailed(message string) *Error {
	return new_(KindRuntimeFailed, http.StatusInternalServerError, message)
}

// RuntimeTimeout defaults to 500; invocation cold-start timeouts use 504
// instead via RuntimeTimeoutWithCode.
func RuntimeTimeout(message string) *Error {
	return new_(KindRuntimeTimeout, http.StatusInternalServerError, message)
}

func RuntimeTimeoutWithCode(message string, code int) *Error {
	return new_(KindRuntimeTimeout, code, message)
}

func LogsTimeout(message string) *Error {
	return new_(KindLogsTimeout, http.StatusRequestTimeout, message)
}

func CommandTimeout(message string) *Error {
	return new_(KindCommandTimeout, http.StatusRequestTimeout, message)
}

func CommandFailed(message string) *Error {
	return new_(KindCommandFailed, http.StatusInternalServerError, message)
}

// As extracts an *Error from err, wrapping it as GeneralUnknown if it isn't
// already one of ours.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	if apiErr, ok := err.(*Error); ok {
		return apiErr
	}
	return GeneralUnknown(err.Error())
}

// WriteJSON writes err as the standard {type, message, code} body, with the
// status code matching err.Code.
func WriteJSON(w http.ResponseWriter, err *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Code)
	_ = json.NewEncoder(w).Encode(err)
}
