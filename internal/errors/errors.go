// Package errors provides the structured error type shared by every layer:
// an HTTP status, a machine-readable code for clients, and optional
// per-field details for validation failures.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Machine-readable codes carried to clients so they can branch on failures
// without parsing messages.
type Code string

const (
	CodeNoValidSources    Code = "no_valid_sources"
	CodeCacheUnavailable  Code = "cache_unavailable"
	CodeValidationFailure Code = "validation_failure"
	CodeNameConflict      Code = "name_conflict"
	CodeNotFound          Code = "not_found"
	CodeAuthRequired      Code = "auth_required"
	CodeInternal          Code = "internal"
)

// Error is the universal error shape between the services.
type Error struct {
	Status  int
	Code    Code
	Err     error // The error this wraps
	Details []Detail
}

type Detail struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d %s: %s, details: %v", e.Status, e.Code, e.Err, e.Details)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Message joins the detail messages into the single human-readable string
// validation responses carry.
func (e *Error) Message() string {
	if len(e.Details) == 0 {
		return e.Err.Error()
	}
	parts := make([]string, 0, len(e.Details))
	for _, d := range e.Details {
		parts = append(parts, fmt.Sprintf("%s: %s", d.Field, d.Error))
	}
	return strings.Join(parts, "; ")
}

type transport struct {
	Message string   `json:"message"`
	Code    Code     `json:"code,omitempty"`
	Details []Detail `json:"details,omitempty"`
	Status  int      `json:"status"`
}

func (e *Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(transport{
		Message: e.Message(),
		Code:    e.Code,
		Details: e.Details,
		Status:  e.Status,
	})
}

func (e *Error) UnmarshalJSON(byts []byte) error {
	t := transport{}
	if err := json.Unmarshal(byts, &t); err != nil {
		return err
	}

	e.Err = errors.New(t.Message)
	e.Code = t.Code
	e.Details = t.Details
	e.Status = t.Status
	return nil
}

// E builds an Error from whatever it is handed: a string or error becomes
// the wrapped error, an int the status, a Code the code, Details are
// appended.
func E(args ...any) *Error {
	ret := &Error{
		Status: http.StatusInternalServerError,
		Code:   CodeInternal,
	}

	for _, arg := range args {
		switch arg := arg.(type) {
		case string:
			ret.Err = errors.New(arg)
		case error:
			ret.Err = arg
		case int:
			ret.Status = arg
		case Code:
			ret.Code = arg
		case Detail:
			ret.Details = append(ret.Details, arg)
		case []Detail:
			ret.Details = append(ret.Details, arg...)
		}
	}

	return ret
}
