package apperrors

import (
	"encoding/json"
	"errors"
	"net/http"
)

const (
	problemTypeValidation = "https://palmyra.pro/problems/validation-error"
	problemTypeNotFound   = "https://palmyra.pro/problems/not-found"
	problemTypeForbidden  = "https://palmyra.pro/problems/forbidden"
	problemTypeConflict   = "https://palmyra.pro/problems/conflict"
	problemTypeBadRequest = "https://palmyra.pro/problems/bad-request"
	problemTypeInternal   = "https://palmyra.pro/problems/internal-error"
)

// ProblemDetails is an RFC 7807 response body.
type ProblemDetails struct {
	Type        string       `json:"type"`
	Title       string       `json:"title"`
	Status      int          `json:"status"`
	Detail      string       `json:"detail,omitempty"`
	FieldErrors []FieldError `json:"fieldErrors,omitempty"`
	Forbidden   []string     `json:"forbiddenFields,omitempty"`
}

// Problem maps any error onto a problem document. Unknown errors become internal errors
// with a generic detail so storage messages never leak to clients.
func Problem(err error) ProblemDetails {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return ProblemDetails{
			Type:        problemTypeValidation,
			Title:       "Validation error",
			Status:      http.StatusUnprocessableEntity,
			Detail:      "payload failed validation",
			FieldErrors: validationErr.Fields,
		}
	}

	var forbiddenErr *ForbiddenError
	if errors.As(err, &forbiddenErr) {
		return ProblemDetails{
			Type:      problemTypeForbidden,
			Title:     "Forbidden",
			Status:    http.StatusForbidden,
			Detail:    forbiddenErr.Error(),
			Forbidden: forbiddenErr.Fields,
		}
	}

	switch {
	case errors.Is(err, ErrForbidden):
		return ProblemDetails{Type: problemTypeForbidden, Title: "Forbidden", Status: http.StatusForbidden, Detail: "forbidden"}
	case errors.Is(err, ErrNotFound):
		return ProblemDetails{Type: problemTypeNotFound, Title: "Not found", Status: http.StatusNotFound, Detail: "resource not found"}
	case errors.Is(err, ErrConflict):
		return ProblemDetails{Type: problemTypeConflict, Title: "Conflict", Status: http.StatusConflict, Detail: err.Error()}
	case errors.Is(err, ErrBadRequest):
		return ProblemDetails{Type: problemTypeBadRequest, Title: "Bad request", Status: http.StatusBadRequest, Detail: err.Error()}
	case errors.Is(err, ErrValidation):
		return ProblemDetails{Type: problemTypeValidation, Title: "Validation error", Status: http.StatusUnprocessableEntity, Detail: err.Error()}
	default:
		return ProblemDetails{Type: problemTypeInternal, Title: "Internal error", Status: http.StatusInternalServerError, Detail: "unexpected error"}
	}
}

// WriteProblem renders err as application/problem+json.
func WriteProblem(w http.ResponseWriter, err error) ProblemDetails {
	problem := Problem(err)
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(problem.Status)
	_ = json.NewEncoder(w).Encode(problem)
	return problem
}
