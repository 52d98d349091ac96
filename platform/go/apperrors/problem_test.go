package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProblemMapping(t *testing.T) {
	testCases := []struct {
		name   string
		err    error
		status int
	}{
		{name: "validation", err: &ValidationError{Fields: []FieldError{{Path: "budget", Kind: "minimum", Message: "too small"}}}, status: http.StatusUnprocessableEntity},
		{name: "forbidden fields", err: &ForbiddenError{Fields: []string{"salary"}}, status: http.StatusForbidden},
		{name: "wrapped not found", err: fmt.Errorf("load: %w", NotFound("record")), status: http.StatusNotFound},
		{name: "conflict", err: Conflict("version mismatch"), status: http.StatusConflict},
		{name: "bad request", err: BadRequest("unknown field %q", "x"), status: http.StatusBadRequest},
		{name: "internal", err: errors.New("connection reset"), status: http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.status, Problem(tc.err).Status)
		})
	}
}

func TestInternalProblemHidesDetail(t *testing.T) {
	problem := Problem(errors.New("pq: password authentication failed"))
	require.Equal(t, "unexpected error", problem.Detail)
}

func TestTypedErrorsUnwrapToSentinels(t *testing.T) {
	require.ErrorIs(t, &ValidationError{}, ErrValidation)
	require.ErrorIs(t, &ForbiddenError{Action: "record:create"}, ErrForbidden)
	require.ErrorIs(t, BadRequest("x"), ErrBadRequest)
	require.ErrorIs(t, Conflict("x"), ErrConflict)
	require.ErrorIs(t, NotFound("edge"), ErrNotFound)
}

func TestWriteProblem(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteProblem(rec, &ForbiddenError{Fields: []string{"salary"}})

	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Body.String(), "salary")
}
