package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_StatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want int
	}{
		{"unauthenticated", Unauthorized(nil), http.StatusUnauthorized},
		{"forbidden", Forbidden(nil), http.StatusForbidden},
		{"not found", NotFound("patient", nil), http.StatusNotFound},
		{"bad request", BadRequest("bad filter", nil), http.StatusBadRequest},
		{"indeterminate", Indeterminate("patients:view_own"), http.StatusInternalServerError},
		{"internal", Internal(errors.New("boom")), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.StatusCode())
		})
	}
}

func TestAppError_IsMatchesByCode(t *testing.T) {
	wrapped := fmt.Errorf("handler: %w", Forbidden(errors.New("role gate")))

	assert.True(t, errors.Is(wrapped, ErrForbiddenKind))
	assert.False(t, errors.Is(wrapped, ErrNotFoundKind))
	assert.Equal(t, ErrForbidden, Code(wrapped))
	assert.Equal(t, ErrInternal, Code(errors.New("plain")))
}

func TestForbidden_MessageDoesNotLeakPermission(t *testing.T) {
	err := Forbidden(errors.New("role Receptionist lacks prescriptions:create"))

	assert.Equal(t, "forbidden", err.Message)
	assert.NotContains(t, err.Message, "prescriptions")
}

func TestIndeterminate_HidesDetailFromMessage(t *testing.T) {
	err := Indeterminate("patients:view_own")

	assert.Equal(t, "internal server error", err.Message)
	assert.Contains(t, err.Error(), "patients:view_own")
}
