package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid input", NewInvalidInputError("bad status"), http.StatusBadRequest},
		{"unauthorized", NewUnauthorizedError("no session"), http.StatusUnauthorized},
		{"not found", NewNotFoundError("missing"), http.StatusNotFound},
		{"wrapped app error", fmt.Errorf("outer: %w", NewConflictError("dup")), http.StatusConflict},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusCode(tt.err))
		})
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	err := NewInvalidInputError("Invalid status value")

	assert.True(t, errors.Is(err, ErrInvalidInput))
	assert.Equal(t, "Invalid status value", err.Error())

	bare := NewAppError(ErrInternal, "", http.StatusInternalServerError)
	assert.Equal(t, ErrInternal.Error(), bare.Error())
}
