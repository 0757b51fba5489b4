package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusMapping(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, Status(Unauthenticated("no token")))
	assert.Equal(t, http.StatusForbidden, Status(Forbidden("admins only")))
	assert.Equal(t, http.StatusBadRequest, Status(Validation("bad input")))
	assert.Equal(t, http.StatusNotFound, Status(NotFound("missing")))
	assert.Equal(t, http.StatusConflict, Status(Conflict("duplicate")))
	assert.Equal(t, http.StatusInternalServerError, Status(Upstream("db down", errors.New("boom"))))

	// Error biasa dipetakan ke 500
	assert.Equal(t, http.StatusInternalServerError, Status(errors.New("plain")))
}

func TestStatusUnwrapsWrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("handler: %w", NotFound("missing user"))
	assert.Equal(t, http.StatusNotFound, Status(wrapped))
	assert.Equal(t, KindNotFound, KindOf(wrapped))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindConflict, KindOf(Conflict("dup")))
	assert.Equal(t, KindUpstream, KindOf(errors.New("plain")))
}

func TestErrorMessageAndUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Upstream("db unreachable", cause)

	assert.Contains(t, err.Error(), "upstream")
	assert.Contains(t, err.Error(), "db unreachable")
	assert.Contains(t, err.Error(), "connection refused")
	assert.ErrorIs(t, err, cause)

	// Tanpa cause, pesan tetap utuh
	assert.Equal(t, "validation: too short", Validation("too short").Error())
}
