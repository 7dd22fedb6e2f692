package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	cause := errors.New("connection refused")

	assert.Equal(t, KindStorage, KindOf(Storage("insert failed", cause)))
	assert.Equal(t, KindStorage, KindOf(fmt.Errorf("ctx: %w", Storage("insert failed", cause))))
	assert.Equal(t, KindNotFound, KindOf(NotFound("data not found")))
	assert.Equal(t, KindNotFound, KindOf(fmt.Errorf("wrapped: %w", ErrNotFound)))
	assert.Equal(t, KindUnauthorized, KindOf(ErrInvalidToken))
	assert.Equal(t, KindInternal, KindOf(cause))
}

func TestErrorUnwrapAndMessage(t *testing.T) {
	cause := errors.New("db is down")
	err := Storage("failed to list records", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "failed to list records: db is down", err.Error())
	assert.Equal(t, "failed to list records", Message(err))
	assert.Equal(t, "plain", Message(errors.New("plain")))
	assert.ErrorIs(t, NotFound("x"), ErrNotFound)
}

func TestKindMapping(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, KindNotFound.HTTPStatus())
	assert.Equal(t, http.StatusBadRequest, KindValidation.HTTPStatus())
	assert.Equal(t, http.StatusConflict, KindConflict.HTTPStatus())
	assert.Equal(t, http.StatusUnauthorized, KindUnauthorized.HTTPStatus())
	assert.Equal(t, http.StatusTooManyRequests, KindRateLimited.HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, KindStorage.HTTPStatus())

	assert.Equal(t, "VALIDATION_ERROR", KindValidation.Code())
	assert.Equal(t, "INTERNAL_SERVER_ERROR", KindStorage.Code())
}
