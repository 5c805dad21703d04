package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasCode(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(cause, CodeUnavailable, "ledger unavailable")

	assert.True(t, HasCode(err, CodeUnavailable))
	assert.False(t, HasCode(err, CodeInternal))
	assert.ErrorIs(t, err, cause)

	t.Run("code survives fmt wrapping", func(t *testing.T) {
		wrapped := fmt.Errorf("record invoice: %w", err)
		assert.True(t, HasCode(wrapped, CodeUnavailable))
		assert.Equal(t, CodeUnavailable, CodeOf(wrapped))
	})

	t.Run("nested codes are all visible", func(t *testing.T) {
		outer := Wrap(New(CodeNotFound, "subscription missing"), CodeInternal, "apply invoice")
		assert.True(t, HasCode(outer, CodeInternal))
		assert.True(t, HasCode(outer, CodeNotFound))
	})

	t.Run("plain errors default to internal", func(t *testing.T) {
		assert.Equal(t, CodeInternal, CodeOf(cause))
		assert.Nil(t, Wrap(nil, CodeInternal, "nothing"))
	})
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(CodeValidation))
	assert.Equal(t, http.StatusUnauthorized, HTTPStatus(CodeUnauthorized))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(CodeNotFound))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(Code("unknown")))
}
