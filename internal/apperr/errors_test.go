package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindValidation, KindOf(Validation("Invalid body")))
	assert.Equal(t, KindNotFound, KindOf(fmt.Errorf("lookup: %w", NotFound("User not found"))))
	assert.Equal(t, KindUpstream, KindOf(errors.New("boom")))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(KindConfiguration))
	assert.Equal(t, http.StatusUnauthorized, HTTPStatus(KindAuthentication))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(KindValidation))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(KindNotFound))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(KindUpstream))
}

func TestUpstreamUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Upstream("Failed to process webhook", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "Failed to process webhook: connection refused", err.Error())
	assert.Equal(t, "Failed to process webhook", err.Message)
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(NotFound("User not found")))
	assert.False(t, IsNotFound(Validation("x")))
	assert.False(t, IsNotFound(nil))
}
