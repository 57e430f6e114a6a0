package errors

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCodes(t *testing.T) {
	tests := []struct {
		err    *APIError
		status int
	}{
		{NotFound("conversation"), http.StatusNotFound},
		{Unauthorized("no token"), http.StatusUnauthorized},
		{Forbidden("not a participant"), http.StatusForbidden},
		{ValidationError("images", "too few"), http.StatusUnprocessableEntity},
		{RateLimited(""), http.StatusTooManyRequests},
		{ServiceUnavailable("storage"), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(string(tt.err.Code), func(t *testing.T) {
			assert.Equal(t, tt.status, tt.err.Status)
		})
	}
	assert.Equal(t, http.StatusInternalServerError, ErrorCode("UNKNOWN").StatusCode())
}

func TestErrorString(t *testing.T) {
	assert.Equal(t, "NOT_FOUND: product not found", NotFound("product").Error())
	assert.Equal(t, "VALIDATION_ERROR: too few (field: images)", ValidationError("images", "too few").Error())
	assert.Equal(t, "rate limit exceeded", RateLimited("").Message)
	assert.Equal(t, "retry later", BadRequest("x").WithDetails("retry later").Details)
}
