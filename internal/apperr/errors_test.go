package apperr

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", NotFoundf("user %d", 3), http.StatusNotFound},
		{"invalid", Invalidf("bad id"), http.StatusBadRequest},
		{"forbidden", fmt.Errorf("topic: %w", ErrForbidden), http.StatusForbidden},
		{"configuration", Configf("cycle at section %d", 4), http.StatusInternalServerError},
		{"plain", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil))

	ae := Wrap(Configf("unknown permission %q", "x.y"))
	assert.Equal(t, CodeConfiguration, ae.Code)
	assert.Contains(t, ae.Message, "unknown permission")

	orig := &AppError{Code: 42, Message: "custom"}
	assert.Same(t, orig, Wrap(fmt.Errorf("ctx: %w", orig)))
}

func TestIsConfiguration(t *testing.T) {
	assert.True(t, IsConfiguration(fmt.Errorf("walk: %w", Configf("cycle"))))
	assert.False(t, IsConfiguration(NotFoundf("section 1")))
}
