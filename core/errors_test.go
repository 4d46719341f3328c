package core

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"nil", nil, http.StatusOK},
		{"validation", NewValidationError("width", "abc", "must be a positive integer"), http.StatusBadRequest},
		{"wrapped validation", fmt.Errorf("params: %w", NewValidationError("normalize", "x", "bad")), http.StatusBadRequest},
		{"not found", NewResolveError("page", "nodir/page", ErrNotFound), http.StatusNotFound},
		{"search disabled", ErrSearchDisabled, http.StatusNotFound},
		{"rate limited", ErrRateLimited, http.StatusTooManyRequests},
		{"unknown directory type", &UnknownDirectoryTypeError{Dir: "/data/x", Type: "bogus"}, http.StatusInternalServerError},
		{"decode", NewThumbnailError("decode", "a.png", ErrImageDecode), http.StatusInternalServerError},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, HTTPStatus(tt.err))
		})
	}
}

func TestErrorMessages(t *testing.T) {
	err := &UnknownDirectoryTypeError{Dir: "/data/x", Type: "bogus"}
	assert.Contains(t, err.Error(), `"bogus"`)
	assert.Contains(t, err.Error(), "/data/x")
	assert.ErrorIs(t, err, ErrUnknownDirectoryType)

	verr := NewValidationError("width", -1, "must be a positive integer")
	assert.Contains(t, verr.Error(), "width")
	assert.ErrorIs(t, verr, ErrInvalidInput)

	rerr := NewResolveError("raw", "docs/x.txt", ErrNotFound)
	assert.Equal(t, "resolve raw docs/x.txt: not found", rerr.Error())
}
