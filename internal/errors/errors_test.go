package errors_test

import (
	stderrors "errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/veridian-labs/be-sdlc-approvals/internal/errors"
)

func TestCodeOf(t *testing.T) {
	err := errors.New(errors.ErrCodeOutOfOrder, "approver is not next in sequence")
	assert.Equal(t, errors.ErrCodeOutOfOrder, errors.CodeOf(err))

	wrapped := errors.Wrap(stderrors.New("pq: connection reset"), errors.ErrCodeInternal, "failed to load round")
	assert.Equal(t, errors.ErrCodeInternal, errors.CodeOf(wrapped))
	assert.Contains(t, wrapped.Error(), "connection reset")

	assert.Equal(t, errors.ErrCodeInternal, errors.CodeOf(stderrors.New("plain")))
}

func TestCodeOfUnwrapsChain(t *testing.T) {
	inner := errors.NotFound("approval_round", "r-1")
	outer := stderrors.Join(stderrors.New("outer"), inner)
	assert.Equal(t, errors.ErrCodeNotFound, errors.CodeOf(outer))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[errors.Code]int{
		errors.ErrCodeInvalidInput:   http.StatusBadRequest,
		errors.ErrCodeNotFound:       http.StatusNotFound,
		errors.ErrCodeConflict:       http.StatusConflict,
		errors.ErrCodeSubjectLocked:  http.StatusConflict,
		errors.ErrCodeModeLocked:     http.StatusConflict,
		errors.ErrCodeAlreadyDecided: http.StatusConflict,
		errors.ErrCodeOutOfOrder:     http.StatusConflict,
		errors.ErrCodeUnauthorized:   http.StatusUnauthorized,
		errors.ErrCodeInternal:       http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, errors.HTTPStatus(code), string(code))
	}
}
