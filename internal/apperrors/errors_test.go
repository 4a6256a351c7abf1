package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	err := New(KindForbidden, "nope")
	assert.Equal(t, KindForbidden, KindOf(err))

	wrapped := fmt.Errorf("handler: %w", err)
	assert.Equal(t, KindForbidden, KindOf(wrapped), "kind survives wrapping")

	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
	assert.Equal(t, KindInternal, KindOf(nil))
}

func TestMessageOf(t *testing.T) {
	assert.Equal(t, "nope", MessageOf(New(KindForbidden, "nope")))
	assert.Equal(t, "internal server error", MessageOf(errors.New("pq: connection refused")),
		"infrastructure detail never leaks to the caller")
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("record not found")
	err := Wrap(KindNotFound, "team not found", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "team not found", MessageOf(err))
	assert.Contains(t, err.Error(), "record not found")
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindForbidden:          http.StatusForbidden,
		KindNotFound:           http.StatusNotFound,
		KindNotEligible:        http.StatusConflict,
		KindRoleConflict:       http.StatusConflict,
		KindInvariantViolation: http.StatusConflict,
		KindNoOpTransfer:       http.StatusUnprocessableEntity,
		KindInternal:           http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.HTTPStatus(), kind.String())
	}
}
