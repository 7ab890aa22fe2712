package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorWithMessagePreservesKindAndStatus(t *testing.T) {
	derived := ErrValidationFailed.WithMessage("name is required")
	require.Equal(t, KindValidationFailed, derived.Kind())
	require.Equal(t, 400, derived.Status())
	require.Equal(t, "name is required", derived.Error())

	// The package singleton itself must be untouched.
	require.Equal(t, "Validation failed", ErrValidationFailed.Error())
}

func TestStatusAndMessageFallsBackToServerErrorForPlainErrors(t *testing.T) {
	status, msg := statusAndMessage(errBoring{})
	require.Equal(t, 500, status)
	require.Equal(t, ErrServerError.Error(), msg)
}

func TestStatusAndMessageHonorsStatusError(t *testing.T) {
	status, msg := statusAndMessage(ErrBodyTooLarge)
	require.Equal(t, 413, status)
	require.Equal(t, "Request body too large", msg)
}

type errBoring struct{}

func (errBoring) Error() string { return "boring" }

func TestStatusLineFallsBackTo500(t *testing.T) {
	require.Equal(t, "404 Not Found", StatusLine(404))
	require.Equal(t, "500 Internal Server Error", StatusLine(999))
}

func TestHeaderPresetContentType(t *testing.T) {
	require.Equal(t, "", PresetCustom.ContentType())
	require.Equal(t, "application/json; charset=utf-8", PresetJSON.ContentType())
}
