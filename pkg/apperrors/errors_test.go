package apperrors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := InternalError(cause)

	assert.ErrorIs(t, err, cause)

	var appErr *AppError
	require.True(t, errors.As(fmt.Errorf("wrapped: %w", err), &appErr))
	assert.Equal(t, CodeInternalError, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.HTTPCode)
}

func TestDomainErrorsCarryStatusCodes(t *testing.T) {
	cases := map[*AppError]int{
		ErrConversationNotFound: http.StatusNotFound,
		ErrConversationArchived: http.StatusConflict,
		ErrEditWindowExpired:    http.StatusUnprocessableEntity,
		ErrNoChange:             http.StatusUnprocessableEntity,
		ErrPinLimitExceeded:     http.StatusConflict,
		ErrCrossConversationPin: http.StatusUnprocessableEntity,
		ErrNotMessageSender:     http.StatusForbidden,
	}
	for err, status := range cases {
		assert.Equal(t, status, err.HTTPCode, err.Message)
	}
}

func TestMarshalJSONHidesInternals(t *testing.T) {
	err := Wrap(errors.New("secret driver detail"), CodeNotFound, "chat", "Message not found", http.StatusNotFound)

	data, marshalErr := json.Marshal(err)
	require.NoError(t, marshalErr)

	assert.NotContains(t, string(data), "secret driver detail")
	assert.NotContains(t, string(data), "404")
	assert.Contains(t, string(data), "Message not found")
}
