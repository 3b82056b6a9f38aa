package core_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stridehq/subscription-engine/core"
)

func TestJSON(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	err := core.JSON(rec, http.StatusCreated, map[string]any{"success": true})
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])
}

func TestJSONError(t *testing.T) {
	t.Parallel()

	t.Run("http error picks its own status and key", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		require.NoError(t, core.JSONError(rec, core.ErrPaymentRequired.WithMessage("Subscription required")))

		assert.Equal(t, http.StatusPaymentRequired, rec.Code)

		var body struct {
			Error core.ErrorDetail `json:"error"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "payment_required", body.Error.Code)
		assert.Equal(t, "Subscription required", body.Error.Message)
	})

	t.Run("wrapped http error is unwrapped", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		wrapped := errors.Join(core.ErrNotFound, errors.New("no subscription row"))
		require.NoError(t, core.JSONError(rec, wrapped))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("unknown error never leaks its text", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		require.NoError(t, core.JSONError(rec, errors.New("pgx: connection refused")))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "pgx")
	})
}
