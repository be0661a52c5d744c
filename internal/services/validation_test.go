package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationHelper_ValidateStruct(t *testing.T) {
	vh := NewValidationHelper()

	t.Run("valid movement request", func(t *testing.T) {
		req := TopUpRequest{UserID: 1, AssetCode: "GOLD", Amount: 100, IdempotencyKey: "k1"}
		assert.NoError(t, vh.ValidateStruct(&req))
	})

	t.Run("missing idempotency key", func(t *testing.T) {
		req := TopUpRequest{UserID: 1, AssetCode: "GOLD", Amount: 100}
		assert.Error(t, vh.ValidateStruct(&req))
	})

	t.Run("zero amount", func(t *testing.T) {
		req := SpendRequest{UserID: 1, AssetCode: "GOLD", Amount: 0, IdempotencyKey: "k1"}
		assert.Error(t, vh.ValidateStruct(&req))
	})

	t.Run("oversized asset code", func(t *testing.T) {
		req := TransferRequest{
			FromUserID:     1,
			ToUserID:       2,
			AssetCode:      "THIS_ASSET_CODE_IS_FAR_TOO_LONG_TO_BE_VALID",
			Amount:         10,
			IdempotencyKey: "k1",
		}
		assert.Error(t, vh.ValidateStruct(&req))
	})
}

func TestSendErrorResponse(t *testing.T) {
	t.Run("plain error", func(t *testing.T) {
		w := httptest.NewRecorder()
		SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "Account not found", resp.Error)
		assert.Empty(t, resp.Details)
	})

	t.Run("validation details are included per field", func(t *testing.T) {
		vh := NewValidationHelper()
		err := vh.ValidateStruct(&TopUpRequest{UserID: 1, AssetCode: "GOLD"})
		require.Error(t, err)

		w := httptest.NewRecorder()
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Contains(t, resp.Details, "Amount")
		assert.Contains(t, resp.Details, "IdempotencyKey")
	})
}
