package utils

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserContext(t *testing.T) {
	t.Run("SetUserContext and getters", func(t *testing.T) {
		userID := uuid.New()
		ctx := SetUserContext(context.Background(), userID, "user@example.com", "USER")

		id, ok := GetUserIDFromContext(ctx)
		assert.True(t, ok)
		assert.Equal(t, userID, id)
		assert.Equal(t, "user@example.com", GetUserEmailFromContext(ctx))
		assert.Equal(t, "USER", GetUserRoleFromContext(ctx))
		assert.False(t, IsAdmin(ctx))
	})

	t.Run("Empty context", func(t *testing.T) {
		_, ok := GetUserIDFromContext(context.Background())
		assert.False(t, ok)
		assert.Equal(t, "", GetUserEmailFromContext(context.Background()))
	})

	t.Run("Nil UUID is anonymous", func(t *testing.T) {
		ctx := SetUserContext(context.Background(), uuid.Nil, "", "")
		_, ok := GetUserIDFromContext(ctx)
		assert.False(t, ok)
	})

	t.Run("Admin role", func(t *testing.T) {
		ctx := SetUserContext(context.Background(), uuid.New(), "admin@example.com", RoleAdmin)
		assert.True(t, IsAdmin(ctx))
	})
}

func TestWriteJSONError(t *testing.T) {
	w := httptest.NewRecorder()

	WriteJSONError(w, "order not found", http.StatusNotFound)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "order not found", body["message"])
}
