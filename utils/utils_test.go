package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNonce(t *testing.T) {
	t.Run("A fresh nonce verifies for its action", func(t *testing.T) {
		token := CreateNonce("secret", "wpforo_ai_save_task")
		assert.True(t, VerifyNonce("secret", "wpforo_ai_save_task", token))
	})

	t.Run("A nonce is bound to its action string", func(t *testing.T) {
		token := CreateNonce("secret", "wpforo_ai_save_task")
		assert.False(t, VerifyNonce("secret", "wpforo_ai_delete_task", token))
	})

	t.Run("A nonce is bound to the secret", func(t *testing.T) {
		token := CreateNonce("secret", "wpforo_ai_save_task")
		assert.False(t, VerifyNonce("other-secret", "wpforo_ai_save_task", token))
	})

	t.Run("A nonce from the previous tick still verifies", func(t *testing.T) {
		token := nonceFor("secret", "wpforo_ai_save_task", time.Now().Add(-nonceTick))
		assert.True(t, VerifyNonce("secret", "wpforo_ai_save_task", token))
	})

	t.Run("A nonce two ticks old is rejected", func(t *testing.T) {
		token := nonceFor("secret", "wpforo_ai_save_task", time.Now().Add(-2*nonceTick))
		assert.False(t, VerifyNonce("secret", "wpforo_ai_save_task", token))
	})

	t.Run("An empty token never verifies", func(t *testing.T) {
		assert.False(t, VerifyNonce("secret", "wpforo_ai_save_task", ""))
	})

	t.Run("Tokens are short hex strings", func(t *testing.T) {
		token := CreateNonce("secret", "anything")
		assert.Len(t, token, 16)
	})
}

func TestFormatTime(t *testing.T) {
	ts := time.Date(2025, 3, 9, 14, 30, 5, 0, time.UTC)
	assert.Equal(t, "2025-03-09 14:30:05", FormatTime(ts))
}
