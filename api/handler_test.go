package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"forumai/config"
	"forumai/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type envelope struct {
	Success bool                   `json:"success"`
	Data    map[string]interface{} `json:"data"`
}

func testContext(t *testing.T, method, target string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, target, nil)
	return c, w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var body envelope
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestDispatchHandler_UnknownAction(t *testing.T) {
	h := NewAPIHandler(nil, nil, nil, nil, nil)
	c, w := testContext(t, http.MethodPost, "/ajax?action=wpforo_ai_bogus")
	c.Set("action", "wpforo_ai_bogus")

	h.DispatchHandler(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeEnvelope(t, w)
	assert.False(t, body.Success)
	assert.Contains(t, body.Data["error"], "wpforo_ai_bogus")
}

func TestTaskHandlers_MissingTaskID(t *testing.T) {
	h := NewAPIHandler(nil, nil, nil, nil, nil)
	c, w := testContext(t, http.MethodPost, "/ajax?action=wpforo_ai_get_task")

	h.GetTaskHandler(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, decodeEnvelope(t, w).Success)
}

func TestNonceHandler(t *testing.T) {
	config.AppConfig.Auth.NonceSecret = "test-secret"
	h := NewAPIHandler(nil, nil, nil, nil, nil)

	t.Run("Missing action is a validation error", func(t *testing.T) {
		c, w := testContext(t, http.MethodGet, "/nonce")
		h.NonceHandler(c)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Issued nonce verifies for the requested action", func(t *testing.T) {
		c, w := testContext(t, http.MethodGet, "/nonce?action=wpforo_ai_chat_message")
		h.NonceHandler(c)
		assert.Equal(t, http.StatusOK, w.Code)
		body := decodeEnvelope(t, w)
		assert.True(t, body.Success)
		nonce, _ := body.Data["nonce"].(string)
		assert.True(t, utils.VerifyNonce("test-secret", "wpforo_ai_chat_message", nonce))
	})
}
