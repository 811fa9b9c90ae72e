package api

import (
	"net/http"

	"forumai/utils"

	"github.com/gin-gonic/gin"
)

// chatMessageRequest is the payload for wpforo_ai_chat_message. An empty
// conversation UID starts a new conversation.
type chatMessageRequest struct {
	UserID          string `json:"user_id"`
	ConversationUID string `json:"conversation_uid"`
	Message         string `json:"message"`
}

// ChatMessageHandler handles one chatbot turn and returns the rendered
// assistant reply.
func (h *APIHandler) ChatMessageHandler(c *gin.Context) {
	var req chatMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendJSONError(c, http.StatusBadRequest, "Invalid request body.", err)
		return
	}
	if req.UserID == "" {
		utils.SendJSONError(c, http.StatusBadRequest, "user_id is required.", nil)
		return
	}
	if req.Message == "" {
		utils.SendJSONError(c, http.StatusBadRequest, "message is required.", nil)
		return
	}

	reply, err := h.chat.SendMessage(c.Request.Context(), req.UserID, req.ConversationUID, req.Message)
	if err != nil {
		utils.SendJSONError(c, http.StatusBadGateway, "The assistant is unavailable right now. Please try again.", err)
		return
	}
	utils.SendJSONSuccess(c, reply)
}

// ChatHistoryHandler returns a conversation's messages in order.
func (h *APIHandler) ChatHistoryHandler(c *gin.Context) {
	userID := c.Query("user_id")
	convUID := c.Query("conversation_uid")
	if userID == "" || convUID == "" {
		utils.SendJSONError(c, http.StatusBadRequest, "user_id and conversation_uid are required.", nil)
		return
	}
	messages, err := h.chat.History(userID, convUID)
	if err != nil {
		utils.SendJSONError(c, http.StatusForbidden, "Could not load conversation.", err)
		return
	}
	utils.SendJSONSuccess(c, gin.H{"messages": messages})
}

// ChatListHandler returns the user's conversations, most recent first.
func (h *APIHandler) ChatListHandler(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		utils.SendJSONError(c, http.StatusBadRequest, "user_id is required.", nil)
		return
	}
	conversations, err := h.chat.ListConversations(userID)
	if err != nil {
		utils.SendJSONError(c, http.StatusInternalServerError, "", err)
		return
	}
	utils.SendJSONSuccess(c, gin.H{"conversations": conversations})
}
