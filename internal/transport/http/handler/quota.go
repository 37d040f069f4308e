package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jeankeim/voice-brainstorm/internal/app"
	"github.com/jeankeim/voice-brainstorm/internal/transport/http/response"
)

type QuotaHandler struct {
	chatService *app.ChatService
	dailyLimit  int
}

func NewQuotaHandler(chatService *app.ChatService, dailyLimit int) *QuotaHandler {
	return &QuotaHandler{chatService: chatService, dailyLimit: dailyLimit}
}

// Remaining reports how many chat turns the visitor has left today.
func (h *QuotaHandler) Remaining(c *gin.Context) {
	visitorID, ok := getVisitorIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	remaining, err := h.chatService.QuotaRemaining(c.Request.Context(), visitorID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "read quota failed")
		return
	}
	response.OK(c, gin.H{
		"limit":     h.dailyLimit,
		"remaining": remaining,
	})
}
