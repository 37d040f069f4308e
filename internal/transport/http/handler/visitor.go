package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jeankeim/voice-brainstorm/internal/app"
	"github.com/jeankeim/voice-brainstorm/internal/transport/http/middleware"
	"github.com/jeankeim/voice-brainstorm/internal/transport/http/response"
)

type VisitorHandler struct {
	visitorService *app.VisitorService
}

func NewVisitorHandler(visitorService *app.VisitorService) *VisitorHandler {
	return &VisitorHandler{visitorService: visitorService}
}

// Register mints a fresh anonymous visitor identity and its token.
func (h *VisitorHandler) Register(c *gin.Context) {
	result, err := h.visitorService.Register()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "create visitor failed")
		return
	}
	response.OK(c, result)
}

func getVisitorIDFromContext(c *gin.Context) (string, bool) {
	visitorIDAny, exists := c.Get(middleware.ContextVisitorIDKey)
	if !exists {
		return "", false
	}
	visitorID, ok := visitorIDAny.(string)
	return visitorID, ok && visitorID != ""
}
