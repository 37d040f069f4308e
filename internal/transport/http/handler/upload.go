package handler

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jeankeim/voice-brainstorm/internal/storage"
	"github.com/jeankeim/voice-brainstorm/internal/transport/http/response"
)

// maxImageUploadBytes caps chat image uploads at 8 MiB.
const maxImageUploadBytes = 8 << 20

type UploadHandler struct {
	objects storage.ObjectStorage
}

func NewUploadHandler(objects storage.ObjectStorage) *UploadHandler {
	return &UploadHandler{objects: objects}
}

// UploadImage stores a chat image and returns the URL to reference in a
// multimodal turn.
func (h *UploadHandler) UploadImage(c *gin.Context) {
	if _, ok := getVisitorIDFromContext(c); !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file")
		return
	}
	if fileHeader.Size > maxImageUploadBytes {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "file too large")
		return
	}

	switch strings.ToLower(filepath.Ext(fileHeader.Filename)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
	default:
		response.Error(c, http.StatusBadRequest, response.CodeUnsupportedFile, "unsupported image type")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "open uploaded file failed")
		return
	}
	defer file.Close()

	key, url, err := h.objects.Save(fileHeader.Filename, file)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "store image failed")
		return
	}
	response.OK(c, gin.H{"key": key, "url": url})
}
