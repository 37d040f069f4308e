package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jeankeim/voice-brainstorm/internal/app"
	"github.com/jeankeim/voice-brainstorm/internal/transport/http/response"
)

type KnowledgeHandler struct {
	knowledgeService *app.KnowledgeService
}

func NewKnowledgeHandler(knowledgeService *app.KnowledgeService) *KnowledgeHandler {
	return &KnowledgeHandler{knowledgeService: knowledgeService}
}

type CreateKnowledgeBaseRequest struct {
	Name        string `json:"name" binding:"required,max=128"`
	Description string `json:"description" binding:"max=512"`
}

func (h *KnowledgeHandler) CreateKnowledgeBase(c *gin.Context) {
	visitorID, ok := getVisitorIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req CreateKnowledgeBaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	kb, err := h.knowledgeService.CreateKnowledgeBase(app.CreateKnowledgeBaseInput{
		UserID:      visitorID,
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "create knowledge base failed")
		}
		return
	}
	response.OK(c, kb)
}

func (h *KnowledgeHandler) ListKnowledgeBases(c *gin.Context) {
	visitorID, ok := getVisitorIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	kbs, err := h.knowledgeService.ListKnowledgeBases(visitorID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list knowledge bases failed")
		return
	}
	response.OK(c, kbs)
}

type UpdateKnowledgeBaseRequest struct {
	Name        string `json:"name" binding:"required,max=128"`
	Description string `json:"description" binding:"max=512"`
}

func (h *KnowledgeHandler) UpdateKnowledgeBase(c *gin.Context) {
	visitorID, ok := getVisitorIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req UpdateKnowledgeBaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	kb, err := h.knowledgeService.UpdateKnowledgeBase(app.UpdateKnowledgeBaseInput{
		UserID:      visitorID,
		KBID:        c.Param("id"),
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrKnowledgeBaseNotFound):
			response.Error(c, http.StatusNotFound, response.CodeKnowledgeNotFound, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "update knowledge base failed")
		}
		return
	}
	response.OK(c, kb)
}

func (h *KnowledgeHandler) DeleteKnowledgeBase(c *gin.Context) {
	visitorID, ok := getVisitorIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	kbID := c.Param("id")
	if err := h.knowledgeService.DeleteKnowledgeBase(c.Request.Context(), visitorID, kbID); err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrKnowledgeBaseNotFound):
			response.Error(c, http.StatusNotFound, response.CodeKnowledgeNotFound, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "delete knowledge base failed")
		}
		return
	}
	response.OK(c, gin.H{"deleted_kb_id": kbID})
}

func (h *KnowledgeHandler) UploadDocument(c *gin.Context) {
	visitorID, ok := getVisitorIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "open uploaded file failed")
		return
	}
	defer file.Close()

	doc, err := h.knowledgeService.UploadDocument(c.Request.Context(), app.UploadDocumentInput{
		UserID:      visitorID,
		KBID:        c.Param("id"),
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
	}, file)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrUnsupportedFile):
			response.Error(c, http.StatusBadRequest, response.CodeUnsupportedFile, err.Error())
		case errors.Is(err, app.ErrEmptyDocument):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrKnowledgeBaseNotFound):
			response.Error(c, http.StatusNotFound, response.CodeKnowledgeNotFound, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "upload document failed")
		}
		return
	}
	response.OK(c, doc)
}

func (h *KnowledgeHandler) ListDocuments(c *gin.Context) {
	visitorID, ok := getVisitorIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	docs, err := h.knowledgeService.ListDocuments(visitorID, c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrKnowledgeBaseNotFound):
			response.Error(c, http.StatusNotFound, response.CodeKnowledgeNotFound, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list documents failed")
		}
		return
	}
	response.OK(c, docs)
}

func (h *KnowledgeHandler) DeleteDocument(c *gin.Context) {
	visitorID, ok := getVisitorIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	kbID := c.Param("id")
	docID := c.Param("doc_id")
	if err := h.knowledgeService.DeleteDocument(c.Request.Context(), visitorID, kbID, docID); err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrKnowledgeBaseNotFound):
			response.Error(c, http.StatusNotFound, response.CodeKnowledgeNotFound, err.Error())
		case errors.Is(err, app.ErrDocumentNotFound):
			response.Error(c, http.StatusNotFound, response.CodeDocumentNotFound, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "delete document failed")
		}
		return
	}
	response.OK(c, gin.H{"deleted_doc_id": docID})
}
