package app

import "errors"

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrSessionNotFound       = errors.New("session not found")
	ErrMessageEmpty          = errors.New("message content is empty")
	ErrKnowledgeBaseNotFound = errors.New("knowledge base not found")
	ErrDocumentNotFound      = errors.New("document not found")
	ErrUnsupportedFile       = errors.New("unsupported file type")
	ErrEmptyDocument         = errors.New("document has no extractable text")
)
