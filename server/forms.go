package server

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/tbxark/formchat/document"
	"github.com/tbxark/formchat/types"
)

// GenerateFormRequest asks for a form schema from a description or an image of a form.
type GenerateFormRequest struct {
	Request  string `json:"request,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// GenerateForm drafts a form schema.
// POST /v1/forms/generate
func (h *Handler) GenerateForm(c echo.Context) error {
	if h.forms == nil {
		return c.JSON(http.StatusNotImplemented, map[string]string{"error": "form generation is not configured"})
	}
	var req GenerateFormRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	ctx := c.Request().Context()
	var (
		form types.FormSchema
		err  error
	)
	switch {
	case req.ImageURL != "":
		form, err = h.forms.FromImage(ctx, req.ImageURL)
	case strings.TrimSpace(req.Request) != "":
		form, err = h.forms.FromRequest(ctx, req.Request)
	default:
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "request or image_url is required"})
	}
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, form)
}

// ListDocuments lists uploaded documents.
// GET /v1/documents
func (h *Handler) ListDocuments(c echo.Context) error {
	if h.documents == nil {
		return c.JSON(http.StatusNotImplemented, map[string]string{"error": "documents are not configured"})
	}
	docs, err := h.documents.ListDocuments(c.Request().Context())
	if err != nil {
		return errorJSON(c, err)
	}
	if docs == nil {
		docs = []*document.Document{}
	}
	return c.JSON(http.StatusOK, map[string]any{"documents": docs})
}

// CreateDocument registers a document and its page images.
// POST /v1/documents
func (h *Handler) CreateDocument(c echo.Context) error {
	if h.documents == nil {
		return c.JSON(http.StatusNotImplemented, map[string]string{"error": "documents are not configured"})
	}
	var doc document.Document
	if err := c.Bind(&doc); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if doc.Name == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "name is required"})
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.Images == nil {
		doc.Images = []string{}
	}
	if err := h.documents.SaveDocument(c.Request().Context(), &doc); err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusCreated, doc)
}
