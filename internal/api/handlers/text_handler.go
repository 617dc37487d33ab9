package handlers

import (
	"context"
	"net/http"

	appMiddleware "github.com/markdave123-py/pdfmirror/internal/api/middlewares"
	"github.com/markdave123-py/pdfmirror/internal/services"
)

type TextReader interface {
	GetText(ctx context.Context, objectName string) (*services.TextResult, error)
}

type TextHandler struct {
	texts TextReader
}

func NewTextHandler(texts TextReader) *TextHandler {
	return &TextHandler{texts: texts}
}

// GetText handles GET /text?object_name=.
func (h *TextHandler) GetText(w http.ResponseWriter, r *http.Request) {
	object := r.URL.Query().Get("object_name")
	if object == "" {
		writeBadRequest(w, "object_name is required")
		return
	}

	res, err := h.texts.GetText(r.Context(), object)
	if err != nil {
		appMiddleware.LoggerFrom(r.Context()).Warn("text extraction failed", "object", object, "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
