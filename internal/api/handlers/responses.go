package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/markdave123-py/pdfmirror/internal/core"
)

type errorBody struct {
	ErrorMessage   string         `json:"error_message"`
	ErrorType      string         `json:"error_type,omitempty"`
	ErrorDetails   map[string]any `json:"error_details"`
	ErrorTraceback []string       `json:"error_traceback,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeNotFound(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusNotFound, errorBody{ErrorMessage: "Not Found: " + msg, ErrorDetails: map[string]any{}})
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{ErrorMessage: "Bad Request: " + msg, ErrorDetails: map[string]any{}})
}

func writeConflict(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusConflict, errorBody{ErrorMessage: "Conflict: " + msg, ErrorDetails: map[string]any{}})
}

func writeTooLarge(w http.ResponseWriter, limit int64) {
	writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{
		ErrorMessage: fmt.Sprintf("Request Entity Too Large: upload exceeds %d bytes", limit),
		ErrorDetails: map[string]any{"max_upload_bytes": limit},
	})
}

// writeInternal reports err with the type of its root cause and the stack
// recorded by pkg/errors, when there is one.
func writeInternal(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusInternalServerError, errorBody{
		ErrorMessage:   "Internal Server Error: " + err.Error(),
		ErrorType:      fmt.Sprintf("%T", errors.Cause(err)),
		ErrorDetails:   map[string]any{},
		ErrorTraceback: traceback(err),
	})
}

func traceback(err error) []string {
	lines := []string{}
	for _, l := range strings.Split(fmt.Sprintf("%+v", err), "\n") {
		if l = strings.TrimRight(l, " \t"); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// writeError picks the response from the error kind.
func writeError(w http.ResponseWriter, err error) {
	switch core.KindOf(err) {
	case core.KindNotFound:
		writeNotFound(w, err.Error())
	case core.KindConflict:
		writeConflict(w, err.Error())
	case core.KindBadRequest:
		writeBadRequest(w, err.Error())
	default:
		writeInternal(w, err)
	}
}
