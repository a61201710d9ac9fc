package handler

import (
	"encoding/json"
	"net/http"

	"github.com/aria-ai/chat-engine/internal/model"
)

// writeData writes a success envelope. The HTTP status is always 200;
// clients key off the envelope code.
func writeData(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(model.Envelope[any]{
		Code:    model.EnvelopeCodeOK,
		Message: "success",
		Data:    data,
	})
}

// writeFailure writes a business failure envelope, still HTTP 200.
func writeFailure(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(model.Envelope[any]{
		Code:    code,
		Message: message,
	})
}
