package httpapi

import (
	"encoding/json"
	"net/http"
)

const ContentType = "application/json; charset=utf-8"

// ErrorEnvelope is the body of every JSON error response. Meta carries the
// request id and, for validation failures, one entry per rejected field.
type ErrorEnvelope struct {
	Message string            `json:"message"`
	Code    string            `json:"code"`
	Meta    map[string]string `json:"meta,omitempty"`
}

// RequestMeta builds error meta holding requestID plus key/value pairs.
// It returns nil when there is nothing to report.
func RequestMeta(requestID string, kv ...string) map[string]string {
	if requestID == "" && len(kv) < 2 {
		return nil
	}
	meta := make(map[string]string, 1+len(kv)/2)
	if requestID != "" {
		meta["request_id"] = requestID
	}
	for i := 0; i+1 < len(kv); i += 2 {
		meta[kv[i]] = kv[i+1]
	}
	return meta
}

// WriteJSON writes payload with status. A nil payload or a 204 sends headers only.
func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	if w == nil {
		return nil
	}
	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(status)
	if payload == nil || status == http.StatusNoContent {
		return nil
	}
	return json.NewEncoder(w).Encode(payload)
}

func WriteError(w http.ResponseWriter, status int, code, message string, meta map[string]string) error {
	return WriteJSON(w, status, &ErrorEnvelope{
		Code:    code,
		Message: message,
		Meta:    meta,
	})
}
