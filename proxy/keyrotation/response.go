package keyrotation

import (
	"encoding/json"
	"net/http"
)

type apiRequest struct {
	Text   string `json:"text"`
	Action string `json:"action"`
}

type apiResponse struct {
	Result       string `json:"result"`
	KeyIndex     int64  `json:"keyIndex"`
	RequestCount int64  `json:"requestCount"`
	Retried      bool   `json:"retried,omitempty"`
}

type apiError struct {
	Error   string `json:"error"`
	Retried bool   `json:"retried,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, apiError{Error: msg})
}
