package api

import (
	"encoding/json"
	"net/http"
)

// Problem is the body returned for requests that were well formed but could
// not be processed.
type Problem struct {
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// WriteUnprocessable writes a 422 problem body carrying detail.
func WriteUnprocessable(w http.ResponseWriter, detail string) {
	p := Problem{
		Title:  "Unprocessable Entity",
		Status: http.StatusUnprocessableEntity,
		Detail: detail,
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}
