package handler

import (
	"net/http"

	"github.com/urban-yield/urban-api/internal/api/response"
)

const (
	serviceName    = "URBAN API"
	serviceVersion = "1.0.0"
)

// NewRootHandler returns an http.HandlerFunc for GET /.
func NewRootHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, map[string]string{"message": serviceName, "version": serviceVersion})
	}
}
