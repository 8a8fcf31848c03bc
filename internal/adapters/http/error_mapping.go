package httpadapter

import (
	"net/http"

	"github.com/asporlabs/aspor-intelligence/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidModel):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrAlreadyExists):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrStatusConflict):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrUnsupportedContent):
		return http.StatusUnprocessableEntity
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
