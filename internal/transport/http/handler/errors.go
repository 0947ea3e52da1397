package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"bookrag/internal/app"
	"bookrag/internal/domain"
	"bookrag/internal/transport/http/response"
)

// writeError maps the error taxonomy to a status and the response envelope.
func writeError(c *gin.Context, err error) {
	status, code := classify(err)
	message, details := domain.Headline(err), domain.Detail(err)
	if status >= http.StatusInternalServerError {
		log.Printf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
		if domain.KindOf(err) == nil && !errors.Is(err, app.ErrJobsDisabled) {
			message, details = "internal server error", err.Error()
		}
	}
	response.ErrorWithDetails(c, status, code, message, details)
}

func classify(err error) (int, int) {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrChunking):
		return http.StatusBadRequest, response.CodeBadRequest
	case errors.Is(err, app.ErrJobNotFound):
		return http.StatusNotFound, response.CodeNotFound
	case errors.Is(err, app.ErrNoQuizMaterial):
		return http.StatusUnprocessableEntity, response.CodeUnprocessable
	case errors.Is(err, domain.ErrCancelled):
		return http.StatusRequestTimeout, response.CodeRequestTimeout
	case errors.Is(err, domain.ErrIndexConnection):
		return http.StatusBadGateway, response.CodeBadGateway
	case errors.Is(err, app.ErrJobsDisabled):
		return http.StatusServiceUnavailable, response.CodeServiceUnavailable
	default:
		return http.StatusInternalServerError, response.CodeInternalServer
	}
}
