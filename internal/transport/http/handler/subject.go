package handler

import (
	"github.com/gin-gonic/gin"

	"bookrag/internal/app"
	"bookrag/internal/transport/http/response"
)

type SubjectHandler struct {
	catalogService *app.CatalogService
}

func NewSubjectHandler(catalogService *app.CatalogService) *SubjectHandler {
	return &SubjectHandler{catalogService: catalogService}
}

func (h *SubjectHandler) Namespaces(c *gin.Context) {
	subject := c.Param("subject")
	namespaces, err := h.catalogService.Namespaces(c.Request.Context(), subject)
	if err != nil {
		writeError(c, err)
		return
	}
	response.OK(c, gin.H{"subject": subject, "namespaces": namespaces})
}

func (h *SubjectHandler) Stats(c *gin.Context) {
	subject := c.Param("subject")
	stats, err := h.catalogService.Stats(c.Request.Context(), subject)
	if err != nil {
		writeError(c, err)
		return
	}
	response.OK(c, gin.H{"subject": subject, "namespaces": stats})
}
