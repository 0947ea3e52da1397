package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"bookrag/internal/app"
	"bookrag/internal/domain"
	"bookrag/internal/transport/http/response"
)

type QueryHandler struct {
	queryService *app.QueryService
}

type QueryRequest struct {
	Query   string `json:"query"`
	Subject string `json:"subject"`
	Count   *int   `json:"count,omitempty"`
}

type queryMatch struct {
	Text        string  `json:"text"`
	Score       float64 `json:"score"`
	ChunkNumber string  `json:"chunkNumber"`
	Namespace   string  `json:"namespace,omitempty"`
}

type QueryResponse struct {
	Results    []queryMatch    `json:"results"`
	AIResponse string          `json:"aiResponse"`
	Source     string          `json:"source"`
	HasContext bool            `json:"hasContext"`
	Decision   domain.Decision `json:"decision"`
	Error      *app.ErrorInfo  `json:"error,omitempty"`
}

func NewQueryHandler(queryService *app.QueryService) *QueryHandler {
	return &QueryHandler{queryService: queryService}
}

func (h *QueryHandler) Ask(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.queryService.Ask(c.Request.Context(), app.QueryInput{
		Query:   req.Query,
		Subject: req.Subject,
		Count:   req.Count,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	resp := QueryResponse{
		Results:    make([]queryMatch, 0, len(result.Results)),
		AIResponse: result.AIResponse.Raw,
		Source:     result.AIResponse.Source,
		HasContext: result.HasContext,
		Decision:   result.Decision,
		Error:      result.Error,
	}
	for _, m := range result.Results {
		resp.Results = append(resp.Results, queryMatch{
			Text:        m.Text,
			Score:       m.Score,
			ChunkNumber: chunkLabel(m.ChunkNumber),
			Namespace:   m.Namespace,
		})
	}
	response.OK(c, resp)
}

func chunkLabel(n int) string {
	if n < 0 {
		return "N/A"
	}
	return strconv.Itoa(n)
}
