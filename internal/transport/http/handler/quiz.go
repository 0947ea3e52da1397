package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bookrag/internal/app"
	"bookrag/internal/transport/http/response"
)

type QuizHandler struct {
	quizService *app.QuizService
}

type QuizRequest struct {
	Topic   string `json:"topic"`
	Subject string `json:"subject"`
}

func NewQuizHandler(quizService *app.QuizService) *QuizHandler {
	return &QuizHandler{quizService: quizService}
}

func (h *QuizHandler) Generate(c *gin.Context) {
	var req QuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	result, err := h.quizService.Generate(c.Request.Context(), app.QuizInput{Topic: req.Topic, Subject: req.Subject})
	if err != nil {
		writeError(c, err)
		return
	}
	response.OK(c, result)
}
