package http

import (
	"github.com/gin-gonic/gin"

	"bookrag/internal/bootstrap"
	"bookrag/internal/transport/http/handler"
	"bookrag/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery(), middleware.Metrics(app.Metrics))

	checks := make(map[string]handler.HealthCheck)
	for name, check := range app.HealthChecks() {
		checks[name] = check
	}
	healthHandler := handler.NewHealthHandler(app.Config.App.Name, app.Config.App.Env, app.StartedAt, checks)
	router.GET("/healthz", healthHandler.Check)
	if app.Config.Metrics.Enabled && app.Metrics != nil {
		router.GET("/metrics", gin.WrapH(app.Metrics.Handler()))
	}

	queryHandler := handler.NewQueryHandler(app.Query)
	quizHandler := handler.NewQuizHandler(app.Quiz)
	ingestHandler := handler.NewIngestHandler(app.Ingest, app.Config.MaxUploadBytes())
	subjectHandler := handler.NewSubjectHandler(app.Catalog)

	v1 := router.Group("/api/v1")

	answers := v1.Group("")
	answers.Use(middleware.RequestTimeout(app.Config.RequestTimeout()))
	answers.POST("/query", queryHandler.Ask)
	answers.POST("/quiz", quizHandler.Generate)
	answers.GET("/subjects/:subject/namespaces", subjectHandler.Namespaces)
	answers.GET("/subjects/:subject/stats", subjectHandler.Stats)

	ingestGroup := v1.Group("/ingest")
	ingestGroup.POST("", ingestHandler.Stream)
	ingestGroup.POST("/jobs", ingestHandler.Enqueue)
	ingestGroup.GET("/jobs/:id", ingestHandler.JobStatus)
	ingestGroup.GET("/jobs/:id/events", ingestHandler.JobEvents)

	return router
}
