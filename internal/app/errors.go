package app

import "errors"

var (
	ErrJobsDisabled   = errors.New("asynchronous ingestion is not configured")
	ErrJobNotFound    = errors.New("ingest job not found")
	ErrNoQuizMaterial = errors.New("no textbook material found for quiz topic")
)
