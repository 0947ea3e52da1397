package app

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"bookrag/internal/domain"
	"bookrag/internal/ingest"
	"bookrag/internal/model"
)

type IngestRunner interface {
	Run(ctx context.Context, doc domain.Document, events chan<- domain.ProgressEvent) (*ingest.Report, error)
}

type JobPublisher interface {
	Publish(ctx context.Context, job model.IngestJob) error
}

type JobStore interface {
	Record(ctx context.Context, jobID string, ev domain.ProgressEvent) error
	Last(ctx context.Context, jobID string) (domain.ProgressEvent, bool, error)
	Events(ctx context.Context, jobID string) ([]domain.ProgressEvent, error)
}

type IngestInput struct {
	Name      string
	Subject   string
	Namespace string
	Source    string
	Text      string
}

func (in IngestInput) document() domain.Document {
	return domain.Document{
		Name:      strings.TrimSpace(in.Name),
		Subject:   strings.TrimSpace(in.Subject),
		Namespace: strings.TrimSpace(in.Namespace),
		Source:    in.Source,
		Text:      in.Text,
	}
}

type IngestService struct {
	runner    IngestRunner
	publisher JobPublisher
	store     JobStore
}

// NewIngestService builds the service. Publisher and store may be nil, in
// which case only synchronous ingestion is available.
func NewIngestService(runner IngestRunner, publisher JobPublisher, store JobStore) *IngestService {
	return &IngestService{runner: runner, publisher: publisher, store: store}
}

func (s *IngestService) JobsEnabled() bool {
	return s.publisher != nil && s.store != nil
}

// Ingest runs the whole pipeline for one document. Events are forwarded
// to events when it is non-nil.
func (s *IngestService) Ingest(ctx context.Context, input IngestInput, events chan<- domain.ProgressEvent) (*ingest.Report, error) {
	return s.runner.Run(ctx, input.document(), events)
}

// Enqueue validates input, records the job as queued and publishes it.
func (s *IngestService) Enqueue(ctx context.Context, input IngestInput) (string, error) {
	if !s.JobsEnabled() {
		return "", ErrJobsDisabled
	}
	doc := input.document()
	if err := domain.ValidateSubject(doc.Subject); err != nil {
		return "", err
	}
	if doc.Name == "" {
		return "", domain.Errorf(domain.ErrValidation, "enqueue", "document name is required")
	}
	if strings.TrimSpace(doc.Text) == "" {
		return "", domain.Errorf(domain.ErrChunking, "enqueue", "document %q has no text", doc.Name)
	}

	job := model.IngestJob{ID: uuid.NewString(), Document: doc, EnqueuedAt: time.Now().UTC()}
	if err := s.store.Record(ctx, job.ID, domain.MessageEvent("Queued "+doc.Name)); err != nil {
		return "", fmt.Errorf("record queued job failed: %w", err)
	}
	if err := s.publisher.Publish(ctx, job); err != nil {
		if recErr := s.store.Record(ctx, job.ID, domain.ErrorEvent(err, 0, 0)); recErr != nil {
			log.Printf("record job %s failure failed: %v", job.ID, recErr)
		}
		return "", fmt.Errorf("enqueue ingest job failed: %w", err)
	}
	return job.ID, nil
}

// RunJob executes a queued job, recording every event in the job store.
func (s *IngestService) RunJob(ctx context.Context, job model.IngestJob) error {
	if s.store == nil {
		return ErrJobsDisabled
	}
	events := make(chan domain.ProgressEvent, 16)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range events {
			// Recording outlives a cancelled run so the terminal event lands.
			recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			if err := s.store.Record(recCtx, job.ID, ev); err != nil {
				log.Printf("record job %s event failed: %v", job.ID, err)
			}
			cancel()
		}
	}()

	_, err := s.runner.Run(ctx, job.Document, events)
	close(events)
	wg.Wait()
	return err
}

// JobStatus returns the last recorded event of a job.
func (s *IngestService) JobStatus(ctx context.Context, id string) (domain.ProgressEvent, error) {
	if s.store == nil {
		return domain.ProgressEvent{}, ErrJobsDisabled
	}
	if _, err := uuid.Parse(id); err != nil {
		return domain.ProgressEvent{}, domain.Errorf(domain.ErrValidation, "job status", "job id %q is not a uuid", id)
	}
	ev, ok, err := s.store.Last(ctx, id)
	if err != nil {
		return domain.ProgressEvent{}, err
	}
	if !ok {
		return domain.ProgressEvent{}, ErrJobNotFound
	}
	return ev, nil
}

// JobEvents returns every recorded event of a job in order.
func (s *IngestService) JobEvents(ctx context.Context, id string) ([]domain.ProgressEvent, error) {
	if s.store == nil {
		return nil, ErrJobsDisabled
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.Errorf(domain.ErrValidation, "job events", "job id %q is not a uuid", id)
	}
	events, err := s.store.Events(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, ErrJobNotFound
	}
	return events, nil
}
