package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"bookrag/internal/domain"
	"bookrag/internal/model"
	"bookrag/internal/platform/rabbitmq"
)

// JobRunner executes one queued ingestion job.
type JobRunner interface {
	RunJob(ctx context.Context, job model.IngestJob) error
}

// acknowledger is the part of amqp.Delivery the worker settles.
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// IngestWorker consumes ingestion jobs one delivery at a time. A job that
// fails is dropped, its failure already recorded by the runner. A job
// interrupted by the worker shutting down is requeued; passage ids are
// stable, so the rerun overwrites what was already upserted.
type IngestWorker struct {
	conn      *amqp.Connection
	runner    JobRunner
	queueName string
	prefetch  int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewIngestWorker(conn *amqp.Connection, runner JobRunner, queueName string, prefetch int) *IngestWorker {
	if prefetch <= 0 {
		prefetch = 1
	}
	return &IngestWorker{
		conn:      conn,
		runner:    runner,
		queueName: queueName,
		prefetch:  prefetch,
	}
}

func (w *IngestWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}
	if err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}
	if err := ch.Qos(w.prefetch, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker prefetch failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				w.process(workerCtx, d, d.Body)
			}
		}
	}()

	return nil
}

func (w *IngestWorker) process(ctx context.Context, d acknowledger, body []byte) {
	err := w.handle(ctx, body)
	switch {
	case err == nil:
		_ = d.Ack(false)
	case errors.Is(err, domain.ErrCancelled) && ctx.Err() != nil:
		log.Printf("worker ingest job interrupted, requeueing: %v", err)
		_ = d.Nack(false, true)
	default:
		log.Printf("worker ingest job failed: %v", err)
		_ = d.Nack(false, false)
	}
}

func (w *IngestWorker) handle(ctx context.Context, body []byte) error {
	job, err := rabbitmq.DecodeJob(body)
	if err != nil {
		return err
	}
	if err := w.runner.RunJob(ctx, job); err != nil {
		return fmt.Errorf("job %s: %w", job.ID, err)
	}
	return nil
}

func (w *IngestWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
