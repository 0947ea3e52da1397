package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"bookrag/internal/model"
)

type JobPublisher struct {
	conn      *amqp.Connection
	queueName string
}

func NewJobPublisher(conn *amqp.Connection, queueName string) *JobPublisher {
	return &JobPublisher{
		conn:      conn,
		queueName: queueName,
	}
}

func (p *JobPublisher) Publish(ctx context.Context, job model.IngestJob) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	if err := DeclareQueue(ch, p.queueName); err != nil {
		return err
	}

	msg, err := encodeJob(job)
	if err != nil {
		return err
	}
	if err := ch.PublishWithContext(ctx, "", p.queueName, false, false, msg); err != nil {
		return fmt.Errorf("publish ingest job %s failed: %w", job.ID, err)
	}
	return nil
}

func encodeJob(job model.IngestJob) (amqp.Publishing, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal ingest job failed: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		MessageId:    job.ID,
		Timestamp:    job.EnqueuedAt,
		Body:         payload,
		DeliveryMode: amqp.Persistent,
	}, nil
}

// DecodeJob parses a delivery body produced by Publish.
func DecodeJob(body []byte) (model.IngestJob, error) {
	var job model.IngestJob
	if err := json.Unmarshal(body, &job); err != nil {
		return model.IngestJob{}, fmt.Errorf("unmarshal ingest job failed: %w", err)
	}
	if job.ID == "" {
		return model.IngestJob{}, fmt.Errorf("ingest job has no id")
	}
	return job, nil
}
