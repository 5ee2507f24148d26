// Package events publishes prediction updates to Kafka so downstream
// consumers (bots, dashboards) can react without polling the API.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/emezpr/Sureodds/internal/logger"
	"github.com/emezpr/Sureodds/internal/models"
)

// PredictionsUpdated is emitted after every successful live fetch.
type PredictionsUpdated struct {
	FetchID     string              `json:"fetch_id"`
	Predictions []models.Prediction `json:"predictions"`
	SourceCount int                 `json:"source_count"`
	TsUnixMs    int64               `json:"ts_unix_ms"`
}

// Publisher writes prediction events to a Kafka topic.
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher initializes a writer for the given brokers and topic.
func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
			BatchTimeout:           10 * time.Millisecond,
			WriteTimeout:           10 * time.Second,
		},
	}
}

// PublishUpdated emits one PredictionsUpdated event for a live fetch result.
// The fetch ID keys the message so one fetch lands on one partition.
func (p *Publisher) PublishUpdated(ctx context.Context, res *models.FetchResult) error {
	fetchID := res.FetchID
	if fetchID == "" {
		fetchID = uuid.NewString()
	}
	e := PredictionsUpdated{
		FetchID:     fetchID,
		Predictions: res.Predictions,
		SourceCount: len(res.Sources),
		TsUnixMs:    res.LastUpdated.UnixMilli(),
	}
	value, err := json.Marshal(e)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(e.FetchID),
		Value: value,
		Time:  time.Now(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return err
	}
	logger.Debug("Published predictions update (fetch_id=%s)", e.FetchID)
	return nil
}

// Close flushes and releases the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
