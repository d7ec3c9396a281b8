// Package kafka feeds externally detected events into the alert broadcast.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"relief-alert-service/internal/logging"
	"relief-alert-service/internal/models"
	"relief-alert-service/internal/notification"
)

type Config struct {
	Broker  string
	Topic   string
	GroupID string
}

// Broadcaster is the dispatch path an event ends up on.
type Broadcaster interface {
	Broadcast(ctx context.Context, title, body string, category models.Category) (notification.Result, error)
}

// Event is the JSON payload of one alert message.
type Event struct {
	Category string `json:"category"`
	Title    string `json:"title"`
	Body     string `json:"body"`
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

type Consumer struct {
	reader      messageReader
	broadcaster Broadcaster
	logger      *logging.Logger
	retryDelay  time.Duration
}

func NewConsumer(cfg Config, broadcaster Broadcaster, logger *logging.Logger) *Consumer {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     strings.Split(cfg.Broker, ","),
		Topic:       cfg.Topic,
		GroupID:     cfg.GroupID,
		MinBytes:    1,
		MaxBytes:    1 << 20,
		StartOffset: kafkago.LastOffset,
	})
	return &Consumer{reader: r, broadcaster: broadcaster, logger: logger, retryDelay: time.Second}
}

// ParseEvent decodes and validates one message value.
func ParseEvent(value []byte) (Event, models.Category, error) {
	var ev Event
	if err := json.Unmarshal(value, &ev); err != nil {
		return Event{}, "", fmt.Errorf("unmarshal event: %w", err)
	}
	category, err := models.ParseCategory(ev.Category)
	if err != nil {
		return Event{}, "", err
	}
	if strings.TrimSpace(ev.Title) == "" {
		return Event{}, "", errors.New("event title is empty")
	}
	return ev, category, nil
}

// Start consumes until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.logger.Infof("Kafka consumer started")
		c.run(ctx)
		c.logger.Infof("Kafka consumer stopped")
	}()
}

func (c *Consumer) run(ctx context.Context) {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Errorf("Read message failed: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.retryDelay):
			}
			continue
		}
		c.handle(ctx, msg)
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Errorf("Commit offset %d failed: %v", msg.Offset, err)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafkago.Message) {
	ev, category, err := ParseEvent(msg.Value)
	if err != nil {
		c.logger.Errorf("Invalid message at offset %d: %v", msg.Offset, err)
		return
	}
	res, err := c.broadcaster.Broadcast(ctx, ev.Title, ev.Body, category)
	if err != nil {
		c.logger.Errorf("Broadcast for offset %d failed: %v", msg.Offset, err)
		return
	}
	c.logger.Infof("Processed Kafka message at offset %d as run %s", msg.Offset, res.Summary.RunID)
}

func (c *Consumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.logger.Warnf("Kafka reader close failed: %v", err)
	}
}
