// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	TopicVoteCredit = "vote.credit"
	consumerGroup   = "quickly-vote-ledger"
)

// KafkaPublisher dispatches credits to a Kafka topic. The writer is async,
// so Dispatch returns before the broker acknowledges.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        TopicVoteCredit,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
		RequiredAcks: kafka.RequireAll,
		Completion: func(messages []kafka.Message, err error) {
			if err == nil {
				return
			}
			for _, m := range messages {
				slog.Error("failed to publish vote credit", "error", err, "payment_key", string(m.Key))
			}
		},
	}
	return &KafkaPublisher{writer: w}
}

func (p *KafkaPublisher) Dispatch(c Credit) {
	msg, err := encodeCredit(c)
	if err != nil {
		slog.Error("failed to encode vote credit", "error", err, "payment_key", c.PaymentKey)
		return
	}
	if err := p.writer.WriteMessages(context.Background(), msg); err != nil {
		slog.Error("failed to publish vote credit", "error", err, "payment_key", c.PaymentKey)
	}
}

// Close flushes pending messages.
func (p *KafkaPublisher) Close(_ context.Context) error {
	return p.writer.Close()
}

// KafkaConsumer applies credits read from the topic. Offsets are committed
// only after a credit is applied or permanently rejected, so delivery is
// at-least-once; Ledger.Credit makes redelivery harmless.
type KafkaConsumer struct {
	reader  *kafka.Reader
	applier Applier
	backoff time.Duration
}

func NewKafkaConsumer(brokers []string, applier Applier) *KafkaConsumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  consumerGroup,
		Topic:    TopicVoteCredit,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &KafkaConsumer{reader: r, applier: applier, backoff: time.Second}
}

// Run consumes until ctx is cancelled.
func (k *KafkaConsumer) Run(ctx context.Context) error {
	slog.Info("vote credit consumer started", "topic", TopicVoteCredit)
	for {
		m, err := k.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to fetch vote credit: %w", err)
		}

		c, err := decodeCredit(m)
		if err != nil {
			slog.Error("dropping malformed vote credit", "error", err, "offset", m.Offset)
		} else if err := k.applyUntilSettled(ctx, c); err != nil {
			// Context ended mid-retry; leave the offset uncommitted.
			return nil
		}

		if err := k.reader.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Error("failed to commit vote credit offset", "error", err, "offset", m.Offset)
		}
	}
}

func (k *KafkaConsumer) applyUntilSettled(ctx context.Context, c Credit) error {
	for {
		applyCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := k.applier.Credit(applyCtx, c)
		cancel()

		switch {
		case err == nil:
			slog.Info("votes credited", "payment_key", c.PaymentKey, "candidate_id", c.CandidateID, "votes", c.Votes)
			return nil
		case errors.Is(err, ErrAlreadyCredited):
			return nil
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidCount):
			slog.Error("vote credit rejected", "error", err, "payment_key", c.PaymentKey)
			return nil
		}

		slog.Warn("vote credit failed, retrying", "error", err, "payment_key", c.PaymentKey)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(k.backoff):
		}
	}
}

func (k *KafkaConsumer) Close() error {
	return k.reader.Close()
}

func encodeCredit(c Credit) (kafka.Message, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{Key: []byte(c.PaymentKey), Value: b}, nil
}

func decodeCredit(m kafka.Message) (Credit, error) {
	var c Credit
	if err := json.Unmarshal(m.Value, &c); err != nil {
		return Credit{}, err
	}
	if c.PaymentKey == "" {
		c.PaymentKey = string(m.Key)
	}
	return c, nil
}
