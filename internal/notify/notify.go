package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xtrntr/parimut/internal/models"

	"github.com/segmentio/kafka-go"
)

// StakeAccepted is published after a stake commits. The external bot layer
// consumes it to message the bettor; delivery is not this engine's concern.
type StakeAccepted struct {
	BetID         int     `json:"bet_id"`
	UserID        int     `json:"user_id"`
	EventID       int     `json:"event_id"`
	Option        string  `json:"option"`
	Amount        float64 `json:"amount"`
	CoeffSnapshot float64 `json:"coeff_snapshot"`
	TsUnixMs      int64   `json:"ts_unix_ms"`
}

// EventSettled carries the full settlement report for fan-out notification.
type EventSettled struct {
	Report   models.SettlementReport `json:"report"`
	TsUnixMs int64                   `json:"ts_unix_ms"`
}

// Producer publishes engine outcomes to Kafka. Both publishes run after the
// database commit and are best-effort: the caller logs failures and moves on.
type Producer struct {
	stakes      *kafka.Writer
	settlements *kafka.Writer
}

// NewProducer builds writers for the two outcome topics.
func NewProducer(brokers, stakeTopic, settledTopic string) *Producer {
	return &Producer{
		stakes:      newWriter(brokers, stakeTopic),
		settlements: newWriter(brokers, settledTopic),
	}
}

func newWriter(brokers, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(strings.Split(brokers, ",")...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
}

// Close flushes and closes both writers even when the first close fails.
func (p *Producer) Close() error {
	return errors.Join(p.stakes.Close(), p.settlements.Close())
}

// PublishStakeAccepted emits one StakeAccepted message keyed by event id.
func (p *Producer) PublishStakeAccepted(ctx context.Context, e StakeAccepted) error {
	e.TsUnixMs = time.Now().UnixMilli()
	b, _ := json.Marshal(e)
	return p.stakes.WriteMessages(ctx, kafka.Message{
		Key:   []byte(fmt.Sprintf("%d", e.EventID)),
		Value: b,
	})
}

// PublishEventSettled emits one EventSettled message keyed by event id.
func (p *Producer) PublishEventSettled(ctx context.Context, e EventSettled) error {
	e.TsUnixMs = time.Now().UnixMilli()
	b, _ := json.Marshal(e)
	return p.settlements.WriteMessages(ctx, kafka.Message{
		Key:   []byte(fmt.Sprintf("%d", e.Report.EventID)),
		Value: b,
	})
}
