package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/rl1809/shop-seckill/internal/core/domain"
)

// KafkaPublisher writes order events keyed by voucher id, so events of one
// voucher stay ordered within a partition.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			BatchTimeout:           10 * time.Millisecond,
			AllowAutoTopicCreation: true,
		},
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, events ...domain.OrderEvent) error {
	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		m, err := newMessage(e)
		if err != nil {
			return err
		}
		msgs = append(msgs, m)
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write order events: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func newMessage(e domain.OrderEvent) (kafka.Message, error) {
	value, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode order event %d: %w", e.OrderID, err)
	}
	return kafka.Message{
		Key:   []byte(strconv.FormatInt(e.VoucherID, 10)),
		Value: value,
		Time:  e.CreatedAt,
	}, nil
}
