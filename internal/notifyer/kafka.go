package notifyer

import (
	"context"
	"encoding/json"
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/rs/zerolog/log"
	kafka "github.com/segmentio/kafka-go"
)

// KafkaPump drains the channel notifier into a kafka topic. Delivery
// failures are logged and dropped, they never propagate back into
// failover execution.
type KafkaPump struct {
	writer        *kafka.Writer
	notifications chan Notification
}

func NewKafkaPump(addr string, topic string, notifications chan Notification) *KafkaPump {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(addr),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaPump{
		writer:        writer,
		notifications: notifications,
	}
}

func (p *KafkaPump) Run(ctx context.Context) {
	defer func() {
		_ = p.writer.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case notification, ok := <-p.notifications:
			if !ok {
				return
			}
			p.deliver(ctx, notification)
		}
	}
}

func (p *KafkaPump) deliver(ctx context.Context, notification Notification) {
	payload, err := json.Marshal(notification)
	if err != nil {
		log.Error().Err(err).Msgf("failed to encode notification %s", notification.Kind)
		return
	}
	err = retry.Do(
		func() error {
			return p.writer.WriteMessages(ctx, kafka.Message{
				Key:   []byte(notification.Event.ID),
				Value: payload,
			})
		},
		retry.Attempts(3),
		retry.Context(ctx),
	)
	if err != nil {
		log.Error().Err(err).Msgf("failed to deliver %s notification for event %s", notification.Kind, notification.Event.ID)
	}
}
