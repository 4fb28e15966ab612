package events

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaPublisher writes events to one topic, keyed by stream name so that
// consumers can filter the redis channel they replace.
type KafkaPublisher struct {
	writer *kafka.Writer
	log    *zap.Logger
}

func NewKafkaPublisher(brokers []string, topic string, log *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 50 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
		},
		log: log,
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, stream string, event Event) error {
	data, err := encode(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(stream),
		Value: data,
		Time:  time.Now(),
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// KafkaSubscriber reads the topic with a consumer group and dispatches
// messages whose key matches the subscribed stream.
type KafkaSubscriber struct {
	brokers     []string
	topic       string
	groupID     string
	startOffset int64
	log         *zap.Logger
}

func NewKafkaSubscriber(brokers []string, topic, groupID string, log *zap.Logger) *KafkaSubscriber {
	return &KafkaSubscriber{brokers: brokers, topic: topic, groupID: groupID, startOffset: kafka.FirstOffset, log: log}
}

func (s *KafkaSubscriber) Subscribe(ctx context.Context, stream string, handler func(Event)) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     s.brokers,
		Topic:       s.topic,
		GroupID:     s.groupID,
		StartOffset: s.startOffset,
	})

	go func() {
		defer reader.Close()
		for {
			msg, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.log.Error("kafka read failed", zap.Error(err))
				time.Sleep(time.Second)
				continue
			}
			if string(msg.Key) != stream {
				continue
			}
			dispatch(s.log, stream, msg.Value, handler)
		}
	}()

	return nil
}
