package events

import (
	"os"

	"github.com/google/uuid"
	"github.com/gton-market/settlement/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// NewPublisher picks the configured backend. Validate() has already
// downgraded kafka to redis when no brokers are set.
func NewPublisher(cfg *config.Config, rdb *redis.Client, log *zap.Logger) Publisher {
	if cfg.EventsBackend == "kafka" {
		log.Info("events backend: kafka", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
		return NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, log)
	}
	return NewRedisPublisher(rdb, log)
}

func NewSubscriber(cfg *config.Config, rdb *redis.Client, groupID string, log *zap.Logger) Subscriber {
	if cfg.EventsBackend == "kafka" {
		return NewKafkaSubscriber(cfg.KafkaBrokers, cfg.KafkaTopic, groupID, log)
	}
	return NewRedisSubscriber(rdb, log)
}

// NewFanoutSubscriber is for consumers where every process needs every event,
// like the websocket hub. On kafka each process joins its own consumer group
// and starts from the newest offset; redis pub/sub already broadcasts.
func NewFanoutSubscriber(cfg *config.Config, rdb *redis.Client, prefix string, log *zap.Logger) Subscriber {
	if cfg.EventsBackend == "kafka" {
		group := InstanceGroup(prefix)
		log.Info("fan-out consumer group", zap.String("group", group))
		s := NewKafkaSubscriber(cfg.KafkaBrokers, cfg.KafkaTopic, group, log)
		s.startOffset = kafka.LastOffset
		return s
	}
	return NewRedisSubscriber(rdb, log)
}

// InstanceGroup returns a consumer group id unique to this process.
func InstanceGroup(prefix string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "local"
	}
	return prefix + "-" + host + "-" + uuid.NewString()[:8]
}
