package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	"github.com/fiffu/substore/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	log      *zap.Logger
}

func NewProducerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Retry.Backoff = 500 * time.Millisecond
	cfg.Producer.Timeout = 10 * time.Second
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	return cfg
}

// NewPublisher connects to Kafka when brokers are configured, and otherwise returns Noop.
func NewPublisher(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (Publisher, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		log.Info("Event publishing is disabled since no brokers are defined")
		return Noop{}, nil
	}

	producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, NewProducerConfig())
	if err != nil {
		log.Sugar().Errorw("Failed to create Kafka producer", "err", err)
		return nil, err
	}
	pub := NewKafkaPublisher(producer, cfg.Kafka.Topic, log)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Info("Closing Kafka producer")
			return producer.Close()
		},
	})
	return pub, nil
}

func NewKafkaPublisher(producer sarama.SyncProducer, topic string, log *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{producer, topic, log}
}

// Publish sends the event keyed by app id, so one app's events stay ordered.
func (p *KafkaPublisher) Publish(ctx context.Context, evt Event) error {
	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(evt.AppID),
		Value: sarama.ByteEncoder(b),
		Headers: []sarama.RecordHeader{
			{Key: []byte("type"), Value: []byte(evt.Type)},
		},
	}

	start := time.Now()
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.log.Sugar().Errorw("Failed to publish event", "type", evt.Type, "appId", evt.AppID, "err", err)
		return err
	}
	p.log.Sugar().Debugw("Published event",
		"type", evt.Type, "id", evt.ID, "partition", partition, "offset", offset, "latency", time.Since(start))
	return nil
}
