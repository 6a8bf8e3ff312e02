package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"signal_engine/internal/models"
)

const produceTimeout = 5 * time.Second

type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// Kafka публикует сигналы в топик, ключ: инструмент, чтобы сигналы
// одного инструмента шли в одну партицию.
type Kafka struct {
	client producer
	topic  string
	log    *zap.Logger
}

func NewKafka(brokers []string, topic, clientID string, log *zap.Logger) (*Kafka, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(5 * time.Millisecond),
	}
	if clientID != "" {
		opts = append(opts, kgo.ClientID(clientID))
	}
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}
	log.Info("kafka publisher initialized", zap.Strings("brokers", brokers), zap.String("topic", topic))
	return &Kafka{client: client, topic: topic, log: log}, nil
}

func (k *Kafka) Name() string { return "kafka" }

func (k *Kafka) Handle(ctx context.Context, env models.SignalEnvelope) error {
	data, err := sonic.Marshal(NewSignalMessage(env))
	if err != nil {
		return fmt.Errorf("kafka: marshal signal %s: %w", env.Signal.ID, err)
	}
	rec := &kgo.Record{
		Topic: k.topic,
		Key:   []byte(env.Signal.InstrumentKey),
		Value: data,
	}

	ctx, cancel := context.WithTimeout(ctx, produceTimeout)
	defer cancel()
	if err := k.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("kafka: produce signal %s: %w", env.Signal.ID, err)
	}
	return nil
}

func (k *Kafka) Close() {
	k.client.Close()
}
