package broadcaster

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"argus/infra/outbox"
)

type Broadcaster struct {
	outbox   *outbox.Outbox
	producer sarama.SyncProducer
	topic    string
	interval time.Duration
	log      *zap.Logger
}

// ------------------------------------------------
// CONSTRUCTOR
// ------------------------------------------------

func New(
	ob *outbox.Outbox,
	brokers []string,
	topic string,
	interval time.Duration,
	log *zap.Logger,
) (*Broadcaster, error) {

	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}

	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}

	return &Broadcaster{
		outbox:   ob,
		producer: producer,
		topic:    topic,
		interval: interval,
		log:      log,
	}, nil
}

// ------------------------------------------------
// START LOOP
// ------------------------------------------------

func (b *Broadcaster) Start(ctx context.Context) {
	b.log.Info("broadcaster started", zap.String("topic", b.topic))

	go func() {
		ticker := time.NewTicker(b.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return

			case <-ticker.C:
				b.drainOnce()
			}
		}
	}()
}

// ------------------------------------------------
// DRAIN LOGIC
// ------------------------------------------------

// drainOnce publishes every NEW entry. The SENT marker goes down
// before the publish, so a crash between publish and ack re-sends
// rather than drops; consumers must dedupe on (date, orderId).
func (b *Broadcaster) drainOnce() {
	err := b.outbox.ScanByState(outbox.StateNew, func(e outbox.Entry) error {
		payload, err := json.Marshal(e.Event)
		if err != nil {
			b.log.Error("encode event", zap.Error(err))
			return nil
		}

		_ = b.outbox.UpdateState(e.Event, outbox.StateSent, e.Retries+1)

		msg := &sarama.ProducerMessage{
			Topic: b.topic,
			Key:   sarama.StringEncoder(e.Event.Date + "/" + e.Event.OrderID),
			Value: sarama.ByteEncoder(payload),
		}
		if _, _, err := b.producer.SendMessage(msg); err != nil {
			b.log.Warn("publish failed, will retry",
				zap.String("order", e.Event.OrderID),
				zap.Error(err))
			_ = b.outbox.UpdateState(e.Event, outbox.StateNew, e.Retries+1)
			return nil
		}

		_ = b.outbox.UpdateState(e.Event, outbox.StateAcked, e.Retries+1)
		return nil
	})
	if err != nil {
		b.log.Error("outbox scan", zap.Error(err))
	}
}

// ------------------------------------------------
// SHUTDOWN
// ------------------------------------------------

func (b *Broadcaster) Close() error {
	return b.producer.Close()
}
