package notify

import (
	"context"
	kafkax "github.com/ariefcatur/go-delivery-ledger.git/internal/kafka"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"time"
)

type publisher interface {
	Publish(ctx context.Context, key, value []byte, headers ...kafkago.Header) error
}

// Kafka publishes each result as an Envelope.
type Kafka struct {
	Producer publisher
	Service  string
	Log      *zap.Logger
}

func NewKafka(p *kafkax.Producer, service string, log *zap.Logger) *Kafka {
	return &Kafka{Producer: p, Service: service, Log: log}
}

func (k *Kafka) Notify(ctx context.Context, r Result) {
	et := eventType(r)
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     et,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      k.Service,
		CorrelationID: r.Target,
		Payload:       kafkax.MustMarshal(r),
	}
	err := k.Producer.Publish(ctx, PartitionKey(r.Actor), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(et)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
	if err != nil {
		k.Log.Warn("publish notification", zap.String("op", r.Op), zap.Error(err))
	}
}
