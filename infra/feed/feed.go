package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/segmentio/kafka-go"

	"argus/domain/evidence"
)

/*
Reader consumes already-parsed evidence records from a Kafka topic.
Transcription, mail parsing and alert extraction all live upstream;
what arrives here is the tagged evidence union as JSON, one message
per item.
*/
type Reader struct {
	reader *kafka.Reader
}

func NewReader(brokers []string, topic, groupID string) *Reader {
	return &Reader{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        brokers,
			Topic:          topic,
			GroupID:        groupID,
			MinBytes:       1,
			MaxBytes:       10e6,
			CommitInterval: time.Second,
		}),
	}
}

// ErrMalformed marks a message that read fine but did not decode.
var ErrMalformed = errors.New("feed: malformed evidence message")

// Next blocks for the next evidence item. Malformed messages are
// returned as ErrMalformed with the offset so the operator can find
// them; the caller decides whether to skip or stop.
func (r *Reader) Next(ctx context.Context) (evidence.Evidence, error) {
	msg, err := r.reader.ReadMessage(ctx)
	if err != nil {
		return evidence.Evidence{}, err
	}

	var ev evidence.Evidence
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		return evidence.Evidence{}, fmt.Errorf("%w: offset %d: %v", ErrMalformed, msg.Offset, err)
	}
	return ev, nil
}

// Drain reads until the context expires or the topic is exhausted,
// skipping malformed messages. Used by the batch runner to collect one
// day's evidence.
func (r *Reader) Drain(ctx context.Context) ([]evidence.Evidence, []error) {
	var (
		out  []evidence.Evidence
		errs []error
	)
	for {
		ev, err := r.Next(ctx)
		if errors.Is(err, ErrMalformed) {
			errs = append(errs, err)
			continue
		}
		if err != nil {
			if !errors.Is(err, context.DeadlineExceeded) &&
				!errors.Is(err, context.Canceled) &&
				!errors.Is(err, io.EOF) {
				errs = append(errs, err)
			}
			return out, errs
		}
		out = append(out, ev)
	}
}

func (r *Reader) Close() error {
	return r.reader.Close()
}
