package events

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/najoast/physarum/config"
)

// MessageReader is the subset of *kafka.Reader the source needs.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// SourceStats are the running totals of a KafkaSource.
type SourceStats struct {
	Received       uint64
	DecodeFailures uint64
	FetchFailures  uint64
	Dropped        uint64
}

// KafkaSource consumes JSON events from a topic and publishes them for the
// next optimize cycle. Fetches go through a circuit breaker; while it is
// open the source sleeps instead of retrying.
type KafkaSource struct {
	reader  MessageReader
	out     Publisher
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
	backoff time.Duration

	received       atomic.Uint64
	decodeFailures atomic.Uint64
	fetchFailures  atomic.Uint64
	dropped        atomic.Uint64
}

// NewKafkaSource creates a consumer-group reader for cfg.
func NewKafkaSource(cfg config.KafkaConfig, out Publisher, logger *zap.Logger) *KafkaSource {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
	})
	return newKafkaSource(reader, cfg.Breaker, out, logger)
}

func newKafkaSource(reader MessageReader, cb config.CircuitBreakerConfig, out Publisher, logger *zap.Logger) *KafkaSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &KafkaSource{
		reader:  reader,
		out:     out,
		logger:  logger.Named("kafka"),
		backoff: cb.Timeout / 4,
	}
	if s.backoff <= 0 {
		s.backoff = time.Second
	}

	threshold := cb.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "kafka-fetch",
		MaxRequests: cb.MaxRequests,
		Interval:    cb.Interval,
		Timeout:     cb.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to))
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return s
}

// Run consumes until ctx is cancelled. Malformed messages are counted and
// skipped.
func (s *KafkaSource) Run(ctx context.Context) error {
	for {
		res, err := s.breaker.Execute(func() (interface{}, error) {
			return s.reader.ReadMessage(ctx)
		})
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(s.backoff):
				}
				continue
			}
			s.fetchFailures.Add(1)
			s.logger.Warn("kafka read failed", zap.Error(err))
			continue
		}

		msg := res.(kafka.Message)
		s.received.Add(1)

		ev, err := Decode(msg.Value)
		if err != nil {
			s.decodeFailures.Add(1)
			s.logger.Debug("skipping malformed event",
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
			continue
		}
		if !s.out.Publish(ev) {
			s.dropped.Add(1)
		}
	}
}

// State returns the breaker state.
func (s *KafkaSource) State() gobreaker.State {
	return s.breaker.State()
}

// Stats returns the running totals.
func (s *KafkaSource) Stats() SourceStats {
	return SourceStats{
		Received:       s.received.Load(),
		DecodeFailures: s.decodeFailures.Load(),
		FetchFailures:  s.fetchFailures.Load(),
		Dropped:        s.dropped.Load(),
	}
}

// Close closes the underlying reader.
func (s *KafkaSource) Close() error {
	return s.reader.Close()
}
