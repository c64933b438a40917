package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/sgracers-leaderboard/internal/config"
	"github.com/sgracers-leaderboard/internal/domain"
)

// SubmissionHandler records batches of trusted submissions.
type SubmissionHandler interface {
	SubmitTimeBatch(ctx context.Context, subs []domain.Submission) error
}

// Consumer reads race submissions published by trusted game servers.
type Consumer struct {
	config  *config.KafkaConfig
	handler SubmissionHandler
	logger  *slog.Logger
	group   sarama.ConsumerGroup
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewConsumer joins the configured consumer group. Consumption starts with
// Start.
func NewConsumer(cfg *config.KafkaConfig, handler SubmissionHandler, logger *slog.Logger) (*Consumer, error) {
	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("creating consumer group: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		config:  cfg,
		handler: handler,
		logger:  logger.With("topic", cfg.Topic, "group_id", cfg.GroupID),
		group:   group,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

func saramaConfig(cfg *config.KafkaConfig) *sarama.Config {
	sc := sarama.NewConfig()
	sc.Version = sarama.V3_0_0_0
	sc.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	sc.Consumer.Return.Errors = true
	sc.Consumer.Retry.Backoff = cfg.RetryDelay
	sc.Metadata.Retry.Max = cfg.RetryAttempts
	sc.Metadata.Retry.Backoff = cfg.RetryDelay
	return sc
}

// Start consumes in the background. It returns once the first group
// session is set up, or with an error when ctx ends first.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("starting Kafka consumer", "brokers", c.config.Brokers)

	c.wg.Add(2)
	go c.drainErrors()

	ready := make(chan struct{})
	go c.consume(ready)

	select {
	case <-ready:
		c.logger.Info("Kafka consumer ready")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for consumer group session: %w", ctx.Err())
	}
}

// consume rejoins the group after every rebalance until the consumer stops.
// ready is closed when the first session starts.
func (c *Consumer) consume(ready chan struct{}) {
	defer c.wg.Done()
	for {
		h := &consumerGroupHandler{consumer: c, ready: ready}
		err := c.group.Consume(c.ctx, []string{c.config.Topic}, h)
		if errors.Is(err, sarama.ErrClosedConsumerGroup) || c.ctx.Err() != nil {
			return
		}
		if err != nil {
			c.logger.Error("consumer session failed", "error", err)
		}
		if h.started {
			ready = nil
		}
	}
}

func (c *Consumer) drainErrors() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case err, ok := <-c.group.Errors():
			if !ok {
				return
			}
			c.logger.Error("consumer group error", "error", err)
		}
	}
}

// Stop ends consumption, waits for in-flight batches and leaves the group.
func (c *Consumer) Stop() error {
	c.logger.Info("stopping Kafka consumer")
	c.cancel()
	c.wg.Wait()
	return c.group.Close()
}

// consumerGroupHandler runs one group session.
type consumerGroupHandler struct {
	consumer *Consumer
	ready    chan struct{}
	started  bool
}

// Setup signals the first session to Start.
func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	if h.ready != nil {
		close(h.ready)
	}
	h.started = true
	return nil
}

func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim decodes a partition's messages and submits them in batches
// of BatchSize, flushing early after BatchTimeout.
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	cfg := h.consumer.config
	b := newBatcher(h.consumer.handler, cfg.BatchSize, h.consumer.logger)
	batchTimer := time.NewTimer(cfg.BatchTimeout)
	defer batchTimer.Stop()

	for {
		select {
		case <-session.Context().Done():
			b.flush()
			return nil

		case <-batchTimer.C:
			b.flush()
			batchTimer.Reset(cfg.BatchTimeout)

		case message, ok := <-claim.Messages():
			if !ok {
				b.flush()
				return nil
			}

			sub, err := DecodeSubmission(message.Value)
			if err != nil {
				h.consumer.logger.Warn("skipping invalid submission",
					"error", err,
					"offset", message.Offset,
					"partition", message.Partition,
				)
				session.MarkMessage(message, "")
				continue
			}

			session.MarkMessage(message, "")
			if b.add(sub) {
				b.flush()
				batchTimer.Reset(cfg.BatchTimeout)
			}
		}
	}
}

// DecodeSubmission parses and validates one message value.
func DecodeSubmission(value []byte) (domain.Submission, error) {
	var sub domain.Submission
	if err := json.Unmarshal(value, &sub); err != nil {
		return domain.Submission{}, err
	}
	return sub.Normalize()
}

// batcher collects submissions and hands them to the handler in groups.
type batcher struct {
	handler SubmissionHandler
	size    int
	pending []domain.Submission
	logger  *slog.Logger
}

func newBatcher(handler SubmissionHandler, size int, logger *slog.Logger) *batcher {
	if size <= 0 {
		size = 1
	}
	return &batcher{
		handler: handler,
		size:    size,
		pending: make([]domain.Submission, 0, size),
		logger:  logger,
	}
}

// add queues sub and reports whether the batch is full.
func (b *batcher) add(sub domain.Submission) bool {
	b.pending = append(b.pending, sub)
	return len(b.pending) >= b.size
}

func (b *batcher) flush() {
	if len(b.pending) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := b.handler.SubmitTimeBatch(ctx, b.pending); err != nil {
		b.logger.Error("failed to process batch", "error", err, "batch_size", len(b.pending))
	} else {
		b.logger.Debug("processed batch", "batch_size", len(b.pending))
	}
	b.pending = make([]domain.Submission, 0, b.size)
}
