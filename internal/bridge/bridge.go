// Package bridge implements the External Event Bridge (SPEC_FULL.md §4,
// a supplemented feature grounded in the teacher's
// internal/handler/amqp/{bind,listeners,router}.go and
// internal/adapter/pubsub/{dispatcher,publisher}.go): an AMQP-backed
// side channel that lets systems outside the stage hub push events into
// a stage's mailbox, and lets a stage publish events back out without a
// slow/unavailable broker stalling the mailbox worker that triggered it.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/sony/gobreaker"

	"github.com/webitel/stagehub/internal/domain/model"
	"github.com/webitel/stagehub/internal/registry"
)

// ErrBreakerOpen is returned by Publish while the outbound circuit
// breaker is open.
var ErrBreakerOpen = errors.New("bridge: publish circuit open")

// InboundEvent is the JSON shape external producers publish to route an
// event into a stage's mailbox as an InterStagePacket.
type InboundEvent struct {
	StageID int64  `json:"stage_id"`
	MsgID   string `json:"msg_id"`
	Payload []byte `json:"payload"`
}

// Bridge consumes amqpInboundTopic and routes each message into the
// named stage via the Dispatcher, and exposes Publish for stages to
// push events to amqpOutboundTopic through a circuit breaker so a
// degraded broker fails fast instead of backing up callers.
type Bridge struct {
	subscriber message.Subscriber
	publisher  message.Publisher
	dispatcher *registry.Dispatcher
	breaker    *gobreaker.CircuitBreaker
	log        *slog.Logger
}

// Config configures the underlying watermill-amqp/v3 pub/sub connection.
type Config struct {
	AMQPURL         string
	InboundTopic    string
	OutboundTopic   string
	ConsumerGroup   string
}

// New dials AMQP and builds a Bridge. amqpURL follows the amqp:// scheme
// watermill-amqp/v3 expects.
func New(cfg Config, dispatcher *registry.Dispatcher, log *slog.Logger) (*Bridge, error) {
	if log == nil {
		log = slog.Default()
	}
	wlog := watermill.NewStdLogger(false, false)

	amqpConfig := amqp.NewDurablePubSubConfig(cfg.AMQPURL, amqp.GenerateQueueNameTopicNameWithSuffix(cfg.ConsumerGroup))

	sub, err := amqp.NewSubscriber(amqpConfig, wlog)
	if err != nil {
		return nil, err
	}
	pub, err := amqp.NewPublisher(amqpConfig, wlog)
	if err != nil {
		return nil, err
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "bridge-publish",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Bridge{subscriber: sub, publisher: pub, dispatcher: dispatcher, breaker: breaker, log: log}, nil
}

// Run consumes topic until ctx is cancelled, routing each message into
// its named stage's mailbox as an InterStagePacket carrying the external
// event's msg_id/payload, with FromStageID 0 (external events are not
// attributed to any stage or connected actor, so they reach the stage's
// OnInterStage rather than OnDispatch).
func (b *Bridge) Run(ctx context.Context, topic string) error {
	messages, err := b.subscriber.Subscribe(ctx, topic)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			b.handle(msg)
		}
	}
}

func (b *Bridge) handle(msg *message.Message) {
	var ev InboundEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		b.log.Warn("bridge: malformed inbound event", "err", err)
		msg.Nack()
		return
	}

	err := b.dispatcher.DispatchInterStage(0, ev.StageID, &model.Packet{
		MsgID:   ev.MsgID,
		StageID: ev.StageID,
		Payload: ev.Payload,
	})
	if err != nil {
		b.log.Warn("bridge: dispatch failed", "stage_id", ev.StageID, "err", err)
		msg.Nack()
		return
	}
	msg.Ack()
}

// Publish pushes an event onto topic through the outbound circuit
// breaker. A stage should call this via Stage.AsyncBlock rather than
// directly from a handler, since it can block on the broker.
func (b *Bridge) Publish(topic string, payload []byte) error {
	_, err := b.breaker.Execute(func() (any, error) {
		msg := message.NewMessage(watermill.NewUUID(), payload)
		return nil, b.publisher.Publish(topic, msg)
	})
	if errors.Is(err, gobreaker.ErrOpenState) {
		return ErrBreakerOpen
	}
	return err
}

// Close releases the subscriber/publisher's AMQP connections.
func (b *Bridge) Close() error {
	if err := b.subscriber.Close(); err != nil {
		return err
	}
	return b.publisher.Close()
}
