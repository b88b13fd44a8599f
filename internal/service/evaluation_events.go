package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/interview-eval-api/internal/dto"
	"github.com/noah-isme/interview-eval-api/internal/observability"
)

const evaluationEventBufferSize = 16

// EventAnswerEvaluated is emitted once an answer and its score have been stored.
const EventAnswerEvaluated = "answer.evaluated"

// EvaluationEvents fans evaluation results out to websocket subscribers on this node and,
// through Redis and NATS, to subscribers on other nodes.
type EvaluationEvents interface {
	Publish(ctx context.Context, event dto.AnswerEvaluatedEvent)
	Subscribe(sessionID uint) (<-chan dto.AnswerEvaluatedEvent, func())
	Start(ctx context.Context)
}

type evaluationEvents struct {
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	logger       zerolog.Logger
	broker       *evaluationBroker
	nodeID       string
}

type evaluationEnvelope struct {
	Source string                   `json:"source"`
	Event  dto.AnswerEvaluatedEvent `json:"event"`
	SentAt time.Time                `json:"sent_at"`
}

type evaluationBroker struct {
	mu          sync.RWMutex
	subscribers map[uint]map[chan dto.AnswerEvaluatedEvent]struct{}
}

// NewEvaluationEvents constructs the event fan-out. Redis and NATS are both optional.
func NewEvaluationEvents(redisClient *redis.Client, channelBase string, natsConn *nats.Conn, logger zerolog.Logger) EvaluationEvents {
	channel := ""
	subject := ""
	if channelBase != "" {
		channel = channelBase + ":evaluations"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".evaluations"
	}

	return &evaluationEvents{
		redis:        redisClient,
		redisChannel: channel,
		nats:         natsConn,
		natsSubject:  subject,
		logger:       logger.With().Str("component", "evaluation_events").Logger(),
		broker: &evaluationBroker{
			subscribers: make(map[uint]map[chan dto.AnswerEvaluatedEvent]struct{}),
		},
		nodeID: uuid.NewString(),
	}
}

func (e *evaluationEvents) Start(ctx context.Context) {
	if e.redis != nil && e.redisChannel != "" {
		go e.consumeRedis(ctx)
	}
	if e.nats != nil && e.natsSubject != "" {
		go e.consumeNATS(ctx)
	}
}

func (e *evaluationEvents) Publish(ctx context.Context, event dto.AnswerEvaluatedEvent) {
	if event.Event == "" {
		event.Event = EventAnswerEvaluated
	}

	e.deliver(event, "local")
	if err := e.publishRemote(ctx, event); err != nil {
		e.logger.Warn().Err(err).Uint("session_id", event.SessionID).Msg("failed to publish evaluation event")
	}
}

func (e *evaluationEvents) Subscribe(sessionID uint) (<-chan dto.AnswerEvaluatedEvent, func()) {
	channel := make(chan dto.AnswerEvaluatedEvent, evaluationEventBufferSize)

	e.broker.subscribe(sessionID, channel)
	observability.StreamClientsActive().Inc()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			e.broker.unsubscribe(sessionID, channel)
			observability.StreamClientsActive().Dec()
		})
	}

	return channel, cleanup
}

func (e *evaluationEvents) deliver(event dto.AnswerEvaluatedEvent, origin string) {
	observability.EvaluationEvents().WithLabelValues(origin).Inc()
	e.broker.broadcast(event.SessionID, event)
}

func (e *evaluationEvents) publishRemote(ctx context.Context, event dto.AnswerEvaluatedEvent) error {
	if (e.redis == nil || e.redisChannel == "") && (e.nats == nil || e.natsSubject == "") {
		return nil
	}

	payload, err := json.Marshal(evaluationEnvelope{
		Source: e.nodeID,
		Event:  event,
		SentAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	if e.redis != nil && e.redisChannel != "" {
		if err := e.redis.Publish(ctx, e.redisChannel, payload).Err(); err != nil {
			return err
		}
	}

	if e.nats != nil && e.natsSubject != "" {
		if err := e.nats.Publish(e.natsSubject, payload); err != nil {
			return err
		}
	}

	return nil
}

func (e *evaluationEvents) consumeRedis(ctx context.Context) {
	pubsub := e.redis.Subscribe(ctx, e.redisChannel)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) {
				return
			}
			e.logger.Error().Err(err).Msg("evaluation redis subscription closed")
			return
		}
		e.handleRemote([]byte(msg.Payload))
	}
}

func (e *evaluationEvents) consumeNATS(ctx context.Context) {
	// a plain subscription: every node must see every event to reach its own websocket clients
	sub, err := e.nats.Subscribe(e.natsSubject, func(msg *nats.Msg) {
		e.handleRemote(msg.Data)
	})
	if err != nil {
		e.logger.Error().Err(err).Msg("failed to subscribe to nats evaluations subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			e.logger.Warn().Err(err).Msg("failed to drain evaluation nats subscription")
		}
	}()
}

func (e *evaluationEvents) handleRemote(payload []byte) {
	var envelope evaluationEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		e.logger.Warn().Err(err).Msg("invalid evaluation event payload")
		return
	}

	if envelope.Source == e.nodeID {
		return
	}

	e.deliver(envelope.Event, "remote")
}

func (b *evaluationBroker) subscribe(sessionID uint, ch chan dto.AnswerEvaluatedEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[sessionID]; !exists {
		b.subscribers[sessionID] = make(map[chan dto.AnswerEvaluatedEvent]struct{})
	}
	b.subscribers[sessionID][ch] = struct{}{}
}

func (b *evaluationBroker) unsubscribe(sessionID uint, ch chan dto.AnswerEvaluatedEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subscribers, ok := b.subscribers[sessionID]; ok {
		delete(subscribers, ch)
		close(ch)
		if len(subscribers) == 0 {
			delete(b.subscribers, sessionID)
		}
	}
}

func (b *evaluationBroker) broadcast(sessionID uint, event dto.AnswerEvaluatedEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers[sessionID] {
		select {
		case ch <- event:
		default:
		}
	}
}
