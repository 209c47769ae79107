package events

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/naa-portal-api/internal/observability"
)

//go:embed schema/event.schema.json
var eventSchema []byte

const schemaURL = "https://naa.org.ng/schemas/portal-event.json"

// ErrInvalidEvent indicates an event payload does not satisfy the published contract.
var ErrInvalidEvent = errors.New("invalid event payload")

// Event is the notification payload handed to downstream consumers.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Source     string    `json:"source"`
	MemberID   uint      `json:"member_id"`
	RecordID   uint      `json:"record_id,omitempty"`
	ActorID    uint      `json:"actor_id"`
	Comment    string    `json:"comment,omitempty"`
	Points     string    `json:"points,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Emitter delivers domain events. Callers emit only after the originating change committed.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}

// MessagePublisher is the subset of *nats.Conn used for fan-out.
type MessagePublisher interface {
	Publish(subject string, data []byte) error
}

// Publisher fans events out to a Redis channel and a NATS subject.
type Publisher struct {
	redis        *redis.Client
	redisChannel string
	nats         MessagePublisher
	natsSubject  string
	schema       *jsonschema.Schema
	logger       zerolog.Logger
	tracer       trace.Tracer
	nodeID       string
	now          func() time.Time
}

// NewPublisher builds a publisher. Either transport may be nil.
func NewPublisher(redisClient *redis.Client, natsConn MessagePublisher, channelBase string, logger zerolog.Logger) (*Publisher, error) {
	schema, err := compileSchema()
	if err != nil {
		return nil, err
	}

	channel := ""
	subject := ""
	if channelBase != "" {
		channel = channelBase + ":events"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".events"
	}

	return &Publisher{
		redis:        redisClient,
		redisChannel: channel,
		nats:         natsConn,
		natsSubject:  subject,
		schema:       schema,
		logger:       logger.With().Str("component", "event_publisher").Logger(),
		tracer:       otel.Tracer("github.com/noah-isme/naa-portal-api/internal/events"),
		nodeID:       uuid.NewString(),
		now:          time.Now,
	}, nil
}

// Channel returns the Redis channel events are published on.
func (p *Publisher) Channel() string {
	return p.redisChannel
}

// Subject returns the NATS subject events are published on.
func (p *Publisher) Subject() string {
	return p.natsSubject
}

// Emit stamps, validates and publishes the event on every configured transport.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Source == "" {
		event.Source = p.nodeID
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = p.now().UTC()
	}

	ctx, span := p.tracer.Start(ctx, "events.emit", trace.WithAttributes(
		attribute.String("event.type", event.Type),
		attribute.Int64("event.member_id", int64(event.MemberID)),
	))
	defer span.End()

	payload, err := p.encode(event)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "event_invalid")
		return err
	}

	var errs []error
	if p.redis != nil && p.redisChannel != "" {
		if err := p.redis.Publish(ctx, p.redisChannel, payload).Err(); err != nil {
			errs = append(errs, fmt.Errorf("redis publish: %w", err))
		}
	}
	if p.nats != nil && p.natsSubject != "" {
		if err := p.nats.Publish(p.natsSubject, payload); err != nil {
			errs = append(errs, fmt.Errorf("nats publish: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "event_publish_failed")
		p.logger.Warn().Err(err).Str("event_id", event.ID).Str("type", event.Type).Msg("event delivery incomplete")
		return err
	}

	observability.EventsPublished().WithLabelValues(event.Type).Inc()
	p.logger.Debug().Str("event_id", event.ID).Str("type", event.Type).Uint("member_id", event.MemberID).Msg("event published")
	return nil
}

func (p *Publisher) encode(event Event) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}

	var document interface{}
	if err := json.Unmarshal(payload, &document); err != nil {
		return nil, err
	}
	if err := p.schema.Validate(document); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	return payload, nil
}

func compileSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, bytes.NewReader(eventSchema)); err != nil {
		return nil, fmt.Errorf("load event schema: %w", err)
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile event schema: %w", err)
	}
	return schema, nil
}

// Nop discards events. Used when no transport is configured.
type Nop struct{}

// Emit implements Emitter.
func (Nop) Emit(context.Context, Event) error { return nil }
