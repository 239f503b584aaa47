// Package messaging forwards domain events to AWS EventBridge so consumers
// outside the process can observe graph changes. Delivery stays best-effort:
// the mirror is an ordinary bus subscriber.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/colinxr/notion-graph-view-sub001/internal/domain/shared"
	apperrors "github.com/colinxr/notion-graph-view-sub001/internal/errors"
)

const (
	// PutEvents accepts at most 10 entries per call.
	maxBatchSize = 10
	// Entries above 256KB are rejected; the payload is dropped past this.
	maxDetailBytes = 250 * 1024
)

// DefaultMirroredEvents are the change notifications worth forwarding. The
// fetched events carry whole derived views and stay in-process.
var DefaultMirroredEvents = []string{
	shared.EventPagesFetched,
	shared.EventPageUpdated,
	shared.EventPageDeleted,
	shared.EventDatabaseDeleted,
	shared.EventBacklinkExtracted,
}

// PutEventsAPI is the subset of the EventBridge client the mirror uses.
type PutEventsAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// Mirror publishes domain events to an EventBridge bus.
type Mirror struct {
	client   PutEventsAPI
	eventBus string
	source   string
	events   []string
	logger   *zap.Logger
	limiter  *rate.Limiter
	now      func() time.Time
}

// MirrorOption configures a Mirror.
type MirrorOption func(*Mirror)

// WithRateLimit throttles PutEvents calls to rps calls per second. A
// non-positive rps leaves the mirror unthrottled.
func WithRateLimit(rps float64, burst int) MirrorOption {
	return func(m *Mirror) {
		if rps <= 0 {
			m.limiter = nil
			return
		}
		m.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
}

// NewMirror creates a mirror. Empty events selects DefaultMirroredEvents.
func NewMirror(client PutEventsAPI, eventBus, source string, events []string, logger *zap.Logger, opts ...MirrorOption) *Mirror {
	if eventBus == "" {
		eventBus = "default"
	}
	if source == "" {
		source = "graphsync"
	}
	if len(events) == 0 {
		events = DefaultMirroredEvents
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Mirror{
		client:   client,
		eventBus: eventBus,
		source:   source,
		events:   events,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name identifies the mirror on the bus.
func (m *Mirror) Name() string { return "EventMirror" }

// Events lists the event names the mirror subscribes to.
func (m *Mirror) Events() []string { return m.events }

// Handle forwards a single event.
func (m *Mirror) Handle(ctx context.Context, event shared.DomainEvent) error {
	return m.Publish(ctx, []shared.DomainEvent{event})
}

// Publish forwards events in batches of at most ten.
func (m *Mirror) Publish(ctx context.Context, events []shared.DomainEvent) error {
	for start := 0; start < len(events); start += maxBatchSize {
		end := min(start+maxBatchSize, len(events))
		if err := m.publishBatch(ctx, events[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (m *Mirror) publishBatch(ctx context.Context, events []shared.DomainEvent) error {
	entries := make([]types.PutEventsRequestEntry, 0, len(events))
	for _, ev := range events {
		entry, err := m.entry(ev)
		if err != nil {
			return err
		}
		entries = append(entries, entry)
	}

	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return apperrors.Timeout(apperrors.CodeEventBridgeError.String(), "rate limit wait aborted").
				WithOperation("PutEvents").
				WithCause(err).
				Build()
		}
	}

	out, err := m.client.PutEvents(ctx, &eventbridge.PutEventsInput{Entries: entries})
	if err != nil {
		return apperrors.Connection(apperrors.CodeEventBridgeError.String(), "failed to put events").
			WithOperation("PutEvents").
			WithCause(err).
			Build()
	}
	if out.FailedEntryCount > 0 {
		for i, e := range out.Entries {
			if e.ErrorCode != nil {
				m.logger.Warn("eventbridge rejected entry",
					zap.String("event", aws.ToString(entries[i].DetailType)),
					zap.String("code", aws.ToString(e.ErrorCode)),
					zap.String("message", aws.ToString(e.ErrorMessage)))
			}
		}
		return apperrors.Unavailable(apperrors.CodeEventBridgeError.String(),
			fmt.Sprintf("%d of %d events failed to publish", out.FailedEntryCount, len(entries))).
			WithOperation("PutEvents").
			WithRetryable(true).
			Build()
	}
	m.logger.Debug("mirrored events", zap.Int("count", len(entries)))
	return nil
}

type detail struct {
	EventID     string    `json:"eventId"`
	EventName   string    `json:"eventName"`
	AggregateID string    `json:"aggregateId"`
	OccurredOn  time.Time `json:"occurredOn"`
	Payload     any       `json:"payload,omitempty"`
	Truncated   bool      `json:"truncated,omitempty"`
}

func (m *Mirror) entry(ev shared.DomainEvent) (types.PutEventsRequestEntry, error) {
	d := detail{
		EventID:     ev.EventID(),
		EventName:   ev.EventName(),
		AggregateID: ev.AggregateID(),
		OccurredOn:  ev.OccurredOn(),
		Payload:     ev.Payload(),
	}
	body, err := json.Marshal(d)
	if err == nil && len(body) > maxDetailBytes {
		d.Payload, d.Truncated = nil, true
		body, err = json.Marshal(d)
	}
	if err != nil {
		return types.PutEventsRequestEntry{}, apperrors.Data(apperrors.CodeEventBridgeError.String(), "failed to encode event detail").
			WithResource(ev.EventName()).
			WithCause(err).
			Build()
	}

	return types.PutEventsRequestEntry{
		EventBusName: aws.String(m.eventBus),
		Source:       aws.String(m.source),
		DetailType:   aws.String(ev.EventName()),
		Detail:       aws.String(string(body)),
		Time:         aws.Time(m.now()),
		Resources:    []string{ev.AggregateID()},
	}, nil
}
