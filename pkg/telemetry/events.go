package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event represents a telemetry event in the plan pipeline.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// Source identifies where the event originated.
	Source string `json:"source"`

	// PlanID is the associated plan ID, if applicable.
	PlanID string `json:"plan_id,omitempty"`

	// NodeID is the associated plan node ID, if applicable.
	NodeID string `json:"node_id,omitempty"`

	// Target is the associated compilation target, if applicable.
	Target string `json:"target,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// EventType constants for common event types.
const (
	EventTypePlanSubmitted        = "plan.submitted"
	EventTypeValidationCompleted  = "validation.completed"
	EventTypeCompilationCompleted = "compilation.completed"
	EventTypeCompilationFailed    = "compilation.failed"
	EventTypePolicyViolation      = "policy.violation"
	EventTypeCatalogReloaded      = "catalog.reloaded"
	EventTypeArtifactPublished    = "artifact.published"
	EventTypeError                = "error"
)

// EventLevel constants for event severity.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher manages event publishing and subscriptions.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	filters     []EventFilter
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())

	ep := &EventPublisher{
		config:      cfg,
		buffer:      make(chan Event, cfg.BufferSize),
		subscribers: make([]subscriberEntry, 0),
		filters:     make([]EventFilter, 0),
		ctx:         ctx,
		cancel:      cancel,
	}

	// Start the event processing goroutine
	if cfg.EnableAsync {
		ep.wg.Add(1)
		go ep.processEvents()
	}

	// Start the periodic flush goroutine
	if cfg.FlushInterval > 0 {
		ep.wg.Add(1)
		go ep.periodicFlush()
	}

	return ep, nil
}

// Publish publishes an event to all subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if !ep.config.Enabled {
		return nil
	}

	// Set ID and timestamp if not already set
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Apply global filters
	ep.mu.RLock()
	for _, filter := range ep.filters {
		if !filter(event) {
			ep.mu.RUnlock()
			return nil // Event filtered out
		}
	}
	ep.mu.RUnlock()

	// Send to buffer if async, otherwise process immediately
	if ep.config.EnableAsync {
		select {
		case ep.buffer <- event:
			return nil
		case <-ep.ctx.Done():
			return fmt.Errorf("event publisher stopped")
		default:
			// Buffer full, drop event or log warning
			return fmt.Errorf("event buffer full, event dropped")
		}
	}

	// Synchronous publishing
	ep.deliverEvent(event)
	return nil
}

// PublishPlanSubmitted publishes a plan submitted event.
func (ep *EventPublisher) PublishPlanSubmitted(planID, via string) error {
	return ep.Publish(Event{
		Type:    EventTypePlanSubmitted,
		Source:  "engine",
		PlanID:  planID,
		Message: fmt.Sprintf("Plan %s submitted via %s", planID, via),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"via": via,
		},
	})
}

// PublishValidationCompleted publishes a validation completed event.
func (ep *EventPublisher) PublishValidationCompleted(planID, target string, valid bool, violations int, duration time.Duration) error {
	level := EventLevelInfo
	message := fmt.Sprintf("Plan %s is valid for target %s", planID, target)
	if !valid {
		level = EventLevelWarning
		message = fmt.Sprintf("Plan %s failed validation for target %s (%d violations)", planID, target, violations)
	}
	return ep.Publish(Event{
		Type:    EventTypeValidationCompleted,
		Source:  "engine",
		PlanID:  planID,
		Target:  target,
		Message: message,
		Level:   level,
		Data: map[string]interface{}{
			"valid":      valid,
			"violations": violations,
			"duration":   duration.Seconds(),
		},
	})
}

// PublishCompilationCompleted publishes a compilation completed event.
func (ep *EventPublisher) PublishCompilationCompleted(planID, target, checksum string, duration time.Duration) error {
	return ep.Publish(Event{
		Type:    EventTypeCompilationCompleted,
		Source:  "engine",
		PlanID:  planID,
		Target:  target,
		Message: fmt.Sprintf("Plan %s compiled for target %s", planID, target),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"checksum": checksum,
			"duration": duration.Seconds(),
		},
	})
}

// PublishCompilationFailed publishes a compilation failed event.
func (ep *EventPublisher) PublishCompilationFailed(planID, target, reason string) error {
	return ep.Publish(Event{
		Type:    EventTypeCompilationFailed,
		Source:  "engine",
		PlanID:  planID,
		Target:  target,
		Message: fmt.Sprintf("Plan %s failed to compile for target %s: %s", planID, target, reason),
		Level:   EventLevelError,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishPolicyViolation publishes a policy violation event.
func (ep *EventPublisher) PublishPolicyViolation(planID, nodeID, rule, reason string) error {
	return ep.Publish(Event{
		Type:    EventTypePolicyViolation,
		Source:  "policy",
		PlanID:  planID,
		NodeID:  nodeID,
		Message: fmt.Sprintf("Policy violation on plan %s: %s - %s", planID, rule, reason),
		Level:   EventLevelError,
		Data: map[string]interface{}{
			"rule":   rule,
			"reason": reason,
		},
	})
}

// PublishCatalogReloaded publishes a catalog reloaded event.
func (ep *EventPublisher) PublishCatalogReloaded(source string, primitives int) error {
	return ep.Publish(Event{
		Type:    EventTypeCatalogReloaded,
		Source:  "registry",
		Message: fmt.Sprintf("Primitive catalog reloaded from %s (%d primitives)", source, primitives),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"catalog_source": source,
			"primitives":     primitives,
		},
	})
}

// PublishArtifactPublished publishes an artifact published event.
func (ep *EventPublisher) PublishArtifactPublished(planID, target, destination string) error {
	return ep.Publish(Event{
		Type:    EventTypeArtifactPublished,
		Source:  "publisher",
		PlanID:  planID,
		Target:  target,
		Message: fmt.Sprintf("Artifact for plan %s published to %s", planID, destination),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"destination": destination,
		},
	})
}

// Subscribe adds a new event subscriber.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// AddFilter adds a global event filter.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.filters = append(ep.filters, filter)
}

// processEvents processes events from the buffer asynchronously.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	batch := make([]Event, 0, ep.config.MaxBatchSize)

	for {
		select {
		case event := <-ep.buffer:
			batch = append(batch, event)

			// Flush batch if it reaches max size
			if len(batch) >= ep.config.MaxBatchSize {
				ep.flushBatch(batch)
				batch = make([]Event, 0, ep.config.MaxBatchSize)
			}

		case <-ep.ctx.Done():
			// Flush remaining events before shutting down
			if len(batch) > 0 {
				ep.flushBatch(batch)
			}
			return
		}
	}
}

// periodicFlush flushes events periodically.
func (ep *EventPublisher) periodicFlush() {
	defer ep.wg.Done()

	ticker := time.NewTicker(ep.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// Trigger flush by draining buffer
			// This is handled by the processEvents goroutine
		case <-ep.ctx.Done():
			return
		}
	}
}

// flushBatch delivers a batch of events to subscribers.
func (ep *EventPublisher) flushBatch(events []Event) {
	for _, event := range events {
		ep.deliverEvent(event)
	}
}

// deliverEvent delivers an event to all subscribers.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		// Apply subscriber-specific filter
		if entry.filter != nil && !entry.filter(event) {
			continue
		}

		// Call subscriber in a goroutine to avoid blocking
		go entry.subscriber(event)
	}
}

// Shutdown gracefully shuts down the event publisher.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if !ep.config.Enabled {
		return nil
	}

	// Signal shutdown
	ep.cancel()

	// Wait for processing to complete with timeout
	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// Common event filters.

// FilterByLevel creates a filter that only allows events of a specific level or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}

	minLevelValue := levels[minLevel]

	return func(event Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByPlanID creates a filter that only allows events for a specific plan.
func FilterByPlanID(planID string) EventFilter {
	return func(event Event) bool {
		return event.PlanID == planID
	}
}

// FilterByTarget creates a filter that only allows events for a specific target.
func FilterByTarget(target string) EventFilter {
	return func(event Event) bool {
		return event.Target == target
	}
}
