// Package event implements the typed lifecycle event dispatcher: fan-out to
// registered broadcasters and the PII sanitization hook applied to preview
// strings and tool payloads before broadcast.
package event

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Type identifies a lifecycle event kind.
type Type string

const (
	AgentStarted     Type = "agent_started"
	AgentCompleted   Type = "agent_completed"
	ToolStarted      Type = "tool_started"
	ToolCompleted    Type = "tool_completed"
	ToolFailed       Type = "tool_failed"
	SubAgentStarted  Type = "sub_agent_started"
	SubAgentComplete Type = "sub_agent_completed"
	TodosUpdated     Type = "todos_updated"
	StateCheckpointed Type = "state_checkpointed"
	PlanningComplete Type = "planning_complete"
	TokenUsage       Type = "token_usage"
)

// Metadata is carried by every event.
type Metadata struct {
	ThreadID      string    `json:"thread_id"`
	CorrelationID string    `json:"correlation_id"`
	CustomerID    string    `json:"customer_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Event is a single typed lifecycle event.
type Event struct {
	Type     Type           `json:"event_type"`
	Metadata Metadata       `json:"metadata"`
	Fields   map[string]any `json:"fields,omitempty"`
}

// Broadcaster receives dispatched events. A broadcaster may decline an
// event via ShouldBroadcast; Emit failures must be logged and must not
// affect the loop.
type Broadcaster interface {
	ShouldBroadcast(e Event) bool
	Emit(ctx context.Context, e Event) error
}

// Emitter stamps metadata defaults and constructs events for each
// lifecycle point, mirroring nexus's EventEmitter shape (atomic sequence
// counter, base() helper, typed emit methods). The counter advances once
// per emitted event; its value is not carried on the Event.
type Emitter struct {
	threadID      string
	correlationID string
	customerID    string
	sequence      uint64
	dispatcher    *Dispatcher
	sanitizer     *Sanitizer // nil disables sanitization
}

// NewEmitter constructs an Emitter bound to a thread/correlation pair and
// a dispatcher. sanitizer may be nil to disable PII sanitization.
func NewEmitter(threadID, correlationID, customerID string, dispatcher *Dispatcher, sanitizer *Sanitizer) *Emitter {
	return &Emitter{
		threadID:      threadID,
		correlationID: correlationID,
		customerID:    customerID,
		dispatcher:    dispatcher,
		sanitizer:     sanitizer,
	}
}

func (e *Emitter) nextSeq() uint64 {
	return atomic.AddUint64(&e.sequence, 1)
}

func (e *Emitter) base(t Type) Event {
	return Event{
		Type: t,
		Metadata: Metadata{
			ThreadID:      e.threadID,
			CorrelationID: e.correlationID,
			CustomerID:    e.customerID,
			Timestamp:     time.Now(),
		},
	}
}

// emit finalizes fields, sanitizes if enabled, and dispatches.
func (e *Emitter) emit(ctx context.Context, t Type, fields map[string]any) {
	ev := e.base(t)
	ev.Fields = fields
	_ = e.nextSeq()
	if e.sanitizer != nil {
		ev = e.sanitizer.Sanitize(ev)
	}
	if e.dispatcher != nil {
		e.dispatcher.Dispatch(ctx, ev)
	}
}

func (e *Emitter) AgentStarted(ctx context.Context) { e.emit(ctx, AgentStarted, nil) }

func (e *Emitter) AgentCompleted(ctx context.Context, preview string) {
	e.emit(ctx, AgentCompleted, map[string]any{"preview": preview})
}

func (e *Emitter) ToolStarted(ctx context.Context, toolName string, payload any) {
	e.emit(ctx, ToolStarted, map[string]any{"tool_name": toolName, "payload": payload})
}

func (e *Emitter) ToolCompleted(ctx context.Context, toolName string, preview string) {
	e.emit(ctx, ToolCompleted, map[string]any{"tool_name": toolName, "preview": preview})
}

func (e *Emitter) ToolFailed(ctx context.Context, toolName string, errMsg string) {
	e.emit(ctx, ToolFailed, map[string]any{"tool_name": toolName, "error": errMsg})
}

func (e *Emitter) SubAgentStarted(ctx context.Context, subagentType string) {
	e.emit(ctx, SubAgentStarted, map[string]any{"subagent_type": subagentType})
}

func (e *Emitter) SubAgentCompleted(ctx context.Context, subagentType, preview string) {
	e.emit(ctx, SubAgentComplete, map[string]any{"subagent_type": subagentType, "preview": preview})
}

func (e *Emitter) TodosUpdated(ctx context.Context, count int) {
	e.emit(ctx, TodosUpdated, map[string]any{"count": count})
}

func (e *Emitter) StateCheckpointed(ctx context.Context, threadID string) {
	e.emit(ctx, StateCheckpointed, map[string]any{"thread_id": threadID})
}

func (e *Emitter) PlanningComplete(ctx context.Context) { e.emit(ctx, PlanningComplete, nil) }

func (e *Emitter) TokenUsage(ctx context.Context, promptTokens, completionTokens int) {
	e.emit(ctx, TokenUsage, map[string]any{"prompt_tokens": promptTokens, "completion_tokens": completionTokens})
}

// Dispatcher fans out events to registered broadcasters in parallel
// (fire-and-forget goroutines). Broadcaster failures are logged and never
// propagate to the loop.
type Dispatcher struct {
	broadcasters []Broadcaster
	log          *slog.Logger
}

// NewDispatcher returns a dispatcher fanning out to the given
// broadcasters. A nil logger falls back to slog.Default().
func NewDispatcher(logger *slog.Logger, broadcasters ...Broadcaster) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	filtered := make([]Broadcaster, 0, len(broadcasters))
	for _, b := range broadcasters {
		if b != nil {
			filtered = append(filtered, b)
		}
	}
	return &Dispatcher{broadcasters: filtered, log: logger}
}

// Dispatch sends e to every broadcaster that accepts it via
// ShouldBroadcast, each on its own goroutine. Events are ordered at the
// dispatcher entry; deliveries across broadcasters may interleave.
func (d *Dispatcher) Dispatch(ctx context.Context, e Event) {
	for _, b := range d.broadcasters {
		if !b.ShouldBroadcast(e) {
			continue
		}
		go func(b Broadcaster) {
			if err := b.Emit(ctx, e); err != nil {
				d.log.Error("event broadcaster failed", "error", err, "event_type", e.Type)
			}
		}(b)
	}
}

// CallbackBroadcaster adapts a function pair into a Broadcaster, for
// tests and simple sinks.
type CallbackBroadcaster struct {
	Accept func(e Event) bool
	Fn     func(ctx context.Context, e Event) error
}

func (c *CallbackBroadcaster) ShouldBroadcast(e Event) bool {
	if c.Accept == nil {
		return true
	}
	return c.Accept(e)
}

func (c *CallbackBroadcaster) Emit(ctx context.Context, e Event) error {
	if c.Fn == nil {
		return nil
	}
	return c.Fn(ctx, e)
}
