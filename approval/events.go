/*
events.go - Decision events for the external entity module

PURPOSE:
  The approval engine never mutates purchase orders or expenses itself.
  When a request is resolved it emits a DecisionEvent; the owning module
  subscribes a Sink and transitions its own aggregate to approved/rejected.

DELIVERY:
  Events are emitted after the store transition has committed, on the
  caller's goroutine. A sink that needs durability should record the
  event before returning; a sink error is logged by callers but does not
  roll back the decision, which is already final.
*/
package approval

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// DecisionEvent notifies the external entity module that a request was
// resolved. The underlying purchase order or expense should transition to
// the corresponding state.
type DecisionEvent struct {
	RequestID  int64
	EntityType EntityType
	EntityID   int64
	Decision   Decision
	ActorID    int64
	Comments   string
	Amount     decimal.Decimal
	DecidedAt  time.Time
}

// Sink receives decision events.
type Sink interface {
	DecisionMade(ctx context.Context, ev DecisionEvent) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, ev DecisionEvent) error

func (f SinkFunc) DecisionMade(ctx context.Context, ev DecisionEvent) error {
	return f(ctx, ev)
}

// NopSink discards all events. Used when no entity module is wired.
func NopSink() Sink {
	return SinkFunc(func(context.Context, DecisionEvent) error { return nil })
}
