package sandwich

import (
	"context"
	"time"
)

// OverflowPolicy decides what happens to an event published while a
// subscription queue is full.
type OverflowPolicy string

const (
	// OverflowDrop discards the incoming event and reports ErrEventDropped.
	// It is the default.
	OverflowDrop OverflowPolicy = "drop"
	// OverflowWait holds the publisher until the queue has room or the
	// publish context ends.
	OverflowWait OverflowPolicy = "wait"
)

// SubscriptionSpec tunes one handler subscription. Zero fields take the
// kernel defaults.
type SubscriptionSpec struct {
	Name           string
	Buffer         int
	Workers        int
	HandlerTimeout time.Duration
	Overflow       OverflowPolicy
}

// Subscription is a live handler registration.
type Subscription interface {
	Name() string
	// Close stops delivery and waits for in-flight handlers.
	Close(ctx context.Context) error
}
