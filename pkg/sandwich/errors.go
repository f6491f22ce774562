package sandwich

import "errors"

var (
	// ErrInvalidEvent indicates that an event does not satisfy protocol invariants.
	ErrInvalidEvent = errors.New("sandwich: invalid event")
	// ErrInvalidSubscription indicates that a subscription configuration is invalid.
	ErrInvalidSubscription = errors.New("sandwich: invalid subscription")
	// ErrSubscriptionClosed indicates that a subscription is no longer active.
	ErrSubscriptionClosed = errors.New("sandwich: subscription closed")
	// ErrEventDropped reports an event discarded by a full subscription queue.
	ErrEventDropped = errors.New("sandwich: event dropped, subscription queue full")
	// ErrServiceAlreadyRegistered indicates duplicate service registration.
	ErrServiceAlreadyRegistered = errors.New("sandwich: service already registered")
	// ErrServiceNotFound indicates a service lookup miss.
	ErrServiceNotFound = errors.New("sandwich: service not found")
	// ErrModuleAlreadyRegistered indicates duplicate module registration.
	ErrModuleAlreadyRegistered = errors.New("sandwich: module already registered")
	// ErrDriverAlreadyRegistered indicates duplicate driver registration.
	ErrDriverAlreadyRegistered = errors.New("sandwich: driver already registered")
	// ErrInvalidOutboundRequest indicates an outbound request failed validation.
	ErrInvalidOutboundRequest = errors.New("sandwich: invalid outbound request")
	// ErrOutboundUnsupported indicates a sink cannot perform the requested operation.
	ErrOutboundUnsupported = errors.New("sandwich: outbound operation unsupported")
	// ErrInvalidReplyRequest indicates a reply cache request failed validation.
	ErrInvalidReplyRequest = errors.New("sandwich: invalid reply request")
	// ErrInvalidLLMRequest marks LLM and image requests rejected before any
	// provider call.
	ErrInvalidLLMRequest = errors.New("sandwich: invalid llm request")
)
