package driver

import (
	"context"
	"fmt"

	"sandwich/pkg/sandwich"
)

// Router is the process-wide SinkDispatcher. It forwards each operation
// to the dispatcher of the driver instance named by the target's sink.
// A target without a sink is accepted only while one instance can send.
type Router struct {
	byID       map[string]route
	byPlatform map[sandwich.Platform][]route
}

type route struct {
	ref        sandwich.SinkRef
	dispatcher sandwich.SinkDispatcher
}

// NewRouter indexes the runtimes that can send. Runtimes without a
// dispatcher are skipped.
func NewRouter(runtimes []Runtime) (*Router, error) {
	router := &Router{
		byID:       make(map[string]route),
		byPlatform: make(map[sandwich.Platform][]route),
	}
	for _, runtime := range runtimes {
		if runtime.SinkDispatcher == nil {
			continue
		}
		ref := sandwich.SinkRef{Platform: runtime.Source.Platform, ID: runtime.Source.ID}
		if ref.ID == "" {
			return nil, fmt.Errorf("new router: %s sink without id", ref.Platform)
		}
		if _, taken := router.byID[ref.ID]; taken {
			return nil, fmt.Errorf("new router: duplicate sink id %s", ref.ID)
		}
		entry := route{ref: ref, dispatcher: runtime.SinkDispatcher}
		router.byID[ref.ID] = entry
		router.byPlatform[ref.Platform] = append(router.byPlatform[ref.Platform], entry)
	}

	return router, nil
}

func (r *Router) SendMessage(ctx context.Context, request sandwich.SendMessageRequest) (*sandwich.OutboundMessage, error) {
	dispatcher, err := r.lookup(request.Target)
	if err != nil {
		return nil, fmt.Errorf("route send message: %w", err)
	}

	return dispatcher.SendMessage(ctx, request)
}

func (r *Router) EditMessage(ctx context.Context, request sandwich.EditMessageRequest) error {
	dispatcher, err := r.lookup(request.Target)
	if err != nil {
		return fmt.Errorf("route edit message: %w", err)
	}

	return dispatcher.EditMessage(ctx, request)
}

func (r *Router) DeleteMessage(ctx context.Context, request sandwich.DeleteMessageRequest) error {
	dispatcher, err := r.lookup(request.Target)
	if err != nil {
		return fmt.Errorf("route delete message: %w", err)
	}

	return dispatcher.DeleteMessage(ctx, request)
}

func (r *Router) SetReaction(ctx context.Context, request sandwich.SetReactionRequest) error {
	dispatcher, err := r.lookup(request.Target)
	if err != nil {
		return fmt.Errorf("route set reaction: %w", err)
	}

	return dispatcher.SetReaction(ctx, request)
}

func (r *Router) ListMessages(ctx context.Context, request sandwich.ListMessagesRequest) ([]sandwich.HistoryMessage, error) {
	history, err := r.history(request.Target, sandwich.OutboundOperationListMessages)
	if err != nil {
		return nil, err
	}

	return history.ListMessages(ctx, request)
}

func (r *Router) DeleteMessages(ctx context.Context, request sandwich.DeleteMessagesRequest) error {
	history, err := r.history(request.Target, sandwich.OutboundOperationDeleteMessages)
	if err != nil {
		return err
	}

	return history.DeleteMessages(ctx, request)
}

func (r *Router) ClearReactions(ctx context.Context, request sandwich.ClearReactionsRequest) error {
	history, err := r.history(request.Target, sandwich.OutboundOperationClearReactions)
	if err != nil {
		return err
	}

	return history.ClearReactions(ctx, request)
}

func (r *Router) history(target sandwich.OutboundTarget, op sandwich.OutboundOperation) (sandwich.HistoryDispatcher, error) {
	dispatcher, err := r.lookup(target)
	if err != nil {
		return nil, fmt.Errorf("route %s: %w", op, err)
	}
	history, ok := dispatcher.(sandwich.HistoryDispatcher)
	if !ok {
		return nil, fmt.Errorf("route %s: %w: sink has no history", op, sandwich.ErrOutboundUnsupported)
	}

	return history, nil
}

// lookup picks the dispatcher for target: by sink ID when given, else by
// platform, else the only sink there is.
func (r *Router) lookup(target sandwich.OutboundTarget) (sandwich.SinkDispatcher, error) {
	var candidates []route
	switch sink := target.Sink; {
	case sink != nil && sink.ID != "":
		entry, ok := r.byID[sink.ID]
		if !ok {
			return nil, fmt.Errorf("%w: unknown sink %s", sandwich.ErrOutboundUnsupported, sink.ID)
		}
		if sink.Platform != "" && sink.Platform != entry.ref.Platform {
			return nil, fmt.Errorf("%w: sink %s is %s, not %s",
				sandwich.ErrOutboundUnsupported, sink.ID, entry.ref.Platform, sink.Platform)
		}
		return entry.dispatcher, nil
	case sink != nil && sink.Platform != "":
		candidates = r.byPlatform[sink.Platform]
	default:
		for _, entry := range r.byID {
			candidates = append(candidates, entry)
		}
	}

	switch len(candidates) {
	case 0:
		return nil, fmt.Errorf("%w: no sink for target", sandwich.ErrOutboundUnsupported)
	case 1:
		return candidates[0].dispatcher, nil
	}

	return nil, fmt.Errorf("%w: %d sinks match, target must name one", sandwich.ErrOutboundUnsupported, len(candidates))
}

var (
	_ sandwich.SinkDispatcher    = (*Router)(nil)
	_ sandwich.HistoryDispatcher = (*Router)(nil)
)
