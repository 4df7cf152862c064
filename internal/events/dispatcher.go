package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dalscooter/concern-service/internal/domain"
)

// AnyKind subscribes a handler to every notification kind.
const AnyKind domain.NotificationKind = "*"

// EventHandler delivers a notification over one channel.
type EventHandler func(context.Context, domain.NotificationEvent) error

// Dispatcher interface allows event publication/subscription.
type Dispatcher interface {
	Publish(ctx context.Context, event domain.NotificationEvent) error
	Subscribe(kind domain.NotificationKind, channel string, handler EventHandler)
}

type subscription struct {
	channel string
	handler EventHandler
}

// inMemoryDispatcher is a simple synchronous dispatcher.
type inMemoryDispatcher struct {
	mu        sync.RWMutex
	listeners map[domain.NotificationKind][]subscription
}

// NewInMemoryDispatcher creates a dispatcher instance.
func NewInMemoryDispatcher() Dispatcher {
	return &inMemoryDispatcher{
		listeners: make(map[domain.NotificationKind][]subscription),
	}
}

// Publish synchronously invokes every handler subscribed to the event's kind.
// A failing channel does not stop the others; all failures are returned joined.
func (d *inMemoryDispatcher) Publish(ctx context.Context, event domain.NotificationEvent) error {
	d.mu.RLock()
	subs := append([]subscription{}, d.listeners[AnyKind]...)
	if event.Kind != "" && event.Kind != AnyKind {
		subs = append(subs, d.listeners[event.Kind]...)
	}
	d.mu.RUnlock()

	var errs []error
	for _, sub := range subs {
		if err := sub.handler(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sub.channel, err))
		}
	}
	return errors.Join(errs...)
}

// Subscribe registers a handler for the given kind.
func (d *inMemoryDispatcher) Subscribe(kind domain.NotificationKind, channel string, handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners[kind] = append(d.listeners[kind], subscription{channel: channel, handler: handler})
}
