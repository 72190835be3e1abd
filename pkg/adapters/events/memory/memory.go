package memory

import (
	"context"
	"sync"

	"github.com/aescanero/localdag/pkg/domain"
	"github.com/aescanero/localdag/pkg/ports"
)

// subscriptionBuffer bounds the events queued for one slow subscriber
// before Publish blocks.
const subscriptionBuffer = 256

type delivery struct {
	ctx   context.Context
	event domain.Event
}

// subscription delivers events to its handler one at a time, in publish order.
type subscription struct {
	id       uint64
	handler  ports.EventHandler
	events   chan delivery
	done     chan struct{}
	stopOnce sync.Once
}

func (s *subscription) stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

func (s *subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case d := <-s.events:
			_ = s.handler(d.ctx, d.event)
		}
	}
}

// InMemoryEventBus implements EventBus using in-memory handlers
type InMemoryEventBus struct {
	subscribers map[string][]*subscription
	nextID      uint64
	mu          sync.RWMutex
	wg          sync.WaitGroup
}

// NewInMemoryEventBus creates a new in-memory event bus
func NewInMemoryEventBus() *InMemoryEventBus {
	return &InMemoryEventBus{
		subscribers: make(map[string][]*subscription),
	}
}

// Publish queues an event for every subscriber of a topic. Each subscriber
// sees events in the order they were published.
func (e *InMemoryEventBus) Publish(ctx context.Context, topic string, event domain.Event) error {
	e.mu.RLock()
	subs := make([]*subscription, len(e.subscribers[topic]))
	copy(subs, e.subscribers[topic])
	e.mu.RUnlock()

	d := delivery{ctx: context.WithoutCancel(ctx), event: event}
	for _, sub := range subs {
		select {
		case sub.events <- d:
		case <-sub.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

// Subscribe subscribes to events on a specific topic. The subscription is
// dropped when ctx is cancelled.
func (e *InMemoryEventBus) Subscribe(ctx context.Context, topic string, handler ports.EventHandler) error {
	sub := &subscription{
		handler: handler,
		events:  make(chan delivery, subscriptionBuffer),
		done:    make(chan struct{}),
	}

	e.mu.Lock()
	e.nextID++
	sub.id = e.nextID
	e.subscribers[topic] = append(e.subscribers[topic], sub)
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		sub.run()
	}()

	go func() {
		select {
		case <-ctx.Done():
			e.unsubscribe(topic, sub.id)
		case <-sub.done:
		}
	}()

	return nil
}

// Unsubscribe removes all subscriptions from a topic
func (e *InMemoryEventBus) Unsubscribe(ctx context.Context, topic string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, sub := range e.subscribers[topic] {
		sub.stop()
	}
	delete(e.subscribers, topic)
	return nil
}

// Close drops all subscribers and waits for in-flight handlers
func (e *InMemoryEventBus) Close() error {
	e.mu.Lock()
	for _, subs := range e.subscribers {
		for _, sub := range subs {
			sub.stop()
		}
	}
	e.subscribers = make(map[string][]*subscription)
	e.mu.Unlock()

	e.wg.Wait()
	return nil
}

// unsubscribe removes a single subscription from a topic
func (e *InMemoryEventBus) unsubscribe(topic string, id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	subs := e.subscribers[topic]
	for i, s := range subs {
		if s.id == id {
			s.stop()
			e.subscribers[topic] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
}
