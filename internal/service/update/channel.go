// internal/service/update/channel.go

package update

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"walkabout/internal/domain/geom"
	"walkabout/internal/domain/poi"
)

// subscriberBuffer is the per-subscriber event backlog. A subscriber that
// falls this far behind is torn down rather than blocking the publisher.
const subscriberBuffer = 16

// Event is one push update about newly discovered POIs. Subscribers match
// Fingerprint against the view they are currently showing and discard
// everything else; the channel broadcasts per category, not per fingerprint.
type Event struct {
	Category    poi.Category `json:"category"`
	POIs        []poi.POI    `json:"pois"`
	Count       int          `json:"count"`
	Timestamp   time.Time    `json:"timestamp"`
	Fingerprint string       `json:"fingerprint"`
}

// Subscription is one live listener's handle. Close unregisters it; Events
// is closed afterwards.
type Subscription struct {
	id       string
	category poi.Category
	events   chan Event
	registry *Registry
	mu       sync.Mutex
	closed   bool
}

// Events returns the subscription's event stream.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Close unregisters the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	s.mu.Unlock()

	s.registry.remove(s)
}

// deliver attempts a non-blocking send. It returns false only when the
// subscriber's buffer is full; sends to a closed subscription are silently
// discarded.
func (s *Subscription) deliver(event Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return true
	}

	select {
	case s.events <- event:
		return true
	default:
		return false
	}
}

// Registry is the explicit bookkeeping of live subscribers, owned by the
// Channel and passed in at construction rather than living as process-wide
// state.
type Registry struct {
	mu   sync.RWMutex
	subs map[poi.Category]map[string]*Subscription
}

// NewRegistry creates an empty subscriber registry.
func NewRegistry() *Registry {
	return &Registry{
		subs: make(map[poi.Category]map[string]*Subscription),
	}
}

func (r *Registry) add(s *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.subs[s.category] == nil {
		r.subs[s.category] = make(map[string]*Subscription)
	}
	r.subs[s.category][s.id] = s
}

func (r *Registry) remove(s *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.subs[s.category], s.id)
}

// forCategory returns a snapshot of the category's subscribers so publish
// never holds the lock while sending.
func (r *Registry) forCategory(category poi.Category) []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make([]*Subscription, 0, len(r.subs[category]))
	for _, s := range r.subs[category] {
		snapshot = append(snapshot, s)
	}
	return snapshot
}

// Count returns the number of live subscribers for a category.
func (r *Registry) Count(category poi.Category) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.subs[category])
}

// Channel fans newly discovered POIs out to active per-category listeners.
// Delivery is at-most-once and best-effort: no replay for late subscribers,
// and a subscriber that cannot keep up is dropped silently.
type Channel struct {
	registry *Registry
	eventBus *nats.Conn
	topic    string
}

// NewChannel creates an update channel. eventBus may be nil; when set, every
// event is mirrored to NATS for out-of-process consumers.
func NewChannel(registry *Registry, eventBus *nats.Conn, topic string) *Channel {
	return &Channel{
		registry: registry,
		eventBus: eventBus,
		topic:    topic,
	}
}

// Subscribe registers a listener for one category, tied to a long-lived
// connection. The caller must Close the subscription when the connection
// goes away.
func (c *Channel) Subscribe(category poi.Category) *Subscription {
	s := &Subscription{
		id:       uuid.New().String(),
		category: category,
		events:   make(chan Event, subscriberBuffer),
		registry: c.registry,
	}
	c.registry.add(s)
	return s
}

// Publish sends the new POIs to every live subscriber of the category. The
// fingerprint is derived from the polygon that triggered the discovery so
// subscribers can decide relevance. Publish never fails: send errors only
// ever cost a subscriber, not the caller.
func (c *Channel) Publish(category poi.Category, pois []poi.POI, sourcePolygon geom.Polygon) {
	if len(pois) == 0 {
		return
	}

	event := Event{
		Category:    category,
		POIs:        pois,
		Count:       len(pois),
		Timestamp:   time.Now(),
		Fingerprint: geom.Fingerprint(sourcePolygon, string(category)),
	}

	for _, sub := range c.registry.forCategory(category) {
		if !sub.deliver(event) {
			log.Printf("dropping slow update subscriber %s (category %s)", sub.id, category)
			sub.Close()
		}
	}

	c.mirrorToBus(event)
}

// mirrorToBus publishes the event to NATS on a best-effort basis.
func (c *Channel) mirrorToBus(event Event) {
	if c.eventBus == nil {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("error marshaling update event: %v", err)
		return
	}

	subject := c.topic + "." + string(event.Category)
	if err := c.eventBus.Publish(subject, data); err != nil {
		log.Printf("error publishing update event to %s: %v", subject, err)
	}
}
