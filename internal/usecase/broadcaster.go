package usecase

import (
	"sync"

	"PulsePrice/internal/domain/models"
	domrepo "PulsePrice/internal/domain/repository"
	applogger "PulsePrice/pkg/logger"
)

const defaultSubscriberBuffer = 16

// Subscription is one live stream consumer. C is closed when the
// subscriber is dropped or unsubscribed.
type Subscription struct {
	ID uint64
	C  <-chan models.StreamMessage
	ch chan models.StreamMessage
}

// StreamBroadcaster fans finished batches out to subscribers. A subscriber
// whose buffer is full is dropped instead of blocking the others.
type StreamBroadcaster struct {
	mu       sync.Mutex
	subs     map[uint64]*Subscription
	nextID   uint64
	buffer   int
	snapshot func() map[string]models.TokenQuote
	log      *applogger.Logger
	metrics  domrepo.Metrics
	closed   bool
}

func NewStreamBroadcaster(snapshot func() map[string]models.TokenQuote, buffer int, l *applogger.Logger, metrics domrepo.Metrics) *StreamBroadcaster {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	if l == nil {
		l = applogger.NewNop()
	}
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	return &StreamBroadcaster{
		subs:     make(map[uint64]*Subscription),
		buffer:   buffer,
		snapshot: snapshot,
		log:      l,
		metrics:  metrics,
	}
}

// Subscribe registers a subscriber whose first message is the full snapshot.
// The snapshot is queued under the same lock Publish takes, so no batch can
// overtake it.
func (b *StreamBroadcaster) Subscribe() *Subscription {
	ch := make(chan models.StreamMessage, b.buffer)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{ID: b.nextID, C: ch, ch: ch}
	if b.closed {
		close(ch)
		return sub
	}
	ch <- models.NewSnapshotMessage(b.snapshot())
	b.subs[sub.ID] = sub
	b.metrics.SetSubscribers(len(b.subs))
	return sub
}

// Unsubscribe removes sub and closes its channel. Safe to call twice.
func (b *StreamBroadcaster) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(sub.ID)
}

// Publish delivers batch to every subscriber without blocking.
func (b *StreamBroadcaster) Publish(batch models.Batch) {
	msg := models.NewPriceUpdateMessage(batch)

	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subs {
		select {
		case sub.ch <- msg:
		default:
			b.log.Warn("slow subscriber dropped", applogger.Int64("subscriber", int64(id)))
			b.metrics.RecordError("subscriber_dropped")
			b.removeLocked(id)
		}
	}
}

// Len returns the number of live subscribers.
func (b *StreamBroadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close drops every subscriber and rejects new ones.
func (b *StreamBroadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id := range b.subs {
		b.removeLocked(id)
	}
}

func (b *StreamBroadcaster) removeLocked(id uint64) {
	sub, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	close(sub.ch)
	b.metrics.SetSubscribers(len(b.subs))
}
