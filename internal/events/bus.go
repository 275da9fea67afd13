package events

import (
	"container/heap"
	"log"
	"sync"

	"golang.org/x/time/rate"
)

// DefaultCapacity is the default bound on the bus queue.
const DefaultCapacity = 1024

// queuedEvent pairs an event with its arrival sequence number, which
// breaks priority ties in FIFO order.
type queuedEvent struct {
	event Event
	seq   uint64
}

// eventHeap orders queued events by priority descending, then sequence
// ascending.
type eventHeap []queuedEvent

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].event.Context.Priority != h[j].event.Context.Priority {
		return h[i].event.Context.Priority > h[j].event.Context.Priority
	}
	return h[i].seq < h[j].seq
}
func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *eventHeap) Push(x any)   { *h = append(*h, x.(queuedEvent)) }
func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// subscription is one registered handler with its admission filter.
type subscription struct {
	filter  Filter
	handler Handler
}

// Bus is the prioritized in-process event bus. Emit never blocks; when
// the queue is full the oldest event of the lowest queued priority is
// dropped to make room. Process drains in priority-then-FIFO order.
type Bus struct {
	mu       sync.Mutex
	queue    eventHeap
	seq      uint64
	capacity int

	subs      map[int]subscription
	nextSubID int

	observers map[int]chan Event
	nextObsID int

	stats Stats

	// overflowWarn throttles queue_overflow log lines so a burst of
	// drops does not flood stderr.
	overflowWarn *rate.Limiter
}

// NewBus creates a bus with the given queue capacity (DefaultCapacity
// when zero or negative).
func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{
		capacity:     capacity,
		subs:         make(map[int]subscription),
		observers:    make(map[int]chan Event),
		overflowWarn: rate.NewLimiter(rate.Limit(1), 1),
		stats: Stats{
			PerType:     make(map[Variant]uint64),
			PerPriority: make(map[Priority]uint64),
		},
	}
}

// Emit enqueues an event. It returns immediately; the event is always
// accepted, at worst at the cost of a lower-priority queued event.
func (b *Bus) Emit(e Event) {
	b.mu.Lock()

	if len(b.queue) >= b.capacity {
		b.dropLowestOldest()
		b.stats.EventsDropped++
		if b.overflowWarn.Allow() {
			log.Printf("events: queue_overflow capacity=%d, dropping oldest low-priority event", b.capacity)
		}
	}

	heap.Push(&b.queue, queuedEvent{event: e, seq: b.seq})
	b.seq++
	b.stats.EventsEmitted++
	b.stats.PerType[e.Variant]++
	b.stats.PerPriority[e.Context.Priority]++

	observers := make([]chan Event, 0, len(b.observers))
	for _, ch := range b.observers {
		observers = append(observers, ch)
	}
	b.mu.Unlock()

	// Best-effort broadcast: a full observer buffer means that
	// observer misses this event.
	for _, ch := range observers {
		select {
		case ch <- e:
		default:
		}
	}
}

// dropLowestOldest removes the queued event with the lowest priority,
// oldest first within that priority. Caller holds the lock.
func (b *Bus) dropLowestOldest() {
	if len(b.queue) == 0 {
		return
	}
	victim := 0
	for i := 1; i < len(b.queue); i++ {
		v, c := b.queue[victim], b.queue[i]
		if c.event.Context.Priority < v.event.Context.Priority ||
			(c.event.Context.Priority == v.event.Context.Priority && c.seq < v.seq) {
			victim = i
		}
	}
	heap.Remove(&b.queue, victim)
}

// Subscribe registers a handler behind a filter and returns the
// subscription id for Unsubscribe.
func (b *Bus) Subscribe(filter Filter, handler Handler) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextSubID
	b.nextSubID++
	b.subs[id] = subscription{filter: filter, handler: handler}
	b.stats.ActiveSubscriptions = uint64(len(b.subs))
	return id
}

// Unsubscribe removes a subscription. Unknown ids are ignored.
func (b *Bus) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
	b.stats.ActiveSubscriptions = uint64(len(b.subs))
}

// Observe opens a best-effort broadcast channel with the given buffer.
// The returned stop function closes the channel and detaches it. Slow
// observers miss events rather than blocking the bus.
func (b *Bus) Observe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	id := b.nextObsID
	b.nextObsID++
	b.observers[id] = ch
	b.mu.Unlock()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.observers, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, stop
}

// Process drains up to n events in priority-then-FIFO order and invokes
// every matching subscriber for each. Handler errors and panics are
// logged and do not stop other handlers. Returns the number of events
// dispatched.
func (b *Bus) Process(n int) int {
	b.mu.Lock()
	count := n
	if count > len(b.queue) {
		count = len(b.queue)
	}
	batch := make([]Event, 0, count)
	for i := 0; i < count; i++ {
		batch = append(batch, heap.Pop(&b.queue).(queuedEvent).event)
	}
	subs := make([]subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, e := range batch {
		for _, s := range subs {
			if !s.filter.Matches(e) {
				continue
			}
			b.dispatch(s.handler, e)
		}
		b.mu.Lock()
		b.stats.EventsProcessed++
		b.mu.Unlock()
	}
	return len(batch)
}

// dispatch invokes one handler, containing errors and panics.
func (b *Bus) dispatch(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("events: handler panic on %s event %s: %v",
				e.Variant, e.Context.EventID, r)
		}
	}()
	if err := h(e); err != nil {
		log.Printf("events: handler error on %s event %s: %v",
			e.Variant, e.Context.EventID, err)
	}
}

// Pending returns the current queue length.
func (b *Bus) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Stats returns a snapshot of the bus counters.
func (b *Bus) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats.clone()
}

// ResetStats zeroes every counter. The only non-monotone operation.
func (b *Bus) ResetStats() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stats = Stats{
		ActiveSubscriptions: uint64(len(b.subs)),
		PerType:             make(map[Variant]uint64),
		PerPriority:         make(map[Priority]uint64),
	}
}
