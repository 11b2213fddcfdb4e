// Package bus implements the typed, source-stamped, multi-subscriber
// broadcast channel that glues every actor together: a map of
// per-subscriber channels under a single RWMutex, non-blocking send that
// drops for any subscriber whose channel is full rather than blocking the
// publisher. Each subscriber also carries a bounded-backlog lag counter
// (the number of messages a slow subscriber missed is logged at its next
// Poll) and a shared
// atomic shutdown flag consulted by Poll at the top of every actor's run loop.
package bus

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/divotmaker/flighthook/internal/schema"
)

// DefaultBacklog is the reference per-subscriber channel capacity.
const DefaultBacklog = 1024

// RawPayload carries the original wire bytes alongside a decoded Event, for
// audit/trace logging.
type RawPayload struct {
	Binary []byte
	Text   string
}

// Message is a BusMessage: a source-stamped, timestamped Event.
type Message struct {
	Source     schema.ActorID
	Timestamp  time.Time
	RawPayload *RawPayload
	Event      schema.Event
}

// Bus is the shared broadcast channel. Create one per process; it outlives
// every actor.
type Bus struct {
	logger  *slog.Logger
	backlog int

	mu   sync.RWMutex
	subs map[int64]*subscriberState
	next int64
}

type subscriberState struct {
	ch       chan Message
	lagged   atomic.Int64
	shutdown atomic.Bool
}

// New constructs a Bus with the given per-subscriber backlog (DefaultBacklog
// if zero).
func New(logger *slog.Logger, backlog int) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	return &Bus{
		logger:  logger,
		backlog: backlog,
		subs:    make(map[int64]*subscriberState),
	}
}

// Sender is the cloneable handle producers use to publish messages. The
// wrapper, not the producer, stamps Source and Timestamp.
type Sender struct {
	bus    *Bus
	source schema.ActorID
}

// NewSender returns a Sender that stamps every message with source.
func (b *Bus) NewSender(source schema.ActorID) Sender {
	return Sender{bus: b, source: source}
}

// Send publishes an event, non-blocking. Silently drops if there are no
// subscribers. A subscriber whose channel is full is counted as lagged
// rather than blocking the sender.
func (s Sender) Send(event schema.Event) {
	s.SendRaw(event, nil)
}

// SendRaw is Send plus an optional raw-payload envelope for audit/trace use.
func (s Sender) SendRaw(event schema.Event, raw *RawPayload) {
	msg := Message{
		Source:     s.source,
		Timestamp:  time.Now().UTC(),
		RawPayload: raw,
		Event:      event,
	}

	s.bus.mu.RLock()
	defer s.bus.mu.RUnlock()
	for _, sub := range s.bus.subs {
		select {
		case sub.ch <- msg:
		default:
			sub.lagged.Add(1)
		}
	}
}

// Source returns the ActorID this sender stamps onto every message.
func (s Sender) Source() schema.ActorID { return s.source }

// Receiver is a single-consumer handle returned by Subscribe. It is not
// cloneable: one consumer per actor.
type Receiver struct {
	bus *Bus
	id  int64
	sub *subscriberState
}

// Subscribe registers a new receiver starting at the current head (it will
// only see messages published after this call).
func (b *Bus) Subscribe() *Receiver {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	sub := &subscriberState{ch: make(chan Message, b.backlog)}
	b.subs[id] = sub
	return &Receiver{bus: b, id: id, sub: sub}
}

// Unsubscribe removes the receiver from the bus. Safe to call more than once.
func (r *Receiver) Unsubscribe() {
	r.bus.mu.Lock()
	defer r.bus.mu.Unlock()
	if _, ok := r.bus.subs[r.id]; ok {
		close(r.sub.ch)
		delete(r.bus.subs, r.id)
	}
}

// Shutdown raises this receiver's shutdown flag; IsShutdown reports it true
// immediately and the next Poll returns a Shutdown result.
func (r *Receiver) Shutdown() {
	r.sub.shutdown.Store(true)
}

// IsShutdown checks the shared shutdown flag.
func (r *Receiver) IsShutdown() bool {
	return r.sub.shutdown.Load()
}

// PollResult is the outcome of a non-blocking Poll.
type PollResult struct {
	Message *Message // non-nil on delivery
	Shutdown bool
}

// Poll performs a non-blocking drain: returns a Shutdown result if the
// shutdown flag is set or the channel was closed, otherwise a message if one
// is queued, or an empty result if nothing is available right now. Lagged conditions
// are coalesced: logged once per drain and then absorbed, never surfaced
// to the caller as a distinct event.
func (r *Receiver) Poll() PollResult {
	if n := r.sub.lagged.Swap(0); n > 0 {
		r.bus.logger.Warn("bus subscriber lagged", "dropped", n)
	}

	if r.sub.shutdown.Load() {
		return PollResult{Shutdown: true}
	}

	select {
	case msg, ok := <-r.sub.ch:
		if !ok {
			return PollResult{Shutdown: true}
		}
		return PollResult{Message: &msg}
	default:
	}
	return PollResult{}
}

// Close shuts down the bus: every receiver will observe Shutdown at its
// next Poll.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		sub.shutdown.Store(true)
	}
}
