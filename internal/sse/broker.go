// Package sse implements a Server-Sent Events broker for note and sync updates.
package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/starford/notesync/internal/reconcile"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// SyncEvent is the payload of sync.finished and sync.failed.
type SyncEvent struct {
	Pushed     int    `json:"pushed"`
	PushFailed int    `json:"push_failed"`
	Pulled     int    `json:"pulled"`
	Inserted   int    `json:"inserted"`
	Pruned     int    `json:"pruned"`
	Phase      string `json:"phase,omitempty"`
	Error      string `json:"error,omitempty"`
	At         int64  `json:"at"`
}

var keepalive = []byte(": keepalive\n\n")

// historySize bounds the events kept for Last-Event-ID replay.
const historySize = 128

type subscription struct {
	ch     chan []byte
	after  uint64
	replay bool
}

type frame struct {
	id  uint64
	raw []byte
}

// Broker manages SSE client connections and broadcasts events.
//
// A single internal event loop owns the client set and the replay history.
// Public methods talk to it through channels. Every event gets an increasing
// id; a reconnecting client that sends Last-Event-ID receives the events it
// missed while they are still in history.
type Broker struct {
	heartbeat time.Duration

	subscribeCh   chan subscription
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker that sends a keepalive comment to every client
// each heartbeat interval. Zero disables keepalives.
func NewBroker(heartbeat time.Duration) *Broker {
	b := &Broker{
		heartbeat:     heartbeat,
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var seq uint64
	history := make([]frame, 0, historySize)

	var tick <-chan time.Time
	if b.heartbeat > 0 {
		t := time.NewTicker(b.heartbeat)
		defer t.Stop()
		tick = t.C
	}

	send := func(raw []byte) {
		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Client buffer full; skip to avoid blocking broker loop.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case sub := <-b.subscribeCh:
			clients[sub.ch] = struct{}{}
			if sub.replay {
				for _, f := range history {
					if f.id <= sub.after {
						continue
					}
					select {
					case sub.ch <- f.raw:
					default:
					}
				}
			}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			payload, err := json.Marshal(event.Data)
			if err != nil {
				continue
			}
			seq++
			raw := []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", seq, event.Type, payload))
			if len(history) == historySize {
				history = append(history[:0], history[1:]...)
			}
			history = append(history, frame{id: seq, raw: raw})
			send(raw)

		case <-tick:
			send(keepalive)

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	return b.subscribe(subscription{})
}

// SubscribeAfter adds a new client that first receives the retained events
// with an id greater than lastID.
func (b *Broker) SubscribeAfter(lastID uint64) chan []byte {
	return b.subscribe(subscription{after: lastID, replay: true})
}

func (b *Broker) subscribe(sub subscription) chan []byte {
	ch := make(chan []byte, historySize)
	sub.ch = ch
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- sub:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishNoteEvent publishes note.created, note.updated or note.deleted.
// It has the shape of notes.ChangeFunc.
func (b *Broker) PublishNoteEvent(kind, key string) {
	switch kind {
	case "created", "updated", "deleted":
		b.Publish(Event{Type: "note." + kind, Data: map[string]string{"key": key}})
	}
}

// PublishSyncResult publishes sync.finished, or sync.failed when r carries an error.
func (b *Broker) PublishSyncResult(r reconcile.Result) {
	ev := SyncEvent{
		Pushed:     r.Summary.Pushed,
		PushFailed: r.Summary.PushFailed,
		Pulled:     r.Summary.Pulled,
		Inserted:   r.Summary.Inserted,
		Pruned:     r.Summary.Pruned,
		At:         r.At.Unix(),
	}
	typ := "sync.finished"
	if r.Err != nil {
		typ = "sync.failed"
		ev.Error = r.Err.Error()
		var pe *reconcile.PhaseError
		if errors.As(r.Err, &pe) {
			ev.Phase = pe.Phase
		}
	}
	b.Publish(Event{Type: typ, Data: ev})
}

// retryMillis is the reconnect delay suggested to clients.
const retryMillis = 3000

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "retry: %d\n\n", retryMillis)
	flusher.Flush()

	var ch chan []byte
	if id, err := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64); err == nil {
		ch = b.SubscribeAfter(id)
	} else {
		ch = b.Subscribe()
	}
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if _, err := w.Write(msg); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
