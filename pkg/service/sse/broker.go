package sse

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

/*
Broker fans task lifecycle events out to SSE subscribers.  A subscriber may
scope its stream to a single task by passing a "task" query parameter on the
subscribe request; subscribers without a scope receive every task's events.
Each event is sent as a single-line SSE message of the form:

data: {json}\n\n
*/
type Broker struct {
	mu        sync.RWMutex
	clients   map[chan []byte]string // value is the task scope, "" matches all
	closed    bool
	heartbeat time.Duration
}

/*
NewBroker creates a new Broker.
*/
func NewBroker() *Broker {
	return &Broker{
		clients:   make(map[chan []byte]string),
		heartbeat: 25 * time.Second,
	}
}

/*
NewTestBroker creates a broker with a shorter heartbeat interval for testing.
*/
func NewTestBroker() *Broker {
	return &Broker{
		clients:   make(map[chan []byte]string),
		heartbeat: 100 * time.Millisecond,
	}
}

/*
Subscribe upgrades the HTTP connection to an SSE stream and blocks until the
client disconnects.  Use from an HTTP handler:

broker.Subscribe(w, r)

The optional "task" query parameter restricts the stream to one task's
events.
*/
func (broker *Broker) Subscribe(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)

	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	scope := r.URL.Query().Get("task")

	ch := make(chan []byte, 8)
	broker.mu.Lock()

	if broker.closed {
		broker.mu.Unlock()
		http.Error(w, "broker closed", http.StatusGone)
		return
	}

	broker.clients[ch] = scope
	broker.mu.Unlock()

	// heartbeat ticker to keep connection alive in the presence of proxies.
	ticker := time.NewTicker(broker.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			broker.remove(ch)
			return
		case msg := <-ch:
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(msg)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		case <-ticker.C:
			// comment heartbeat
			_, _ = w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()
		}
	}
}

/*
Broadcast marshals v to JSON and sends it to every subscriber whose scope
matches the task.
*/
func (broker *Broker) Broadcast(taskID string, v any) error {
	msg, err := json.Marshal(v)

	if err != nil {
		return err
	}

	broker.mu.RLock()
	defer broker.mu.RUnlock()

	if broker.closed {
		return nil
	}

	for ch, scope := range broker.clients {
		if scope != "" && scope != taskID {
			continue
		}

		select {
		case ch <- msg:
		default:
			// slow client, drop message to avoid blocking.
		}
	}

	return nil
}

/*
Close disconnects all clients and prevents further subscriptions.
*/
func (broker *Broker) Close() {
	broker.mu.Lock()
	defer broker.mu.Unlock()

	if broker.closed {
		return
	}

	broker.closed = true

	for ch := range broker.clients {
		close(ch)
	}

	broker.clients = map[chan []byte]string{}
}

func (broker *Broker) remove(ch chan []byte) {
	broker.mu.Lock()

	if _, ok := broker.clients[ch]; ok {
		delete(broker.clients, ch)
		close(ch)
	}

	broker.mu.Unlock()
}
