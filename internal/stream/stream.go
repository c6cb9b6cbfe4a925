// Package stream defines the line-delimited event protocol used to push
// partial search results to a consumer as they become available.
package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/carsift/carsift/internal/metrics"
	"github.com/carsift/carsift/internal/model"
)

// Event types on the wire.
const (
	TypeListings = "listings"
	TypeUpdate   = "update"
	TypeError    = "error"
)

// Event is one line of the response stream. Exactly one of the payload
// fields is populated depending on Type.
type Event struct {
	Type     string               `json:"type"`
	Listings []model.Listing      `json:"listings,omitempty"`
	ID       string               `json:"id,omitempty"`
	Update   *model.ListingUpdate `json:"update,omitempty"`
	Message  string               `json:"message,omitempty"`
}

// Batch builds the single initial event carrying every merged listing.
func Batch(listings []model.Listing) Event {
	return Event{Type: TypeListings, Listings: listings}
}

// Update builds a per-listing diff event addressed by composite identity.
func Update(id string, update model.ListingUpdate) Event {
	return Event{Type: TypeUpdate, ID: id, Update: &update}
}

// Error builds a non-fatal warning event.
func Error(message string) Event {
	return Event{Type: TypeError, Message: message}
}

// Fault reports a failure while encoding or transmitting an event. It
// terminates the stream without invalidating lines already written.
type Fault struct {
	Err error
}

func (f *Fault) Error() string { return fmt.Sprintf("stream fault: %v", f.Err) }
func (f *Fault) Unwrap() error { return f.Err }

// Encoder writes events as newline-delimited JSON. When the underlying
// writer supports flushing, every event is pushed to the consumer
// immediately, which is what makes the progressive protocol useful.
type Encoder struct {
	mu      sync.Mutex
	w       io.Writer
	flusher flusher
}

type flusher interface {
	Flush()
}

func NewEncoder(w io.Writer) *Encoder {
	enc := &Encoder{w: w}
	if f, ok := w.(flusher); ok {
		enc.flusher = f
	}
	return enc
}

// Encode writes one event as a single line. Any failure is a *Fault.
func (e *Encoder) Encode(event Event) error {
	line, err := json.Marshal(event)
	if err != nil {
		return &Fault{Err: err}
	}
	line = append(line, '\n')

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.w.Write(line); err != nil {
		return &Fault{Err: err}
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}

	metrics.StreamEventsTotal.WithLabelValues(event.Type).Inc()
	return nil
}
