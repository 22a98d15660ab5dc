package events

import (
	"strings"

	"github.com/holiman/uint256"

	"moneymarket/core/types"
	"moneymarket/crypto"
)

// Event represents a structured state change emitted by the protocol.
type Event interface {
	EventType() string
}

// Typed is implemented by events that render into the flat wire form.
type Typed interface {
	Event
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Fanout forwards every event to each non-nil emitter in order.
type Fanout []Emitter

func (f Fanout) Emit(evt Event) {
	for _, e := range f {
		if e != nil {
			e.Emit(evt)
		}
	}
}

// Recorder keeps emitted events in memory. Tests use it to assert on
// the emitted sequence.
type Recorder struct {
	Events []Event
}

func (r *Recorder) Emit(evt Event) { r.Events = append(r.Events, evt) }

// Types returns the event type of every recorded event.
func (r *Recorder) Types() []string {
	out := make([]string, 0, len(r.Events))
	for _, evt := range r.Events {
		out = append(out, evt.EventType())
	}
	return out
}

// Last returns the most recent event of the given type, if any.
func (r *Recorder) Last(eventType string) Event {
	for i := len(r.Events) - 1; i >= 0; i-- {
		if r.Events[i].EventType() == eventType {
			return r.Events[i]
		}
	}
	return nil
}

// Reset drops all recorded events.
func (r *Recorder) Reset() { r.Events = nil }

func normalizeAsset(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset))
}

func formatAmount(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func formatAddress(a crypto.Address) string {
	if a.IsZero() {
		return ""
	}
	return a.String()
}

func formatBool(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
