package core

import (
	"moneymarket/core/events"
	"moneymarket/observability"
)

// metricsEmitter counts committed events.
type metricsEmitter struct{}

func (metricsEmitter) Emit(evt events.Event) {
	m := observability.Events()
	m.RecordEvent(evt.EventType())
	if transfer, ok := evt.(events.TokenTransfer); ok {
		m.RecordTransfer(transfer.Asset)
	}
}
