package collab

import (
	"encoding/json"

	"github.com/oakline/atrium/internal/infrastructure/metrics"
	"go.uber.org/zap"
)

// Relay forwards peer-connection negotiation payloads between two named
// connections. The payload is an opaque blob: no semantic validation, no
// retry. A payload addressed to a connection that is no longer live is
// silently dropped; the negotiation protocols above this layer time out on
// their own.
type Relay struct {
	registry *Registry
	metrics  *metrics.Metrics
	logger   *zap.SugaredLogger
}

func NewRelay(registry *Registry, m *metrics.Metrics, logger *zap.SugaredLogger) *Relay {
	return &Relay{
		registry: registry,
		metrics:  m,
		logger:   logger.Named("relay"),
	}
}

// Forward delivers the payload to the target connection, tagged with the
// sender's connection id.
func (r *Relay) Forward(kind string, from Conn, targetConnID string, payload json.RawMessage) {
	target, ok := r.registry.Lookup(targetConnID)
	if !ok {
		r.metrics.RelayDropped.Inc()
		r.logger.Debugw("signal target gone, dropping", "kind", kind, "target", targetConnID)
		return
	}

	target.Send(&Event{
		Type: kind,
		Data: SignalRelayPayload{From: from.ID(), Payload: payload},
	})
	r.metrics.RelayForwarded.WithLabelValues(kind).Inc()
}
