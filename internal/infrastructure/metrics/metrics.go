package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics defines our Prometheus metrics for the collaborative session core.
type Metrics struct {
	OpenWorkspaces    prometheus.Gauge
	Participants      prometheus.Gauge
	MutationsAccepted *prometheus.CounterVec
	MutationsRejected *prometheus.CounterVec
	FanOutMessages    prometheus.Counter
	FanOutDropped     prometheus.Counter
	RelayForwarded    *prometheus.CounterVec
	RelayDropped      prometheus.Counter
	SessionsEnded     prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OpenWorkspaces: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "atrium_open_workspaces",
			Help: "Workspaces with live or grace-period state.",
		}),
		Participants: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "atrium_connected_participants",
			Help: "Currently connected participants across all workspaces.",
		}),
		MutationsAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "atrium_mutations_accepted_total",
			Help: "Accepted shared-object mutations by object kind.",
		}, []string{"kind"}),
		MutationsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "atrium_mutations_rejected_total",
			Help: "Rejected mutations by reason.",
		}, []string{"reason"}),
		FanOutMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "atrium_fanout_messages_total",
			Help: "Events fanned out to workspace peers.",
		}),
		FanOutDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "atrium_fanout_dropped_total",
			Help: "Fan-out events dropped because a peer's send buffer was full.",
		}),
		RelayForwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "atrium_signal_relayed_total",
			Help: "Signaling payloads forwarded, by kind.",
		}, []string{"kind"}),
		RelayDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "atrium_signal_dropped_total",
			Help: "Signaling payloads dropped because the target was gone.",
		}),
		SessionsEnded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "atrium_sessions_ended_total",
			Help: "Workspace sessions closed.",
		}),
	}

	reg.MustRegister(
		m.OpenWorkspaces,
		m.Participants,
		m.MutationsAccepted,
		m.MutationsRejected,
		m.FanOutMessages,
		m.FanOutDropped,
		m.RelayForwarded,
		m.RelayDropped,
		m.SessionsEnded,
	)
	return m
}
