package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "session_active",
		Help: "Currently connected live sessions",
	})

	SessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_started_total",
		Help: "Total sessions started",
	})

	ConnectDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "session_connect_duration_seconds",
		Help:    "Time from start() to a ready session",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 8.0, 15.0},
	})

	ConnectErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_connect_errors_total",
		Help: "Session start failures by cause",
	}, []string{"cause"})

	ControlMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "control_messages_total",
		Help: "Control-channel messages by direction and type",
	}, []string{"direction", "type"})

	ControlMalformed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "control_malformed_total",
		Help: "Inbound control payloads that failed to parse",
	})

	PublishRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "control_publish_retries_total",
		Help: "Control publish attempts beyond the first",
	})

	PublishAbandoned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "control_publish_abandoned_total",
		Help: "Control publishes given up after all retries",
	})

	AvatarTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "avatar_transitions_total",
		Help: "Avatar state transitions by target state",
	}, []string{"state"})

	Reconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_reconnects_total",
		Help: "Signal reconnections observed",
	})

	WatchdogFired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "watchdog_prompts_total",
		Help: "Auto-prompt watchdog firings",
	})

	TokensIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tokend_tokens_issued_total",
		Help: "Access tokens minted by the token service",
	})
)
