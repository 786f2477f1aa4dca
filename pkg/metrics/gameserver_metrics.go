package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const gameServerSubsystem = "gameserver"

var (
	OnlinePlayers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: pangyaNamespace,
		Subsystem: gameServerSubsystem,
		Name:      "online_players",
		Help:      "number of registered players",
	})

	ConnectionsAccepted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: pangyaNamespace,
		Subsystem: gameServerSubsystem,
		Name:      "connections_accepted_total",
		Help:      "number of accepted tcp connections",
	})

	ConnectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: pangyaNamespace,
		Subsystem: gameServerSubsystem,
		Name:      "connections_active",
		Help:      "number of open tcp connections, including ones not yet logged in",
	})

	BlockingTasksPending = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: pangyaNamespace,
		Subsystem: gameServerSubsystem,
		Name:      "blocking_tasks_pending",
		Help:      "number of blocking tasks waiting for a worker",
	})

	BlockingTasksRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: pangyaNamespace,
		Subsystem: gameServerSubsystem,
		Name:      "blocking_tasks_running",
		Help:      "number of blocking tasks being executed",
	})

	BlockingTasksRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: pangyaNamespace,
		Subsystem: gameServerSubsystem,
		Name:      "blocking_tasks_rejected_total",
		Help:      "number of blocking tasks rejected because the backlog was full",
	})

	BlockingTasksPanicked = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: pangyaNamespace,
		Subsystem: gameServerSubsystem,
		Name:      "blocking_tasks_panicked_total",
		Help:      "number of blocking tasks that panicked",
	})

	TeardownErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: pangyaNamespace,
		Subsystem: gameServerSubsystem,
		Name:      "teardown_errors_total",
		Help:      "number of failed teardown steps on player disconnect",
	}, []string{stageLabelName})

	LoginLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: pangyaNamespace,
		Subsystem: gameServerSubsystem,
		Name:      "login_latency",
		Help:      "latency of authenticate plus state load, in milliseconds",
		Buckets:   buckets,
	}, []string{resultLabelName})
)

func registerGameServer(r prometheus.Registerer) {
	r.MustRegister(OnlinePlayers)
	r.MustRegister(ConnectionsAccepted)
	r.MustRegister(ConnectionsActive)
	r.MustRegister(BlockingTasksPending)
	r.MustRegister(BlockingTasksRunning)
	r.MustRegister(BlockingTasksRejected)
	r.MustRegister(BlockingTasksPanicked)
	r.MustRegister(TeardownErrors)
	r.MustRegister(LoginLatency)
}
