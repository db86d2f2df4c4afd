package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	HttpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wager_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	BetsSettled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wager_bets_settled_total",
			Help: "Total settled bets",
		},
		[]string{"game", "result"},
	)

	Transactions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wager_transactions_total",
			Help: "Total ledger transactions written",
		},
		[]string{"type", "status"},
	)

	Reviews = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wager_reviews_total",
			Help: "Total operator reviews of pending transactions",
		},
		[]string{"decision"},
	)

	PersistFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wager_snapshot_persist_failures_total",
			Help: "Snapshot records that failed to persist",
		},
		[]string{"record"},
	)

	OutboxMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wager_outbox_messages_total",
			Help: "Outbox delivery results",
		},
		[]string{"result"},
	)

	registerOnce sync.Once
)

// Init 注册所有指标，重复调用安全
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HttpRequests,
			BetsSettled,
			Transactions,
			Reviews,
			PersistFailures,
			OutboxMessages,
		)
	})
}
