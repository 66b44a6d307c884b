package monitoring

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	queueWaiting = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "matchmaking_queue_waiting_total",
			Help: "Current unmatched queue entries per topic",
		},
		[]string{"topic_id"},
	)

	matchmakingOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matchmaking_operations_total",
			Help: "Total matchmaking operations",
		},
		[]string{"operation", "status"},
	)

	debateOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "debate_operations_total",
			Help: "Total debate state machine operations",
		},
		[]string{"operation", "status"},
	)

	activeTurnDeadlines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "debate_turn_deadlines_total",
			Help: "Turn deadlines currently tracked for timeout enforcement",
		},
	)

	turnTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "debate_turn_timeouts_total",
			Help: "Turns force-advanced after the deadline elapsed",
		},
	)

	judgeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "judge_request_duration_seconds",
			Help:    "Duration of AI judge requests",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
		[]string{"status"},
	)

	challengeOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "challenge_operations_total",
			Help: "Total direct challenge operations",
		},
		[]string{"operation", "status"},
	)

	conflictRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "debate_conflict_retries_total",
			Help: "Conditional writes retried after a version conflict",
		},
	)
)

type Monitor struct {
	redis *redis.Client
}

func NewMonitor(redisClient *redis.Client) *Monitor {
	monitor := &Monitor{redis: redisClient}

	go monitor.collectMetrics()

	return monitor
}

func (m *Monitor) collectMetrics() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		ctx := context.Background()

		count, err := m.redis.ZCard(ctx, "debate:deadlines").Result()
		if err == nil {
			activeTurnDeadlines.Set(float64(count))
		}
	}
}

func (m *Monitor) TrackMatchmaking(operation, status string) {
	matchmakingOperations.WithLabelValues(operation, status).Inc()
}

func (m *Monitor) TrackDebate(operation, status string) {
	debateOperations.WithLabelValues(operation, status).Inc()
}

func (m *Monitor) TrackChallenge(operation, status string) {
	challengeOperations.WithLabelValues(operation, status).Inc()
}

func (m *Monitor) SetQueueWaiting(topicID string, count int) {
	queueWaiting.WithLabelValues(topicID).Set(float64(count))
}

func (m *Monitor) TrackTurnTimeout() {
	turnTimeouts.Inc()
}

func (m *Monitor) TrackConflictRetry() {
	conflictRetries.Inc()
}

func (m *Monitor) TrackJudgeDuration(status string, duration time.Duration) {
	judgeDuration.WithLabelValues(status).Observe(duration.Seconds())
}
