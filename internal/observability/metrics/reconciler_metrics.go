package metrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	ReconcilerErrorReasonDeadlineExceeded = "deadline_exceeded"
	ReconcilerErrorReasonDB               = "db"
	ReconcilerErrorReasonUnknown          = "unknown"
)

// ReconcilerMetrics captures status sweep health signals.
type ReconcilerMetrics struct {
	sweepRuns        prometheus.Counter
	sweepDuration    prometheus.Observer
	runLoopLag       prometheus.Observer
	usersExamined    prometheus.Counter
	usersDeactivated *prometheus.CounterVec
	usersFlagged     *prometheus.CounterVec
	sweepErrors      *prometheus.CounterVec
}

var (
	reconcilerMetricsOnce sync.Once
	reconcilerMetrics     *ReconcilerMetrics
)

// Reconciler returns the singleton reconciler metrics registry.
func Reconciler() *ReconcilerMetrics {
	return ReconcilerWithConfig(Config{})
}

// ReconcilerWithConfig returns the singleton reconciler metrics registry using config labels.
func ReconcilerWithConfig(cfg Config) *ReconcilerMetrics {
	reconcilerMetricsOnce.Do(func() {
		reconcilerMetrics = newReconcilerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return reconcilerMetrics
}

// ResetReconcilerMetricsForTest resets the reconciler metrics singleton for tests.
func ResetReconcilerMetricsForTest() {
	reconcilerMetricsOnce = sync.Once{}
	reconcilerMetrics = nil
}

func newReconcilerMetrics(registerer prometheus.Registerer, cfg Config) *ReconcilerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	constLabels := cfg.constLabels()

	sweepRuns := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "fortimind_reconciler_sweep_runs_total",
		Help:        "Reconciler sweep executions.",
		ConstLabels: constLabels,
	})
	sweepDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "fortimind_reconciler_sweep_duration_seconds",
		Help:        "Reconciler sweep latency.",
		Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		ConstLabels: constLabels,
	})
	runLoopLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "fortimind_reconciler_runloop_lag_seconds",
		Help:        "Reconciler run loop lag beyond the configured interval.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		ConstLabels: constLabels,
	})
	usersExamined := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "fortimind_reconciler_users_examined_total",
		Help:        "Premium users examined by reconciler sweeps.",
		ConstLabels: constLabels,
	})
	usersDeactivated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "fortimind_reconciler_users_deactivated_total",
		Help:        "Premium access revocations by reason.",
		ConstLabels: constLabels,
	}, []string{"reason"})
	usersFlagged := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "fortimind_reconciler_users_flagged_total",
		Help:        "Users flagged for manual review by reason.",
		ConstLabels: constLabels,
	}, []string{"reason"})
	sweepErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "fortimind_reconciler_sweep_errors_total",
		Help:        "Reconciler per-user failures by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"reason"})

	registerer.MustRegister(
		sweepRuns,
		sweepDuration,
		runLoopLag,
		usersExamined,
		usersDeactivated,
		usersFlagged,
		sweepErrors,
	)

	return &ReconcilerMetrics{
		sweepRuns:        sweepRuns,
		sweepDuration:    sweepDuration,
		runLoopLag:       runLoopLag,
		usersExamined:    usersExamined,
		usersDeactivated: usersDeactivated,
		usersFlagged:     usersFlagged,
		sweepErrors:      sweepErrors,
	}
}

// IncSweepRun increments the sweep run counter.
func (m *ReconcilerMetrics) IncSweepRun() {
	if m == nil {
		return
	}
	m.sweepRuns.Inc()
}

// ObserveSweepDuration records sweep latency in seconds.
func (m *ReconcilerMetrics) ObserveSweepDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(duration.Seconds())
}

// ObserveRunLoopLag records lag between the scheduled tick and actual run start.
func (m *ReconcilerMetrics) ObserveRunLoopLag(duration time.Duration) {
	if m == nil {
		return
	}
	lag := duration
	if lag < 0 {
		lag = 0
	}
	m.runLoopLag.Observe(lag.Seconds())
}

// AddUsersExamined increments the examined user counter by count.
func (m *ReconcilerMetrics) AddUsersExamined(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.usersExamined.Add(float64(count))
}

// IncUserDeactivated increments the revocation counter for the given reason.
func (m *ReconcilerMetrics) IncUserDeactivated(reason string) {
	if m == nil {
		return
	}
	m.usersDeactivated.WithLabelValues(reason).Inc()
}

// IncUserFlagged increments the review flag counter for the given reason.
func (m *ReconcilerMetrics) IncUserFlagged(reason string) {
	if m == nil {
		return
	}
	m.usersFlagged.WithLabelValues(reason).Inc()
}

// IncSweepError increments the per-user failure counter with classification.
func (m *ReconcilerMetrics) IncSweepError(err error) {
	if m == nil || err == nil {
		return
	}
	m.sweepErrors.WithLabelValues(ClassifyReconcilerError(err)).Inc()
}

// ClassifyReconcilerError maps sweep errors to low-cardinality reasons.
func ClassifyReconcilerError(err error) string {
	if err == nil {
		return ReconcilerErrorReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ReconcilerErrorReasonDeadlineExceeded
	}
	if isDBError(err) {
		return ReconcilerErrorReasonDB
	}
	return ReconcilerErrorReasonUnknown
}

func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrMissingWhereClause) ||
		errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}
