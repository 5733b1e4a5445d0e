package telemetry

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/shaiso/Atelier/internal/domain"
)

const namespace = "atelier"

// Metrics — Prometheus метрики оркестратора.
//
// Metrics подписывается на observer.Hub и обновляет метрики по
// уведомлениям о задачах, воркерах и статистике.
type Metrics struct {
	tasksCompleted     *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
	workerOnline       *prometheus.GaugeVec
	workerAvailable    *prometheus.GaugeVec
	workerBusy         *prometheus.GaugeVec
	tasksPerSecond     prometheus.Gauge
	successRate        prometheus.Gauge
	droppedEvents      prometheus.Gauge
	httpRequests       *prometheus.CounterVec
}

// NewMetrics регистрирует метрики в reg.
// Если reg == nil, используется prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		tasksCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_completed_total",
			Help:      "Finished generation tasks by kind and final status",
		}, []string{"kind", "status"}),

		generationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Time from RUNNING to SUCCEEDED for generation tasks",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300, 600},
		}, []string{"kind"}),

		workerOnline: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_online",
			Help:      "1 if the worker answers probes",
		}, []string{"worker_id", "kind"}),

		workerAvailable: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_available_units",
			Help:      "Capacity units available for a new task",
		}, []string{"worker_id", "kind"}),

		workerBusy: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_busy",
			Help:      "1 if the worker holds an assigned task",
		}, []string{"worker_id", "kind"}),

		tasksPerSecond: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tasks_per_second",
			Help:      "Finished tasks per second over the stats window",
		}),

		successRate: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "success_rate",
			Help:      "succeeded / (succeeded + failed) over the stats window",
		}),

		droppedEvents: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stats_dropped_events",
			Help:      "Task events dropped by the stats aggregator on overflow",
		}),

		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests handled by the API",
		}, []string{"method", "code"}),
	}
}

// OnStatsUpdated обновляет агрегированные gauge'и.
func (m *Metrics) OnStatsUpdated(snapshot domain.StatsSnapshot) {
	m.tasksPerSecond.Set(snapshot.TasksPerSecond)
	m.successRate.Set(snapshot.SuccessRate)
	m.droppedEvents.Set(float64(snapshot.DroppedEvents))
}

// OnWorkerChanged обновляет gauge'и воркера.
func (m *Metrics) OnWorkerChanged(w domain.Worker) {
	kind := string(w.Kind)
	m.workerOnline.WithLabelValues(w.ID, kind).Set(boolGauge(w.Online))
	m.workerBusy.WithLabelValues(w.ID, kind).Set(boolGauge(w.Busy))
	m.workerAvailable.WithLabelValues(w.ID, kind).Set(w.AvailableUnits())
}

// OnTaskCompleted считает завершённую задачу.
func (m *Metrics) OnTaskCompleted(task domain.Task) {
	m.tasksCompleted.WithLabelValues(string(task.Kind), string(task.Status)).Inc()

	if task.Status == domain.TaskStatusSucceeded {
		if d := task.GenerationTime(); d > 0 {
			m.generationDuration.WithLabelValues(string(task.Kind)).Observe(d.Seconds())
		}
	}
}

// ObserveHTTP считает HTTP запрос.
func (m *Metrics) ObserveHTTP(method string, code int) {
	m.httpRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
