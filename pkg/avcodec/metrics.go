package avcodec

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig конфигурация метрик
type MetricsConfig struct {
	// Namespace префикс Prometheus метрик
	Namespace string
	// Subsystem подсистема Prometheus метрик
	Subsystem string
	// Registerer куда регистрировать метрики. nil - prometheus.DefaultRegisterer
	Registerer prometheus.Registerer
}

// DefaultMetricsConfig возвращает конфигурацию по умолчанию
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "avcodec",
		Subsystem: "session",
	}
}

// Metrics собирает метрики сессий кодеков и мультиплексоров.
// Все методы безопасны для nil получателя, nil *Metrics ничего не делает.
type Metrics struct {
	sessionsCreated    *prometheus.CounterVec
	sessionsActive     *prometheus.GaugeVec
	stateTransitions   *prometheus.CounterVec
	callbacksDelivered *prometheus.CounterVec
	callbacksDropped   *prometheus.CounterVec
	registryBuffers    *prometheus.GaugeVec
	engineErrors       *prometheus.CounterVec
	samplesWritten     *prometheus.CounterVec
}

// NewMetrics создает и регистрирует метрики
func NewMetrics(cfg MetricsConfig) *Metrics {
	reg := cfg.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		sessionsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "sessions_created_total",
			Help:      "Total number of codec and muxer sessions created",
		}, []string{"kind"}),

		sessionsActive: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "sessions_active",
			Help:      "Number of sessions not yet destroyed",
		}, []string{"kind"}),

		stateTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "state_transitions_total",
			Help:      "Total number of committed session state transitions",
		}, []string{"from_state", "to_state"}),

		callbacksDelivered: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "callbacks_delivered_total",
			Help:      "Total number of engine events delivered to client handlers",
		}, []string{"event"}),

		callbacksDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "callbacks_dropped_total",
			Help:      "Total number of engine events not delivered to client handlers",
		}, []string{"event", "reason"}),

		registryBuffers: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "registry_buffers",
			Help:      "Number of live buffer handles per direction",
		}, []string{"direction"}),

		engineErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "engine_errors_total",
			Help:      "Total number of failed engine calls by operation",
		}, []string{"operation"}),

		samplesWritten: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "muxer_samples_written_total",
			Help:      "Total number of samples written by muxer sessions",
		}, []string{"format"}),
	}
}

// SessionCreated учитывает создание сессии
func (m *Metrics) SessionCreated(kind string) {
	if m == nil {
		return
	}
	m.sessionsCreated.WithLabelValues(kind).Inc()
	m.sessionsActive.WithLabelValues(kind).Inc()
}

// SessionDestroyed учитывает уничтожение сессии
func (m *Metrics) SessionDestroyed(kind string) {
	if m == nil {
		return
	}
	m.sessionsActive.WithLabelValues(kind).Dec()
}

// StateTransition учитывает переход состояния
func (m *Metrics) StateTransition(from, to SessionState) {
	if m == nil {
		return
	}
	m.stateTransitions.WithLabelValues(from.String(), to.String()).Inc()
}

// CallbackDelivered учитывает доставленное событие
func (m *Metrics) CallbackDelivered(event EventType) {
	if m == nil {
		return
	}
	m.callbacksDelivered.WithLabelValues(event.String()).Inc()
}

// CallbackDropped учитывает отброшенное событие
func (m *Metrics) CallbackDropped(event EventType, reason string) {
	if m == nil {
		return
	}
	m.callbacksDropped.WithLabelValues(event.String(), reason).Inc()
}

// RegistryResized учитывает изменение числа живых handle'ов буферов
func (m *Metrics) RegistryResized(direction Direction, delta int) {
	if m == nil {
		return
	}
	m.registryBuffers.WithLabelValues(direction.String()).Add(float64(delta))
}

// EngineError учитывает ошибку вызова движка
func (m *Metrics) EngineError(op string) {
	if m == nil {
		return
	}
	m.engineErrors.WithLabelValues(op).Inc()
}

// SampleWritten учитывает записанный мультиплексором сэмпл
func (m *Metrics) SampleWritten(format string) {
	if m == nil {
		return
	}
	m.samplesWritten.WithLabelValues(format).Inc()
}
