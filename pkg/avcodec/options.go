package avcodec

import "log/slog"

// options параметры создания сессии
type options struct {
	registry   *EngineRegistry
	logger     *slog.Logger
	metrics    *Metrics
	maxBuffers int
}

// Option настраивает создаваемую сессию
type Option func(*options)

func defaultOptions() options {
	return options{
		registry: DefaultRegistry,
		logger:   slog.Default(),
	}
}

// WithRegistry задает таблицу движков вместо DefaultRegistry
func WithRegistry(r *EngineRegistry) Option {
	return func(o *options) {
		if r != nil {
			o.registry = r
		}
	}
}

// WithLogger задает логгер сессии
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics задает сборщик метрик. По умолчанию метрики не собираются.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithMaxBuffers ограничивает число живых handle'ов в каждом направлении.
// 0 - без ограничения.
func WithMaxBuffers(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.maxBuffers = n
		}
	}
}
