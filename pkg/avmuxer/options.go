package avmuxer

import (
	"log/slog"

	"github.com/arzzra/avcodec/pkg/avcodec"
)

type options struct {
	factory EngineFactory
	logger  *slog.Logger
	metrics *avcodec.Metrics
}

// Option настраивает создаваемый мультиплексор
type Option func(*options)

// WithEngineFactory подменяет движок формата, используется в тестах
// и для внешних контейнеров
func WithEngineFactory(f EngineFactory) Option {
	return func(o *options) {
		o.factory = f
	}
}

// WithLogger задает логгер мультиплексора
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics задает сборщик метрик
func WithMetrics(m *avcodec.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}
