// Package config загружает настройки слоя сессий из YAML файла и
// переменных окружения AVCODEC_*.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/arzzra/avcodec/pkg/avcodec"
	"github.com/arzzra/avcodec/pkg/avmuxer"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
)

// EnvPrefix префикс переменных окружения
const EnvPrefix = "AVCODEC"

// LogConfig настройки логирования
type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// CodecConfig настройки сессий кодеков
type CodecConfig struct {
	// MaxBuffers предел живых handle'ов буферов в каждом направлении, 0 - без предела
	MaxBuffers int `mapstructure:"maxbuffers"`
}

// MetricsConfig настройки Prometheus метрик
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

// Config корневая конфигурация
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Codec   CodecConfig   `mapstructure:"codec"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// envBinding связывает ключ конфигурации с переменной окружения
type envBinding struct {
	key string
	env string
}

func envBindings() []envBinding {
	keys := []string{"log.level", "log.json", "codec.maxbuffers", "metrics.enabled", "metrics.namespace"}
	out := make([]envBinding, len(keys))
	for i, k := range keys {
		out[i] = envBinding{key: k, env: EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(k, ".", "_"))}
	}
	return out
}

// Default возвращает конфигурацию по умолчанию
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level: "info",
		},
		Codec: CodecConfig{
			MaxBuffers: 0,
		},
		Metrics: MetricsConfig{
			Enabled:   false,
			Namespace: "avcodec",
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.json", d.Log.JSON)
	v.SetDefault("codec.maxbuffers", d.Codec.MaxBuffers)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.namespace", d.Metrics.Namespace)
}

// Load читает конфигурацию. Пустой path - только значения по умолчанию
// и окружение. Переменные окружения перекрывают файл.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, b := range envBindings() {
		if err := v.BindEnv(b.key, b.env); err != nil {
			return nil, errors.Wrapf(err, "bind %s", b.env)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет конфигурацию
func (c *Config) Validate() error {
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Codec.MaxBuffers < 0 {
		return fmt.Errorf("codec.maxbuffers не может быть отрицательным: %d", c.Codec.MaxBuffers)
	}
	if c.Metrics.Enabled && c.Metrics.Namespace == "" {
		return fmt.Errorf("metrics.namespace обязателен при metrics.enabled")
	}
	return nil
}

func parseLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return 0, fmt.Errorf("неизвестный log.level %q", level)
	}
	return l, nil
}

// NewLogger создает логгер по настройкам. nil w - os.Stderr.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if c.Log.JSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// NewMetrics создает метрики в reg или возвращает nil, если метрики выключены
func (c *Config) NewMetrics(reg prometheus.Registerer) *avcodec.Metrics {
	if !c.Metrics.Enabled {
		return nil
	}
	mc := avcodec.DefaultMetricsConfig()
	mc.Namespace = c.Metrics.Namespace
	mc.Registerer = reg
	return avcodec.NewMetrics(mc)
}

// Runtime - собранные из конфигурации логгер и метрики
type Runtime struct {
	Logger  *slog.Logger
	Metrics *avcodec.Metrics
}

// NewRuntime строит логгер и метрики. Метрики регистрируются в reg
// один раз и разделяются всеми сессиями.
func (c *Config) NewRuntime(w io.Writer, reg prometheus.Registerer) *Runtime {
	return &Runtime{
		Logger:  c.NewLogger(w),
		Metrics: c.NewMetrics(reg),
	}
}

// SessionOptions возвращает опции сессии кодека
func (c *Config) SessionOptions(rt *Runtime) []avcodec.Option {
	return []avcodec.Option{
		avcodec.WithLogger(rt.Logger),
		avcodec.WithMetrics(rt.Metrics),
		avcodec.WithMaxBuffers(c.Codec.MaxBuffers),
	}
}

// MuxerOptions возвращает опции мультиплексора
func (c *Config) MuxerOptions(rt *Runtime) []avmuxer.Option {
	return []avmuxer.Option{
		avmuxer.WithLogger(rt.Logger),
		avmuxer.WithMetrics(rt.Metrics),
	}
}
