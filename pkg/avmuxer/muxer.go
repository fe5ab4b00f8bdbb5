package avmuxer

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/arzzra/avcodec/pkg/avcodec"
	"github.com/google/uuid"
)

// kindMuxer метка вида сессии в метриках
const kindMuxer = "muxer"

// Muxer - сессия мультиплексора.
//
// Жизненный цикл использует тот же автомат, что и сессия кодека:
// Create сразу переводит мультиплексор в StateConfigured, статическая
// конфигурация (Configure, AddTrack, SetRotation) допустима до Start,
// WriteSample только в StateRunning. После Stop мультиплексор не
// перезапускается, остается только Destroy.
type Muxer struct {
	id     string
	format OutputFormat

	engine MuxerEngine
	sm     *avcodec.StateMachine
	tracks *TrackTable

	// mu сериализует все операции, движки не потокобезопасны
	mu       sync.Mutex
	stopped  atomic.Bool
	rotation int
	params   *avcodec.Format

	logger  *slog.Logger
	metrics *avcodec.Metrics
}

// Create создает мультиплексор, пишущий в output
func Create(output io.Writer, format OutputFormat, opts ...Option) (*Muxer, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	if output == nil {
		return nil, avcodec.NewError(avcodec.CodeInvalidValue, "", "Create: вывод не задан")
	}
	factory := o.factory
	if factory == nil {
		var ok bool
		if factory, ok = lookupEngine(format); !ok {
			return nil, &avcodec.CodecError{
				Code:    avcodec.CodeUnsupportedFileType,
				Message: fmt.Sprintf("формат %s не поддерживается", format),
				Context: map[string]interface{}{"format": format.String()},
			}
		}
	}

	engine, err := factory(output)
	if err != nil {
		code := avcodec.CodeOf(err)
		if code == avcodec.CodeUnknown {
			code = avcodec.CodeInvalidValue
		}
		return nil, &avcodec.CodecError{
			Code:    code,
			Message: "не удалось создать движок мультиплексора",
			Context: map[string]interface{}{"format": format.String()},
			Wrapped: err,
		}
	}
	if engine == nil {
		return nil, avcodec.NewError(avcodec.CodeNoMemory, "", "фабрика вернула пустой движок")
	}

	m := &Muxer{
		id:      uuid.New().String(),
		format:  format,
		engine:  engine,
		tracks:  NewTrackTable(),
		metrics: o.metrics,
	}
	m.logger = o.logger.With(
		slog.String("component", "avmuxer"),
		slog.String("session_id", m.id),
		slog.String("format", format.String()))
	m.sm = avcodec.NewStateMachine(m.onTransition)

	if err := m.sm.Commit(m.id, avcodec.EventConfigure); err != nil {
		return nil, err
	}
	m.metrics.SessionCreated(kindMuxer)
	m.logger.Debug("мультиплексор создан")
	return m, nil
}

func (m *Muxer) onTransition(from, to avcodec.SessionState) {
	m.metrics.StateTransition(from, to)
	m.logger.Debug("переход состояния",
		slog.String("from", from.String()),
		slog.String("to", to.String()))
}

func nilMuxerError(op string) error {
	return avcodec.NewError(avcodec.CodeInvalidValue, "", op+": пустой мультиплексор")
}

func (m *Muxer) engineFailure(op string, err error) error {
	m.metrics.EngineError(op)
	m.logger.Warn("вызов движка завершился ошибкой",
		slog.String("operation", op),
		slog.String("error", err.Error()))
	return avcodec.WrapEngineError(m.id, op, err)
}

// ID возвращает идентификатор сессии
func (m *Muxer) ID() string { return m.id }

// OutputFormat возвращает формат контейнера
func (m *Muxer) OutputFormat() OutputFormat { return m.format }

// State возвращает текущее состояние
func (m *Muxer) State() avcodec.SessionState {
	if m == nil {
		return avcodec.StateDestroyed
	}
	return m.sm.Current()
}

// Tracks возвращает таблицу добавленных треков
func (m *Muxer) Tracks() *TrackTable { return m.tracks }

// Rotation возвращает угол поворота видео
func (m *Muxer) Rotation() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rotation
}

// Params возвращает копию параметров Configure или nil
func (m *Muxer) Params() *avcodec.Format {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.params == nil {
		return nil
	}
	return m.params.Copy()
}

// Configure задает параметры контейнера: creation_time, comment.
// Допустимо только до Start.
func (m *Muxer) Configure(format *avcodec.Format) error {
	if m == nil {
		return nilMuxerError("Configure")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.sm.CheckStatic(m.id, "configure"); err != nil {
		return err
	}
	if format == nil {
		return avcodec.NewError(avcodec.CodeInvalidValue, m.id, "Configure: параметры не заданы")
	}
	cfg := format.Copy()
	if err := m.engine.Configure(cfg); err != nil {
		return m.engineFailure("configure", err)
	}
	m.params = cfg
	return nil
}

// AddTrack добавляет трек и возвращает его идентификатор. Неудачное
// добавление идентификатор не расходует.
func (m *Muxer) AddTrack(desc *TrackDescriptor) (int, error) {
	if m == nil {
		return -1, nilMuxerError("AddTrack")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.sm.CheckStatic(m.id, "add_track"); err != nil {
		return -1, err
	}
	if err := desc.Validate(); err != nil {
		m.logger.Warn("недопустимый трек", slog.String("error", err.Error()))
		return -1, err
	}

	id := m.tracks.Next()
	if err := m.engine.AddTrack(id, desc); err != nil {
		return -1, m.engineFailure("add_track", err)
	}
	m.tracks.Add(desc)

	m.logger.Debug("трек добавлен",
		slog.Int("track", id),
		slog.String("kind", desc.Kind.String()),
		slog.String("mime", desc.Mime))
	return id, nil
}

// SetRotation задает поворот видео: 0, 90, 180 или 270 градусов
func (m *Muxer) SetRotation(degrees int) error {
	if m == nil {
		return nilMuxerError("SetRotation")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.sm.CheckStatic(m.id, "set_rotation"); err != nil {
		return err
	}
	switch degrees {
	case 0, 90, 180, 270:
	default:
		return &avcodec.CodecError{
			Code:      avcodec.CodeInvalidValue,
			Message:   fmt.Sprintf("недопустимый угол поворота %d", degrees),
			SessionID: m.id,
			Context:   map[string]interface{}{"rotation": degrees},
		}
	}
	if err := m.engine.SetRotation(degrees); err != nil {
		return m.engineFailure("set_rotation", err)
	}
	m.rotation = degrees
	return nil
}

// Start начинает запись. Нужен хотя бы один трек.
func (m *Muxer) Start() error {
	if m == nil {
		return nilMuxerError("Start")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if state := m.sm.Current(); state != avcodec.StateConfigured {
		return avcodec.NewInvalidOperation(m.id, avcodec.EventStart, state)
	}
	if err := m.sm.Check(m.id, avcodec.EventStart); err != nil {
		return err
	}
	if m.tracks.Len() == 0 {
		return avcodec.NewInvalidOperation(m.id, "start without tracks", m.sm.Current())
	}

	m.stopped.Store(false)
	if err := m.engine.Start(); err != nil {
		return m.engineFailure(avcodec.EventStart, err)
	}
	return m.sm.Commit(m.id, avcodec.EventStart)
}

// WriteSample записывает сэмпл трека. attr.Offset и attr.Size выделяют
// полезные данные в data.
func (m *Muxer) WriteSample(track int, data []byte, attr avcodec.BufferAttr) error {
	if m == nil {
		return nilMuxerError("WriteSample")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.sm.CheckRunning(m.id, "write_sample"); err != nil {
		return err
	}
	if m.stopped.Load() {
		return avcodec.NewInvalidOperation(m.id, "write_sample", avcodec.StateStopped)
	}
	if _, ok := m.tracks.Get(track); !ok {
		return &avcodec.CodecError{
			Code:      avcodec.CodeInvalidValue,
			Message:   fmt.Sprintf("нет трека %d", track),
			SessionID: m.id,
			Context:   map[string]interface{}{"track": track},
		}
	}
	if attr.Offset < 0 || attr.Size < 0 || int(attr.Offset)+int(attr.Size) > len(data) {
		return &avcodec.CodecError{
			Code:      avcodec.CodeInvalidValue,
			Message:   fmt.Sprintf("attr выходит за данные длиной %d", len(data)),
			SessionID: m.id,
			Context:   map[string]interface{}{"offset": attr.Offset, "size": attr.Size},
		}
	}

	payload := data[attr.Offset : attr.Offset+attr.Size]
	if err := m.engine.WriteSample(track, payload, attr); err != nil {
		return m.engineFailure("write_sample", err)
	}
	m.metrics.SampleWritten(m.format.String())
	return nil
}

// Stop завершает контейнер. При ошибке движка флаг stopped откатывается
// и мультиплексор остается в StateRunning.
func (m *Muxer) Stop() error {
	if m == nil {
		return nilMuxerError("Stop")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.sm.Check(m.id, avcodec.EventStop); err != nil {
		return err
	}

	prev := m.stopped.Swap(true)
	if err := m.engine.Stop(); err != nil {
		m.stopped.Store(prev)
		return m.engineFailure(avcodec.EventStop, err)
	}
	return m.sm.Commit(m.id, avcodec.EventStop)
}

// IsStopped сообщает, выставлен ли флаг stopped
func (m *Muxer) IsStopped() bool {
	return m.stopped.Load()
}

// Destroy освобождает движок. Повторный вызов возвращает CodeInvalidOperation.
func (m *Muxer) Destroy() error {
	if m == nil {
		return nilMuxerError("Destroy")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.sm.Check(m.id, avcodec.EventDestroy); err != nil {
		return err
	}

	m.stopped.Store(true)
	releaseErr := m.engine.Release()
	m.tracks.Reset()

	if err := m.sm.Commit(m.id, avcodec.EventDestroy); err != nil {
		return err
	}
	m.metrics.SessionDestroyed(kindMuxer)

	if releaseErr != nil {
		m.metrics.EngineError(avcodec.EventDestroy)
		m.logger.Error("ошибка освобождения движка", slog.String("error", releaseErr.Error()))
		return avcodec.WrapEngineError(m.id, avcodec.EventDestroy, releaseErr)
	}
	m.logger.Debug("мультиплексор уничтожен")
	return nil
}
