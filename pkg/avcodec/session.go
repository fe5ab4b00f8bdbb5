package avcodec

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Session - сессия кодека (аудио/видео, кодировщик/декодер).
//
// Session управляет:
//   - состоянием жизненного цикла (StateMachine)
//   - флагами flushing/stopped/eos, которые гасят устаревшие события
//   - двумя реестрами буферов (вход и выход)
//   - точкой доставки событий клиенту (callbackGate)
//
// Пример использования:
//
//	s, err := avcodec.Create(avcodec.MimeAudioPCMU, true)
//	if err != nil {
//	    return err
//	}
//	defer s.Destroy()
//
//	format := avcodec.NewAudioFormat(avcodec.MimeAudioPCMU, 8000, 1)
//	if err := s.Configure(format); err != nil {
//	    return err
//	}
//	s.SetCallback(avcodec.CallbackFuncs{
//	    InputAvailable:  func(buf *avcodec.Buffer) { /* заполнить и PushInput */ },
//	    OutputAvailable: func(buf *avcodec.Buffer) { /* прочитать и ReleaseOutput */ },
//	})
//	err = s.Start()
//
// Управляющие операции вызываются с одной горутины клиента или
// сериализуются внутренней блокировкой. PushInput/ReleaseOutput можно
// вызывать из обработчиков событий.
type Session struct {
	id   string
	kind Kind
	info EngineInfo

	engine *SharedEngine
	sm     *StateMachine
	flags  sessionFlags
	gate   *callbackGate

	input  *BufferRegistry
	output *BufferRegistry

	// mu сериализует управляющие операции
	mu       sync.Mutex
	format   *Format
	starting atomic.Bool

	logger  *slog.Logger
	metrics *Metrics
}

// engineListener передает события движка в callbackGate. Отдельный тип,
// чтобы методы EngineListener не попадали в публичный API Session.
type engineListener struct {
	gate *callbackGate
}

var _ EngineListener = engineListener{}

func (l engineListener) OnError(err error)                    { l.gate.deliverError(err) }
func (l engineListener) OnOutputFormatChanged(format *Format) { l.gate.deliverFormat(format) }
func (l engineListener) OnInputBufferAvailable(index uint32, block Block) {
	l.gate.deliverInput(index, block)
}
func (l engineListener) OnOutputBufferAvailable(index uint32, block Block, attr BufferAttr) {
	l.gate.deliverOutput(index, block, attr)
}

// Create создает сессию по имени движка или mime типу.
// Возвращает CodeNotFound, если подходящего движка нет.
func Create(identifier string, isEncoder bool, opts ...Option) (*Session, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	info, err := o.registry.Lookup(identifier, isEncoder)
	if err != nil {
		o.logger.Warn("движок не найден",
			slog.String("identifier", identifier),
			slog.Bool("is_encoder", isEncoder))
		return nil, err
	}

	engine, err := info.New()
	if err != nil {
		return nil, WrapEngineError("", "create", err)
	}
	if engine == nil {
		return nil, NewError(CodeNoMemory, "", fmt.Sprintf("фабрика %s вернула пустой движок", info.Name))
	}

	return newSession(info, engine, o), nil
}

func newSession(info EngineInfo, engine Engine, o options) *Session {
	s := &Session{
		id:      uuid.New().String(),
		kind:    info.Kind,
		info:    info,
		engine:  NewSharedEngine(engine),
		input:   NewBufferRegistry(DirectionInput, o.maxBuffers),
		output:  NewBufferRegistry(DirectionOutput, o.maxBuffers),
		metrics: o.metrics,
	}
	s.logger = o.logger.With(
		slog.String("component", "avcodec"),
		slog.String("session_id", s.id),
		slog.String("kind", info.Kind.String()),
		slog.String("engine", info.Name))
	s.sm = NewStateMachine(s.onTransition)
	s.gate = newCallbackGate(s)
	s.input.onResize = s.metrics.RegistryResized
	s.output.onResize = s.metrics.RegistryResized

	engine.SetListener(engineListener{gate: s.gate})

	s.metrics.SessionCreated(info.Kind.String())
	s.logger.Debug("сессия создана")
	return s
}

func (s *Session) onTransition(from, to SessionState) {
	s.metrics.StateTransition(from, to)
	s.logger.Debug("переход состояния",
		slog.String("from", from.String()),
		slog.String("to", to.String()))
}

func nilSessionError(op string) error {
	return &CodecError{
		Code:    CodeInvalidValue,
		Message: op + ": пустая сессия",
	}
}

func (s *Session) engineFailure(op string, err error) error {
	s.metrics.EngineError(op)
	s.logger.Warn("вызов движка завершился ошибкой",
		slog.String("operation", op),
		slog.String("error", err.Error()))
	return WrapEngineError(s.id, op, err)
}

// clearRegistries очищает оба реестра. Вызывать под gate.quiesce или после gate.close.
func (s *Session) clearRegistries() {
	in := s.input.Clear()
	out := s.output.Clear()
	s.logger.Debug("реестры буферов очищены",
		slog.Int("input", in),
		slog.Int("output", out))
}

// ID возвращает идентификатор сессии
func (s *Session) ID() string { return s.id }

// Kind возвращает вид сессии
func (s *Session) Kind() Kind { return s.kind }

// Name возвращает имя движка
func (s *Session) Name() string { return s.info.Name }

// State возвращает текущее состояние
func (s *Session) State() SessionState {
	if s == nil {
		return StateDestroyed
	}
	return s.sm.Current()
}

// Flags возвращает снимок флагов подавления событий
func (s *Session) Flags() FlagSnapshot {
	return s.flags.snapshot()
}

// IsEOSReached сообщает, был ли передан входной буфер с флагом EOS в текущем цикле
func (s *Session) IsEOSReached() bool {
	return s.flags.eos.Load()
}

// Configure проверяет и применяет параметры сессии. Недопустимые параметры
// дают CodeInvalidValue и не меняют состояние.
func (s *Session) Configure(format *Format) error {
	if s == nil {
		return nilSessionError("Configure")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.sm.Check(s.id, EventConfigure); err != nil {
		return err
	}
	if err := s.validateFormat(format); err != nil {
		s.logger.Warn("недопустимые параметры", slog.String("error", err.Error()))
		return err
	}

	cfg := format.Copy()
	if err := s.engine.Engine().Configure(context.Background(), cfg.Copy()); err != nil {
		return s.engineFailure(EventConfigure, err)
	}
	s.format = cfg
	return s.sm.Commit(s.id, EventConfigure)
}

func (s *Session) invalidValue(key string, value interface{}, reason string) error {
	return &CodecError{
		Code:      CodeInvalidValue,
		Message:   fmt.Sprintf("параметр %s: %s", key, reason),
		SessionID: s.id,
		Context: map[string]interface{}{
			"key":   key,
			"value": value,
		},
	}
}

// validateFormat проверяет обязательные и необязательные ключи для вида сессии
func (s *Session) validateFormat(format *Format) error {
	if format == nil {
		return s.invalidValue("format", nil, "отсутствует")
	}

	if format.Has(KeyMime) {
		mime, ok := format.GetString(KeyMime)
		if !ok {
			return s.invalidValue(KeyMime, nil, "ожидается строка")
		}
		if !s.info.SupportsMime(mime) {
			return &CodecError{
				Code:      CodeUnsupportedFormat,
				Message:   fmt.Sprintf("движок %s не поддерживает %s", s.info.Name, mime),
				SessionID: s.id,
				Context: map[string]interface{}{
					"mime": mime,
				},
			}
		}
	}

	requirePositive := func(key string, max int32) error {
		v, ok := format.GetInt32(key)
		if !ok {
			return s.invalidValue(key, nil, "обязательный целый параметр")
		}
		if v <= 0 || (max > 0 && v > max) {
			return s.invalidValue(key, v, "вне допустимого диапазона")
		}
		return nil
	}
	optionalNonNegative := func(key string) error {
		if !format.Has(key) {
			return nil
		}
		v, ok := format.GetInt64(key)
		if !ok {
			return s.invalidValue(key, nil, "ожидается целое")
		}
		if v < 0 {
			return s.invalidValue(key, v, "не может быть отрицательным")
		}
		return nil
	}

	if s.kind.IsAudio() {
		if err := requirePositive(KeyChannelCount, 16); err != nil {
			return err
		}
		if err := requirePositive(KeySampleRate, 0); err != nil {
			return err
		}
	} else {
		if err := requirePositive(KeyWidth, 0); err != nil {
			return err
		}
		if err := requirePositive(KeyHeight, 0); err != nil {
			return err
		}
		if format.Has(KeyPixelFormat) {
			pf, ok := format.GetInt32(KeyPixelFormat)
			if !ok || !PixelFormat(pf).Valid() {
				return s.invalidValue(KeyPixelFormat, pf, "неизвестный формат пикселей")
			}
		}
		if format.Has(KeyFrameRate) {
			fr, ok := format.GetFloat64(KeyFrameRate)
			if !ok || fr <= 0 {
				return s.invalidValue(KeyFrameRate, fr, "ожидается положительное число")
			}
		}
	}

	for _, key := range []string{KeyBitrate, KeyMaxInputSize, KeyInputBufferCount} {
		if err := optionalNonNegative(key); err != nil {
			return err
		}
	}
	return nil
}

// SetCallback регистрирует обработчик событий. Допустимо до Start.
func (s *Session) SetCallback(cb Callback) error {
	if s == nil {
		return nilSessionError("SetCallback")
	}
	if cb == nil {
		return NewError(CodeInvalidValue, s.id, "SetCallback: пустой обработчик")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.sm.Current()
	if state == StateRunning || state == StateDestroyed {
		return invalidOperation(s.id, "set_callback", state)
	}
	if !s.gate.setHandler(cb) {
		return invalidOperation(s.id, "set_callback", StateDestroyed)
	}
	return nil
}

// Start запускает обмен буферами. Все флаги сбрасываются до вызова движка;
// при ошибке движка они остаются сброшенными, а состояние не меняется,
// поэтому Start можно повторить.
func (s *Session) Start() error {
	if s == nil {
		return nilSessionError("Start")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.sm.Check(s.id, EventStart); err != nil {
		return err
	}

	s.flags.clearAll()
	s.starting.Store(true)
	defer s.starting.Store(false)

	if err := s.engine.Engine().Start(context.Background()); err != nil {
		return s.engineFailure(EventStart, err)
	}
	return s.sm.Commit(s.id, EventStart)
}

// Flush сбрасывает буферы движка. После успеха сессия в StateFlushed
// и ждет Start.
func (s *Session) Flush() error {
	if s == nil {
		return nilSessionError("Flush")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.sm.Check(s.id, EventFlush); err != nil {
		return err
	}

	prev := s.flags.flushing.Swap(true)
	if err := s.engine.Engine().Flush(context.Background()); err != nil {
		s.flags.flushing.Store(prev)
		return s.engineFailure(EventFlush, err)
	}

	s.gate.quiesce(s.clearRegistries)
	err := s.sm.Commit(s.id, EventFlush)
	s.flags.flushing.Store(false)
	return err
}

// Stop останавливает обмен буферами. Флаг stopped остается выставленным
// до следующего Start.
func (s *Session) Stop() error {
	if s == nil {
		return nilSessionError("Stop")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.sm.Check(s.id, EventStop); err != nil {
		return err
	}

	prev := s.flags.stopped.Swap(true)
	if err := s.engine.Engine().Stop(context.Background()); err != nil {
		s.flags.stopped.Store(prev)
		return s.engineFailure(EventStop, err)
	}

	s.gate.quiesce(s.clearRegistries)
	return s.sm.Commit(s.id, EventStop)
}

// Reset возвращает сессию в StateIdle: параметры забываются, статическая
// конфигурация снова разрешена.
func (s *Session) Reset() error {
	if s == nil {
		return nilSessionError("Reset")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.sm.Check(s.id, EventReset); err != nil {
		return err
	}

	prevFlushing := s.flags.flushing.Swap(true)
	prevStopped := s.flags.stopped.Swap(true)
	if err := s.engine.Engine().Reset(context.Background()); err != nil {
		s.flags.flushing.Store(prevFlushing)
		s.flags.stopped.Store(prevStopped)
		return s.engineFailure(EventReset, err)
	}

	s.gate.quiesce(s.clearRegistries)
	s.format = nil
	err := s.sm.Commit(s.id, EventReset)
	s.flags.flushing.Store(false)
	return err
}

// checkDataPath разрешает обмен буферами в StateRunning, а также пока
// выполняется Start: движок может запросить вход раньше, чем Start вернется.
func (s *Session) checkDataPath(op string) error {
	if s.starting.Load() {
		return nil
	}
	return s.sm.CheckRunning(s.id, op)
}

// dataPathOpen сообщает, можно ли раздавать буферы клиенту
func (s *Session) dataPathOpen() bool {
	return s.starting.Load() || s.sm.Current() == StateRunning
}

// PushInput передает движку заполненный входной буфер. Флаг EOS в attr
// выставляет eos после успешной передачи, следующий запрос входа будет подавлен.
func (s *Session) PushInput(index uint32, attr BufferAttr) error {
	if s == nil {
		return nilSessionError("PushInput")
	}
	if err := s.checkDataPath("push_input"); err != nil {
		return err
	}
	if attr.Size < 0 || attr.Offset < 0 {
		return s.invalidValue("attr", attr, "отрицательный размер или смещение")
	}
	buf, ok := s.input.Lookup(index)
	if !ok {
		return s.invalidValue("index", index, "входной буфер не выдан клиенту")
	}
	if capacity := buf.Block().Capacity(); int(attr.Offset)+int(attr.Size) > capacity {
		return s.invalidValue("attr", attr, fmt.Sprintf("данные выходят за емкость буфера %d", capacity))
	}

	buf.SetAttr(attr)
	if err := s.engine.Engine().QueueInput(index, attr); err != nil {
		return s.engineFailure("push_input", err)
	}
	if attr.IsEOS() {
		s.flags.eos.Store(true)
		s.logger.Debug("передан входной буфер с EOS", slog.Uint64("index", uint64(index)))
	}
	return nil
}

// ReleaseOutput возвращает движку выходной буфер. Допустимо в StateRunning,
// в том числе после EOS.
func (s *Session) ReleaseOutput(index uint32) error {
	if s == nil {
		return nilSessionError("ReleaseOutput")
	}
	return s.releaseOutput("release_output", index, false)
}

// RenderOutput выводит кадр на поверхность и освобождает буфер.
// Только для видео декодеров.
func (s *Session) RenderOutput(index uint32) error {
	if s == nil {
		return nilSessionError("RenderOutput")
	}
	if s.kind != KindVideoDecoder {
		return invalidOperation(s.id, "render_output", s.sm.Current())
	}
	return s.releaseOutput("render_output", index, true)
}

func (s *Session) releaseOutput(op string, index uint32, render bool) error {
	if err := s.checkDataPath(op); err != nil {
		return err
	}
	if _, ok := s.output.Lookup(index); !ok {
		return s.invalidValue("index", index, "выходной буфер не выдан клиенту")
	}
	if err := s.engine.Engine().ReleaseOutput(index, render); err != nil {
		return s.engineFailure(op, err)
	}
	return nil
}

// InputFormat возвращает копию параметров Configure или nil до Configure
func (s *Session) InputFormat() *Format {
	if s == nil {
		slog.Warn("InputFormat: пустая сессия")
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.format == nil {
		s.logger.Warn("InputFormat: сессия не сконфигурирована")
		return nil
	}
	return s.format.Copy()
}

// OutputFormat возвращает выходной формат движка. При недопустимом вызове
// возвращает nil и пишет диагностику в лог.
func (s *Session) OutputFormat() *Format {
	if s == nil {
		slog.Warn("OutputFormat: пустая сессия")
		return nil
	}
	state := s.sm.Current()
	if state == StateDestroyed || state == StateIdle {
		s.logger.Warn("OutputFormat недоступен", slog.String("state", state.String()))
		return nil
	}
	f := s.engine.Engine().OutputFormat()
	if f == nil {
		s.logger.Warn("движок не сообщил выходной формат")
		return nil
	}
	return f.Copy()
}

// Destroy уничтожает сессию: сначала разрывает связь с обработчиком,
// затем очищает реестры и отпускает движок. Ошибка освобождения движка
// возвращается для диагностики, но сессия все равно уничтожена.
// Повторный Destroy возвращает CodeInvalidOperation.
func (s *Session) Destroy() error {
	if s == nil {
		return nilSessionError("Destroy")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.sm.Check(s.id, EventDestroy); err != nil {
		return err
	}

	s.flags.stopped.Store(true)
	s.gate.close()
	s.clearRegistries()
	releaseErr := s.engine.Release()

	if err := s.sm.Commit(s.id, EventDestroy); err != nil {
		return err
	}
	s.metrics.SessionDestroyed(s.kind.String())

	if releaseErr != nil {
		s.metrics.EngineError(EventDestroy)
		s.logger.Error("ошибка освобождения движка",
			slog.String("error", releaseErr.Error()))
		return WrapEngineError(s.id, EventDestroy, releaseErr)
	}
	s.logger.Debug("сессия уничтожена")
	return nil
}
