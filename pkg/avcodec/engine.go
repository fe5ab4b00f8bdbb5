package avcodec

import (
	"context"
	"sync"
)

// Engine - внешний движок кодирования/декодирования. Слой сессий не знает
// ничего об алгоритмах движка, он только управляет его жизненным циклом
// и раздает клиенту его буферы.
//
// Движок сообщает о событиях через EngineListener со своих горутин.
type Engine interface {
	// Configure применяет параметры сессии
	Configure(ctx context.Context, format *Format) error
	// SetListener регистрирует получателя событий движка
	SetListener(listener EngineListener)
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Flush(ctx context.Context) error
	Reset(ctx context.Context) error
	// Release освобождает ресурсы движка, после него движок не используется
	Release() error
	// QueueInput передает заполненный входной буфер
	QueueInput(index uint32, attr BufferAttr) error
	// ReleaseOutput возвращает выходной буфер движку. render - вывести кадр
	// на поверхность перед освобождением (только видео декодеры).
	ReleaseOutput(index uint32, render bool) error
	// OutputFormat возвращает текущий выходной формат или nil
	OutputFormat() *Format
}

// EngineListener - получатель событий движка. Реализуется сессией.
type EngineListener interface {
	OnError(err error)
	OnOutputFormatChanged(format *Format)
	OnInputBufferAvailable(index uint32, block Block)
	OnOutputBufferAvailable(index uint32, block Block, attr BufferAttr)
}

// SharedEngine - движок с подсчетом ссылок. Release движка вызывается,
// когда отпущена последняя ссылка.
type SharedEngine struct {
	engine Engine

	mu       sync.Mutex
	refs     int
	released bool
}

// NewSharedEngine оборачивает движок с одной начальной ссылкой
func NewSharedEngine(engine Engine) *SharedEngine {
	return &SharedEngine{engine: engine, refs: 1}
}

// Engine возвращает обернутый движок
func (s *SharedEngine) Engine() Engine {
	return s.engine
}

// Acquire увеличивает счетчик ссылок. Возвращает false, если движок уже освобожден.
func (s *SharedEngine) Acquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return false
	}
	s.refs++
	return true
}

// Release отпускает ссылку и освобождает движок на последней
func (s *SharedEngine) Release() error {
	s.mu.Lock()
	if s.released || s.refs == 0 {
		s.mu.Unlock()
		return nil
	}
	s.refs--
	if s.refs > 0 {
		s.mu.Unlock()
		return nil
	}
	s.released = true
	s.mu.Unlock()

	if s.engine == nil {
		return nil
	}
	return s.engine.Release()
}

// Refs возвращает текущее количество ссылок
func (s *SharedEngine) Refs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs
}
