package avcodec

import (
	"log/slog"
	"sync"
)

// Причины, по которым событие не доставлено
const (
	dropClosed     = "closed"
	dropSuppressed = "suppressed"
	dropNoHandler  = "no_handler"
	dropRegistry   = "registry"
	dropStale      = "stale"
)

// bufferingCallback - обработчик, который копит события до чтения клиентом
// (EventChannel). При очистке реестров из него выбрасываются события
// с буферами, иначе клиент получил бы буфер прошлого цикла.
type bufferingCallback interface {
	DropBufferEvents() []EventType
}

// callbackGate - единственная точка, через которую события движка попадают
// в обработчик клиента.
//
// Доставки идут под разделяемой блокировкой и могут выполняться параллельно
// (ошибка и запрос входного буфера, например). close и quiesce берут
// эксклюзивную блокировку, то есть ждут завершения всех начатых доставок.
// После close ссылка на сессию обнулена навсегда, и любая поздняя доставка
// становится no-op.
type callbackGate struct {
	mu      sync.RWMutex
	session *Session
	handler Callback
}

func newCallbackGate(s *Session) *callbackGate {
	return &callbackGate{session: s}
}

// setHandler устанавливает обработчик клиента
func (g *callbackGate) setHandler(h Callback) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.session == nil {
		return false
	}
	g.handler = h
	return true
}

// close разрывает связь с сессией. Повторный вызов безопасен.
func (g *callbackGate) close() {
	g.mu.Lock()
	g.dropBuffered()
	g.session = nil
	g.handler = nil
	g.mu.Unlock()
}

// closed сообщает, разорвана ли связь
func (g *callbackGate) closed() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.session == nil
}

// quiesce выполняет fn, когда ни одна доставка не выполняется, и затем
// выбрасывает накопленные обработчиком события с буферами
func (g *callbackGate) quiesce(fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn()
	g.dropBuffered()
}

// dropBuffered вызывается под эксклюзивной блокировкой
func (g *callbackGate) dropBuffered() {
	b, ok := g.handler.(bufferingCallback)
	if !ok || g.session == nil {
		return
	}
	dropped := b.DropBufferEvents()
	for _, ev := range dropped {
		g.session.metrics.CallbackDropped(ev, dropStale)
	}
	if len(dropped) > 0 {
		g.session.logger.Debug("устаревшие события с буферами выброшены",
			slog.Int("count", len(dropped)))
	}
}

// acquire берет разделяемую блокировку и возвращает сессию и обработчик.
// Если связь разорвана или обработчика нет, блокировка уже отпущена и ok == false.
func (g *callbackGate) acquire(event EventType) (s *Session, h Callback, ok bool) {
	g.mu.RLock()
	if g.session == nil {
		g.mu.RUnlock()
		slog.Debug("callbackGate: событие после Destroy отброшено",
			slog.String("event", event.String()))
		return nil, nil, false
	}
	if g.handler == nil {
		s = g.session
		g.mu.RUnlock()
		s.metrics.CallbackDropped(event, dropNoHandler)
		return nil, nil, false
	}
	return g.session, g.handler, true
}

func (g *callbackGate) deliverError(err error) {
	s, h, ok := g.acquire(EventError)
	if !ok {
		return
	}
	defer g.mu.RUnlock()

	s.metrics.CallbackDelivered(EventError)
	h.OnError(err)
}

func (g *callbackGate) deliverFormat(format *Format) {
	s, h, ok := g.acquire(EventFormatChanged)
	if !ok {
		return
	}
	defer g.mu.RUnlock()

	s.metrics.CallbackDelivered(EventFormatChanged)
	h.OnFormatChanged(format)
}

func (g *callbackGate) deliverInput(index uint32, block Block) {
	s, h, ok := g.acquire(EventInputAvailable)
	if !ok {
		return
	}
	defer g.mu.RUnlock()

	if s.flags.suppressInput() || !s.dataPathOpen() {
		s.metrics.CallbackDropped(EventInputAvailable, dropSuppressed)
		s.logger.Debug("входной буфер не выдан клиенту",
			slog.Uint64("index", uint64(index)),
			slog.Any("flags", s.flags.snapshot()))
		return
	}

	buf, err := s.input.Resolve(index, block)
	if err != nil {
		s.metrics.CallbackDropped(EventInputAvailable, dropRegistry)
		s.metrics.CallbackDelivered(EventError)
		h.OnError(err)
		return
	}
	buf.SetAttr(BufferAttr{Size: 0, Offset: 0})

	s.metrics.CallbackDelivered(EventInputAvailable)
	h.OnInputAvailable(buf)
}

func (g *callbackGate) deliverOutput(index uint32, block Block, attr BufferAttr) {
	s, h, ok := g.acquire(EventOutputAvailable)
	if !ok {
		return
	}
	defer g.mu.RUnlock()

	if s.flags.suppressOutput() || !s.dataPathOpen() {
		s.metrics.CallbackDropped(EventOutputAvailable, dropSuppressed)
		s.logger.Debug("выходной буфер не выдан клиенту",
			slog.Uint64("index", uint64(index)),
			slog.Any("flags", s.flags.snapshot()))
		return
	}

	buf, err := s.output.Resolve(index, block)
	if err != nil {
		s.metrics.CallbackDropped(EventOutputAvailable, dropRegistry)
		s.metrics.CallbackDelivered(EventError)
		h.OnError(err)
		return
	}
	buf.SetAttr(attr)

	s.metrics.CallbackDelivered(EventOutputAvailable)
	h.OnOutputAvailable(buf)
}
