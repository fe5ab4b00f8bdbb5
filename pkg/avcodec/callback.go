package avcodec

import "sync"

// Callback - обработчик событий сессии кодека.
//
// Методы вызываются на горутине доставки движка. Внутри обработчика можно
// вызывать PushInput/ReleaseOutput, но нельзя вызывать Stop/Flush/Reset/Destroy:
// эти операции ждут завершения всех доставок, которые уже начались.
type Callback interface {
	OnError(err error)
	OnFormatChanged(format *Format)
	OnInputAvailable(buf *Buffer)
	OnOutputAvailable(buf *Buffer)
}

// CallbackFuncs - таблица функций, аналог таблицы указателей на функции
// платформенного API. nil поля пропускаются.
type CallbackFuncs struct {
	Error           func(err error)
	FormatChanged   func(format *Format)
	InputAvailable  func(buf *Buffer)
	OutputAvailable func(buf *Buffer)
}

var _ Callback = CallbackFuncs{}

func (c CallbackFuncs) OnError(err error) {
	if c.Error != nil {
		c.Error(err)
	}
}

func (c CallbackFuncs) OnFormatChanged(format *Format) {
	if c.FormatChanged != nil {
		c.FormatChanged(format)
	}
}

func (c CallbackFuncs) OnInputAvailable(buf *Buffer) {
	if c.InputAvailable != nil {
		c.InputAvailable(buf)
	}
}

func (c CallbackFuncs) OnOutputAvailable(buf *Buffer) {
	if c.OutputAvailable != nil {
		c.OutputAvailable(buf)
	}
}

// EventType тип события сессии
type EventType int

const (
	EventError EventType = iota
	EventFormatChanged
	EventInputAvailable
	EventOutputAvailable
)

func (t EventType) String() string {
	switch t {
	case EventError:
		return "error"
	case EventFormatChanged:
		return "format_changed"
	case EventInputAvailable:
		return "input_available"
	case EventOutputAvailable:
		return "output_available"
	default:
		return "unknown"
	}
}

// Event - событие, доставляемое через EventChannel
type Event struct {
	Type   EventType
	Err    error
	Format *Format
	Buffer *Buffer
	// Attr - снимок атрибутов буфера на момент доставки
	Attr BufferAttr
}

// EventChannel доставляет события в канал, который клиент читает на своей
// горутине. Доставка блокируется, если канал заполнен, поэтому размер канала
// должен быть не меньше числа буферов движка.
type EventChannel struct {
	mu     sync.RWMutex
	events chan Event
	done   chan struct{}
	once   sync.Once
	closed bool
}

var _ Callback = (*EventChannel)(nil)

// NewEventChannel создает адаптер с буфером size событий
func NewEventChannel(size int) *EventChannel {
	if size < 1 {
		size = 1
	}
	return &EventChannel{
		events: make(chan Event, size),
		done:   make(chan struct{}),
	}
}

// Events возвращает канал событий. Канал закрывается в Close.
func (c *EventChannel) Events() <-chan Event {
	return c.events
}

// Close закрывает канал. Заблокированные отправители отпускаются,
// их события теряются. Повторный вызов безопасен.
func (c *EventChannel) Close() {
	c.once.Do(func() { close(c.done) })
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.events)
	}
}

// DropBufferEvents выбрасывает из канала еще не прочитанные события
// EventInputAvailable и EventOutputAvailable, остальные события остаются
// в прежнем порядке. Возвращает типы выброшенных событий.
//
// Сессия вызывает его при Stop, Flush, Reset и Destroy, когда реестры
// буферов очищаются и выданные ранее буферы становятся недействительными.
func (c *EventChannel) DropBufferEvents() []EventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}

	var (
		kept    []Event
		dropped []EventType
	)
drain:
	for n := len(c.events); n > 0; n-- {
		select {
		case ev := <-c.events:
			if ev.Type == EventInputAvailable || ev.Type == EventOutputAvailable {
				dropped = append(dropped, ev.Type)
				continue
			}
			kept = append(kept, ev)
		default:
			// клиент успел прочитать остаток
			break drain
		}
	}
	// отправители ждут c.mu, место в канале есть
	for _, ev := range kept {
		c.events <- ev
	}
	return dropped
}

func (c *EventChannel) send(ev Event) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *EventChannel) OnError(err error) {
	c.send(Event{Type: EventError, Err: err})
}

func (c *EventChannel) OnFormatChanged(format *Format) {
	c.send(Event{Type: EventFormatChanged, Format: format})
}

func (c *EventChannel) OnInputAvailable(buf *Buffer) {
	c.send(Event{Type: EventInputAvailable, Buffer: buf, Attr: buf.Attr()})
}

func (c *EventChannel) OnOutputAvailable(buf *Buffer) {
	c.send(Event{Type: EventOutputAvailable, Buffer: buf, Attr: buf.Attr()})
}
