package g711

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/arzzra/avcodec/pkg/avcodec"
)

const (
	// DefaultBufferCount число входных и выходных блоков по умолчанию
	DefaultBufferCount = 4
	// DefaultFrameSamples отсчетов на блок по умолчанию (20 мс при 8 кГц)
	DefaultFrameSamples = 320
)

// block - память, принадлежащая движку
type block struct {
	data []byte
}

func (b *block) Bytes() []byte { return b.data }
func (b *block) Capacity() int { return len(b.data) }

// queuedInput - входной буфер, переданный клиентом на обработку
type queuedInput struct {
	index uint32
	attr  avcodec.BufferAttr
}

// Engine - движок G.711 кодировщика или декодера.
//
// Своя горутина раздает свободные входные блоки, преобразует поставленные
// в очередь входы в выходные блоки и снова предлагает выходной блок после
// ReleaseOutput. Stop, Flush и Reset останавливают горутину и возвращают
// все блоки в свободные пулы.
type Engine struct {
	law    Law
	encode bool

	mu        sync.Mutex
	listener  avcodec.EngineListener
	outFormat *avcodec.Format
	inputs    []*block
	outputs   []*block
	outBusy   []bool
	inBusy    []bool
	running   bool
	released  bool

	queued  chan queuedInput
	freeOut chan uint32

	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *slog.Logger
}

var _ avcodec.Engine = (*Engine)(nil)

// NewEngine создает движок для закона law. encode выбирает направление.
func NewEngine(law Law, encode bool) *Engine {
	direction := "decoder"
	if encode {
		direction = "encoder"
	}
	return &Engine{
		law:    law,
		encode: encode,
		logger: slog.Default().With(
			slog.String("component", "g711"),
			slog.String("engine", law.String()+"."+direction)),
	}
}

func (e *Engine) SetListener(l avcodec.EngineListener) {
	e.mu.Lock()
	e.listener = l
	e.mu.Unlock()
}

// Configure выделяет блоки. Размер входного блока берется из max_input_size,
// по умолчанию 20 мс при заданной частоте.
func (e *Engine) Configure(_ context.Context, format *avcodec.Format) error {
	if mime, ok := format.GetString(avcodec.KeyMime); ok && mime != e.law.Mime() {
		return avcodec.NewError(avcodec.CodeUnsupportedFormat, "", fmt.Sprintf("%s не поддерживает %s", e.law, mime))
	}

	channels, _ := format.GetInt32(avcodec.KeyChannelCount)
	rate, _ := format.GetInt32(avcodec.KeySampleRate)
	if channels <= 0 || rate <= 0 {
		return avcodec.NewError(avcodec.CodeInvalidValue, "", "не заданы частота или число каналов")
	}

	count := DefaultBufferCount
	if n, ok := format.GetInt32(avcodec.KeyInputBufferCount); ok && n > 0 {
		count = int(n)
	}

	// размер входа в байтах, выход кодировщика вдвое меньше, декодера вдвое больше
	bytesPerSample := 1
	if e.encode {
		bytesPerSample = 2
	}
	inSize := DefaultFrameSamples * int(channels) * bytesPerSample
	if n, ok := format.GetInt32(avcodec.KeyMaxInputSize); ok && n > 0 {
		inSize = int(n)
	}
	outSize := inSize / 2
	if !e.encode {
		outSize = inSize * 2
	}
	if outSize == 0 {
		outSize = 1
	}

	out := avcodec.NewFormat().
		SetInt32(avcodec.KeySampleRate, rate).
		SetInt32(avcodec.KeyChannelCount, channels).
		SetInt32(avcodec.KeyMaxInputSize, int32(outSize))
	if e.encode {
		out.SetString(avcodec.KeyMime, e.law.Mime()).SetInt32(avcodec.KeyBitsPerSample, 8)
	} else {
		out.SetString(avcodec.KeyMime, avcodec.MimeAudioRaw).SetInt32(avcodec.KeyBitsPerSample, 16)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return avcodec.NewError(avcodec.CodeInvalidOperation, "", "движок освобожден")
	}
	e.inputs = make([]*block, count)
	e.outputs = make([]*block, count)
	for i := 0; i < count; i++ {
		e.inputs[i] = &block{data: make([]byte, inSize)}
		e.outputs[i] = &block{data: make([]byte, outSize)}
	}
	e.outFormat = out

	e.logger.Debug("движок сконфигурирован",
		slog.Int("buffers", count),
		slog.Int("input_size", inSize),
		slog.Int("output_size", outSize))
	return nil
}

// Start запускает горутину обработки
func (e *Engine) Start(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.released {
		return avcodec.NewError(avcodec.CodeInvalidOperation, "", "движок освобожден")
	}
	if len(e.inputs) == 0 {
		return avcodec.NewError(avcodec.CodeInvalidOperation, "", "движок не сконфигурирован")
	}
	if e.running {
		return nil
	}

	count := len(e.inputs)
	e.queued = make(chan queuedInput, count)
	e.freeOut = make(chan uint32, count)
	for i := 0; i < count; i++ {
		e.freeOut <- uint32(i)
	}
	e.inBusy = make([]bool, count)
	e.outBusy = make([]bool, count)

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.running = true

	e.wg.Add(1)
	go e.processLoop(ctx, e.listener, e.queued, e.freeOut)
	return nil
}

// halt останавливает горутину. Вызывать без e.mu: горутина может ждать
// обработчик клиента, а тот вызывать QueueInput.
func (e *Engine) halt() {
	e.mu.Lock()
	cancel := e.cancel
	e.cancel = nil
	e.running = false
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.wg.Wait()
}

func (e *Engine) Stop(context.Context) error {
	e.halt()
	e.logger.Debug("движок остановлен")
	return nil
}

func (e *Engine) Flush(context.Context) error {
	e.halt()
	e.logger.Debug("буферы движка сброшены")
	return nil
}

// Reset останавливает движок и забывает конфигурацию
func (e *Engine) Reset(context.Context) error {
	e.halt()
	e.mu.Lock()
	e.inputs = nil
	e.outputs = nil
	e.outFormat = nil
	e.mu.Unlock()
	return nil
}

func (e *Engine) Release() error {
	e.halt()
	e.mu.Lock()
	e.released = true
	e.listener = nil
	e.inputs = nil
	e.outputs = nil
	e.mu.Unlock()
	return nil
}

// QueueInput ставит заполненный входной блок в очередь обработки
func (e *Engine) QueueInput(index uint32, attr avcodec.BufferAttr) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return avcodec.NewError(avcodec.CodeInvalidOperation, "", "движок не запущен")
	}
	if int(index) >= len(e.inputs) {
		return avcodec.NewError(avcodec.CodeInvalidValue, "", fmt.Sprintf("нет входного блока %d", index))
	}
	if e.inBusy[index] {
		return avcodec.NewError(avcodec.CodeInvalidValue, "", fmt.Sprintf("входной блок %d уже в очереди", index))
	}
	e.inBusy[index] = true
	// канал вмещает все блоки, отправка не блокируется
	e.queued <- queuedInput{index: index, attr: attr}
	return nil
}

// ReleaseOutput возвращает выходной блок в пул. render для аудио не значим.
func (e *Engine) ReleaseOutput(index uint32, _ bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return avcodec.NewError(avcodec.CodeInvalidOperation, "", "движок не запущен")
	}
	if int(index) >= len(e.outputs) || !e.outBusy[index] {
		return avcodec.NewError(avcodec.CodeInvalidValue, "", fmt.Sprintf("выходной блок %d не выдан", index))
	}
	e.outBusy[index] = false
	e.freeOut <- index
	return nil
}

func (e *Engine) OutputFormat() *avcodec.Format {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.outFormat
}

// processLoop - горутина движка. Каналы передаются параметрами, так как
// следующий Start создает новые.
func (e *Engine) processLoop(ctx context.Context, listener avcodec.EngineListener,
	queued <-chan queuedInput, freeOut <-chan uint32) {
	defer e.wg.Done()

	if listener == nil {
		e.logger.Warn("обработчик событий движка не установлен")
		<-ctx.Done()
		return
	}

	e.mu.Lock()
	format := e.outFormat.Copy()
	inputs := e.inputs
	outputs := e.outputs
	e.mu.Unlock()

	listener.OnOutputFormatChanged(format)
	for i, b := range inputs {
		if ctx.Err() != nil {
			return
		}
		listener.OnInputBufferAvailable(uint32(i), b)
	}

	for {
		var in queuedInput
		select {
		case <-ctx.Done():
			return
		case in = <-queued:
		}

		var out uint32
		select {
		case <-ctx.Done():
			return
		case out = <-freeOut:
		}

		attr := e.convert(inputs[in.index], outputs[out], in.attr)

		e.mu.Lock()
		if !e.running || e.inBusy == nil {
			e.mu.Unlock()
			return
		}
		e.inBusy[in.index] = false
		e.outBusy[out] = true
		e.mu.Unlock()

		listener.OnOutputBufferAvailable(out, outputs[out], attr)
		if !in.attr.IsEOS() {
			listener.OnInputBufferAvailable(in.index, inputs[in.index])
		}
	}
}

// convert преобразует полезные данные входного блока в выходной блок
func (e *Engine) convert(in, out *block, attr avcodec.BufferAttr) avcodec.BufferAttr {
	start := int(attr.Offset)
	end := start + int(attr.Size)
	if start < 0 || end > len(in.data) || start > end {
		start, end = 0, 0
	}
	src := in.data[start:end]

	var n int
	if e.encode {
		n = encodeBlock(e.law, out.data, src)
	} else {
		n = decodeBlock(e.law, out.data, src)
	}

	flags := attr.Flags &^ avcodec.FlagCodecData
	return avcodec.BufferAttr{
		PTS:   attr.PTS,
		Size:  int32(n),
		Flags: flags | avcodec.FlagSyncFrame,
	}
}
