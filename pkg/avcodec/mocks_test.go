package avcodec

import (
	"context"
	"fmt"
	"sync"
)

// mockBlock блок памяти mock движка
type mockBlock struct {
	data []byte
}

func newMockBlock(size int) *mockBlock { return &mockBlock{data: make([]byte, size)} }

func (b *mockBlock) Bytes() []byte { return b.data }
func (b *mockBlock) Capacity() int { return len(b.data) }

// mockEngine управляемый из теста движок. События не генерируются сами,
// тест вызывает emit* методы, имитируя горутину движка.
type mockEngine struct {
	mu       sync.Mutex
	listener EngineListener

	inputs  []*mockBlock
	outputs []*mockBlock

	calls []string
	queued []BufferAttr
	freed  []uint32

	// Контроль ошибок для тестирования
	failConfigure error
	failStart     error
	failStop      error
	failFlush     error
	failReset     error
	failRelease   error
	failQueue     error

	outputFormat *Format
	released     bool
}

func newMockEngine() *mockEngine {
	e := &mockEngine{}
	for i := 0; i < 4; i++ {
		e.inputs = append(e.inputs, newMockBlock(64))
		e.outputs = append(e.outputs, newMockBlock(64))
	}
	return e
}

func (e *mockEngine) record(call string) {
	e.mu.Lock()
	e.calls = append(e.calls, call)
	e.mu.Unlock()
}

func (e *mockEngine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.calls))
	copy(out, e.calls)
	return out
}

func (e *mockEngine) Configure(_ context.Context, format *Format) error {
	e.record("configure")
	if e.failConfigure != nil {
		return e.failConfigure
	}
	e.mu.Lock()
	e.outputFormat = format.Copy()
	e.mu.Unlock()
	return nil
}

func (e *mockEngine) SetListener(l EngineListener) {
	e.mu.Lock()
	e.listener = l
	e.mu.Unlock()
}

func (e *mockEngine) Start(context.Context) error {
	e.record("start")
	return e.failStart
}

func (e *mockEngine) Stop(context.Context) error {
	e.record("stop")
	return e.failStop
}

func (e *mockEngine) Flush(context.Context) error {
	e.record("flush")
	return e.failFlush
}

func (e *mockEngine) Reset(context.Context) error {
	e.record("reset")
	return e.failReset
}

func (e *mockEngine) Release() error {
	e.record("release")
	e.mu.Lock()
	e.released = true
	e.mu.Unlock()
	return e.failRelease
}

func (e *mockEngine) QueueInput(index uint32, attr BufferAttr) error {
	e.record(fmt.Sprintf("queue:%d", index))
	if e.failQueue != nil {
		return e.failQueue
	}
	e.mu.Lock()
	e.queued = append(e.queued, attr)
	e.mu.Unlock()
	return nil
}

func (e *mockEngine) ReleaseOutput(index uint32, render bool) error {
	e.record(fmt.Sprintf("release_output:%d:%t", index, render))
	e.mu.Lock()
	e.freed = append(e.freed, index)
	e.mu.Unlock()
	return nil
}

func (e *mockEngine) OutputFormat() *Format {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.outputFormat
}

func (e *mockEngine) getListener() EngineListener {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.listener
}

func (e *mockEngine) emitInput(index uint32) {
	e.getListener().OnInputBufferAvailable(index, e.inputs[index])
}

func (e *mockEngine) emitOutput(index uint32, attr BufferAttr) {
	e.getListener().OnOutputBufferAvailable(index, e.outputs[index], attr)
}

func (e *mockEngine) emitError(err error) {
	e.getListener().OnError(err)
}

func (e *mockEngine) emitFormat(f *Format) {
	e.getListener().OnOutputFormatChanged(f)
}

// recordingCallback запоминает все доставленные события
type recordingCallback struct {
	mu      sync.Mutex
	errors  []error
	formats []*Format
	inputs  []*Buffer
	outputs []*Buffer

	onInput  func(*Buffer)
	onOutput func(*Buffer)
}

func (c *recordingCallback) OnError(err error) {
	c.mu.Lock()
	c.errors = append(c.errors, err)
	c.mu.Unlock()
}

func (c *recordingCallback) OnFormatChanged(f *Format) {
	c.mu.Lock()
	c.formats = append(c.formats, f)
	c.mu.Unlock()
}

func (c *recordingCallback) OnInputAvailable(buf *Buffer) {
	c.mu.Lock()
	c.inputs = append(c.inputs, buf)
	hook := c.onInput
	c.mu.Unlock()
	if hook != nil {
		hook(buf)
	}
}

func (c *recordingCallback) OnOutputAvailable(buf *Buffer) {
	c.mu.Lock()
	c.outputs = append(c.outputs, buf)
	hook := c.onOutput
	c.mu.Unlock()
	if hook != nil {
		hook(buf)
	}
}

func (c *recordingCallback) counts() (errs, formats, inputs, outputs int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.errors), len(c.formats), len(c.inputs), len(c.outputs)
}

const (
	mockEncoderName = "mock.audio.encoder"
	mockDecoderName = "mock.video.decoder"
)

// newTestRegistry создает таблицу с mock движками. Последний созданный
// движок доступен через *last.
func newTestRegistry(last **mockEngine) *EngineRegistry {
	reg := NewEngineRegistry()
	factory := func() (Engine, error) {
		e := newMockEngine()
		*last = e
		return e, nil
	}
	reg.MustRegister(EngineInfo{
		Name:      mockEncoderName,
		Kind:      KindAudioEncoder,
		MimeTypes: []string{MimeAudioPCMU},
		New:       factory,
	})
	reg.MustRegister(EngineInfo{
		Name:      mockDecoderName,
		Kind:      KindVideoDecoder,
		MimeTypes: []string{MimeVideoAVC},
		New:       factory,
	})
	return reg
}

func audioFormat() *Format {
	return NewAudioFormat(MimeAudioPCMU, 8000, 1)
}
