package avcodec

import (
	"fmt"
	"reflect"
	"sync"
)

// BufferRegistry отображает блоки движка одного направления одной сессии
// в стабильные handle'ы Buffer.
//
// Гарантии:
//   - Resolve для одного и того же блока всегда возвращает один и тот же *Buffer,
//     в том числе при конкурентных вызовах
//   - Clear и вставка в Resolve взаимно исключены одной блокировкой
//   - после Clear повторный Resolve создает новый handle
type BufferRegistry struct {
	direction  Direction
	maxEntries int

	mu         sync.RWMutex
	byBlock    map[Block]*Buffer
	byIndex    map[uint32]*Buffer
	generation uint64

	// onResize получает изменение числа живых handle'ов
	onResize func(direction Direction, delta int)
	reported int
}

// NewBufferRegistry создает реестр. maxEntries ограничивает число живых
// handle'ов, 0 - без ограничения.
func NewBufferRegistry(direction Direction, maxEntries int) *BufferRegistry {
	return &BufferRegistry{
		direction:  direction,
		maxEntries: maxEntries,
		byBlock:    make(map[Block]*Buffer),
		byIndex:    make(map[uint32]*Buffer),
	}
}

// Direction возвращает направление реестра
func (r *BufferRegistry) Direction() Direction { return r.direction }

// Resolve возвращает handle для блока, создавая его при первом обращении.
// Индекс перепривязывается к найденному handle'у, так как движок может
// выдать тот же блок под другим индексом.
func (r *BufferRegistry) Resolve(index uint32, block Block) (*Buffer, error) {
	if block == nil {
		return nil, &CodecError{
			Code:    CodeInvalidValue,
			Message: fmt.Sprintf("пустой блок для %s буфера %d", r.direction, index),
		}
	}

	if !hashable(block) {
		return nil, &CodecError{
			Code:    CodeInvalidValue,
			Message: fmt.Sprintf("блок %T для %s буфера %d нельзя использовать ключом", block, r.direction, index),
			Context: map[string]interface{}{"index": index},
		}
	}

	// Быстрый путь под разделяемой блокировкой
	r.mu.RLock()
	buf, ok := r.byBlock[block]
	bound := ok && r.byIndex[index] == buf && buf.Index() == index
	r.mu.RUnlock()
	if bound {
		return buf, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	buf, ok = r.byBlock[block]
	if !ok {
		if r.maxEntries > 0 && len(r.byBlock) >= r.maxEntries {
			return nil, &CodecError{
				Code:    CodeNoMemory,
				Message: fmt.Sprintf("реестр %s буферов заполнен", r.direction),
				Context: map[string]interface{}{
					"max_entries": r.maxEntries,
					"index":       index,
				},
			}
		}
		buf = &Buffer{
			block:      block,
			direction:  r.direction,
			generation: r.generation,
		}
		buf.index.Store(index)
		r.byBlock[block] = buf
	} else if old := buf.Index(); old != index {
		if prev, exists := r.byIndex[old]; exists && prev == buf {
			delete(r.byIndex, old)
		}
		buf.index.Store(index)
	}
	r.byIndex[index] = buf
	r.notifySize()
	return buf, nil
}

// hashable сообщает, может ли блок быть ключом map. Значение несравнимого
// типа (срез, map, функция, в том числе внутри интерфейсного поля) вызвало бы
// панику в горутине движка.
func hashable(block Block) (ok bool) {
	t := reflect.TypeOf(block)
	if t.Kind() == reflect.Pointer {
		return true
	}
	if !t.Comparable() {
		return false
	}
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	var keys map[Block]struct{}
	_, _ = keys[block]
	return true
}

// Lookup ищет handle по индексу
func (r *BufferRegistry) Lookup(index uint32) (*Buffer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	buf, ok := r.byIndex[index]
	return buf, ok
}

// Clear удаляет все записи и возвращает их количество
func (r *BufferRegistry) Clear() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.byBlock)
	r.byBlock = make(map[Block]*Buffer)
	r.byIndex = make(map[uint32]*Buffer)
	r.generation++
	r.notifySize()
	return n
}

// Len возвращает количество живых handle'ов
func (r *BufferRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byBlock)
}

// Generation возвращает номер поколения, увеличивается при каждом Clear
func (r *BufferRegistry) Generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generation
}

// вызывается под r.mu
func (r *BufferRegistry) notifySize() {
	delta := len(r.byBlock) - r.reported
	r.reported = len(r.byBlock)
	if delta != 0 && r.onResize != nil {
		r.onResize(r.direction, delta)
	}
}
