package avcodec

import (
	"strings"
	"sync"
	"sync/atomic"
)

// BufferFlag флаги буфера
type BufferFlag uint32

const (
	FlagNone         BufferFlag = 0
	FlagEOS          BufferFlag = 1 << 0
	FlagSyncFrame    BufferFlag = 1 << 1
	FlagPartialFrame BufferFlag = 1 << 2
	FlagCodecData    BufferFlag = 1 << 3
)

// Has проверяет наличие всех указанных флагов
func (f BufferFlag) Has(flag BufferFlag) bool { return f&flag == flag && flag != 0 }

func (f BufferFlag) String() string {
	if f == FlagNone {
		return "none"
	}
	var parts []string
	if f.Has(FlagEOS) {
		parts = append(parts, "eos")
	}
	if f.Has(FlagSyncFrame) {
		parts = append(parts, "sync")
	}
	if f.Has(FlagPartialFrame) {
		parts = append(parts, "partial")
	}
	if f.Has(FlagCodecData) {
		parts = append(parts, "codec_data")
	}
	return strings.Join(parts, "|")
}

// BufferAttr описывает содержимое буфера: время презентации в микросекундах,
// размер и смещение полезных данных, флаги.
type BufferAttr struct {
	PTS    int64
	Size   int32
	Offset int32
	Flags  BufferFlag
}

// IsEOS сообщает о флаге конца потока
func (a BufferAttr) IsEOS() bool { return a.Flags.Has(FlagEOS) }

// Direction направление обмена буферами
type Direction int

const (
	DirectionInput Direction = iota
	DirectionOutput
)

func (d Direction) String() string {
	if d == DirectionInput {
		return "input"
	}
	return "output"
}

// Block - память, принадлежащая движку. Идентичность блока определяется
// значением интерфейса (обычно указателем). Блок несравнимого типа
// BufferRegistry отвергает с CodeInvalidValue.
type Block interface {
	// Bytes возвращает всю память блока
	Bytes() []byte
	// Capacity возвращает емкость блока в байтах
	Capacity() int
}

// Buffer - стабильный handle буфера, который видит клиент. На один блок движка
// приходится не больше одного Buffer, пока он зарегистрирован в BufferRegistry.
type Buffer struct {
	index      atomic.Uint32
	block      Block
	direction  Direction
	generation uint64

	mu   sync.RWMutex
	attr BufferAttr
}

// Index возвращает индекс, которым клиент ссылается на буфер в PushInput/ReleaseOutput
func (b *Buffer) Index() uint32 { return b.index.Load() }

// Block возвращает блок движка
func (b *Buffer) Block() Block { return b.block }

// Direction возвращает направление буфера
func (b *Buffer) Direction() Direction { return b.direction }

// Generation возвращает поколение реестра, в котором буфер был создан
func (b *Buffer) Generation() uint64 { return b.generation }

// Bytes возвращает память блока целиком
func (b *Buffer) Bytes() []byte {
	if b.block == nil {
		return nil
	}
	return b.block.Bytes()
}

// Payload возвращает полезные данные согласно Offset/Size атрибутов
func (b *Buffer) Payload() []byte {
	data := b.Bytes()
	attr := b.Attr()
	start := int(attr.Offset)
	end := start + int(attr.Size)
	if start < 0 || end > len(data) || start > end {
		return nil
	}
	return data[start:end]
}

// Attr возвращает атрибуты буфера
func (b *Buffer) Attr() BufferAttr {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.attr
}

// SetAttr устанавливает атрибуты буфера
func (b *Buffer) SetAttr(attr BufferAttr) {
	b.mu.Lock()
	b.attr = attr
	b.mu.Unlock()
}
