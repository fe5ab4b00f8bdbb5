package avmuxer

import (
	"fmt"
	"io"
	"sync"

	"github.com/arzzra/avcodec/pkg/avcodec"
)

// OutputFormat формат контейнера на выходе мультиплексора
type OutputFormat int

const (
	// OutputFormatWAV - RIFF/WAVE с одним PCM треком
	OutputFormatWAV OutputFormat = iota + 1
	// OutputFormatRTP - SDP описание и RTP пакеты с кадрированием RFC 4571
	OutputFormatRTP
)

func (f OutputFormat) String() string {
	switch f {
	case OutputFormatWAV:
		return "wav"
	case OutputFormatRTP:
		return "rtp"
	default:
		return fmt.Sprintf("OutputFormat(%d)", int(f))
	}
}

// MuxerEngine - реализация записи конкретного контейнера. Muxer проверяет
// грамматику вызовов и параметры, движок только пишет данные.
type MuxerEngine interface {
	// Configure принимает параметры уровня контейнера (creation_time, comment)
	Configure(format *avcodec.Format) error
	// AddTrack регистрирует трек с уже выданным идентификатором
	AddTrack(id int, desc *TrackDescriptor) error
	SetRotation(degrees int) error
	Start() error
	WriteSample(track int, data []byte, attr avcodec.BufferAttr) error
	// Stop завершает контейнер. При ошибке Muxer остается в StateRunning.
	Stop() error
	Release() error
}

// EngineFactory создает движок, пишущий в output
type EngineFactory func(output io.Writer) (MuxerEngine, error)

var (
	enginesMu sync.RWMutex
	engines   = map[OutputFormat]EngineFactory{}
)

// RegisterEngine регистрирует фабрику для формата контейнера
func RegisterEngine(format OutputFormat, factory EngineFactory) {
	enginesMu.Lock()
	defer enginesMu.Unlock()
	engines[format] = factory
}

func lookupEngine(format OutputFormat) (EngineFactory, bool) {
	enginesMu.RLock()
	defer enginesMu.RUnlock()
	f, ok := engines[format]
	return f, ok
}

func init() {
	RegisterEngine(OutputFormatWAV, newWAVEngine)
	RegisterEngine(OutputFormatRTP, newRTPEngine)
}
