package avcodec

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Ключи параметров формата
const (
	KeyMime             = "codec_mime"
	KeyChannelCount     = "channel_count"
	KeySampleRate       = "sample_rate"
	KeyBitsPerSample    = "bits_per_sample"
	KeyBitrate          = "bitrate"
	KeyWidth            = "width"
	KeyHeight           = "height"
	KeyPixelFormat      = "pixel_format"
	KeyFrameRate        = "frame_rate"
	KeyRotation         = "rotation_angle"
	KeyMaxInputSize     = "max_input_size"
	KeyInputBufferCount = "input_buffer_count"
	KeyCodecConfig      = "codec_config"
	KeyCreationTime     = "creation_time"
	KeyComment          = "comment"
)

// Mime типы, известные слою сессий
const (
	MimeAudioRaw  = "audio/raw"
	MimeAudioPCMU = "audio/g711mu"
	MimeAudioPCMA = "audio/g711a"
	MimeAudioOpus = "audio/opus"
	MimeAudioAAC  = "audio/mp4a-latm"
	MimeAudioFLAC = "audio/flac"
	MimeVideoAVC  = "video/avc"
	MimeVideoHEVC = "video/hevc"
	MimeVideoVP8  = "video/x-vnd.on2.vp8"
	MimeVideoVP9  = "video/x-vnd.on2.vp9"
	MimeImageJPG  = "image/jpeg"
	MimeImagePNG  = "image/png"
	MimeImageBMP  = "image/bmp"
)

// PixelFormat формат пикселей видео
type PixelFormat int32

const (
	PixelFormatUnknown PixelFormat = iota
	PixelFormatYUVI420
	PixelFormatNV12
	PixelFormatNV21
	PixelFormatRGBA
	PixelFormatSurface
)

// String возвращает имя формата пикселей
func (p PixelFormat) String() string {
	switch p {
	case PixelFormatYUVI420:
		return "YUVI420"
	case PixelFormatNV12:
		return "NV12"
	case PixelFormatNV21:
		return "NV21"
	case PixelFormatRGBA:
		return "RGBA"
	case PixelFormatSurface:
		return "SURFACE"
	default:
		return "unknown"
	}
}

// Valid сообщает, является ли формат известным
func (p PixelFormat) Valid() bool {
	return p > PixelFormatUnknown && p <= PixelFormatSurface
}

// Format набор параметров ключ-значение, которым описывается конфигурация
// кодека, трека мультиплексора или выходной формат движка.
// Format безопасен для конкурентного использования.
type Format struct {
	mu     sync.RWMutex
	values map[string]interface{}
}

// NewFormat создает пустой Format
func NewFormat() *Format {
	return &Format{values: make(map[string]interface{})}
}

// NewAudioFormat создает Format с обязательными параметрами аудио
func NewAudioFormat(mime string, sampleRate, channelCount int32) *Format {
	f := NewFormat()
	f.SetString(KeyMime, mime)
	f.SetInt32(KeySampleRate, sampleRate)
	f.SetInt32(KeyChannelCount, channelCount)
	return f
}

// NewVideoFormat создает Format с обязательными параметрами видео
func NewVideoFormat(mime string, width, height int32) *Format {
	f := NewFormat()
	f.SetString(KeyMime, mime)
	f.SetInt32(KeyWidth, width)
	f.SetInt32(KeyHeight, height)
	return f
}

func (f *Format) set(key string, v interface{}) *Format {
	f.mu.Lock()
	if f.values == nil {
		f.values = make(map[string]interface{})
	}
	f.values[key] = v
	f.mu.Unlock()
	return f
}

func (f *Format) get(key string) (interface{}, bool) {
	if f == nil {
		return nil, false
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.values[key]
	return v, ok
}

func (f *Format) SetInt32(key string, v int32) *Format     { return f.set(key, v) }
func (f *Format) SetInt64(key string, v int64) *Format     { return f.set(key, v) }
func (f *Format) SetFloat64(key string, v float64) *Format { return f.set(key, v) }
func (f *Format) SetString(key string, v string) *Format   { return f.set(key, v) }

// SetBytes сохраняет копию данных
func (f *Format) SetBytes(key string, v []byte) *Format {
	cp := make([]byte, len(v))
	copy(cp, v)
	return f.set(key, cp)
}

// GetInt32 возвращает целое значение. int64 значения в диапазоне int32 тоже принимаются.
func (f *Format) GetInt32(key string) (int32, bool) {
	v, ok := f.get(key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int32:
		return n, true
	case int64:
		if n >= -1<<31 && n <= 1<<31-1 {
			return int32(n), true
		}
	}
	return 0, false
}

// GetInt64 возвращает целое значение
func (f *Format) GetInt64(key string) (int64, bool) {
	v, ok := f.get(key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int64:
		return n, true
	case int32:
		return int64(n), true
	}
	return 0, false
}

// GetFloat64 возвращает значение с плавающей точкой
func (f *Format) GetFloat64(key string) (float64, bool) {
	v, ok := f.get(key)
	if !ok {
		return 0, false
	}
	n, ok := v.(float64)
	return n, ok
}

// GetString возвращает строковое значение
func (f *Format) GetString(key string) (string, bool) {
	v, ok := f.get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetBytes возвращает копию байтового значения
func (f *Format) GetBytes(key string) ([]byte, bool) {
	v, ok := f.get(key)
	if !ok {
		return nil, false
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, false
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp, true
}

// Has сообщает о наличии ключа
func (f *Format) Has(key string) bool {
	_, ok := f.get(key)
	return ok
}

// Keys возвращает отсортированный список ключей
func (f *Format) Keys() []string {
	if f == nil {
		return nil
	}
	f.mu.RLock()
	keys := make([]string, 0, len(f.values))
	for k := range f.values {
		keys = append(keys, k)
	}
	f.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Copy возвращает независимую копию. Копия nil формата - пустой формат.
func (f *Format) Copy() *Format {
	cp := NewFormat()
	if f == nil {
		return cp
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	for k, v := range f.values {
		if b, ok := v.([]byte); ok {
			nb := make([]byte, len(b))
			copy(nb, b)
			v = nb
		}
		cp.values[k] = v
	}
	return cp
}

// String возвращает описание формата в виде key=value через запятую
func (f *Format) String() string {
	keys := f.Keys()
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v, _ := f.get(k)
		if b, ok := v.([]byte); ok {
			parts = append(parts, fmt.Sprintf("%s=<%d bytes>", k, len(b)))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return strings.Join(parts, ", ")
}
