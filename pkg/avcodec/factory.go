package avcodec

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Kind - вид сессии кодека
type Kind int

const (
	KindAudioEncoder Kind = iota
	KindAudioDecoder
	KindVideoEncoder
	KindVideoDecoder
)

func (k Kind) String() string {
	switch k {
	case KindAudioEncoder:
		return "audio_encoder"
	case KindAudioDecoder:
		return "audio_decoder"
	case KindVideoEncoder:
		return "video_encoder"
	case KindVideoDecoder:
		return "video_decoder"
	default:
		return "unknown"
	}
}

// IsEncoder сообщает, является ли сессия кодировщиком
func (k Kind) IsEncoder() bool { return k == KindAudioEncoder || k == KindVideoEncoder }

// IsAudio сообщает, работает ли сессия со звуком
func (k Kind) IsAudio() bool { return k == KindAudioEncoder || k == KindAudioDecoder }

// EngineFactory создает новый экземпляр движка
type EngineFactory func() (Engine, error)

// EngineInfo описывает зарегистрированную реализацию движка
type EngineInfo struct {
	// Name - короткое уникальное имя, например "g711mu.encoder"
	Name string
	Kind Kind
	// MimeTypes - mime типы, которые обрабатывает движок
	MimeTypes []string
	New       EngineFactory
}

// SupportsMime проверяет, обрабатывает ли движок mime тип
func (i EngineInfo) SupportsMime(mime string) bool {
	for _, m := range i.MimeTypes {
		if strings.EqualFold(m, mime) {
			return true
		}
	}
	return false
}

// EngineRegistry - таблица реализаций движков, по которой Create ищет
// движок по имени или mime типу.
type EngineRegistry struct {
	mu      sync.RWMutex
	engines map[string]EngineInfo
}

// NewEngineRegistry создает пустую таблицу
func NewEngineRegistry() *EngineRegistry {
	return &EngineRegistry{engines: make(map[string]EngineInfo)}
}

// DefaultRegistry - таблица, в которую движки регистрируются в init()
var DefaultRegistry = NewEngineRegistry()

// Register добавляет реализацию. Повторное имя - ошибка.
func (r *EngineRegistry) Register(info EngineInfo) error {
	if info.Name == "" || info.New == nil {
		return NewError(CodeInvalidValue, "", "имя и фабрика движка обязательны")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.engines[info.Name]; exists {
		return &CodecError{
			Code:    CodeInvalidOperation,
			Message: fmt.Sprintf("движок %s уже зарегистрирован", info.Name),
		}
	}
	r.engines[info.Name] = info
	return nil
}

// MustRegister - Register, паникующий при ошибке. Для init().
func (r *EngineRegistry) MustRegister(info EngineInfo) {
	if err := r.Register(info); err != nil {
		panic(err)
	}
}

// Unregister удаляет реализацию
func (r *EngineRegistry) Unregister(name string) {
	r.mu.Lock()
	delete(r.engines, name)
	r.mu.Unlock()
}

// Lookup ищет движок: сначала по имени, затем по mime типу среди
// кодировщиков или декодеров. При нескольких совпадениях по mime
// выбирается первое по имени, чтобы результат был детерминирован.
func (r *EngineRegistry) Lookup(identifier string, isEncoder bool) (EngineInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if info, ok := r.engines[identifier]; ok {
		return info, nil
	}

	var candidates []EngineInfo
	for _, info := range r.engines {
		if info.Kind.IsEncoder() == isEncoder && info.SupportsMime(identifier) {
			candidates = append(candidates, info)
		}
	}
	if len(candidates) == 0 {
		return EngineInfo{}, &CodecError{
			Code:    CodeNotFound,
			Message: fmt.Sprintf("движок для %q не найден", identifier),
			Context: map[string]interface{}{
				"identifier": identifier,
				"is_encoder": isEncoder,
			},
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Name < candidates[j].Name })
	return candidates[0], nil
}

// Engines возвращает список зарегистрированных реализаций, отсортированный по имени
func (r *EngineRegistry) Engines() []EngineInfo {
	r.mu.RLock()
	out := make([]EngineInfo, 0, len(r.engines))
	for _, info := range r.engines {
		out = append(out, info)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
