package avcodec

import (
	stderrors "errors"
	"fmt"

	"github.com/pkg/errors"
)

// ErrorCode определяет типизированные коды ошибок слоя управления сессиями.
// Таксономия общая для кодеков и мультиплексоров.
type ErrorCode int

const (
	CodeOK ErrorCode = iota
	// CodeInvalidValue - nil сессия, неверный тип handle, параметр вне диапазона
	CodeInvalidValue
	// CodeInvalidOperation - операция недопустима в текущем состоянии сессии
	CodeInvalidOperation
	// CodeNoMemory - не удалось выделить буфер или ресурс движка
	CodeNoMemory
	// CodeUnsupportedFileType - неизвестный формат контейнера
	CodeUnsupportedFileType
	// CodeUnsupportedFormat - неизвестный mime или комбинация параметров кодека
	CodeUnsupportedFormat
	// CodeNotFound - нет движка с таким именем или mime типом
	CodeNotFound
	// CodeUnknown - ошибка движка без более точной классификации
	CodeUnknown
)

// String возвращает строковое представление кода ошибки
func (code ErrorCode) String() string {
	switch code {
	case CodeOK:
		return "OK"
	case CodeInvalidValue:
		return "InvalidValue"
	case CodeInvalidOperation:
		return "InvalidOperation"
	case CodeNoMemory:
		return "NoMemory"
	case CodeUnsupportedFileType:
		return "UnsupportedFileType"
	case CodeUnsupportedFormat:
		return "UnsupportedFormat"
	case CodeNotFound:
		return "NotFound"
	case CodeUnknown:
		return "Unknown"
	default:
		return fmt.Sprintf("ErrorCode(%d)", int(code))
	}
}

// CodecError базовая структура ошибок слоя сессий.
// Содержит:
//   - Типизированный код ошибки
//   - Контекст (операция, состояние сессии, параметры)
//   - Обернутую ошибку движка, если она есть
//   - Идентификатор сессии для сопоставления с логами
type CodecError struct {
	Code      ErrorCode
	Message   string
	SessionID string
	Context   map[string]interface{}
	Wrapped   error
}

// Error реализует интерфейс error
func (e *CodecError) Error() string {
	msg := e.Message
	if e.Wrapped != nil {
		msg = msg + ": " + e.Wrapped.Error()
	}
	if e.SessionID != "" {
		return fmt.Sprintf("[%s] сессия %s: %s", e.Code, e.SessionID, msg)
	}
	return fmt.Sprintf("[%s] %s", e.Code, msg)
}

// Unwrap возвращает обернутую ошибку, поддерживая errors.Unwrap.
func (e *CodecError) Unwrap() error {
	return e.Wrapped
}

// Is сравнивает ошибки по коду, поэтому errors.Is(err, ErrInvalidOperation) работает
// для любой CodecError с кодом CodeInvalidOperation.
func (e *CodecError) Is(target error) bool {
	if t, ok := target.(*CodecError); ok {
		return e.Code == t.Code
	}
	return false
}

// GetContext возвращает значение из контекста ошибки по ключу.
func (e *CodecError) GetContext(key string) interface{} {
	if e.Context == nil {
		return nil
	}
	return e.Context[key]
}

// Сентинелы для errors.Is
var (
	ErrInvalidValue        = &CodecError{Code: CodeInvalidValue, Message: "недопустимое значение"}
	ErrInvalidOperation    = &CodecError{Code: CodeInvalidOperation, Message: "операция недопустима в текущем состоянии"}
	ErrNoMemory            = &CodecError{Code: CodeNoMemory, Message: "недостаточно памяти"}
	ErrUnsupportedFileType = &CodecError{Code: CodeUnsupportedFileType, Message: "неподдерживаемый тип файла"}
	ErrUnsupportedFormat   = &CodecError{Code: CodeUnsupportedFormat, Message: "неподдерживаемый формат"}
	ErrNotFound            = &CodecError{Code: CodeNotFound, Message: "не найдено"}
	ErrUnknown             = &CodecError{Code: CodeUnknown, Message: "неизвестная ошибка"}
)

// NewError создает CodecError с кодом и сообщением
func NewError(code ErrorCode, sessionID, message string) *CodecError {
	return &CodecError{
		Code:      code,
		Message:   message,
		SessionID: sessionID,
	}
}

// invalidOperation формирует ошибку нарушения грамматики вызовов
func invalidOperation(sessionID, op string, state SessionState) *CodecError {
	return &CodecError{
		Code:      CodeInvalidOperation,
		Message:   fmt.Sprintf("%s недопустима в состоянии %s", op, state),
		SessionID: sessionID,
		Context: map[string]interface{}{
			"operation":     op,
			"current_state": state.String(),
		},
	}
}

// NewInvalidOperation - ошибка нарушения грамматики вызовов для сессий
// других пакетов (мультиплексор)
func NewInvalidOperation(sessionID, op string, state SessionState) *CodecError {
	return invalidOperation(sessionID, op, state)
}

// WrapEngineError оборачивает ошибку движка. Если ошибка уже несет код
// таксономии, код сохраняется, иначе ошибка классифицируется как CodeUnknown.
func WrapEngineError(sessionID, op string, err error) *CodecError {
	if err == nil {
		return nil
	}
	code := CodeUnknown
	var codecErr *CodecError
	if stderrors.As(err, &codecErr) {
		code = codecErr.Code
	}
	return &CodecError{
		Code:      code,
		Message:   "ошибка движка",
		SessionID: sessionID,
		Context: map[string]interface{}{
			"operation": op,
		},
		Wrapped: errors.Wrap(err, op),
	}
}

// CodeOf возвращает код ошибки из цепочки. nil дает CodeOK,
// ошибка без кода дает CodeUnknown.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return CodeOK
	}
	var codecErr *CodecError
	if stderrors.As(err, &codecErr) {
		return codecErr.Code
	}
	return CodeUnknown
}

// HasErrorCode проверяет, содержит ли цепочка ошибок указанный код
func HasErrorCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}
