package capi

import (
	"fmt"

	"github.com/arzzra/avcodec/pkg/avcodec"
)

// ErrorCode - плоский код результата функций capi
type ErrorCode int32

const (
	ErrOK ErrorCode = iota
	ErrNoMemory
	ErrOperateNotPermit
	ErrInvalidVal
	ErrIO
	ErrTimeout
	ErrUnknown
	ErrServiceDied
	ErrInvalidState
	ErrUnsupport
	ErrUnsupportedFormat
)

func (c ErrorCode) String() string {
	switch c {
	case ErrOK:
		return "AV_ERR_OK"
	case ErrNoMemory:
		return "AV_ERR_NO_MEMORY"
	case ErrOperateNotPermit:
		return "AV_ERR_OPERATE_NOT_PERMIT"
	case ErrInvalidVal:
		return "AV_ERR_INVALID_VAL"
	case ErrIO:
		return "AV_ERR_IO"
	case ErrTimeout:
		return "AV_ERR_TIMEOUT"
	case ErrUnknown:
		return "AV_ERR_UNKNOWN"
	case ErrServiceDied:
		return "AV_ERR_SERVICE_DIED"
	case ErrInvalidState:
		return "AV_ERR_INVALID_STATE"
	case ErrUnsupport:
		return "AV_ERR_UNSUPPORT"
	case ErrUnsupportedFormat:
		return "AV_ERR_UNSUPPORTED_FORMAT"
	default:
		return fmt.Sprintf("ErrorCode(%d)", int32(c))
	}
}

// FromError переводит ошибку слоя сессий в ErrorCode
func FromError(err error) ErrorCode {
	switch avcodec.CodeOf(err) {
	case avcodec.CodeOK:
		return ErrOK
	case avcodec.CodeInvalidValue:
		return ErrInvalidVal
	case avcodec.CodeInvalidOperation:
		return ErrInvalidState
	case avcodec.CodeNoMemory:
		return ErrNoMemory
	case avcodec.CodeUnsupportedFileType:
		return ErrUnsupport
	case avcodec.CodeUnsupportedFormat:
		return ErrUnsupportedFormat
	case avcodec.CodeNotFound:
		return ErrUnsupport
	default:
		return ErrUnknown
	}
}
