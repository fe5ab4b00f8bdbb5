// Package capi - плоский API в форме C: непрозрачные handle'ы, коды
// ошибок вместо error и обработчики с userData.
package capi

import (
	"log/slog"
	"sync"

	"github.com/arzzra/avcodec/pkg/avcodec"
	"github.com/arzzra/avcodec/pkg/avmuxer"
)

// HandleKind - метка вида handle'а
type HandleKind uint32

const (
	kindInvalid HandleKind = iota
	HandleCodec
	HandleMuxer
)

func (k HandleKind) String() string {
	switch k {
	case HandleCodec:
		return "codec"
	case HandleMuxer:
		return "muxer"
	default:
		return "invalid"
	}
}

// Handle - непрозрачный handle. Реализации только в этом пакете.
type Handle interface {
	Kind() HandleKind
	sealed()
}

// CodecHandle - handle сессии кодека
type CodecHandle struct {
	mu      sync.Mutex
	kind    HandleKind
	session *avcodec.Session
}

func (h *CodecHandle) Kind() HandleKind {
	if h == nil {
		return kindInvalid
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.kind
}

func (*CodecHandle) sealed() {}

// MuxerHandle - handle мультиплексора
type MuxerHandle struct {
	mu    sync.Mutex
	kind  HandleKind
	muxer *avmuxer.Muxer
}

func (h *MuxerHandle) Kind() HandleKind {
	if h == nil {
		return kindInvalid
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.kind
}

func (*MuxerHandle) sealed() {}

func logger() *slog.Logger {
	return slog.Default().With(slog.String("component", "capi"))
}

// codecSession возвращает сессию живого handle'а кодека
func codecSession(h *CodecHandle, op string) (*avcodec.Session, ErrorCode) {
	if h == nil {
		logger().Warn("пустой handle", slog.String("operation", op))
		return nil, ErrInvalidVal
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.kind != HandleCodec || h.session == nil {
		logger().Warn("недействительный handle кодека",
			slog.String("operation", op),
			slog.String("kind", h.kind.String()))
		return nil, ErrInvalidVal
	}
	return h.session, ErrOK
}

// invalidate снимает метку, после этого handle недействителен
func (h *CodecHandle) invalidate() *avcodec.Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.session
	h.kind = kindInvalid
	h.session = nil
	return s
}

func muxerOf(h *MuxerHandle, op string) (*avmuxer.Muxer, ErrorCode) {
	if h == nil {
		logger().Warn("пустой handle", slog.String("operation", op))
		return nil, ErrInvalidVal
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.kind != HandleMuxer || h.muxer == nil {
		logger().Warn("недействительный handle мультиплексора",
			slog.String("operation", op),
			slog.String("kind", h.kind.String()))
		return nil, ErrInvalidVal
	}
	return h.muxer, ErrOK
}

func (h *MuxerHandle) invalidate() *avmuxer.Muxer {
	h.mu.Lock()
	defer h.mu.Unlock()
	m := h.muxer
	h.kind = kindInvalid
	h.muxer = nil
	return m
}

// result логирует ошибку и возвращает ее код
func result(op string, err error) ErrorCode {
	code := FromError(err)
	if code != ErrOK {
		logger().Debug("операция завершилась ошибкой",
			slog.String("operation", op),
			slog.String("code", code.String()),
			slog.String("error", err.Error()))
	}
	return code
}
