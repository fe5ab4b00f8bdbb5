package capi

import (
	"log/slog"

	"github.com/arzzra/avcodec/pkg/avcodec"
)

// Callbacks - обработчики событий кодека. userData передается без изменений.
// Любой обработчик может быть nil.
type Callbacks struct {
	OnError         func(h *CodecHandle, code ErrorCode, userData interface{})
	OnStreamChanged func(h *CodecHandle, format *avcodec.Format, userData interface{})
	OnNeedInputData func(h *CodecHandle, index uint32, buf *avcodec.Buffer, userData interface{})
	OnNewOutputData func(h *CodecHandle, index uint32, buf *avcodec.Buffer, attr avcodec.BufferAttr, userData interface{})
}

// callbackAdapter переводит события сессии в вызовы Callbacks
type callbackAdapter struct {
	h        *CodecHandle
	cb       Callbacks
	userData interface{}
}

var _ avcodec.Callback = (*callbackAdapter)(nil)

func (a *callbackAdapter) OnError(err error) {
	if a.cb.OnError != nil {
		a.cb.OnError(a.h, FromError(err), a.userData)
	}
}

func (a *callbackAdapter) OnFormatChanged(format *avcodec.Format) {
	if a.cb.OnStreamChanged != nil {
		a.cb.OnStreamChanged(a.h, format, a.userData)
	}
}

func (a *callbackAdapter) OnInputAvailable(buf *avcodec.Buffer) {
	if a.cb.OnNeedInputData != nil {
		a.cb.OnNeedInputData(a.h, buf.Index(), buf, a.userData)
	}
}

func (a *callbackAdapter) OnOutputAvailable(buf *avcodec.Buffer) {
	if a.cb.OnNewOutputData != nil {
		a.cb.OnNewOutputData(a.h, buf.Index(), buf, buf.Attr(), a.userData)
	}
}

func newCodecHandle(s *avcodec.Session) *CodecHandle {
	return &CodecHandle{kind: HandleCodec, session: s}
}

// CodecCreateByMime создает кодек по mime типу. nil, если движка нет.
func CodecCreateByMime(mime string, isEncoder bool, opts ...avcodec.Option) *CodecHandle {
	s, err := avcodec.Create(mime, isEncoder, opts...)
	if err != nil {
		result("create_by_mime", err)
		return nil
	}
	return newCodecHandle(s)
}

// CodecCreateByName создает кодек по точному имени движка в DefaultRegistry
func CodecCreateByName(name string, opts ...avcodec.Option) *CodecHandle {
	info, err := avcodec.DefaultRegistry.Lookup(name, false)
	if err == nil && info.Name != name {
		err = avcodec.NewError(avcodec.CodeNotFound, "", "движок "+name+" не зарегистрирован")
	}
	if err != nil {
		result("create_by_name", err)
		return nil
	}
	s, err := avcodec.Create(name, info.Kind.IsEncoder(), opts...)
	if err != nil {
		result("create_by_name", err)
		return nil
	}
	return newCodecHandle(s)
}

func CodecConfigure(h *CodecHandle, format *avcodec.Format) ErrorCode {
	s, code := codecSession(h, "configure")
	if code != ErrOK {
		return code
	}
	return result("configure", s.Configure(format))
}

// CodecSetCallback регистрирует обработчики, допустимо до Start
func CodecSetCallback(h *CodecHandle, cb Callbacks, userData interface{}) ErrorCode {
	s, code := codecSession(h, "set_callback")
	if code != ErrOK {
		return code
	}
	return result("set_callback", s.SetCallback(&callbackAdapter{h: h, cb: cb, userData: userData}))
}

func CodecStart(h *CodecHandle) ErrorCode {
	s, code := codecSession(h, "start")
	if code != ErrOK {
		return code
	}
	return result("start", s.Start())
}

func CodecStop(h *CodecHandle) ErrorCode {
	s, code := codecSession(h, "stop")
	if code != ErrOK {
		return code
	}
	return result("stop", s.Stop())
}

func CodecFlush(h *CodecHandle) ErrorCode {
	s, code := codecSession(h, "flush")
	if code != ErrOK {
		return code
	}
	return result("flush", s.Flush())
}

func CodecReset(h *CodecHandle) ErrorCode {
	s, code := codecSession(h, "reset")
	if code != ErrOK {
		return code
	}
	return result("reset", s.Reset())
}

// CodecDestroy уничтожает кодек и делает handle недействительным.
// Повторный вызов возвращает ErrInvalidVal.
func CodecDestroy(h *CodecHandle) ErrorCode {
	if _, code := codecSession(h, "destroy"); code != ErrOK {
		return code
	}
	s := h.invalidate()
	if s == nil {
		return ErrInvalidVal
	}
	return result("destroy", s.Destroy())
}

func CodecPushInputBuffer(h *CodecHandle, index uint32, attr avcodec.BufferAttr) ErrorCode {
	s, code := codecSession(h, "push_input")
	if code != ErrOK {
		return code
	}
	return result("push_input", s.PushInput(index, attr))
}

func CodecFreeOutputBuffer(h *CodecHandle, index uint32) ErrorCode {
	s, code := codecSession(h, "free_output")
	if code != ErrOK {
		return code
	}
	return result("free_output", s.ReleaseOutput(index))
}

// CodecRenderOutput выводит кадр видео декодера и освобождает буфер
func CodecRenderOutput(h *CodecHandle, index uint32) ErrorCode {
	s, code := codecSession(h, "render_output")
	if code != ErrOK {
		return code
	}
	return result("render_output", s.RenderOutput(index))
}

// CodecGetOutputDescription возвращает копию выходного формата или nil
func CodecGetOutputDescription(h *CodecHandle) *avcodec.Format {
	s, code := codecSession(h, "get_output_description")
	if code != ErrOK {
		return nil
	}
	f := s.OutputFormat()
	if f == nil {
		logger().Warn("выходной формат недоступен",
			slog.String("session_id", s.ID()),
			slog.String("state", s.State().String()))
	}
	return f
}
