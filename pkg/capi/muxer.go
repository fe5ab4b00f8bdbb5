package capi

import (
	"io"

	"github.com/arzzra/avcodec/pkg/avcodec"
	"github.com/arzzra/avcodec/pkg/avmuxer"
)

// MuxerCreate создает мультиплексор, пишущий в w. nil при ошибке.
func MuxerCreate(w io.Writer, format avmuxer.OutputFormat, opts ...avmuxer.Option) *MuxerHandle {
	m, err := avmuxer.Create(w, format, opts...)
	if err != nil {
		result("muxer_create", err)
		return nil
	}
	return &MuxerHandle{kind: HandleMuxer, muxer: m}
}

func MuxerSetRotation(h *MuxerHandle, degrees int32) ErrorCode {
	m, code := muxerOf(h, "set_rotation")
	if code != ErrOK {
		return code
	}
	return result("set_rotation", m.SetRotation(int(degrees)))
}

// MuxerAddTrack добавляет трек по описанию формата и возвращает его индекс.
// При ошибке индекс равен -1.
func MuxerAddTrack(h *MuxerHandle, format *avcodec.Format) (int32, ErrorCode) {
	m, code := muxerOf(h, "add_track")
	if code != ErrOK {
		return -1, code
	}
	desc, err := avmuxer.DescriptorFromFormat(format)
	if err != nil {
		return -1, result("add_track", err)
	}
	id, err := m.AddTrack(desc)
	if err != nil {
		return -1, result("add_track", err)
	}
	return int32(id), ErrOK
}

func MuxerStart(h *MuxerHandle) ErrorCode {
	m, code := muxerOf(h, "start")
	if code != ErrOK {
		return code
	}
	return result("start", m.Start())
}

func MuxerWriteSample(h *MuxerHandle, track uint32, sample []byte, attr avcodec.BufferAttr) ErrorCode {
	m, code := muxerOf(h, "write_sample")
	if code != ErrOK {
		return code
	}
	return result("write_sample", m.WriteSample(int(track), sample, attr))
}

func MuxerStop(h *MuxerHandle) ErrorCode {
	m, code := muxerOf(h, "stop")
	if code != ErrOK {
		return code
	}
	return result("stop", m.Stop())
}

// MuxerDestroy уничтожает мультиплексор, повторный вызов дает ErrInvalidVal
func MuxerDestroy(h *MuxerHandle) ErrorCode {
	if _, code := muxerOf(h, "destroy"); code != ErrOK {
		return code
	}
	m := h.invalidate()
	if m == nil {
		return ErrInvalidVal
	}
	return result("destroy", m.Destroy())
}
