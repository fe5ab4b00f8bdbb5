package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/arzzra/avcodec/pkg/avcodec"
	"github.com/arzzra/avcodec/pkg/avmuxer"
	"github.com/go-audio/wav"
)

// frameSamples отсчетов на канал в одном входном буфере (20 мс при 8 кГц)
const frameSamples = 160

// sample - единица данных между этапами конвейера
type sample struct {
	data []byte
	attr avcodec.BufferAttr
}

// pcmInput - PCM s16le, прочитанный из WAV и нарезанный на кадры
type pcmInput struct {
	sampleRate int32
	channels   int32
	frames     []sample
}

// readWAV читает 16-битный WAV и режет его на кадры по frameSamples
func readWAV(r io.ReadSeeker) (*pcmInput, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("не WAV файл")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("чтение PCM: %w", err)
	}
	if dec.BitDepth != 16 {
		return nil, fmt.Errorf("поддерживается только 16 бит, получено %d", dec.BitDepth)
	}

	in := &pcmInput{
		sampleRate: int32(dec.SampleRate),
		channels:   int32(dec.NumChans),
	}
	step := frameSamples * int(in.channels)
	usPerFrame := int64(time.Second/time.Microsecond) * frameSamples / int64(in.sampleRate)
	for off, n := 0, 0; off < len(buf.Data); off, n = off+step, n+1 {
		end := off + step
		if end > len(buf.Data) {
			end = len(buf.Data)
		}
		data := make([]byte, 2*(end-off))
		for i, v := range buf.Data[off:end] {
			binary.LittleEndian.PutUint16(data[2*i:], uint16(int16(v)))
		}
		in.frames = append(in.frames, sample{
			data: data,
			attr: avcodec.BufferAttr{PTS: int64(n) * usPerFrame, Size: int32(len(data))},
		})
	}
	return in, nil
}

// transcode прогоняет кадры через сессию кодека. Последний кадр уходит с EOS,
// сессия останавливается после выходного буфера с EOS.
func transcode(logger *slog.Logger, identifier string, isEncoder bool, format *avcodec.Format,
	in []sample, opts ...avcodec.Option) ([]sample, error) {
	s, err := avcodec.Create(identifier, isEncoder, opts...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := s.Destroy(); err != nil {
			logger.Warn("ошибка уничтожения сессии", slog.String("error", err.Error()))
		}
	}()

	if err := s.Configure(format); err != nil {
		return nil, err
	}
	events := avcodec.NewEventChannel(64)
	defer events.Close()
	if err := s.SetCallback(events); err != nil {
		return nil, err
	}
	if err := s.Start(); err != nil {
		return nil, err
	}

	var (
		out  []sample
		next int
	)
	if len(in) == 0 {
		in = []sample{{}}
	}

	timeout := time.NewTimer(10 * time.Second)
	defer timeout.Stop()
	for {
		var ev avcodec.Event
		select {
		case ev = <-events.Events():
		case <-timeout.C:
			return nil, fmt.Errorf("%s: нет выходных данных", identifier)
		}

		switch ev.Type {
		case avcodec.EventError:
			return nil, ev.Err
		case avcodec.EventFormatChanged:
			logger.Debug("выходной формат", slog.String("format", ev.Format.String()))
		case avcodec.EventInputAvailable:
			if next >= len(in) {
				continue
			}
			frame := in[next]
			attr := frame.attr
			attr.Offset = 0
			attr.Size = int32(copy(ev.Buffer.Bytes(), frame.data))
			if next == len(in)-1 {
				attr.Flags |= avcodec.FlagEOS
			}
			if err := s.PushInput(ev.Buffer.Index(), attr); err != nil {
				return nil, err
			}
			next++
		case avcodec.EventOutputAvailable:
			out = append(out, sample{
				data: append([]byte(nil), ev.Buffer.Payload()...),
				attr: ev.Attr,
			})
			if err := s.ReleaseOutput(ev.Buffer.Index()); err != nil {
				return nil, err
			}
			if ev.Attr.IsEOS() {
				return out, s.Stop()
			}
		}
	}
}

// mux пишет сэмплы в контейнер одним треком
func mux(w io.Writer, format avmuxer.OutputFormat, track *avmuxer.TrackDescriptor, comment string,
	samples []sample, opts ...avmuxer.Option) error {
	m, err := avmuxer.Create(w, format, opts...)
	if err != nil {
		return err
	}
	defer m.Destroy()

	params := avcodec.NewFormat().
		SetString(avcodec.KeyCreationTime, time.Now().UTC().Format(time.RFC3339))
	if comment != "" {
		params.SetString(avcodec.KeyComment, comment)
	}
	if err := m.Configure(params); err != nil {
		return err
	}
	id, err := m.AddTrack(track)
	if err != nil {
		return err
	}
	if err := m.Start(); err != nil {
		return err
	}
	for _, smp := range samples {
		attr := smp.attr
		attr.Offset = 0
		attr.Size = int32(len(smp.data))
		if err := m.WriteSample(id, smp.data, attr); err != nil {
			return err
		}
	}
	return m.Stop()
}
