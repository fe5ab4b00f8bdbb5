package avmuxer

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/arzzra/avcodec/pkg/avcodec"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// wavFormatPCM код формата WAVE для линейного PCM
const wavFormatPCM = 1

// wavEngine пишет единственный PCM трек в RIFF/WAVE.
// Размеры чанков дописываются в Stop, поэтому нужен io.WriteSeeker.
type wavEngine struct {
	out     io.WriteSeeker
	enc     *wav.Encoder
	track   *TrackDescriptor
	trackID int
	meta    *wav.Metadata
	frames  int
	logger  *slog.Logger
}

func newWAVEngine(output io.Writer) (MuxerEngine, error) {
	ws, ok := output.(io.WriteSeeker)
	if !ok {
		return nil, avcodec.NewError(avcodec.CodeInvalidValue, "", "WAV требует вывод с поддержкой Seek")
	}
	return &wavEngine{
		out:     ws,
		trackID: -1,
		logger:  slog.Default().With(slog.String("component", "avmuxer.wav")),
	}, nil
}

func (e *wavEngine) Configure(format *avcodec.Format) error {
	creation, hasCreation := format.GetString(avcodec.KeyCreationTime)
	comment, hasComment := format.GetString(avcodec.KeyComment)
	if !hasCreation && !hasComment {
		return nil
	}
	if e.meta == nil {
		e.meta = &wav.Metadata{}
	}
	if hasCreation {
		e.meta.CreationDate = creation
	}
	if hasComment {
		e.meta.Comments = comment
	}
	return nil
}

func (e *wavEngine) AddTrack(id int, desc *TrackDescriptor) error {
	if e.track != nil {
		return avcodec.NewError(avcodec.CodeInvalidValue, "", "WAV содержит только один трек")
	}
	if desc.Kind != MediaAudio || !strings.EqualFold(desc.Mime, avcodec.MimeAudioRaw) {
		return avcodec.NewError(avcodec.CodeUnsupportedFormat, "",
			fmt.Sprintf("WAV поддерживает только %s, получен %s", avcodec.MimeAudioRaw, desc.Mime))
	}

	track := *desc
	switch track.BitsPerSample {
	case 0:
		track.BitsPerSample = 16
	case 8, 16:
	default:
		return avcodec.NewError(avcodec.CodeUnsupportedFormat, "",
			fmt.Sprintf("WAV: %d бит на отсчет не поддерживается", desc.BitsPerSample))
	}
	e.track = &track
	e.trackID = id
	return nil
}

// SetRotation для аудио контейнера не имеет смысла и игнорируется
func (e *wavEngine) SetRotation(int) error { return nil }

func (e *wavEngine) audioFormat() *audio.Format {
	return &audio.Format{
		NumChannels: int(e.track.ChannelCount),
		SampleRate:  int(e.track.SampleRate),
	}
}

// Start пишет заголовок RIFF и начало чанка data
func (e *wavEngine) Start() error {
	e.enc = wav.NewEncoder(e.out,
		int(e.track.SampleRate),
		int(e.track.BitsPerSample),
		int(e.track.ChannelCount),
		wavFormatPCM)
	e.enc.Metadata = e.meta

	empty := &audio.IntBuffer{
		Format:         e.audioFormat(),
		Data:           []int{},
		SourceBitDepth: int(e.track.BitsPerSample),
	}
	return e.enc.Write(empty)
}

// WriteSample пишет отсчеты: s16le для 16 бит, беззнаковые байты для 8 бит.
// Данные должны содержать целое число кадров.
func (e *wavEngine) WriteSample(track int, data []byte, _ avcodec.BufferAttr) error {
	if track != e.trackID {
		return avcodec.NewError(avcodec.CodeInvalidValue, "", fmt.Sprintf("нет трека %d", track))
	}
	if e.enc == nil {
		return avcodec.NewError(avcodec.CodeInvalidOperation, "", "заголовок WAV еще не записан")
	}

	bytesPerSample := int(e.track.BitsPerSample) / 8
	frameSize := bytesPerSample * int(e.track.ChannelCount)
	if len(data)%frameSize != 0 {
		return avcodec.NewError(avcodec.CodeInvalidValue, "",
			fmt.Sprintf("размер %d не кратен размеру кадра %d", len(data), frameSize))
	}
	if len(data) == 0 {
		return nil
	}

	samples := make([]int, len(data)/bytesPerSample)
	for i := range samples {
		if bytesPerSample == 1 {
			samples[i] = int(data[i])
		} else {
			samples[i] = int(int16(binary.LittleEndian.Uint16(data[2*i:])))
		}
	}
	buf := &audio.IntBuffer{
		Format:         e.audioFormat(),
		Data:           samples,
		SourceBitDepth: int(e.track.BitsPerSample),
	}
	if err := e.enc.Write(buf); err != nil {
		return err
	}
	e.frames += len(samples) / int(e.track.ChannelCount)
	return nil
}

// Stop дописывает метаданные и размеры чанков
func (e *wavEngine) Stop() error {
	if e.enc == nil {
		return nil
	}
	if err := e.enc.Close(); err != nil {
		return err
	}
	e.logger.Debug("WAV завершен", slog.Int("frames", e.frames))
	e.enc = nil
	return nil
}

func (e *wavEngine) Release() error {
	e.enc = nil
	e.track = nil
	return nil
}
