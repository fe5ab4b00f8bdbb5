package avmuxer

import (
	"fmt"
	"strings"

	"github.com/arzzra/avcodec/pkg/avcodec"
)

// MediaKind вид трека
type MediaKind int

const (
	MediaAudio MediaKind = iota
	MediaVideo
	MediaCoverImage
)

func (k MediaKind) String() string {
	switch k {
	case MediaAudio:
		return "audio"
	case MediaVideo:
		return "video"
	case MediaCoverImage:
		return "image"
	default:
		return "unknown"
	}
}

// Поддерживаемые mime типы по видам треков
var trackMimes = map[MediaKind][]string{
	MediaAudio: {
		avcodec.MimeAudioRaw, avcodec.MimeAudioPCMU, avcodec.MimeAudioPCMA,
		avcodec.MimeAudioOpus, avcodec.MimeAudioAAC, avcodec.MimeAudioFLAC,
	},
	MediaVideo: {
		avcodec.MimeVideoAVC, avcodec.MimeVideoHEVC, avcodec.MimeVideoVP8, avcodec.MimeVideoVP9,
	},
	MediaCoverImage: {
		avcodec.MimeImageJPG, avcodec.MimeImagePNG, avcodec.MimeImageBMP,
	},
}

// TrackDescriptor описывает трек мультиплексора
type TrackDescriptor struct {
	Kind MediaKind
	Mime string

	// Аудио
	ChannelCount  int32
	SampleRate    int32
	BitsPerSample int32

	// Видео и обложка
	Width       int32
	Height      int32
	PixelFormat avcodec.PixelFormat
	FrameRate   float64

	// CodecConfig - данные инициализации декодера (SPS/PPS, AudioSpecificConfig)
	CodecConfig []byte
}

// invalidTrack формирует ошибку недопустимого параметра трека
func invalidTrack(field string, value interface{}, reason string) error {
	return &avcodec.CodecError{
		Code:    avcodec.CodeInvalidValue,
		Message: fmt.Sprintf("трек: %s %s", field, reason),
		Context: map[string]interface{}{
			"field": field,
			"value": value,
		},
	}
}

// Validate проверяет описание трека
func (d *TrackDescriptor) Validate() error {
	if d == nil {
		return invalidTrack("descriptor", nil, "отсутствует")
	}
	if d.Mime == "" {
		return invalidTrack("mime", d.Mime, "не задан")
	}
	known := false
	for _, m := range trackMimes[d.Kind] {
		if strings.EqualFold(m, d.Mime) {
			known = true
			break
		}
	}
	if !known {
		return &avcodec.CodecError{
			Code:    avcodec.CodeUnsupportedFormat,
			Message: fmt.Sprintf("mime %s не поддерживается для трека %s", d.Mime, d.Kind),
			Context: map[string]interface{}{
				"mime": d.Mime,
				"kind": d.Kind.String(),
			},
		}
	}

	switch d.Kind {
	case MediaAudio:
		if d.ChannelCount <= 0 {
			return invalidTrack("channel_count", d.ChannelCount, "должно быть положительным")
		}
		if d.SampleRate <= 0 {
			return invalidTrack("sample_rate", d.SampleRate, "должна быть положительной")
		}
		if d.BitsPerSample < 0 {
			return invalidTrack("bits_per_sample", d.BitsPerSample, "не может быть отрицательным")
		}
	case MediaVideo, MediaCoverImage:
		if d.Width <= 0 || d.Height <= 0 {
			return invalidTrack("size", fmt.Sprintf("%dx%d", d.Width, d.Height), "должен быть положительным")
		}
		if d.PixelFormat != avcodec.PixelFormatUnknown && !d.PixelFormat.Valid() {
			return invalidTrack("pixel_format", int32(d.PixelFormat), "неизвестен")
		}
		if d.FrameRate < 0 {
			return invalidTrack("frame_rate", d.FrameRate, "не может быть отрицательной")
		}
	}
	return nil
}

// kindFromMime определяет вид трека по mime типу
func kindFromMime(mime string) (MediaKind, bool) {
	switch {
	case strings.HasPrefix(mime, "audio/"):
		return MediaAudio, true
	case strings.HasPrefix(mime, "video/"):
		return MediaVideo, true
	case strings.HasPrefix(mime, "image/"):
		return MediaCoverImage, true
	}
	return 0, false
}

// DescriptorFromFormat строит описание трека по набору параметров.
// Обычно это выходной формат кодировщика.
func DescriptorFromFormat(f *avcodec.Format) (*TrackDescriptor, error) {
	if f == nil {
		return nil, invalidTrack("format", nil, "отсутствует")
	}
	mime, ok := f.GetString(avcodec.KeyMime)
	if !ok {
		return nil, invalidTrack(avcodec.KeyMime, nil, "не задан")
	}
	kind, ok := kindFromMime(mime)
	if !ok {
		return nil, &avcodec.CodecError{
			Code:    avcodec.CodeUnsupportedFormat,
			Message: fmt.Sprintf("неизвестный вид трека для %s", mime),
		}
	}

	d := &TrackDescriptor{Kind: kind, Mime: mime}
	d.ChannelCount, _ = f.GetInt32(avcodec.KeyChannelCount)
	d.SampleRate, _ = f.GetInt32(avcodec.KeySampleRate)
	d.BitsPerSample, _ = f.GetInt32(avcodec.KeyBitsPerSample)
	d.Width, _ = f.GetInt32(avcodec.KeyWidth)
	d.Height, _ = f.GetInt32(avcodec.KeyHeight)
	if pf, ok := f.GetInt32(avcodec.KeyPixelFormat); ok {
		d.PixelFormat = avcodec.PixelFormat(pf)
	}
	d.FrameRate, _ = f.GetFloat64(avcodec.KeyFrameRate)
	d.CodecConfig, _ = f.GetBytes(avcodec.KeyCodecConfig)
	return d, nil
}

// Параметры RTP по mime: имя кодирования и статический payload type (0 - динамический)
var rtpEncodings = map[string]struct {
	name        string
	payloadType uint8
}{
	avcodec.MimeAudioPCMU: {"PCMU", 0},
	avcodec.MimeAudioPCMA: {"PCMA", 8},
	avcodec.MimeAudioRaw:  {"L16", 0},
	avcodec.MimeAudioOpus: {"opus", 0},
	avcodec.MimeAudioAAC:  {"MP4A-LATM", 0},
	avcodec.MimeAudioFLAC: {"flac", 0},
	avcodec.MimeVideoAVC:  {"H264", 0},
	avcodec.MimeVideoHEVC: {"H265", 0},
	avcodec.MimeVideoVP8:  {"VP8", 0},
	avcodec.MimeVideoVP9:  {"VP9", 0},
}

// Диапазон динамических payload type (RFC 3551), поле PT в RTP семибитное
const (
	dynamicPayloadBase = 96
	dynamicPayloadLast = 127
)

// rtpParams возвращает payload type, имя кодирования и частоту RTP часов для трека.
// Динамический тип равен 96 + номер трека, поэтому треки после 31-го
// динамического типа не получают и дают CodeNoMemory.
func (d *TrackDescriptor) rtpParams(track int) (payloadType uint8, encoding string, clockRate uint32, err error) {
	enc, ok := rtpEncodings[strings.ToLower(d.Mime)]
	if !ok {
		enc.name = strings.ToUpper(strings.TrimPrefix(d.Mime, d.Kind.String()+"/"))
	}

	// PCMU/PCMA имеют статический тип только при 8 кГц моно
	payloadType = enc.payloadType
	static := payloadType != 0 || enc.name == "PCMU"
	if !static || d.SampleRate != 8000 || d.ChannelCount != 1 {
		if track < 0 || dynamicPayloadBase+track > dynamicPayloadLast {
			return 0, "", 0, &avcodec.CodecError{
				Code:    avcodec.CodeNoMemory,
				Message: fmt.Sprintf("трек %d: динамические payload type %d..%d исчерпаны", track, dynamicPayloadBase, dynamicPayloadLast),
				Context: map[string]interface{}{"track": track},
			}
		}
		payloadType = uint8(dynamicPayloadBase + track)
	}

	switch d.Kind {
	case MediaAudio:
		clockRate = uint32(d.SampleRate)
		if enc.name == "opus" {
			clockRate = 48000
		}
	default:
		clockRate = 90000
	}
	return payloadType, enc.name, clockRate, nil
}
