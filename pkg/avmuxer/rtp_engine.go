package avmuxer

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/arzzra/avcodec/pkg/avcodec"
	"github.com/google/uuid"
	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"github.com/pion/sdp/v3"
)

const (
	// DefaultMTU размер RTP пакета вместе с заголовком
	DefaultMTU = 1200
	// rtpHeaderSize размер фиксированного заголовка RTP без CSRC и расширений
	rtpHeaderSize = 12
	// maxFrameSize предел длины кадра RFC 4571
	maxFrameSize = math.MaxUint16
)

// chunkPayloader режет полезные данные на куски по MTU без
// кодек-специфичной упаковки (L16, AAC, FLAC)
type chunkPayloader struct{}

func (chunkPayloader) Payload(mtu uint16, payload []byte) [][]byte {
	var out [][]byte
	for len(payload) > int(mtu) {
		out = append(out, append([]byte(nil), payload[:mtu]...))
		payload = payload[mtu:]
	}
	if len(payload) > 0 {
		out = append(out, append([]byte(nil), payload...))
	}
	return out
}

// payloaderFor выбирает упаковщик pion по имени кодирования
func payloaderFor(encoding string) rtp.Payloader {
	switch encoding {
	case "PCMU", "PCMA":
		return &codecs.G711Payloader{}
	case "opus":
		return &codecs.OpusPayloader{}
	case "H264":
		return &codecs.H264Payloader{}
	case "H265":
		return &codecs.H265Payloader{}
	case "VP8":
		return &codecs.VP8Payloader{}
	case "VP9":
		return &codecs.VP9Payloader{}
	default:
		return chunkPayloader{}
	}
}

// rtpTrack - состояние одного RTP потока
type rtpTrack struct {
	desc        *TrackDescriptor
	media       *sdp.MediaDescription
	payloadType uint8
	clockRate   uint32
	ssrc        uint32
	payloader   rtp.Payloader
	sequencer   rtp.Sequencer
	packets     int
}

// rtpEngine пишет SDP описание и RTP пакеты в поток с кадрированием RFC 4571:
// каждый кадр предваряется длиной в 2 байта big-endian.
type rtpEngine struct {
	out      io.Writer
	mtu      uint16
	tracks   map[int]*rtpTrack
	order    []int
	rotation int
	created  time.Time
	comment  string
	started  bool
	logger   *slog.Logger
}

func newRTPEngine(output io.Writer) (MuxerEngine, error) {
	return &rtpEngine{
		out:     output,
		mtu:     DefaultMTU,
		tracks:  make(map[int]*rtpTrack),
		created: time.Now(),
		logger:  slog.Default().With(slog.String("component", "avmuxer.rtp")),
	}, nil
}

// newSSRC берет первые 4 байта случайного UUID
func newSSRC() uint32 {
	id := uuid.New()
	return binary.BigEndian.Uint32(id[:4])
}

func (e *rtpEngine) Configure(format *avcodec.Format) error {
	if v, ok := format.GetString(avcodec.KeyCreationTime); ok {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return avcodec.NewError(avcodec.CodeInvalidValue, "",
				fmt.Sprintf("creation_time %q: ожидается RFC 3339", v))
		}
		e.created = t
	}
	if v, ok := format.GetString(avcodec.KeyComment); ok {
		e.comment = v
	}
	return nil
}

func (e *rtpEngine) AddTrack(id int, desc *TrackDescriptor) error {
	media, err := describeTrack(id, desc)
	if err != nil {
		return err
	}
	pt, encoding, clock, err := desc.rtpParams(id)
	if err != nil {
		return err
	}
	e.tracks[id] = &rtpTrack{
		desc:        desc,
		media:       media,
		payloadType: pt,
		clockRate:   clock,
		ssrc:        newSSRC(),
		payloader:   payloaderFor(encoding),
		sequencer:   rtp.NewRandomSequencer(),
	}
	e.order = append(e.order, id)
	return nil
}

func (e *rtpEngine) SetRotation(degrees int) error {
	e.rotation = degrees
	return nil
}

// sessionDescription собирает SDP с одной m= секцией на трек
func (e *rtpEngine) sessionDescription() *sdp.SessionDescription {
	sd := &sdp.SessionDescription{
		Version: 0,
		Origin: sdp.Origin{
			Username:       "-",
			SessionID:      uint64(e.created.Unix()),
			SessionVersion: uint64(e.created.Unix()),
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: "127.0.0.1",
		},
		SessionName: sdp.SessionName("avmuxer"),
		TimeDescriptions: []sdp.TimeDescription{
			{Timing: sdp.Timing{StartTime: 0, StopTime: 0}},
		},
	}
	if e.comment != "" {
		info := sdp.Information(e.comment)
		sd.SessionInformation = &info
	}

	for _, id := range e.order {
		t := e.tracks[id]
		md := *t.media
		md.Attributes = append(append([]sdp.Attribute(nil), t.media.Attributes...),
			sdp.NewAttribute("ssrc", strconv.FormatUint(uint64(t.ssrc), 10)+" cname:avmuxer"))
		if t.desc.Kind == MediaVideo && e.rotation != 0 {
			md.Attributes = append(md.Attributes, sdp.NewAttribute("rotation", strconv.Itoa(e.rotation)))
		}
		sd.MediaDescriptions = append(sd.MediaDescriptions, &md)
	}
	return sd
}

// writeFrame пишет кадр RFC 4571
func (e *rtpEngine) writeFrame(data []byte) error {
	if len(data) > maxFrameSize {
		return avcodec.NewError(avcodec.CodeInvalidValue, "", fmt.Sprintf("кадр %d байт превышает %d", len(data), maxFrameSize))
	}
	var hdr [2]byte
	binary.BigEndian.PutUint16(hdr[:], uint16(len(data)))
	if _, err := e.out.Write(hdr[:]); err != nil {
		return err
	}
	_, err := e.out.Write(data)
	return err
}

// Start пишет SDP описание первым кадром
func (e *rtpEngine) Start() error {
	raw, err := e.sessionDescription().Marshal()
	if err != nil {
		return err
	}
	if err := e.writeFrame(raw); err != nil {
		return err
	}
	e.started = true
	e.logger.Debug("SDP описание записано",
		slog.Int("tracks", len(e.order)),
		slog.Int("size", len(raw)))
	return nil
}

// rtpTimestamp переводит PTS в микросекундах в единицы RTP часов
func rtpTimestamp(pts int64, clockRate uint32) uint32 {
	if pts < 0 {
		pts = 0
	}
	return uint32(pts * int64(clockRate) / int64(time.Second/time.Microsecond))
}

// WriteSample упаковывает сэмпл в один или несколько RTP пакетов.
// Маркер ставится на последний пакет видео кадра и на пакет с EOS.
// Пустой сэмпл с EOS дает один пакет без полезных данных.
func (e *rtpEngine) WriteSample(track int, data []byte, attr avcodec.BufferAttr) error {
	if !e.started {
		return avcodec.NewError(avcodec.CodeInvalidOperation, "", "SDP описание еще не записано")
	}
	t, ok := e.tracks[track]
	if !ok {
		return avcodec.NewError(avcodec.CodeInvalidValue, "", fmt.Sprintf("нет трека %d", track))
	}

	payloads := t.payloader.Payload(e.mtu-rtpHeaderSize, data)
	if len(payloads) == 0 {
		if !attr.IsEOS() {
			return nil
		}
		payloads = [][]byte{{}}
	}

	ts := rtpTimestamp(attr.PTS, t.clockRate)
	for i, payload := range payloads {
		last := i == len(payloads)-1
		pkt := rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         last && (t.desc.Kind == MediaVideo || attr.IsEOS()),
				PayloadType:    t.payloadType,
				SequenceNumber: t.sequencer.NextSequenceNumber(),
				Timestamp:      ts,
				SSRC:           t.ssrc,
			},
			Payload: payload,
		}
		raw, err := pkt.Marshal()
		if err != nil {
			return err
		}
		if err := e.writeFrame(raw); err != nil {
			return err
		}
		t.packets++
	}
	return nil
}

func (e *rtpEngine) Stop() error {
	for _, id := range e.order {
		e.logger.Debug("поток завершен",
			slog.Int("track", id),
			slog.Int("packets", e.tracks[id].packets))
	}
	e.started = false
	return nil
}

func (e *rtpEngine) Release() error {
	e.tracks = nil
	e.order = nil
	return nil
}
