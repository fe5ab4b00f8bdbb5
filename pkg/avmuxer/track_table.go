package avmuxer

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"sync"

	"github.com/arzzra/avcodec/pkg/avcodec"
	"github.com/pion/sdp/v3"
)

// TrackTable - упорядоченный список треков мультиплексора. Идентификатор
// трека равен его позиции, неудачное добавление идентификатор не расходует.
type TrackTable struct {
	mu     sync.RWMutex
	tracks []*TrackDescriptor
}

// NewTrackTable создает пустую таблицу
func NewTrackTable() *TrackTable {
	return &TrackTable{}
}

// Next возвращает идентификатор, который получит следующий трек
func (t *TrackTable) Next() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.tracks)
}

// Add добавляет копию описания и возвращает идентификатор трека
func (t *TrackTable) Add(desc *TrackDescriptor) int {
	cp := *desc
	cp.CodecConfig = append([]byte(nil), desc.CodecConfig...)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.tracks = append(t.tracks, &cp)
	return len(t.tracks) - 1
}

// Get возвращает описание трека
func (t *TrackTable) Get(id int) (*TrackDescriptor, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if id < 0 || id >= len(t.tracks) {
		return nil, false
	}
	return t.tracks[id], true
}

// Len возвращает количество треков
func (t *TrackTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.tracks)
}

// Reset очищает таблицу
func (t *TrackTable) Reset() {
	t.mu.Lock()
	t.tracks = nil
	t.mu.Unlock()
}

// Describe возвращает SDP описание медиа для трека
func (t *TrackTable) Describe(id int) (*sdp.MediaDescription, error) {
	desc, ok := t.Get(id)
	if !ok {
		return nil, avcodec.NewError(avcodec.CodeInvalidValue, "", fmt.Sprintf("нет трека %d", id))
	}
	return describeTrack(id, desc)
}

// describeTrack формирует m= секцию с rtpmap и параметрами трека
func describeTrack(id int, desc *TrackDescriptor) (*sdp.MediaDescription, error) {
	if desc.Kind == MediaCoverImage {
		return nil, &avcodec.CodecError{
			Code:    avcodec.CodeUnsupportedFormat,
			Message: "обложка не передается как RTP поток",
			Context: map[string]interface{}{"track": id},
		}
	}

	pt, encoding, clock, err := desc.rtpParams(id)
	if err != nil {
		return nil, err
	}
	rtpmap := fmt.Sprintf("%d %s/%d", pt, encoding, clock)
	if desc.Kind == MediaAudio && desc.ChannelCount > 1 {
		rtpmap += "/" + strconv.Itoa(int(desc.ChannelCount))
	}

	md := &sdp.MediaDescription{
		MediaName: sdp.MediaName{
			Media:   desc.Kind.String(),
			Port:    sdp.RangedPort{Value: 0},
			Protos:  []string{"RTP", "AVP"},
			Formats: []string{strconv.Itoa(int(pt))},
		},
	}
	md.Attributes = append(md.Attributes,
		sdp.NewAttribute("rtpmap", rtpmap),
		sdp.NewAttribute("mid", strconv.Itoa(id)),
		sdp.NewPropertyAttribute("sendonly"))

	if desc.Kind == MediaVideo {
		if desc.FrameRate > 0 {
			md.Attributes = append(md.Attributes,
				sdp.NewAttribute("framerate", strconv.FormatFloat(desc.FrameRate, 'f', -1, 64)))
		}
		md.Attributes = append(md.Attributes,
			sdp.NewAttribute("framesize", fmt.Sprintf("%d %d-%d", pt, desc.Width, desc.Height)))
	}
	if len(desc.CodecConfig) > 0 {
		md.Attributes = append(md.Attributes, sdp.NewAttribute("fmtp",
			fmt.Sprintf("%d config=%s", pt, base64.StdEncoding.EncodeToString(desc.CodecConfig))))
	}
	return md, nil
}
