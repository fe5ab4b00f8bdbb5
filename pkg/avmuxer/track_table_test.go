package avmuxer

import (
	"encoding/base64"
	"testing"

	"github.com/arzzra/avcodec/pkg/avcodec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackValidate(t *testing.T) {
	tests := []struct {
		name string
		desc *TrackDescriptor
		code avcodec.ErrorCode
	}{
		{"nil", nil, avcodec.CodeInvalidValue},
		{"без mime", &TrackDescriptor{Kind: MediaAudio, ChannelCount: 1, SampleRate: 8000}, avcodec.CodeInvalidValue},
		{"неизвестный mime", &TrackDescriptor{Kind: MediaAudio, Mime: "audio/x-foo", ChannelCount: 1, SampleRate: 8000}, avcodec.CodeUnsupportedFormat},
		{"видео mime у аудио", &TrackDescriptor{Kind: MediaAudio, Mime: avcodec.MimeVideoAVC, ChannelCount: 1, SampleRate: 8000}, avcodec.CodeUnsupportedFormat},
		{"ноль каналов", &TrackDescriptor{Kind: MediaAudio, Mime: avcodec.MimeAudioRaw, SampleRate: 8000}, avcodec.CodeInvalidValue},
		{"отрицательные каналы", &TrackDescriptor{Kind: MediaAudio, Mime: avcodec.MimeAudioRaw, ChannelCount: -1, SampleRate: 8000}, avcodec.CodeInvalidValue},
		{"без частоты", &TrackDescriptor{Kind: MediaAudio, Mime: avcodec.MimeAudioRaw, ChannelCount: 1}, avcodec.CodeInvalidValue},
		{"отрицательная разрядность", &TrackDescriptor{Kind: MediaAudio, Mime: avcodec.MimeAudioRaw, ChannelCount: 1, SampleRate: 8000, BitsPerSample: -8}, avcodec.CodeInvalidValue},
		{"аудио ок", audioTrack(), avcodec.CodeOK},
		{"mime в другом регистре", &TrackDescriptor{Kind: MediaAudio, Mime: "AUDIO/RAW", ChannelCount: 2, SampleRate: 44100}, avcodec.CodeOK},
		{"видео без размера", &TrackDescriptor{Kind: MediaVideo, Mime: avcodec.MimeVideoVP8}, avcodec.CodeInvalidValue},
		{"видео с плохим форматом пикселей", &TrackDescriptor{Kind: MediaVideo, Mime: avcodec.MimeVideoVP8, Width: 2, Height: 2, PixelFormat: 99}, avcodec.CodeInvalidValue},
		{"видео с отрицательной частотой кадров", &TrackDescriptor{Kind: MediaVideo, Mime: avcodec.MimeVideoVP8, Width: 2, Height: 2, FrameRate: -1}, avcodec.CodeInvalidValue},
		{"видео ок", videoTrack(), avcodec.CodeOK},
		{"обложка gif", &TrackDescriptor{Kind: MediaCoverImage, Mime: "image/gif", Width: 1, Height: 1}, avcodec.CodeUnsupportedFormat},
		{"обложка png", &TrackDescriptor{Kind: MediaCoverImage, Mime: avcodec.MimeImagePNG, Width: 1, Height: 1}, avcodec.CodeOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.desc.Validate()
			assert.Equal(t, tt.code, avcodec.CodeOf(err))
		})
	}
}

func TestTrackTable(t *testing.T) {
	table := NewTrackTable()
	assert.Equal(t, 0, table.Next())

	desc := videoTrack()
	desc.CodecConfig = []byte{1, 2, 3}
	id := table.Add(desc)
	assert.Equal(t, 0, id)
	assert.Equal(t, 1, table.Next())

	desc.CodecConfig[0] = 9
	desc.Width = 1
	got, ok := table.Get(id)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, got.CodecConfig, "таблица хранит копию")
	assert.Equal(t, int32(640), got.Width)

	assert.Equal(t, 1, table.Add(audioTrack()))
	assert.Equal(t, 2, table.Len())

	_, ok = table.Get(2)
	assert.False(t, ok)
	_, ok = table.Get(-1)
	assert.False(t, ok)

	table.Reset()
	assert.Equal(t, 0, table.Len())
}

func TestTrackTableDescribe(t *testing.T) {
	table := NewTrackTable()

	pcmu := table.Add(audioTrack())
	opus := table.Add(&TrackDescriptor{Kind: MediaAudio, Mime: avcodec.MimeAudioOpus, ChannelCount: 2, SampleRate: 48000})
	pcma16k := table.Add(&TrackDescriptor{Kind: MediaAudio, Mime: avcodec.MimeAudioPCMA, ChannelCount: 1, SampleRate: 16000})
	h264 := videoTrack()
	h264.CodecConfig = []byte{0x67, 0x42}
	video := table.Add(h264)
	cover := table.Add(&TrackDescriptor{Kind: MediaCoverImage, Mime: avcodec.MimeImageJPG, Width: 1, Height: 1})

	md, err := table.Describe(pcmu)
	require.NoError(t, err)
	assert.Equal(t, "audio", md.MediaName.Media)
	assert.Equal(t, []string{"RTP", "AVP"}, md.MediaName.Protos)
	assert.Equal(t, []string{"0"}, md.MediaName.Formats)
	v, _ := md.Attribute("rtpmap")
	assert.Equal(t, "0 PCMU/8000", v)
	v, _ = md.Attribute("mid")
	assert.Equal(t, "0", v)
	_, ok := md.Attribute("sendonly")
	assert.True(t, ok)

	md, err = table.Describe(opus)
	require.NoError(t, err)
	v, _ = md.Attribute("rtpmap")
	assert.Equal(t, "97 opus/48000/2", v)

	md, err = table.Describe(pcma16k)
	require.NoError(t, err)
	v, _ = md.Attribute("rtpmap")
	assert.Equal(t, "98 PCMA/16000", v, "статический тип только для 8 кГц")

	md, err = table.Describe(video)
	require.NoError(t, err)
	v, _ = md.Attribute("rtpmap")
	assert.Equal(t, "99 H264/90000", v)
	v, _ = md.Attribute("framerate")
	assert.Equal(t, "30", v)
	v, _ = md.Attribute("framesize")
	assert.Equal(t, "99 640-480", v)
	v, _ = md.Attribute("fmtp")
	assert.Equal(t, "99 config="+base64.StdEncoding.EncodeToString([]byte{0x67, 0x42}), v)

	_, err = table.Describe(cover)
	assert.ErrorIs(t, err, avcodec.ErrUnsupportedFormat)

	_, err = table.Describe(42)
	assert.ErrorIs(t, err, avcodec.ErrInvalidValue)
}

func TestDescriptorFromFormat(t *testing.T) {
	f := avcodec.NewAudioFormat(avcodec.MimeAudioPCMU, 8000, 1).
		SetInt32(avcodec.KeyBitsPerSample, 8)
	desc, err := DescriptorFromFormat(f)
	require.NoError(t, err)
	assert.Equal(t, MediaAudio, desc.Kind)
	assert.Equal(t, int32(8000), desc.SampleRate)
	assert.Equal(t, int32(8), desc.BitsPerSample)
	assert.NoError(t, desc.Validate())

	v := avcodec.NewVideoFormat(avcodec.MimeVideoVP9, 320, 240).
		SetFloat64(avcodec.KeyFrameRate, 25).
		SetInt32(avcodec.KeyPixelFormat, int32(avcodec.PixelFormatNV12))
	desc, err = DescriptorFromFormat(v)
	require.NoError(t, err)
	assert.Equal(t, MediaVideo, desc.Kind)
	assert.Equal(t, 25.0, desc.FrameRate)
	assert.Equal(t, avcodec.PixelFormatNV12, desc.PixelFormat)

	_, err = DescriptorFromFormat(nil)
	assert.ErrorIs(t, err, avcodec.ErrInvalidValue)
	_, err = DescriptorFromFormat(avcodec.NewFormat())
	assert.ErrorIs(t, err, avcodec.ErrInvalidValue)
	_, err = DescriptorFromFormat(avcodec.NewFormat().SetString(avcodec.KeyMime, "text/plain"))
	assert.ErrorIs(t, err, avcodec.ErrUnsupportedFormat)
}
