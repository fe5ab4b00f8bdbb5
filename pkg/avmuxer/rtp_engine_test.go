package avmuxer

import (
	"bytes"
	"encoding/binary"
	"io"
	"strconv"
	"strings"
	"testing"

	"github.com/arzzra/avcodec/pkg/avcodec"
	"github.com/pion/rtp"
	"github.com/pion/sdp/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readFrames разбирает поток с кадрированием RFC 4571
func readFrames(t *testing.T, data []byte) [][]byte {
	t.Helper()
	var frames [][]byte
	r := bytes.NewReader(data)
	for {
		var hdr [2]byte
		_, err := io.ReadFull(r, hdr[:])
		if err == io.EOF {
			return frames
		}
		require.NoError(t, err)
		frame := make([]byte, binary.BigEndian.Uint16(hdr[:]))
		_, err = io.ReadFull(r, frame)
		require.NoError(t, err)
		frames = append(frames, frame)
	}
}

func ssrcOf(t *testing.T, md *sdp.MediaDescription) uint32 {
	t.Helper()
	v, ok := md.Attribute("ssrc")
	require.True(t, ok)
	n, err := strconv.ParseUint(strings.Fields(v)[0], 10, 32)
	require.NoError(t, err)
	return uint32(n)
}

func TestRTPMuxerStream(t *testing.T) {
	var out bytes.Buffer
	m, err := Create(&out, OutputFormatRTP)
	require.NoError(t, err)
	require.NoError(t, m.Configure(avcodec.NewFormat().
		SetString(avcodec.KeyComment, "call recording").
		SetString(avcodec.KeyCreationTime, "2024-01-02T03:04:05Z")))

	audio, err := m.AddTrack(audioTrack())
	require.NoError(t, err)
	video, err := m.AddTrack(videoTrack())
	require.NoError(t, err)
	require.NoError(t, m.SetRotation(90))
	require.NoError(t, m.Start())

	voice := bytes.Repeat([]byte{0xD5}, 160)
	require.NoError(t, m.WriteSample(audio, voice, avcodec.BufferAttr{PTS: 20000, Size: 160}))

	frame := append([]byte{0, 0, 0, 1, 0x65}, bytes.Repeat([]byte{0xAB}, 2999)...)
	require.NoError(t, m.WriteSample(video, frame, avcodec.BufferAttr{
		PTS:   33333,
		Size:  int32(len(frame)),
		Flags: avcodec.FlagSyncFrame,
	}))
	require.NoError(t, m.WriteSample(audio, nil, avcodec.BufferAttr{PTS: 40000, Flags: avcodec.FlagEOS}))
	require.NoError(t, m.Stop())
	require.NoError(t, m.Destroy())

	frames := readFrames(t, out.Bytes())
	require.GreaterOrEqual(t, len(frames), 4)

	var sd sdp.SessionDescription
	require.NoError(t, sd.Unmarshal(frames[0]))
	require.Len(t, sd.MediaDescriptions, 2)
	require.NotNil(t, sd.SessionInformation)
	assert.Equal(t, "call recording", string(*sd.SessionInformation))
	assert.Equal(t, uint64(1704164645), sd.Origin.SessionID)

	audioMD, videoMD := sd.MediaDescriptions[0], sd.MediaDescriptions[1]
	assert.Equal(t, "audio", audioMD.MediaName.Media)
	rtpmap, ok := audioMD.Attribute("rtpmap")
	require.True(t, ok)
	assert.Equal(t, "0 PCMU/8000", rtpmap)
	_, ok = audioMD.Attribute("rotation")
	assert.False(t, ok, "поворот только у видео")

	rtpmap, ok = videoMD.Attribute("rtpmap")
	require.True(t, ok)
	assert.Equal(t, "97 H264/90000", rtpmap)
	rotation, ok := videoMD.Attribute("rotation")
	require.True(t, ok)
	assert.Equal(t, "90", rotation)

	audioSSRC, videoSSRC := ssrcOf(t, audioMD), ssrcOf(t, videoMD)
	assert.NotEqual(t, audioSSRC, videoSSRC)

	var audioPkts, videoPkts []*rtp.Packet
	for _, raw := range frames[1:] {
		pkt := &rtp.Packet{}
		require.NoError(t, pkt.Unmarshal(raw))
		assert.LessOrEqual(t, len(raw), DefaultMTU)
		switch pkt.SSRC {
		case audioSSRC:
			audioPkts = append(audioPkts, pkt)
		case videoSSRC:
			videoPkts = append(videoPkts, pkt)
		default:
			t.Fatalf("неизвестный SSRC %d", pkt.SSRC)
		}
	}

	require.Len(t, audioPkts, 2)
	assert.Equal(t, uint8(0), audioPkts[0].PayloadType)
	assert.Equal(t, uint32(160), audioPkts[0].Timestamp)
	assert.False(t, audioPkts[0].Marker)
	assert.Equal(t, voice, audioPkts[0].Payload)

	eos := audioPkts[1]
	assert.True(t, eos.Marker, "маркер на пакете с EOS")
	assert.Empty(t, eos.Payload)
	assert.Equal(t, uint32(320), eos.Timestamp)
	assert.Equal(t, audioPkts[0].SequenceNumber+1, eos.SequenceNumber)

	require.Greater(t, len(videoPkts), 1, "кадр больше MTU фрагментируется")
	for i, pkt := range videoPkts {
		assert.Equal(t, uint8(97), pkt.PayloadType)
		assert.Equal(t, uint32(2999), pkt.Timestamp)
		assert.Equal(t, i == len(videoPkts)-1, pkt.Marker)
		if i > 0 {
			assert.Equal(t, videoPkts[i-1].SequenceNumber+1, pkt.SequenceNumber)
		}
	}
}

func TestRTPMuxerRejectsCoverImage(t *testing.T) {
	m, err := Create(&bytes.Buffer{}, OutputFormatRTP)
	require.NoError(t, err)
	defer m.Destroy()

	_, err = m.AddTrack(&TrackDescriptor{
		Kind:   MediaCoverImage,
		Mime:   avcodec.MimeImageJPG,
		Width:  300,
		Height: 300,
	})
	assert.ErrorIs(t, err, avcodec.ErrUnsupportedFormat)

	id, err := m.AddTrack(audioTrack())
	require.NoError(t, err)
	assert.Equal(t, 0, id)
}

func TestRTPMuxerDynamicPayloadRange(t *testing.T) {
	var out bytes.Buffer
	m, err := Create(&out, OutputFormatRTP)
	require.NoError(t, err)
	defer m.Destroy()

	opus := &TrackDescriptor{
		Kind:         MediaAudio,
		Mime:         avcodec.MimeAudioOpus,
		ChannelCount: 2,
		SampleRate:   48000,
	}
	for i := 0; i < 32; i++ {
		id, err := m.AddTrack(opus)
		require.NoError(t, err)
		require.Equal(t, i, id)
	}

	_, err = m.AddTrack(opus)
	assert.ErrorIs(t, err, avcodec.ErrNoMemory, "динамический тип 128 не помещается в поле PT")
	assert.Equal(t, 32, m.Tracks().Len(), "неудачный AddTrack не занимает номер")

	// статический PCMU не требует динамического типа
	pcmu, err := m.AddTrack(audioTrack())
	require.NoError(t, err)
	assert.Equal(t, 32, pcmu)

	require.NoError(t, m.Start())
	require.NoError(t, m.WriteSample(31, []byte{1, 2, 3}, avcodec.BufferAttr{Size: 3}))
	require.NoError(t, m.Stop())

	frames := readFrames(t, out.Bytes())
	require.Len(t, frames, 2)

	var sd sdp.SessionDescription
	require.NoError(t, sd.Unmarshal(frames[0]))
	require.Len(t, sd.MediaDescriptions, 33)
	for i, md := range sd.MediaDescriptions {
		pt, err := strconv.Atoi(md.MediaName.Formats[0])
		require.NoError(t, err)
		assert.LessOrEqual(t, pt, 127, "трек %d", i)
	}
	assert.Equal(t, []string{"127"}, sd.MediaDescriptions[31].MediaName.Formats)
	assert.Equal(t, []string{"0"}, sd.MediaDescriptions[32].MediaName.Formats)

	var pkt rtp.Packet
	require.NoError(t, pkt.Unmarshal(frames[1]))
	assert.Equal(t, uint8(127), pkt.PayloadType)
	assert.False(t, pkt.Marker)
	assert.Equal(t, []byte{1, 2, 3}, pkt.Payload)
}

func TestRTPMuxerBadCreationTime(t *testing.T) {
	m, err := Create(&bytes.Buffer{}, OutputFormatRTP)
	require.NoError(t, err)
	defer m.Destroy()

	err = m.Configure(avcodec.NewFormat().SetString(avcodec.KeyCreationTime, "yesterday"))
	assert.ErrorIs(t, err, avcodec.ErrInvalidValue)
}

func TestRTPTimestamp(t *testing.T) {
	assert.Equal(t, uint32(0), rtpTimestamp(-5, 8000))
	assert.Equal(t, uint32(8000), rtpTimestamp(1_000_000, 8000))
	assert.Equal(t, uint32(90000), rtpTimestamp(1_000_000, 90000))
	assert.Equal(t, uint32(480), rtpTimestamp(10_000, 48000))
}

func TestChunkPayloader(t *testing.T) {
	chunks := chunkPayloader{}.Payload(4, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9})
	assert.Equal(t, [][]byte{{1, 2, 3, 4}, {5, 6, 7, 8}, {9}}, chunks)
	assert.Empty(t, chunkPayloader{}.Payload(4, nil))
}
