package avmuxer

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/arzzra/avcodec/pkg/avcodec"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockMuxerEngine записывает вызовы и позволяет внедрять ошибки
type mockMuxerEngine struct {
	calls   []string
	tracks  map[int]*TrackDescriptor
	samples [][]byte

	failAddTrack error
	failStart    error
	failStop     error
	failRelease  error
}

func (e *mockMuxerEngine) Configure(*avcodec.Format) error {
	e.calls = append(e.calls, "configure")
	return nil
}

func (e *mockMuxerEngine) AddTrack(id int, desc *TrackDescriptor) error {
	e.calls = append(e.calls, "add_track")
	if e.failAddTrack != nil {
		return e.failAddTrack
	}
	if e.tracks == nil {
		e.tracks = map[int]*TrackDescriptor{}
	}
	e.tracks[id] = desc
	return nil
}

func (e *mockMuxerEngine) SetRotation(int) error {
	e.calls = append(e.calls, "set_rotation")
	return nil
}

func (e *mockMuxerEngine) Start() error {
	e.calls = append(e.calls, "start")
	return e.failStart
}

func (e *mockMuxerEngine) WriteSample(_ int, data []byte, _ avcodec.BufferAttr) error {
	e.calls = append(e.calls, "write_sample")
	e.samples = append(e.samples, append([]byte(nil), data...))
	return nil
}

func (e *mockMuxerEngine) Stop() error {
	e.calls = append(e.calls, "stop")
	return e.failStop
}

func (e *mockMuxerEngine) Release() error {
	e.calls = append(e.calls, "release")
	return e.failRelease
}

func newMockMuxer(t *testing.T, opts ...Option) (*Muxer, *mockMuxerEngine) {
	t.Helper()
	engine := &mockMuxerEngine{}
	opts = append([]Option{WithEngineFactory(func(io.Writer) (MuxerEngine, error) {
		return engine, nil
	})}, opts...)
	m, err := Create(&bytes.Buffer{}, OutputFormatRTP, opts...)
	require.NoError(t, err)
	return m, engine
}

func audioTrack() *TrackDescriptor {
	return &TrackDescriptor{
		Kind:         MediaAudio,
		Mime:         avcodec.MimeAudioPCMU,
		ChannelCount: 1,
		SampleRate:   8000,
	}
}

func videoTrack() *TrackDescriptor {
	return &TrackDescriptor{
		Kind:      MediaVideo,
		Mime:      avcodec.MimeVideoAVC,
		Width:     640,
		Height:    480,
		FrameRate: 30,
	}
}

func TestCreateMuxer(t *testing.T) {
	t.Run("пустой вывод", func(t *testing.T) {
		m, err := Create(nil, OutputFormatRTP)
		assert.Nil(t, m)
		assert.ErrorIs(t, err, avcodec.ErrInvalidValue)
	})

	t.Run("неизвестный формат", func(t *testing.T) {
		m, err := Create(&bytes.Buffer{}, OutputFormat(42))
		assert.Nil(t, m)
		assert.ErrorIs(t, err, avcodec.ErrUnsupportedFileType)
	})

	t.Run("WAV без Seek", func(t *testing.T) {
		m, err := Create(&bytes.Buffer{}, OutputFormatWAV)
		assert.Nil(t, m)
		assert.ErrorIs(t, err, avcodec.ErrInvalidValue)
	})

	t.Run("ошибка фабрики без кода", func(t *testing.T) {
		m, err := Create(&bytes.Buffer{}, OutputFormatRTP,
			WithEngineFactory(func(io.Writer) (MuxerEngine, error) {
				return nil, errors.New("boom")
			}))
		assert.Nil(t, m)
		assert.ErrorIs(t, err, avcodec.ErrInvalidValue)
	})

	t.Run("создан в configured", func(t *testing.T) {
		m, _ := newMockMuxer(t)
		assert.Equal(t, avcodec.StateConfigured, m.State())
		assert.Equal(t, OutputFormatRTP, m.OutputFormat())
		assert.NotEmpty(t, m.ID())
	})
}

func TestMuxerGrammar(t *testing.T) {
	m, engine := newMockMuxer(t)

	assert.ErrorIs(t, m.WriteSample(0, []byte{1}, avcodec.BufferAttr{Size: 1}), avcodec.ErrInvalidOperation,
		"WriteSample до Start")
	assert.ErrorIs(t, m.Start(), avcodec.ErrInvalidOperation, "Start без треков")

	id, err := m.AddTrack(audioTrack())
	require.NoError(t, err)
	assert.Equal(t, 0, id)
	require.NoError(t, m.SetRotation(90))
	require.NoError(t, m.Start())
	assert.Equal(t, avcodec.StateRunning, m.State())

	_, err = m.AddTrack(audioTrack())
	assert.ErrorIs(t, err, avcodec.ErrInvalidOperation, "AddTrack после Start")
	assert.ErrorIs(t, m.SetRotation(180), avcodec.ErrInvalidOperation, "SetRotation после Start")
	assert.ErrorIs(t, m.Configure(avcodec.NewFormat()), avcodec.ErrInvalidOperation)
	assert.ErrorIs(t, m.Start(), avcodec.ErrInvalidOperation, "повторный Start")

	require.NoError(t, m.WriteSample(id, []byte{1, 2, 3}, avcodec.BufferAttr{Offset: 1, Size: 2}))
	require.NoError(t, m.Stop())
	assert.True(t, m.IsStopped())
	assert.Equal(t, avcodec.StateStopped, m.State())

	_, err = m.AddTrack(audioTrack())
	assert.ErrorIs(t, err, avcodec.ErrInvalidOperation, "AddTrack после Stop")
	assert.ErrorIs(t, m.SetRotation(0), avcodec.ErrInvalidOperation, "SetRotation после Stop")
	assert.ErrorIs(t, m.WriteSample(id, []byte{1}, avcodec.BufferAttr{Size: 1}), avcodec.ErrInvalidOperation)
	assert.ErrorIs(t, m.Start(), avcodec.ErrInvalidOperation, "мультиплексор не перезапускается")
	assert.ErrorIs(t, m.Stop(), avcodec.ErrInvalidOperation)

	require.NoError(t, m.Destroy())
	assert.Equal(t, avcodec.StateDestroyed, m.State())
	assert.ErrorIs(t, m.Destroy(), avcodec.ErrInvalidOperation)

	assert.Equal(t, []string{"add_track", "set_rotation", "start", "write_sample", "stop", "release"}, engine.calls)
	assert.Equal(t, [][]byte{{2, 3}}, engine.samples)
}

func TestMuxerAddTrackValidation(t *testing.T) {
	m, engine := newMockMuxer(t)

	bad := audioTrack()
	bad.ChannelCount = -1
	_, err := m.AddTrack(bad)
	assert.ErrorIs(t, err, avcodec.ErrInvalidValue)

	unknown := audioTrack()
	unknown.Mime = "audio/unknown"
	_, err = m.AddTrack(unknown)
	assert.ErrorIs(t, err, avcodec.ErrUnsupportedFormat)

	engine.failAddTrack = avcodec.NewError(avcodec.CodeUnsupportedFormat, "", "engine")
	_, err = m.AddTrack(audioTrack())
	assert.ErrorIs(t, err, avcodec.ErrUnsupportedFormat)
	engine.failAddTrack = nil

	id, err := m.AddTrack(audioTrack())
	require.NoError(t, err)
	assert.Equal(t, 0, id, "неудачные AddTrack не расходуют идентификатор")

	id, err = m.AddTrack(videoTrack())
	require.NoError(t, err)
	assert.Equal(t, 1, id)
	assert.Equal(t, 2, m.Tracks().Len())
}

func TestMuxerSetRotation(t *testing.T) {
	m, _ := newMockMuxer(t)
	for _, deg := range []int{0, 90, 180, 270} {
		require.NoError(t, m.SetRotation(deg))
		assert.Equal(t, deg, m.Rotation())
	}
	for _, deg := range []int{-90, 45, 360} {
		assert.ErrorIs(t, m.SetRotation(deg), avcodec.ErrInvalidValue)
	}
	assert.Equal(t, 270, m.Rotation())
}

func TestMuxerWriteSampleValidation(t *testing.T) {
	m, _ := newMockMuxer(t)
	id, err := m.AddTrack(audioTrack())
	require.NoError(t, err)
	require.NoError(t, m.Start())

	assert.ErrorIs(t, m.WriteSample(5, []byte{1}, avcodec.BufferAttr{Size: 1}), avcodec.ErrInvalidValue)
	assert.ErrorIs(t, m.WriteSample(-1, []byte{1}, avcodec.BufferAttr{Size: 1}), avcodec.ErrInvalidValue)
	assert.ErrorIs(t, m.WriteSample(id, []byte{1}, avcodec.BufferAttr{Size: 2}), avcodec.ErrInvalidValue)
	assert.ErrorIs(t, m.WriteSample(id, []byte{1}, avcodec.BufferAttr{Offset: -1}), avcodec.ErrInvalidValue)
	assert.NoError(t, m.WriteSample(id, nil, avcodec.BufferAttr{Flags: avcodec.FlagEOS}))
}

func TestMuxerStopRollback(t *testing.T) {
	m, engine := newMockMuxer(t)
	_, err := m.AddTrack(audioTrack())
	require.NoError(t, err)
	require.NoError(t, m.Start())

	engine.failStop = errors.New("disk full")
	err = m.Stop()
	require.Error(t, err)
	assert.ErrorIs(t, err, avcodec.ErrUnknown)
	assert.False(t, m.IsStopped(), "флаг stopped откатывается")
	assert.Equal(t, avcodec.StateRunning, m.State())

	engine.failStop = nil
	require.NoError(t, m.Stop())
	assert.True(t, m.IsStopped())
}

func TestMuxerStartFailure(t *testing.T) {
	m, engine := newMockMuxer(t)
	_, err := m.AddTrack(audioTrack())
	require.NoError(t, err)

	engine.failStart = avcodec.NewError(avcodec.CodeNoMemory, "", "oom")
	assert.ErrorIs(t, m.Start(), avcodec.ErrNoMemory)
	assert.Equal(t, avcodec.StateConfigured, m.State())

	engine.failStart = nil
	require.NoError(t, m.Start())
}

func TestMuxerDestroyReleaseError(t *testing.T) {
	m, engine := newMockMuxer(t)
	engine.failRelease = errors.New("close failed")

	err := m.Destroy()
	require.Error(t, err)
	assert.Equal(t, avcodec.StateDestroyed, m.State())
	assert.ErrorIs(t, m.Destroy(), avcodec.ErrInvalidOperation)
}

func TestMuxerConfigure(t *testing.T) {
	m, engine := newMockMuxer(t)
	assert.Nil(t, m.Params())
	assert.ErrorIs(t, m.Configure(nil), avcodec.ErrInvalidValue)

	params := avcodec.NewFormat().SetString(avcodec.KeyComment, "test")
	require.NoError(t, m.Configure(params))
	params.SetString(avcodec.KeyComment, "changed")

	got, ok := m.Params().GetString(avcodec.KeyComment)
	require.True(t, ok)
	assert.Equal(t, "test", got)
	assert.Equal(t, []string{"configure"}, engine.calls)
}

func TestNilMuxer(t *testing.T) {
	var m *Muxer
	assert.ErrorIs(t, m.Start(), avcodec.ErrInvalidValue)
	assert.ErrorIs(t, m.Stop(), avcodec.ErrInvalidValue)
	assert.ErrorIs(t, m.Destroy(), avcodec.ErrInvalidValue)
	_, err := m.AddTrack(audioTrack())
	assert.ErrorIs(t, err, avcodec.ErrInvalidValue)
	assert.Equal(t, avcodec.StateDestroyed, m.State())
}

func TestMuxerMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := avcodec.NewMetrics(avcodec.MetricsConfig{Namespace: "test", Registerer: reg})
	m, _ := newMockMuxer(t, WithMetrics(metrics))
	id, err := m.AddTrack(audioTrack())
	require.NoError(t, err)
	require.NoError(t, m.Start())
	for i := 0; i < 3; i++ {
		require.NoError(t, m.WriteSample(id, []byte{0}, avcodec.BufferAttr{Size: 1}))
	}
	require.NoError(t, m.Stop())
	require.NoError(t, m.Destroy())

	count, err := testutil.GatherAndCount(reg, "test_muxer_samples_written_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	families, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			if c := metric.GetCounter(); c != nil {
				values[mf.GetName()] += c.GetValue()
			}
			if g := metric.GetGauge(); g != nil {
				values[mf.GetName()] += g.GetValue()
			}
		}
	}
	assert.Equal(t, 3.0, values["test_muxer_samples_written_total"])
	assert.Equal(t, 1.0, values["test_sessions_created_total"])
	assert.Equal(t, 0.0, values["test_sessions_active"])
}
