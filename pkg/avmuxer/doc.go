// Package avmuxer реализует сессию мультиплексора: таблицу треков,
// проверку грамматики вызовов и движки контейнеров.
//
// Поддерживаемые форматы:
//   - OutputFormatWAV: один PCM трек audio/raw (go-audio/wav)
//   - OutputFormatRTP: SDP описание и RTP пакеты в кадрах RFC 4571 (pion/rtp, pion/sdp)
//
// Пример:
//
//	f, _ := os.Create("out.wav")
//	m, err := avmuxer.Create(f, avmuxer.OutputFormatWAV)
//	if err != nil {
//	    return err
//	}
//	defer m.Destroy()
//
//	track, _ := m.AddTrack(&avmuxer.TrackDescriptor{
//	    Kind: avmuxer.MediaAudio, Mime: avcodec.MimeAudioRaw,
//	    ChannelCount: 1, SampleRate: 8000,
//	})
//	m.Start()
//	m.WriteSample(track, pcm, avcodec.BufferAttr{Size: int32(len(pcm))})
//	m.Stop()
package avmuxer
