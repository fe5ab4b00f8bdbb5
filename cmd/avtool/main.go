// avtool - утилита для проверки сессий кодеков и мультиплексоров:
// кодирует WAV в G.711 и пишет результат в RTP поток или обратно в WAV.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/arzzra/avcodec/pkg/avcodec"
	"github.com/arzzra/avcodec/pkg/avmuxer"
	"github.com/arzzra/avcodec/pkg/config"
	"github.com/arzzra/avcodec/pkg/engine/g711"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	var (
		mode       = flag.String("mode", "engines", "Режим: engines, encode, roundtrip")
		configPath = flag.String("config", "", "YAML файл конфигурации")
		input      = flag.String("in", "", "Входной WAV файл (16 бит)")
		output     = flag.String("out", "", "Выходной файл")
		law        = flag.String("law", "mu", "Закон G.711: mu или a")
		comment    = flag.String("comment", "", "Комментарий контейнера")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}
	rt := cfg.NewRuntime(os.Stderr, prometheus.DefaultRegisterer)
	slog.SetDefault(rt.Logger)

	switch *mode {
	case "engines":
		listEngines()
	case "encode", "roundtrip":
		l, err := parseLaw(*law)
		if err == nil {
			err = run(cfg, rt, *mode, l, *input, *output, *comment)
		}
		if err != nil {
			rt.Logger.Error("ошибка выполнения",
				slog.String("mode", *mode),
				slog.String("error", err.Error()))
			os.Exit(1)
		}
	default:
		fmt.Printf("Неизвестный режим: %s\n", *mode)
		fmt.Println("Доступные режимы: engines, encode, roundtrip")
		os.Exit(1)
	}
}

func listEngines() {
	for _, info := range avcodec.DefaultRegistry.Engines() {
		fmt.Printf("%-18s %-14s %s\n", info.Name, info.Kind, strings.Join(info.MimeTypes, ","))
	}
}

func parseLaw(s string) (g711.Law, error) {
	switch strings.ToLower(s) {
	case "mu", "u", "pcmu":
		return g711.LawMu, nil
	case "a", "pcma":
		return g711.LawA, nil
	}
	return 0, fmt.Errorf("неизвестный закон G.711: %s", s)
}

// run выполняет encode (WAV -> G.711 -> RTP) или roundtrip (WAV -> G.711 -> PCM -> WAV)
func run(cfg *config.Config, rt *config.Runtime, mode string, law g711.Law, in, out, comment string) error {
	if in == "" || out == "" {
		return fmt.Errorf("нужны -in и -out")
	}

	src, err := os.Open(in)
	if err != nil {
		return err
	}
	defer src.Close()

	pcm, err := readWAV(src)
	if err != nil {
		return err
	}
	rt.Logger.Info("WAV прочитан",
		slog.String("file", in),
		slog.Int("sample_rate", int(pcm.sampleRate)),
		slog.Int("channels", int(pcm.channels)),
		slog.Int("frames", len(pcm.frames)))

	format := avcodec.NewAudioFormat(law.Mime(), pcm.sampleRate, pcm.channels)
	encoded, err := transcode(rt.Logger, law.Mime(), true, format, pcm.frames, cfg.SessionOptions(rt)...)
	if err != nil {
		return fmt.Errorf("кодирование: %w", err)
	}

	dst, err := os.Create(out)
	if err != nil {
		return err
	}
	defer dst.Close()

	if mode == "encode" {
		track := &avmuxer.TrackDescriptor{
			Kind:          avmuxer.MediaAudio,
			Mime:          law.Mime(),
			ChannelCount:  pcm.channels,
			SampleRate:    pcm.sampleRate,
			BitsPerSample: 8,
		}
		return mux(dst, avmuxer.OutputFormatRTP, track, comment, encoded, cfg.MuxerOptions(rt)...)
	}

	decoded, err := transcode(rt.Logger, law.Mime(), false, format, encoded, cfg.SessionOptions(rt)...)
	if err != nil {
		return fmt.Errorf("декодирование: %w", err)
	}
	track := &avmuxer.TrackDescriptor{
		Kind:          avmuxer.MediaAudio,
		Mime:          avcodec.MimeAudioRaw,
		ChannelCount:  pcm.channels,
		SampleRate:    pcm.sampleRate,
		BitsPerSample: 16,
	}
	return mux(dst, avmuxer.OutputFormatWAV, track, comment, decoded, cfg.MuxerOptions(rt)...)
}
