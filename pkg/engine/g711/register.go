package g711

import "github.com/arzzra/avcodec/pkg/avcodec"

// Имена движков в таблице avcodec.DefaultRegistry
const (
	NameMuEncoder = "g711mu.encoder"
	NameMuDecoder = "g711mu.decoder"
	NameAEncoder  = "g711a.encoder"
	NameADecoder  = "g711a.decoder"
)

// Infos возвращает описания всех движков пакета
func Infos() []avcodec.EngineInfo {
	info := func(name string, law Law, encode bool) avcodec.EngineInfo {
		kind := avcodec.KindAudioDecoder
		if encode {
			kind = avcodec.KindAudioEncoder
		}
		return avcodec.EngineInfo{
			Name:      name,
			Kind:      kind,
			MimeTypes: []string{law.Mime()},
			New: func() (avcodec.Engine, error) {
				return NewEngine(law, encode), nil
			},
		}
	}
	return []avcodec.EngineInfo{
		info(NameMuEncoder, LawMu, true),
		info(NameMuDecoder, LawMu, false),
		info(NameAEncoder, LawA, true),
		info(NameADecoder, LawA, false),
	}
}

// Register добавляет движки пакета в таблицу
func Register(reg *avcodec.EngineRegistry) error {
	for _, info := range Infos() {
		if err := reg.Register(info); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	for _, info := range Infos() {
		avcodec.DefaultRegistry.MustRegister(info)
	}
}
