// Package g711 - эталонный движок кодеков G.711 (μ-law и A-law) для avcodec.
//
// Кодировщик принимает PCM s16le и выдает по байту на отсчет, декодер
// выполняет обратное преобразование. Импорт пакета регистрирует движки
// g711mu.encoder, g711mu.decoder, g711a.encoder и g711a.decoder
// в avcodec.DefaultRegistry:
//
//	import _ "github.com/arzzra/avcodec/pkg/engine/g711"
//
//	s, err := avcodec.Create(avcodec.MimeAudioPCMU, true)
package g711
