package g711

import (
	"encoding/binary"

	"github.com/arzzra/avcodec/pkg/avcodec"
)

// Law закон компандирования G.711
type Law int

const (
	// LawMu - μ-law (PCMU), Северная Америка и Япония
	LawMu Law = iota
	// LawA - A-law (PCMA), Европа
	LawA
)

// String возвращает короткое имя закона
func (l Law) String() string {
	if l == LawA {
		return "g711a"
	}
	return "g711mu"
}

// Mime возвращает mime тип сжатого потока
func (l Law) Mime() string {
	if l == LawA {
		return avcodec.MimeAudioPCMA
	}
	return avcodec.MimeAudioPCMU
}

const (
	muBias = 0x84
	muClip = 32635
)

// EncodeMu кодирует 16-битный отсчет в μ-law
func EncodeMu(pcm int16) byte {
	sample := int(pcm)
	sign := 0
	if sample < 0 {
		sample = -sample
		sign = 0x80
	}
	if sample > muClip {
		sample = muClip
	}
	sample += muBias

	exponent := 7
	for mask := 0x4000; sample&mask == 0 && exponent > 0; mask >>= 1 {
		exponent--
	}
	mantissa := (sample >> (exponent + 3)) & 0x0F
	return ^byte(sign | exponent<<4 | mantissa)
}

// DecodeMu декодирует μ-law в 16-битный отсчет
func DecodeMu(u byte) int16 {
	u = ^u
	exponent := int(u>>4) & 0x07
	mantissa := int(u) & 0x0F
	t := ((mantissa << 3) + muBias) << exponent
	if u&0x80 != 0 {
		return int16(muBias - t)
	}
	return int16(t - muBias)
}

// Верхние границы сегментов A-law для 13-битного отсчета
var aSegEnd = [8]int{0x1F, 0x3F, 0x7F, 0xFF, 0x1FF, 0x3FF, 0x7FF, 0xFFF}

// EncodeA кодирует 16-битный отсчет в A-law
func EncodeA(pcm int16) byte {
	v := int(pcm) >> 3
	mask := 0xD5
	if v < 0 {
		mask = 0x55
		v = -v - 1
	}

	seg := 0
	for seg < len(aSegEnd) && v > aSegEnd[seg] {
		seg++
	}
	if seg >= len(aSegEnd) {
		return byte(0x7F ^ mask)
	}

	aval := seg << 4
	if seg < 2 {
		aval |= (v >> 1) & 0x0F
	} else {
		aval |= (v >> seg) & 0x0F
	}
	return byte(aval ^ mask)
}

// DecodeA декодирует A-law в 16-битный отсчет
func DecodeA(a byte) int16 {
	a ^= 0x55
	t := (int(a) & 0x0F) << 4
	seg := (int(a) & 0x70) >> 4
	switch seg {
	case 0:
		t += 8
	case 1:
		t += 0x108
	default:
		t += 0x108
		t <<= seg - 1
	}
	if a&0x80 != 0 {
		return int16(t)
	}
	return int16(-t)
}

// encodeBlock кодирует PCM s16le из src в dst. Возвращает число записанных байт.
// Нечетный хвостовой байт src отбрасывается.
func encodeBlock(law Law, dst, src []byte) int {
	n := len(src) / 2
	if n > len(dst) {
		n = len(dst)
	}
	enc := EncodeMu
	if law == LawA {
		enc = EncodeA
	}
	for i := 0; i < n; i++ {
		dst[i] = enc(int16(binary.LittleEndian.Uint16(src[2*i:])))
	}
	return n
}

// decodeBlock декодирует G.711 из src в PCM s16le в dst
func decodeBlock(law Law, dst, src []byte) int {
	n := len(src)
	if 2*n > len(dst) {
		n = len(dst) / 2
	}
	dec := DecodeMu
	if law == LawA {
		dec = DecodeA
	}
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(dst[2*i:], uint16(dec(src[i])))
	}
	return 2 * n
}
